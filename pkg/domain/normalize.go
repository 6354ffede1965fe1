package domain

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// Date layouts found in hand-typed fields and older exports, ISO first.
var dateLayouts = []string{isoDate, "02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006"}

var clockLayouts = []string{"15:04", "15:04:05", "15h04"}

// NormalizeDate rewrites a recognised date to YYYY-MM-DD. Day-first layouts
// are assumed for slashed dates. Anything else comes back trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate)
		}
	}
	return s
}

// NormalizeClock rewrites a recognised time of day to HH:MM. Anything else
// comes back trimmed.
func NormalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if t, ok := parseClock(s); ok {
		return t.Format("15:04")
	}
	return s
}

func parseClock(s string) (time.Time, bool) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
