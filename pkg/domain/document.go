package domain

import (
	"strings"
	"time"
)

// Document is the single structured value persisted by the state store. It is
// always written as a whole; there is no field-level update at the storage
// boundary.
type Document struct {
	Meta         Meta          `json:"meta"`
	Settings     Settings      `json:"settings"`
	Patients     []Patient     `json:"patients"`
	Appointments []Appointment `json:"appts"`
	Entries      []Entry       `json:"entries"`
	Rx           []RxMeta      `json:"rx"`
	Drafts       Drafts        `json:"_docDrafts"`
}

// DefaultSettings returns the settings used on first run and to fill fields
// missing from imported documents.
func DefaultSettings() Settings {
	return Settings{
		AppName:  "BTX Prontuário",
		AppSub:   "Premium Offline",
		ProfName: "Profissional",
		Place:    "Belém – PA",
		DateFmt:  DateFormatPT,
	}
}

// NewDocument builds a fresh document with default settings and empty
// collections.
func NewDocument(now time.Time) Document {
	ts := NewTimestamp(now)
	return Document{
		Meta:         Meta{Version: DocumentVersion, CreatedAt: ts, UpdatedAt: ts},
		Settings:     DefaultSettings(),
		Patients:     []Patient{},
		Appointments: []Appointment{},
		Entries:      []Entry{},
		Rx:           []RxMeta{},
	}
}

// Normalize fills absent collections and meta fields so that documents loaded
// from older or damaged sources behave like fresh ones.
func (d *Document) Normalize(now time.Time) {
	if d.Patients == nil {
		d.Patients = []Patient{}
	}
	if d.Appointments == nil {
		d.Appointments = []Appointment{}
	}
	if d.Entries == nil {
		d.Entries = []Entry{}
	}
	if d.Rx == nil {
		d.Rx = []RxMeta{}
	}
	if d.Meta.Version == "" {
		d.Meta.Version = DocumentVersion
	}
	if d.Meta.CreatedAt.IsZero() {
		d.Meta.CreatedAt = NewTimestamp(now)
	}
	if d.Meta.UpdatedAt.IsZero() {
		d.Meta.UpdatedAt = d.Meta.CreatedAt
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Patients = append([]Patient{}, d.Patients...)
	out.Appointments = append([]Appointment{}, d.Appointments...)
	out.Entries = append([]Entry{}, d.Entries...)
	out.Rx = append([]RxMeta{}, d.Rx...)
	out.Drafts = d.Drafts.Clone()
	return out
}

// ListPatients implements RuleView.
func (d Document) ListPatients() []Patient {
	return append([]Patient(nil), d.Patients...)
}

// FindPatient implements RuleView.
func (d Document) FindPatient(id string) (Patient, bool) {
	for _, p := range d.Patients {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

// FindAppointment looks up an appointment by id.
func (d Document) FindAppointment(id string) (Appointment, bool) {
	for _, a := range d.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

// FindEntry looks up a progress note by id.
func (d Document) FindEntry(id string) (Entry, bool) {
	for _, e := range d.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// FindRx implements RuleView.
func (d Document) FindRx(id string) (RxMeta, bool) {
	for _, r := range d.Rx {
		if r.ID == id {
			return r, true
		}
	}
	return RxMeta{}, false
}

// Normalize trims every field and restores defaults for the identity fields
// that must never be blank.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	out := Settings{
		AppName:   orDefault(s.AppName, def.AppName),
		AppSub:    orDefault(s.AppSub, def.AppSub),
		ProfName:  orDefault(s.ProfName, def.ProfName),
		ProfReg:   strings.TrimSpace(s.ProfReg),
		ProfPhone: strings.TrimSpace(s.ProfPhone),
		ProfEmail: strings.TrimSpace(s.ProfEmail),
		ProfAddr:  strings.TrimSpace(s.ProfAddr),
		Place:     orDefault(s.Place, def.Place),
		DateFmt:   DateFormatPT,
	}
	if strings.TrimSpace(s.DateFmt) == DateFormatISO {
		out.DateFmt = DateFormatISO
	}
	return out
}

// FormatDate renders a YYYY-MM-DD date in the configured display format.
func (s Settings) FormatDate(iso string) string {
	if iso == "" {
		return ""
	}
	if s.DateFmt == DateFormatISO {
		return iso
	}
	parts := strings.Split(iso, "-")
	if len(parts) != 3 {
		return iso
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
