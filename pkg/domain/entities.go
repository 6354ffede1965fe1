// Package domain defines the clinical records held in the state document,
// the backup artifact that carries them between installations, and the rule
// evaluation primitives applied before every persist.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the state document.
type EntityType string

// Supported entity type identifiers used in Change records and error reports.
const (
	// EntityPatient identifies a patient roster record.
	EntityPatient EntityType = "patient"
	// EntityAppointment identifies an agenda record.
	EntityAppointment EntityType = "appointment"
	// EntityEntry identifies a progress note.
	EntityEntry EntityType = "entry"
	// EntityRx identifies attachment metadata paired with a blob.
	EntityRx       EntityType = "rx"
	EntitySettings EntityType = "settings"
	EntityDraft    EntityType = "draft"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks the persist.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// DocumentVersion is the version tag written into Meta.
const DocumentVersion = "1.0"

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is an instant serialized as an ISO-8601 string with millisecond
// precision. Zero values encode as null. Decoding never fails: null, empty or
// unparsable text yields the zero value so that damaged documents still load.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC at millisecond precision.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(timestampLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil || strings.TrimSpace(raw) == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		*t = Timestamp{}
		return nil
	}
	*t = Timestamp{Time: parsed.UTC()}
	return nil
}

// Meta carries the document version and its lifecycle timestamps.
type Meta struct {
	Version   string    `json:"version"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Settings holds the practice identity printed on documents.
type Settings struct {
	AppName   string `json:"appName"`
	AppSub    string `json:"appSub"`
	ProfName  string `json:"profName"`
	ProfReg   string `json:"profReg"`
	ProfPhone string `json:"profPhone"`
	ProfEmail string `json:"profEmail"`
	ProfAddr  string `json:"profAddr"`
	Place     string `json:"place"`
	DateFmt   string `json:"dateFmt"`
}

// Date display formats understood by Settings.FormatDate.
const (
	DateFormatPT  = "pt"
	DateFormatISO = "iso"
)

// Patient is a roster record. Appointments, entries and attachments reference
// it through PatientID.
type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Phone     string    `json:"phone"`
	Birth     string    `json:"birth"` // free text; NormalizeDate rewrites recognised dates
	Doc       string    `json:"doc"`
	Notes     string    `json:"notes"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Appointment is an agenda slot for a patient.
type Appointment struct {
	ID        string    `json:"id"`
	Date      string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time      string    `json:"time" validate:"omitempty,clock"`
	PatientID string    `json:"patientId" validate:"required"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Entry is a progress note in a patient's record.
type Entry struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId" validate:"required"`
	Date      string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// RxMeta describes an image attachment. The binary payload lives in the blob
// store under the same ID.
type RxMeta struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId" validate:"required"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	CreatedAt Timestamp `json:"createdAt"`
}

func (p Patient) key() string     { return p.ID }
func (a Appointment) key() string { return a.ID }
func (e Entry) key() string       { return e.ID }
func (r RxMeta) key() string      { return r.ID }

func (a Appointment) owner() string { return a.PatientID }
func (e Entry) owner() string       { return e.PatientID }
func (r RxMeta) owner() string      { return r.PatientID }

// Change describes a mutation applied to an entity before a persist.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Message != "" {
			return "mutation blocked by rules: " + v.Message
		}
	}
	return "mutation blocked by rules"
}
