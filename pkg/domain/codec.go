package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DecodeReport lists the parts of an input document that could not be used
// and were replaced by defaults or dropped.
type DecodeReport struct {
	Skipped []string
}

func (r *DecodeReport) skip(format string, args ...any) {
	r.Skipped = append(r.Skipped, fmt.Sprintf(format, args...))
}

// DecodeDocument parses a stored or imported state document. Only input that
// is not a JSON object is rejected; every section is decoded independently and
// missing or damaged parts fall back to defaults.
func DecodeDocument(data []byte, now time.Time) (Document, DecodeReport, error) {
	var report DecodeReport
	sections, err := decodeSections(data)
	if err != nil {
		return Document{}, report, err
	}
	return decodeDocument(sections, now, &report), report, nil
}

// DecodeBackup parses an exported backup. Images are read from "images", or
// from the legacy "_images" key when the former is absent. Images without an
// id, a payload or a matching rx row are dropped.
func DecodeBackup(data []byte, now time.Time) (Backup, DecodeReport, error) {
	var report DecodeReport
	sections, err := decodeSections(data)
	if err != nil {
		return Backup{}, report, err
	}
	backup := Backup{Document: decodeDocument(sections, now, &report)}
	raw, ok := sections["images"]
	name := "images"
	if !ok {
		raw, ok = sections["_images"]
		name = "_images"
	}
	backup.Images = []BackupImage{}
	if ok {
		rows := make(map[string]bool, len(backup.Rx))
		for _, r := range backup.Rx {
			rows[r.ID] = true
		}
		for _, img := range decodeList[BackupImage](raw, name, &report) {
			if img.DataURL == "" {
				report.skip("%s[%s]: missing payload", name, img.ID)
				continue
			}
			if !rows[img.ID] {
				report.skip("%s[%s]: no rx row", name, img.ID)
				continue
			}
			backup.Images = append(backup.Images, img)
		}
	}
	return backup, report, nil
}

// DecodeDraft parses the field set of a single document type.
func DecodeDraft(t DocumentType, data []byte) (Draft, error) {
	var (
		draft Draft
		err   error
	)
	switch t {
	case DocPrescription:
		var v PrescriptionDraft
		err = json.Unmarshal(data, &v)
		draft = v
	case DocClinicalSheet:
		var v ClinicalSheetDraft
		err = json.Unmarshal(data, &v)
		draft = v
	case DocCertificate:
		var v CertificateDraft
		err = json.Unmarshal(data, &v)
		draft = v
	case DocEstimate:
		var v EstimateDraft
		err = json.Unmarshal(data, &v)
		draft = v
	default:
		_, err = ParseDocumentType(string(t))
		return nil, err
	}
	if err != nil {
		return nil, ValidationError{Entity: EntityDraft, Field: string(t), Reason: err.Error()}
	}
	return draft, nil
}

func decodeSections(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedBackup
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	if sections == nil {
		sections = map[string]json.RawMessage{}
	}
	return sections, nil
}

func decodeDocument(sections map[string]json.RawMessage, now time.Time, report *DecodeReport) Document {
	doc := NewDocument(now)
	if raw, ok := sections["meta"]; ok && !isNull(raw) {
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			report.skip("meta: %v", err)
		} else {
			doc.Meta = meta
		}
	}
	if raw, ok := sections["settings"]; ok && !isNull(raw) {
		doc.Settings = decodeSettings(raw, report)
	}
	if raw, ok := sections["patients"]; ok {
		doc.Patients = decodeList[Patient](raw, "patients", report)
	}
	if raw, ok := sections["appts"]; ok {
		doc.Appointments = decodeList[Appointment](raw, "appts", report)
	}
	if raw, ok := sections["entries"]; ok {
		doc.Entries = decodeList[Entry](raw, "entries", report)
	}
	if raw, ok := sections["rx"]; ok {
		doc.Rx = decodeList[RxMeta](raw, "rx", report)
	}
	if raw, ok := sections["_docDrafts"]; ok && !isNull(raw) {
		doc.Drafts = decodeDrafts(raw, report)
	}

	patients := make(map[string]bool, len(doc.Patients))
	for i := range doc.Patients {
		doc.Patients[i].Birth = NormalizeDate(doc.Patients[i].Birth)
		patients[doc.Patients[i].ID] = true
	}
	doc.Appointments = dropUnowned(doc.Appointments, "appts", patients, report)
	for i := range doc.Appointments {
		doc.Appointments[i].Date = NormalizeDate(doc.Appointments[i].Date)
		doc.Appointments[i].Time = NormalizeClock(doc.Appointments[i].Time)
	}
	doc.Entries = dropUnowned(doc.Entries, "entries", patients, report)
	for i := range doc.Entries {
		doc.Entries[i].Date = NormalizeDate(doc.Entries[i].Date)
	}
	doc.Rx = dropUnowned(doc.Rx, "rx", patients, report)
	doc.Normalize(now)
	return doc
}

// decodeSettings overlays present keys on the defaults one field at a time so
// that a single damaged value does not discard the rest.
func decodeSettings(raw json.RawMessage, report *DecodeReport) Settings {
	settings := DefaultSettings()
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		report.skip("settings: %v", err)
		return settings
	}
	targets := map[string]*string{
		"appName":   &settings.AppName,
		"appSub":    &settings.AppSub,
		"profName":  &settings.ProfName,
		"profReg":   &settings.ProfReg,
		"profPhone": &settings.ProfPhone,
		"profEmail": &settings.ProfEmail,
		"profAddr":  &settings.ProfAddr,
		"place":     &settings.Place,
		"dateFmt":   &settings.DateFmt,
	}
	for key, dst := range targets {
		value, ok := fields[key]
		if !ok {
			continue
		}
		s, err := decodeText(value)
		if err != nil {
			report.skip("settings.%s: %v", key, err)
			continue
		}
		*dst = s
	}
	return settings
}

func decodeDrafts(raw json.RawMessage, report *DecodeReport) Drafts {
	var drafts Drafts
	var slots map[string]json.RawMessage
	if err := json.Unmarshal(raw, &slots); err != nil {
		report.skip("_docDrafts: %v", err)
		return drafts
	}
	for key, value := range slots {
		t, err := ParseDocumentType(key)
		if err != nil {
			report.skip("_docDrafts.%s: unknown document type", key)
			continue
		}
		if isNull(value) {
			continue
		}
		draft, err := DecodeDraft(t, value)
		if err != nil {
			report.skip("_docDrafts.%s: %v", key, err)
			continue
		}
		_ = drafts.Set(draft)
	}
	return drafts
}

type keyed interface {
	key() string
}

type owned interface {
	keyed
	owner() string
}

// dropUnowned removes records whose patient is not in the roster.
func dropUnowned[T owned](items []T, section string, patients map[string]bool, report *DecodeReport) []T {
	out := items[:0]
	for _, item := range items {
		if !patients[item.owner()] {
			report.skip("%s[%s]: patient %q not found", section, item.key(), item.owner())
			continue
		}
		out = append(out, item)
	}
	return out
}

// decodeList decodes a collection element by element. Elements that are not
// objects or carry no id are dropped. An element whose fields do not all fit
// is decoded field by field so one bad value costs only that field.
func decodeList[T keyed](raw json.RawMessage, section string, report *DecodeReport) []T {
	out := []T{}
	if isNull(raw) {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		report.skip("%s: %v", section, err)
		return out
	}
	for i, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			report.skip("%s[%d]: not an object", section, i)
			continue
		}
		var v T
		if err := json.Unmarshal(trimmed, &v); err != nil {
			v = *new(T)
			if err := decodeFields(trimmed, &v, fmt.Sprintf("%s[%d]", section, i), report); err != nil {
				report.skip("%s[%d]: %v", section, i, err)
				continue
			}
		}
		if v.key() == "" {
			report.skip("%s[%d]: missing id", section, i)
			continue
		}
		out = append(out, v)
	}
	return out
}

// decodeFields overlays the keys of obj onto v one at a time. A number or
// boolean where text is expected is kept as its literal; other values that do
// not fit are dropped and reported.
func decodeFields(obj []byte, v any, where string, report *DecodeReport) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		err := decodeField(key, fields[key], v)
		if err == nil {
			continue
		}
		if lit, ok := scalarLiteral(fields[key]); ok && decodeField(key, lit, v) == nil {
			continue
		}
		report.skip("%s.%s: %v", where, key, err)
	}
	return nil
}

func decodeField(key string, value json.RawMessage, v any) error {
	single, err := json.Marshal(map[string]json.RawMessage{key: value})
	if err != nil {
		return err
	}
	return json.Unmarshal(single, v)
}

// decodeText reads a string, accepting numbers and booleans as their literal.
func decodeText(value json.RawMessage) (string, error) {
	var s string
	err := json.Unmarshal(value, &s)
	if err == nil {
		return s, nil
	}
	if _, ok := scalarLiteral(value); ok {
		return string(bytes.TrimSpace(value)), nil
	}
	return "", err
}

// scalarLiteral quotes a JSON number or boolean.
func scalarLiteral(value json.RawMessage) (json.RawMessage, bool) {
	t := bytes.TrimSpace(value)
	if len(t) == 0 {
		return nil, false
	}
	isNumber := t[0] == '-' || (t[0] >= '0' && t[0] <= '9')
	if !isNumber && !bytes.Equal(t, []byte("true")) && !bytes.Equal(t, []byte("false")) {
		return nil, false
	}
	quoted, err := json.Marshal(string(t))
	if err != nil {
		return nil, false
	}
	return quoted, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
