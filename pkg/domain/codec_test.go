package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

func TestDecodeDocumentEmptyObjectYieldsDefaults(t *testing.T) {
	doc, report, err := DecodeDocument([]byte(`{}`), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Skipped) != 0 {
		t.Fatalf("expected nothing skipped, got %v", report.Skipped)
	}
	if doc.Settings != DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", doc.Settings)
	}
	if doc.Patients == nil || doc.Appointments == nil || doc.Entries == nil || doc.Rx == nil {
		t.Fatalf("expected empty, non-nil collections")
	}
	if len(doc.Patients)+len(doc.Appointments)+len(doc.Entries)+len(doc.Rx) != 0 {
		t.Fatalf("expected empty collections")
	}
	if doc.Meta.Version != DocumentVersion || !doc.Meta.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected synthesized meta, got %+v", doc.Meta)
	}
}

func TestDecodeDocumentRejectsNonObjects(t *testing.T) {
	for _, input := range []string{``, `null`, `[]`, `42`, `"text"`, `{broken`} {
		if _, _, err := DecodeDocument([]byte(input), fixedNow); !errors.Is(err, ErrMalformedBackup) {
			t.Fatalf("input %q: expected ErrMalformedBackup, got %v", input, err)
		}
	}
}

func TestDecodeDocumentFillsMissingSettingsFields(t *testing.T) {
	doc, _, err := DecodeDocument([]byte(`{"settings":{"profName":"Dra. Lia","appSub":""}}`), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Settings.ProfName != "Dra. Lia" {
		t.Fatalf("expected present key to win, got %q", doc.Settings.ProfName)
	}
	if doc.Settings.AppSub != "" {
		t.Fatalf("expected explicit empty value to be kept, got %q", doc.Settings.AppSub)
	}
	if doc.Settings.ProfPhone != "" || doc.Settings.AppName != DefaultSettings().AppName {
		t.Fatalf("expected defaults for missing keys, got %+v", doc.Settings)
	}
}

func TestDecodeDocumentSkipsDamagedParts(t *testing.T) {
	input := `{
		"settings": {"profPhone": 123, "place": "Manaus", "appName": {"x": 1}},
		"patients": [{"id":"p1","name":"Ana"}, 7, {"name":"no id"}, {"id":"p2","name":42}],
		"appts": "not a list",
		"entries": null,
		"rx": [{"id":"r1","patientId":"p1","name":"raio-x","mime":"image/png","createdAt":"garbage"}],
		"_docDrafts": {"rx":{"meds":"Amoxicilina"}, "zz":{"x":"y"}}
	}`
	doc, report, err := DecodeDocument([]byte(input), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Patients) != 2 || doc.Patients[0].ID != "p1" || doc.Patients[1].Name != "42" {
		t.Fatalf("expected p1 and p2 with a literal name, got %+v", doc.Patients)
	}
	if len(doc.Appointments) != 0 || len(doc.Entries) != 0 {
		t.Fatalf("expected empty appointments and entries")
	}
	if len(doc.Rx) != 1 || !doc.Rx[0].CreatedAt.IsZero() {
		t.Fatalf("expected rx row with zero timestamp, got %+v", doc.Rx)
	}
	if doc.Settings.Place != "Manaus" || doc.Settings.ProfPhone != "123" || doc.Settings.AppName != DefaultSettings().AppName {
		t.Fatalf("unexpected settings %+v", doc.Settings)
	}
	if doc.Drafts.Prescription == nil || doc.Drafts.Prescription.Medications != "Amoxicilina" {
		t.Fatalf("expected prescription draft, got %+v", doc.Drafts)
	}
	// settings.appName, patients[1], patients[2], appts, _docDrafts.zz
	if len(report.Skipped) != 5 {
		t.Fatalf("expected 5 skipped parts, got %d: %v", len(report.Skipped), report.Skipped)
	}
}

func TestDecodeDocumentKeepsRecordWithMistypedField(t *testing.T) {
	input := `{
		"patients": [{"id":"p1","name":"Ana","phone":5551234,"notes":["a"],"createdAt":"2024-01-09T10:00:00.000Z"}],
		"appts": [{"id":"a1","patientId":"p1","date":"2024-01-10","time":"09:30:00"}]
	}`
	doc, report, err := DecodeDocument([]byte(input), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Patients) != 1 {
		t.Fatalf("expected the patient to survive, got %+v (skipped %v)", doc.Patients, report.Skipped)
	}
	p := doc.Patients[0]
	if p.Name != "Ana" || p.Phone != "5551234" || p.Notes != "" || p.CreatedAt.IsZero() {
		t.Fatalf("unexpected patient %+v", p)
	}
	if len(report.Skipped) != 1 || !strings.HasPrefix(report.Skipped[0], "patients[0].notes:") {
		t.Fatalf("expected only the notes field to be reported, got %v", report.Skipped)
	}
	if len(doc.Appointments) != 1 || doc.Appointments[0].Time != "09:30" {
		t.Fatalf("expected the appointment to survive with a normalized time, got %+v", doc.Appointments)
	}
}

func TestDecodeDocumentDropsRecordsWithoutPatient(t *testing.T) {
	input := `{
		"patients": [{"id":"p1","name":"Ana","birth":"10/01/1990"}, {"name":"no id"}],
		"appts": [{"id":"a1","patientId":"p1"}, {"id":"a2","patientId":"ghost"}],
		"entries": [{"id":"e1","patientId":"p1","date":"09/01/2024"}, {"id":"e2"}],
		"rx": [{"id":"r1","patientId":"p1"}, {"id":"r2","patientId":"ghost"}]
	}`
	doc, report, err := DecodeDocument([]byte(input), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Appointments) != 1 || doc.Appointments[0].ID != "a1" {
		t.Fatalf("expected only a1, got %+v", doc.Appointments)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].Date != "2024-01-09" {
		t.Fatalf("expected only e1 with an ISO date, got %+v", doc.Entries)
	}
	if len(doc.Rx) != 1 || doc.Rx[0].ID != "r1" {
		t.Fatalf("expected only r1, got %+v", doc.Rx)
	}
	if doc.Patients[0].Birth != "1990-01-10" {
		t.Fatalf("expected normalized birth, got %q", doc.Patients[0].Birth)
	}
	// patients[1], appts[a2], entries[e2], rx[r2]
	if len(report.Skipped) != 4 {
		t.Fatalf("expected 4 skipped parts, got %v", report.Skipped)
	}
}

func TestDecodeBackupReadsLegacyImagesKey(t *testing.T) {
	input := `{"patients":[{"id":"p1","name":"Ana"}],"rx":[{"id":"r1","patientId":"p1"}],
		"_images":[{"id":"r1","dataURL":"data:image/png;base64,AAEC","mime":"image/png","patientId":"p1"},
		           {"id":"r2","mime":"image/png"},
		           {"dataURL":"data:image/png;base64,AAEC"}]}`
	backup, report, err := DecodeBackup([]byte(input), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(backup.Images) != 1 || backup.Images[0].ID != "r1" {
		t.Fatalf("expected one usable image, got %+v", backup.Images)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected two skipped images, got %v", report.Skipped)
	}
}

func TestDecodeBackupPrefersImagesKey(t *testing.T) {
	input := `{"patients":[{"id":"p1","name":"Ana"}],
		"rx":[{"id":"a","patientId":"p1"},{"id":"b","patientId":"p1"}],
		"images":[{"id":"a","dataURL":"data:,x"},{"id":"z","dataURL":"data:,z"}],
		"_images":[{"id":"b","dataURL":"data:,y"}]}`
	backup, report, err := DecodeBackup([]byte(input), fixedNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(backup.Images) != 1 || backup.Images[0].ID != "a" {
		t.Fatalf("expected images key to win, got %+v", backup.Images)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "images[z]: no rx row" {
		t.Fatalf("expected the image without rx row to be reported, got %v", report.Skipped)
	}
}

func TestBackupJSONShape(t *testing.T) {
	doc := NewDocument(fixedNow)
	doc.Patients = append(doc.Patients, Patient{ID: "p1", Name: "Ana", CreatedAt: NewTimestamp(fixedNow)})
	raw, err := json.Marshal(Backup{Document: doc, Images: []BackupImage{{ID: "r1", DataURL: "data:,x"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"meta", "settings", "patients", "appts", "entries", "rx", "_docDrafts", "images"} {
		if _, ok := shape[key]; !ok {
			t.Fatalf("expected top-level key %q in %s", key, raw)
		}
	}
	back, _, err := DecodeBackup(raw, time.Time{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Patients[0] != doc.Patients[0] || back.Meta != doc.Meta {
		t.Fatalf("expected identical records after decode: %+v vs %+v", back.Patients[0], doc.Patients[0])
	}
}

func TestDecodeDraft(t *testing.T) {
	draft, err := DecodeDraft(DocCertificate, []byte(`{"dias":"3","cid":"K08","texto":"repouso"}`))
	if err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	cert, ok := draft.(CertificateDraft)
	if !ok || cert.Days != "3" || cert.CID != "K08" || cert.Text != "repouso" {
		t.Fatalf("unexpected draft %#v", draft)
	}
	if _, err := DecodeDraft(DocumentType("xx"), []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if _, err := DecodeDraft(DocEstimate, []byte(`[]`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTimestampJSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("BRT", -3*3600)))
	raw, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"2024-03-01T15:00:00.123Z"` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	var back Timestamp
	if err := json.Unmarshal(raw, &back); err != nil || back != ts {
		t.Fatalf("expected round trip, got %v (%v)", back, err)
	}
	zero, _ := json.Marshal(Timestamp{})
	if string(zero) != "null" {
		t.Fatalf("expected null for zero timestamp, got %s", zero)
	}
	for _, input := range []string{`null`, `""`, `"yesterday"`, `17`} {
		var got Timestamp
		if err := json.Unmarshal([]byte(input), &got); err != nil || !got.IsZero() {
			t.Fatalf("input %s: expected zero without error, got %v (%v)", input, got, err)
		}
	}
}
