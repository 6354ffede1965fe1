package core

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btxclinic/internal/blob"
	"btxclinic/internal/dataurl"
	"btxclinic/internal/infra/persistence/memory"
	"btxclinic/pkg/domain"
)

func TestExportWipeImportRestoresAna(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")
	appt, _, err := f.svc.CreateAppointment(ctx, domain.Appointment{PatientID: ana.ID, Date: "2024-01-10", Time: "10:30", Reason: "limpeza"})
	require.NoError(t, err)

	payload := make([]byte, 4096)
	_, err = rand.Read(payload)
	require.NoError(t, err)
	rx, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Name: "raio-x", Mime: "image/x-custom", Data: payload}})
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveDraft(ctx, domain.CertificateDraft{Days: "2", Text: "repouso"}))

	name, body, err := f.svc.ExportJSON(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "BTX-Backup-2024"))
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	for _, key := range []string{"meta", "settings", "patients", "appts", "entries", "rx", "images"} {
		assert.Contains(t, raw, key)
	}

	exported := f.svc.Document()
	require.NoError(t, f.svc.Wipe(ctx))
	assert.Empty(t, f.svc.Document().Patients)
	assert.Empty(t, f.blobKeys(t))

	report, err := f.svc.Import(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Patients)
	assert.Equal(t, 1, report.Appointments)
	assert.Equal(t, 1, report.Images)
	assert.Empty(t, report.Skipped)

	restored := f.svc.Document()
	require.Len(t, restored.Patients, 1)
	assert.Equal(t, ana, restored.Patients[0])
	require.Len(t, restored.Appointments, 1)
	assert.Equal(t, appt, restored.Appointments[0])
	assert.Equal(t, exported.Rx, restored.Rx)
	assert.Equal(t, exported.Entries, restored.Entries)
	assert.Equal(t, exported.Settings, restored.Settings)
	assert.Equal(t, exported.Drafts, restored.Drafts)
	assert.True(t, restored.Meta.CreatedAt.Equal(exported.Meta.CreatedAt.Time))
	assert.Equal(t, restored, f.storedDocument(t))

	info, rc, err := f.blobs.Get(ctx, rx[0].ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "payload must round-trip bit for bit")
	assert.Equal(t, "image/x-custom", info.ContentType)
}

func TestImportEmptyObjectYieldsDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")
	_, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Data: pngHeader}})
	require.NoError(t, err)

	report, err := f.svc.Import(ctx, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClearedBlobs)

	doc := f.svc.Document()
	assert.Empty(t, doc.Patients)
	assert.Empty(t, doc.Appointments)
	assert.Empty(t, doc.Entries)
	assert.Empty(t, doc.Rx)
	assert.Equal(t, domain.DefaultSettings(), doc.Settings)
	assert.Equal(t, domain.DocumentVersion, doc.Meta.Version)
	assert.Empty(t, f.blobKeys(t), "restore is a full replacement")
}

func TestImportMalformedLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")
	_, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Data: pngHeader}})
	require.NoError(t, err)
	before := f.svc.Document()
	f.log.reset()

	for _, input := range []string{`[]`, `"backup"`, ``, `{"patients": [`} {
		_, err := f.svc.Import(ctx, []byte(input))
		require.ErrorIs(t, err, domain.ErrMalformedBackup, "input %q", input)
	}
	assert.Equal(t, before, f.svc.Document())
	assert.Len(t, f.blobKeys(t), 1)
	assert.Empty(t, f.log.snapshot(), "rejected backups touch neither store")
}

func TestImportDefaultFillingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := []byte(`{
		"settings": {"appName": "Clínica Sorriso", "profName": "Dra. Lia"},
		"patients": [{"id": "p1", "name": "Ana"}, {"name": "no id"}, 42],
		"appts": [{"id": "a1", "patientId": "p1", "date": "2024-01-10", "time": "10:00"}]
	}`)

	first, err := f.svc.Import(ctx, input)
	require.NoError(t, err)
	assert.Len(t, first.Skipped, 2)
	docA := f.svc.Document()
	assert.Equal(t, "", docA.Settings.ProfPhone)
	assert.Equal(t, "Clínica Sorriso", docA.Settings.AppName)
	assert.Equal(t, domain.DefaultSettings().Place, docA.Settings.Place)

	_, err = f.svc.Import(ctx, input)
	require.NoError(t, err)
	docB := f.svc.Document()
	assert.Equal(t, docA.Settings, docB.Settings)
	assert.Equal(t, docA.Patients, docB.Patients)
	assert.Equal(t, docA.Appointments, docB.Appointments)
	assert.Equal(t, docA.Entries, docB.Entries)
	assert.Equal(t, docA.Rx, docB.Rx)
}

func TestImportSkipsUndecodableImagesBeforeClearing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	good := dataurl.Encode("image/png", pngHeader)
	input := []byte(`{
		"patients": [{"id": "p1", "name": "Ana"}],
		"rx": [{"id": "r1", "patientId": "p1", "mime": "image/png"}, {"id": "r2", "patientId": "p1"}],
		"images": [
			{"id": "r1", "dataURL": "` + good + `", "mime": "image/png"},
			{"id": "r2", "dataURL": "not a data url"}
		]
	}`)
	report, err := f.svc.Import(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0], "r2")
	assert.Equal(t, []string{"r1"}, f.blobKeys(t))

	items, err := f.svc.Gallery(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	missing := 0
	for _, item := range items {
		if item.Missing {
			missing++
		}
	}
	assert.Equal(t, 1, missing)
}

func TestImportSkipsImagesTheBlobStoreRejects(t *testing.T) {
	ctx := context.Background()
	blobs, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	svc, err := Open(ctx, memory.NewStore(), blobs, WithClock(newSteppingClock()), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	ana, _, err := svc.CreatePatient(ctx, domain.Patient{Name: "Ana"})
	require.NoError(t, err)
	_, _, err = svc.AttachRx(ctx, ana.ID, []Upload{{Name: "rx.png", Data: pngHeader}})
	require.NoError(t, err)

	good := dataurl.Encode("image/png", pngHeader)
	input := []byte(`{
		"patients": [{"id": "p1", "name": "Bruno"}],
		"rx": [{"id": "r1", "patientId": "p1"}, {"id": "../evil", "patientId": "p1"}],
		"images": [
			{"id": "r1", "dataURL": "` + good + `"},
			{"id": "../evil", "dataURL": "data:image/png;base64,CQ=="}
		]
	}`)
	report, err := svc.Import(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0], "../evil")

	doc := svc.Document()
	require.Len(t, doc.Patients, 1)
	assert.Equal(t, "Bruno", doc.Patients[0].Name)
	infos, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, blob.Keys(infos))

	items, err := svc.Gallery(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, item.Rx.ID == "../evil", item.Missing, item.Rx.ID)
	}
	_, err = svc.Export(ctx)
	require.NoError(t, err)
	_, err = svc.DeleteRx(ctx, "../evil")
	require.NoError(t, err)
}

func TestImportKeepsPatientWithMistypedField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := []byte(`{
		"patients": [{"id": "p1", "name": "Ana", "phone": 5551234}],
		"appts": [{"id": "a1", "patientId": "p1", "date": "2024-01-10", "time": "10:00"}, {"id": "a2", "patientId": "gone"}],
		"entries": [{"id": "e1", "patientId": "gone", "text": "retorno"}]
	}`)
	report, err := f.svc.Import(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Patients)
	assert.Equal(t, 1, report.Appointments)
	assert.Equal(t, 0, report.Entries)
	assert.Len(t, report.Skipped, 2)

	doc := f.svc.Document()
	require.Len(t, doc.Patients, 1)
	assert.Equal(t, "5551234", doc.Patients[0].Phone)
	for _, a := range doc.Appointments {
		_, err := f.svc.Patient(a.PatientID)
		require.NoError(t, err, "appointment %s must reference a patient", a.ID)
	}

	_, _, err = f.svc.UpdatePatient(ctx, "p1", func(p *domain.Patient) error {
		p.Notes = "alergia"
		return nil
	})
	require.NoError(t, err)
}

func TestImportedLegacyFormatsStayEditable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := []byte(`{
		"patients": [{"id": "p1", "name": "Ana", "birth": "10/01/1990"}, {"id": "p2", "name": "Bruno", "birth": "desconhecida"}],
		"appts": [{"id": "a1", "patientId": "p1", "date": "10/01/2024", "time": "09:30:00"}]
	}`)
	_, err := f.svc.Import(ctx, input)
	require.NoError(t, err)

	doc := f.svc.Document()
	assert.Equal(t, "1990-01-10", doc.Patients[0].Birth)
	assert.Equal(t, "2024-01-10", doc.Appointments[0].Date)
	assert.Equal(t, "09:30", doc.Appointments[0].Time)

	touch := func(p *domain.Patient) error { p.Notes = "revisado"; return nil }
	_, _, err = f.svc.UpdatePatient(ctx, "p1", touch)
	require.NoError(t, err)
	_, _, err = f.svc.UpdatePatient(ctx, "p2", touch)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateAppointment(ctx, "a1", func(a *domain.Appointment) error { a.Status = "confirmado"; return nil })
	require.NoError(t, err)
	assert.Len(t, f.svc.Agenda("2024-01-10"), 1)
}

func TestImportLegacyImagesKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := []byte(`{"patients": [{"id": "p1", "name": "Ana"}], "rx": [{"id": "r1", "patientId": "p1"}], "_images": [{"id": "r1", "dataURL": "` +
		dataurl.Encode("image/png", pngHeader) + `"}]}`)
	report, err := f.svc.Import(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
	info, err := f.blobs.Head(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType, "mime falls back to the data URL")
}

func TestExportSkipsRowsWithoutBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")
	rows, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Data: pngHeader}, {Data: []byte("second")}})
	require.NoError(t, err)
	_, err = f.blobs.Store.Delete(ctx, rows[0].ID)
	require.NoError(t, err)

	backup, err := f.svc.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, backup.Rx, 2)
	require.Len(t, backup.Images, 1)
	assert.Equal(t, rows[1].ID, backup.Images[0].ID)
	mime, data, err := dataurl.Decode(backup.Images[0].DataURL)
	require.NoError(t, err)
	assert.Equal(t, rows[1].Mime, mime)
	assert.Equal(t, []byte("second"), data)
}

func TestImportBackupAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := domain.NewDocument(baseTime)
	doc.Patients = []domain.Patient{{ID: "p1", Name: "Ana"}, {ID: "p2", Name: "Bruno"}}
	doc.Entries = []domain.Entry{{ID: "e1", PatientID: "p1", Date: "2024-01-09", Type: "Consulta"}}
	doc.Rx = []domain.RxMeta{{ID: "r1", PatientID: "p2", Mime: "image/png"}}
	_, err := f.svc.ImportBackup(ctx, domain.Backup{
		Document: doc,
		Images:   []domain.BackupImage{{ID: "r1", DataURL: dataurl.Encode("image/png", pngHeader), Mime: "image/png"}},
	})
	require.NoError(t, err)

	sum := f.svc.Summary()
	assert.Equal(t, 2, sum.Patients)
	assert.Equal(t, 0, sum.Appointments)
	assert.Equal(t, 1, sum.Entries)
	assert.Equal(t, 1, sum.Images)
	assert.False(t, sum.UpdatedAt.IsZero())
}

func TestWipeClearsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")
	_, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Data: pngHeader}})
	require.NoError(t, err)
	_, err = f.svc.SaveSettings(ctx, domain.Settings{AppName: "Outra"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Wipe(ctx))
	doc := f.storedDocument(t)
	assert.Empty(t, doc.Patients)
	assert.Empty(t, doc.Rx)
	assert.Equal(t, domain.DefaultSettings(), doc.Settings)
	assert.Empty(t, f.blobKeys(t))

	f.blobs.failDelete = true
	_, _, err = f.svc.AttachRx(ctx, f.patient(t, "Bruno").ID, []Upload{{Data: pngHeader}})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.Wipe(ctx), errInjected)
	assert.Len(t, f.svc.Document().Patients, 1, "a failed clear leaves the document in place")
}
