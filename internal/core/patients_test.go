package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btxclinic/pkg/domain"
)

func TestCreatePatientAssignsIdentity(t *testing.T) {
	f := newFixture(t)
	p, res, err := f.svc.CreatePatient(context.Background(), domain.Patient{ID: "caller", Name: "  Ana  ", Phone: "91 9999"})
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.Equal(t, "id-001", p.ID)
	assert.Equal(t, "Ana", p.Name)
	assert.False(t, p.CreatedAt.IsZero())
	assert.True(t, p.CreatedAt.Equal(p.UpdatedAt.Time))

	stored := f.storedDocument(t)
	require.Len(t, stored.Patients, 1)
	assert.Equal(t, p, stored.Patients[0])
}

func TestCreatePatientValidationWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreatePatient(context.Background(), domain.Patient{Name: "   "})
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	assert.Empty(t, f.log.snapshot(), "validation failures must not touch any store")
}

func TestPatientBirthIsNormalizedNotRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, _, err := f.svc.CreatePatient(ctx, domain.Patient{Name: "Ana", Birth: "10/01/1990"})
	require.NoError(t, err)
	assert.Equal(t, "1990-01-10", p.Birth)

	q, _, err := f.svc.CreatePatient(ctx, domain.Patient{Name: "Bruno", Birth: "por volta de 1980"})
	require.NoError(t, err)
	assert.Equal(t, "por volta de 1980", q.Birth)
}

func TestUpdatePatientReplacesEditableFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.patient(t, "Ana")

	input := domain.Patient{ID: "ignored", Name: "Ana Lima", Phone: "123", Notes: "alergia"}
	updated, _, err := f.svc.UpdatePatient(ctx, ana.ID, func(p *domain.Patient) error {
		*p = input
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ana.ID, updated.ID)
	assert.True(t, updated.CreatedAt.Equal(ana.CreatedAt.Time))
	assert.True(t, updated.UpdatedAt.After(ana.UpdatedAt.Time))
	assert.Equal(t, "Ana Lima", updated.Name)
	assert.Equal(t, "alergia", updated.Notes)

	_, _, err = f.svc.UpdatePatient(ctx, "missing", func(*domain.Patient) error { return nil })
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityPatient, nf.Entity)

	boom := errors.New("mutator failed")
	_, _, err = f.svc.UpdatePatient(ctx, ana.ID, func(*domain.Patient) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestListPatientsFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, p := range []domain.Patient{
		{Name: "carla", Phone: "555-0101"},
		{Name: "Ana", Phone: "555-0202"},
		{Name: "Bruno", Phone: "777"},
	} {
		_, _, err := f.svc.CreatePatient(ctx, p)
		require.NoError(t, err)
	}

	names := func(ps []domain.Patient) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Ana", "Bruno", "carla"}, names(f.svc.ListPatients("")))
	assert.Equal(t, []string{"Ana", "carla"}, names(f.svc.ListPatients("555")))
	assert.Equal(t, []string{"Bruno"}, names(f.svc.ListPatients("BRU")))
	assert.Empty(t, f.svc.ListPatients("zzz"))

	_, err := f.svc.Patient("missing")
	require.Error(t, err)
}

func TestDeletePatientCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bruno := f.patient(t, "Bruno")
	ana := f.patient(t, "Ana")

	_, _, err := f.svc.CreateAppointment(ctx, domain.Appointment{PatientID: bruno.ID, Time: "10:00"})
	require.NoError(t, err)
	keep, _, err := f.svc.CreateAppointment(ctx, domain.Appointment{PatientID: ana.ID, Time: "11:00"})
	require.NoError(t, err)
	_, _, err = f.svc.CreateEntry(ctx, domain.Entry{PatientID: bruno.ID, Text: "retorno"})
	require.NoError(t, err)
	rx, _, err := f.svc.AttachRx(ctx, bruno.ID, []Upload{{Name: "pano.png", Data: pngHeader}})
	require.NoError(t, err)
	anaRx, _, err := f.svc.AttachRx(ctx, ana.ID, []Upload{{Name: "bite.png", Data: pngHeader}})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{rx[0].ID, anaRx[0].ID}, f.blobKeys(t))

	f.log.reset()
	cascade, _, err := f.svc.DeletePatient(ctx, bruno.ID)
	require.NoError(t, err)
	assert.Equal(t, CascadeResult{PatientID: bruno.ID, Appointments: 1, Entries: 1, Rx: 1, ReleasedBlobs: []string{rx[0].ID}}, cascade)

	assert.Equal(t, []string{"state.save", "blob.delete:" + rx[0].ID}, f.log.snapshot(),
		"cascade must commit state before releasing blobs")

	doc := f.storedDocument(t)
	require.Len(t, doc.Patients, 1)
	assert.Equal(t, ana.ID, doc.Patients[0].ID)
	require.Len(t, doc.Appointments, 1)
	assert.Equal(t, keep.ID, doc.Appointments[0].ID)
	assert.Empty(t, doc.Entries)
	require.Len(t, doc.Rx, 1)
	assert.Equal(t, anaRx[0].ID, doc.Rx[0].ID)
	assert.Equal(t, []string{anaRx[0].ID}, f.blobKeys(t))

	_, _, err = f.svc.DeletePatient(ctx, bruno.ID)
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestDeletePatientBlobCleanupFailureKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bruno := f.patient(t, "Bruno")
	rx, _, err := f.svc.AttachRx(ctx, bruno.ID, []Upload{{Data: pngHeader}})
	require.NoError(t, err)

	f.blobs.failDelete = true
	cascade, _, err := f.svc.DeletePatient(ctx, bruno.ID)
	var cleanup *BlobCleanupError
	require.ErrorAs(t, err, &cleanup)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, []string{rx[0].ID}, cleanup.IDs)
	assert.Equal(t, 1, cascade.Rx)

	assert.Empty(t, f.svc.Document().Patients, "state change stands after cleanup failure")
	assert.Empty(t, f.storedDocument(t).Rx)
	assert.Equal(t, []string{rx[0].ID}, f.blobKeys(t), "orphan is left behind, not reclaimed")
}
