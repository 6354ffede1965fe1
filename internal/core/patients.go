package core

import (
	"context"
	"sort"
	"strings"

	"btxclinic/pkg/domain"
)

// CascadeResult summarizes what a patient deletion removed.
type CascadeResult struct {
	PatientID     string   `json:"patientId"`
	Appointments  int      `json:"appointments"`
	Entries       int      `json:"entries"`
	Rx            int      `json:"rx"`
	ReleasedBlobs []string `json:"releasedBlobs"`
}

// CreatePatient validates and stores a new patient. The id and timestamps are
// assigned here; any caller supplied values are ignored.
func (s *Service) CreatePatient(ctx context.Context, patient domain.Patient) (domain.Patient, domain.Result, error) {
	var (
		created domain.Patient
		res     domain.Result
	)
	err := s.run(ctx, "create_patient", EntityPatient, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			p := trimPatient(patient)
			if err := p.Validate(); err != nil {
				return err
			}
			now := domain.NewTimestamp(s.now())
			p.ID = s.newID()
			p.CreatedAt = now
			p.UpdatedAt = now
			doc.Patients = append(doc.Patients, p)
			m.record(EntityPatient, ActionCreate, nil, p)
			m.refresh(ViewPatients, ViewDocuments, ViewBackup)
			created = p
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdatePatient applies mutator to the stored row. The id and creation time
// cannot be changed; every other field is taken as the mutator leaves it, so a
// mutator that overwrites the whole row performs a last-writer-wins replace.
func (s *Service) UpdatePatient(ctx context.Context, id string, mutator func(*domain.Patient) error) (domain.Patient, domain.Result, error) {
	var (
		updated domain.Patient
		res     domain.Result
	)
	err := s.run(ctx, "update_patient", EntityPatient, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Patients, func(p domain.Patient) bool { return p.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityPatient, ID: id}
			}
			before := doc.Patients[idx]
			p := before
			if err := mutator(&p); err != nil {
				return err
			}
			p = trimPatient(p)
			p.ID = before.ID
			p.CreatedAt = before.CreatedAt
			if err := p.Validate(); err != nil {
				return err
			}
			p.UpdatedAt = domain.NewTimestamp(s.now())
			doc.Patients[idx] = p
			m.record(EntityPatient, ActionUpdate, before, p)
			m.refresh(ViewPatients, ViewAgenda, ViewRecord, ViewDocuments, ViewBackup)
			updated = p
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeletePatient removes the patient together with every appointment, entry
// and rx row referencing it. The state save happens first; the blobs of the
// removed rx rows are deleted afterwards (CommitThenReleaseBlobs). A cleanup
// failure is returned as *BlobCleanupError while the deletion stands.
func (s *Service) DeletePatient(ctx context.Context, id string) (CascadeResult, domain.Result, error) {
	var (
		cascade CascadeResult
		res     domain.Result
	)
	err := s.run(ctx, "delete_patient", EntityPatient, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Patients, func(p domain.Patient) bool { return p.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityPatient, ID: id}
			}
			before := doc.Patients[idx]
			doc.Patients = append(doc.Patients[:idx], doc.Patients[idx+1:]...)
			m.record(EntityPatient, ActionDelete, before, nil)

			out := CascadeResult{PatientID: id}
			doc.Appointments = removeWhere(doc.Appointments, func(a domain.Appointment) bool {
				if a.PatientID != id {
					return false
				}
				m.record(EntityAppointment, ActionDelete, a, nil)
				out.Appointments++
				return true
			})
			doc.Entries = removeWhere(doc.Entries, func(e domain.Entry) bool {
				if e.PatientID != id {
					return false
				}
				m.record(EntityEntry, ActionDelete, e, nil)
				out.Entries++
				return true
			})
			doc.Rx = removeWhere(doc.Rx, func(r domain.RxMeta) bool {
				if r.PatientID != id {
					return false
				}
				m.record(EntityRx, ActionDelete, r, nil)
				m.release = append(m.release, r.ID)
				out.Rx++
				return true
			})
			out.ReleasedBlobs = append([]string(nil), m.release...)
			m.refresh(AllViews()...)
			cascade = out
			return nil
		})
		return id, err
	})
	return cascade, res, err
}

// Patient returns one patient by id.
func (s *Service) Patient(id string) (domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.FindPatient(id)
	if !ok {
		return domain.Patient{}, domain.ErrNotFound{Entity: EntityPatient, ID: id}
	}
	return p, nil
}

// ListPatients returns patients whose name or phone contains query, ignoring
// case, sorted by name. An empty query matches everyone.
func (s *Service) ListPatients(query string) []domain.Patient {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	out := make([]domain.Patient, 0, len(s.doc.Patients))
	for _, p := range s.doc.Patients {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Phone), q) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func trimPatient(p domain.Patient) domain.Patient {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Birth = domain.NormalizeDate(p.Birth)
	p.Doc = strings.TrimSpace(p.Doc)
	p.Notes = strings.TrimSpace(p.Notes)
	return p
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

func removeWhere[T any](items []T, drop func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if !drop(item) {
			out = append(out, item)
		}
	}
	return out
}
