package core

import (
	"context"
	"sort"
	"strings"

	"btxclinic/pkg/domain"
)

// DefaultEntryType tags progress notes created without a type.
const DefaultEntryType = "Consulta"

// CreateEntry stores a progress note. Date defaults to today and type to
// DefaultEntryType.
func (s *Service) CreateEntry(ctx context.Context, entry domain.Entry) (domain.Entry, domain.Result, error) {
	var (
		created domain.Entry
		res     domain.Result
	)
	err := s.run(ctx, "create_entry", EntityEntry, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			e := s.fillEntry(entry)
			if err := e.Validate(); err != nil {
				return err
			}
			now := domain.NewTimestamp(s.now())
			e.ID = s.newID()
			e.CreatedAt = now
			e.UpdatedAt = now
			doc.Entries = append(doc.Entries, e)
			m.record(EntityEntry, ActionCreate, nil, e)
			m.refresh(ViewRecord, ViewBackup)
			created = e
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateEntry applies mutator to the stored note; id and creation time are
// preserved.
func (s *Service) UpdateEntry(ctx context.Context, id string, mutator func(*domain.Entry) error) (domain.Entry, domain.Result, error) {
	var (
		updated domain.Entry
		res     domain.Result
	)
	err := s.run(ctx, "update_entry", EntityEntry, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Entries, func(e domain.Entry) bool { return e.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityEntry, ID: id}
			}
			before := doc.Entries[idx]
			e := before
			if err := mutator(&e); err != nil {
				return err
			}
			e = s.fillEntry(e)
			e.ID = before.ID
			e.CreatedAt = before.CreatedAt
			if err := e.Validate(); err != nil {
				return err
			}
			e.UpdatedAt = domain.NewTimestamp(s.now())
			doc.Entries[idx] = e
			m.record(EntityEntry, ActionUpdate, before, e)
			m.refresh(ViewRecord, ViewBackup)
			updated = e
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteEntry removes one progress note.
func (s *Service) DeleteEntry(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_entry", EntityEntry, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Entries, func(e domain.Entry) bool { return e.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityEntry, ID: id}
			}
			before := doc.Entries[idx]
			doc.Entries = append(doc.Entries[:idx], doc.Entries[idx+1:]...)
			m.record(EntityEntry, ActionDelete, before, nil)
			m.refresh(ViewRecord, ViewBackup)
			return nil
		})
		return id, err
	})
	return res, err
}

// Record returns a patient's progress notes, newest date first; notes on the
// same date are ordered by last update, newest first.
func (s *Service) Record(patientID string) []domain.Entry {
	s.mu.RLock()
	out := make([]domain.Entry, 0)
	for _, e := range s.doc.Entries {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})
	return out
}

func (s *Service) fillEntry(e domain.Entry) domain.Entry {
	e.PatientID = strings.TrimSpace(e.PatientID)
	e.Date = domain.NormalizeDate(e.Date)
	e.Type = strings.TrimSpace(e.Type)
	e.Text = strings.TrimSpace(e.Text)
	if e.Date == "" {
		e.Date = s.today()
	}
	if e.Type == "" {
		e.Type = DefaultEntryType
	}
	return e
}
