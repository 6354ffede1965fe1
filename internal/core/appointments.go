package core

import (
	"context"
	"sort"
	"strings"

	"btxclinic/pkg/domain"
)

// CreateAppointment stores a new agenda slot. An empty date means today.
func (s *Service) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, domain.Result, error) {
	var (
		created domain.Appointment
		res     domain.Result
	)
	err := s.run(ctx, "create_appointment", EntityAppointment, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			a := trimAppointment(appt)
			if a.Date == "" {
				a.Date = s.today()
			}
			if err := a.Validate(); err != nil {
				return err
			}
			now := domain.NewTimestamp(s.now())
			a.ID = s.newID()
			a.CreatedAt = now
			a.UpdatedAt = now
			doc.Appointments = append(doc.Appointments, a)
			m.record(EntityAppointment, ActionCreate, nil, a)
			m.refresh(ViewAgenda, ViewBackup)
			created = a
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateAppointment applies mutator to the stored slot; id and creation time
// are preserved.
func (s *Service) UpdateAppointment(ctx context.Context, id string, mutator func(*domain.Appointment) error) (domain.Appointment, domain.Result, error) {
	var (
		updated domain.Appointment
		res     domain.Result
	)
	err := s.run(ctx, "update_appointment", EntityAppointment, ActionUpdate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Appointments, func(a domain.Appointment) bool { return a.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityAppointment, ID: id}
			}
			before := doc.Appointments[idx]
			a := before
			if err := mutator(&a); err != nil {
				return err
			}
			a = trimAppointment(a)
			a.ID = before.ID
			a.CreatedAt = before.CreatedAt
			if a.Date == "" {
				a.Date = before.Date
			}
			if err := a.Validate(); err != nil {
				return err
			}
			a.UpdatedAt = domain.NewTimestamp(s.now())
			doc.Appointments[idx] = a
			m.record(EntityAppointment, ActionUpdate, before, a)
			m.refresh(ViewAgenda, ViewBackup)
			updated = a
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteAppointment removes one agenda slot.
func (s *Service) DeleteAppointment(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_appointment", EntityAppointment, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Appointments, func(a domain.Appointment) bool { return a.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityAppointment, ID: id}
			}
			before := doc.Appointments[idx]
			doc.Appointments = append(doc.Appointments[:idx], doc.Appointments[idx+1:]...)
			m.record(EntityAppointment, ActionDelete, before, nil)
			m.refresh(ViewAgenda, ViewBackup)
			return nil
		})
		return id, err
	})
	return res, err
}

// Agenda lists the appointments of one day ordered by time. An empty date
// means today.
func (s *Service) Agenda(date string) []domain.Appointment {
	date = domain.NormalizeDate(date)
	if date == "" {
		date = s.today()
	}
	s.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.doc.Appointments {
		if a.Date == date {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Appointments lists every appointment of a patient, most recent first.
func (s *Service) Appointments(patientID string) []domain.Appointment {
	s.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.doc.Appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Time > out[j].Time
	})
	return out
}

func trimAppointment(a domain.Appointment) domain.Appointment {
	a.Date = domain.NormalizeDate(a.Date)
	a.Time = domain.NormalizeClock(a.Time)
	a.PatientID = strings.TrimSpace(a.PatientID)
	a.Status = strings.TrimSpace(a.Status)
	a.Reason = strings.TrimSpace(a.Reason)
	a.Notes = strings.TrimSpace(a.Notes)
	return a
}
