package core

import (
	"context"

	"btxclinic/pkg/domain"
)

// SaveDraft overwrites the whole slot of the draft's document type. There is
// no merge with a previously saved draft.
func (s *Service) SaveDraft(ctx context.Context, draft domain.Draft) error {
	if draft == nil {
		return domain.ValidationError{Entity: EntityDraft, Field: "type", Reason: "is required"}
	}
	t := draft.DocumentType()
	return s.run(ctx, "save_draft", EntityDraft, ActionUpdate, func(ctx context.Context) (string, error) {
		_, err := s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			before, _ := doc.Drafts.Get(t)
			if err := doc.Drafts.Set(draft); err != nil {
				return err
			}
			after, _ := doc.Drafts.Get(t)
			m.record(EntityDraft, ActionUpdate, before, after)
			m.refresh(ViewDocuments)
			return nil
		})
		return string(t), err
	})
}

// Draft returns the saved draft of t, or an empty draft and false when none
// was saved yet.
func (s *Service) Draft(t domain.DocumentType) (domain.Draft, bool, error) {
	if _, err := domain.ParseDocumentType(string(t)); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doc.Drafts.Get(t)
	return d, ok, nil
}

// DocumentContext is the read-only input of the printable document templates.
type DocumentContext struct {
	Type     domain.DocumentType `json:"type"`
	Title    string              `json:"title"`
	Settings domain.Settings     `json:"settings"`
	Patient  *domain.Patient     `json:"patient,omitempty"`
	Draft    domain.Draft        `json:"draft"`
	Date     string              `json:"date"`
}

// DocumentContext assembles what a template needs to print a document of type
// t. An empty patientID prints without a patient.
func (s *Service) DocumentContext(t domain.DocumentType, patientID string) (DocumentContext, error) {
	if _, err := domain.ParseDocumentType(string(t)); err != nil {
		return DocumentContext{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := DocumentContext{
		Type:     t,
		Title:    t.Title(),
		Settings: s.doc.Settings,
		Date:     s.doc.Settings.FormatDate(s.today()),
	}
	out.Draft, _ = s.doc.Drafts.Get(t)
	if patientID != "" {
		p, ok := s.doc.FindPatient(patientID)
		if !ok {
			return DocumentContext{}, domain.ErrNotFound{Entity: EntityPatient, ID: patientID}
		}
		out.Patient = &p
	}
	return out, nil
}
