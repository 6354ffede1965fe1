package core

import (
	"context"

	"btxclinic/pkg/domain"
)

// Settings returns the current settings.
func (s *Service) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Settings
}

// SaveSettings replaces the settings wholesale. Blank identity fields fall
// back to their defaults.
func (s *Service) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	var saved domain.Settings
	err := s.run(ctx, "save_settings", EntitySettings, ActionUpdate, func(ctx context.Context) (string, error) {
		_, err := s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			before := doc.Settings
			doc.Settings = settings.Normalize()
			m.record(EntitySettings, ActionUpdate, before, doc.Settings)
			m.refresh(AllViews()...)
			saved = doc.Settings
			return nil
		})
		return "", err
	})
	return saved, err
}
