package core

import "context"

// View names a rendering surface that depends on persisted state.
type View string

// Views refreshed after mutations.
const (
	ViewPatients  View = "patients"
	ViewAgenda    View = "agenda"
	ViewRecord    View = "record"
	ViewDocuments View = "documents"
	ViewBackup    View = "backup"
)

// AllViews lists every view in refresh order.
func AllViews() []View {
	return []View{ViewPatients, ViewAgenda, ViewRecord, ViewDocuments, ViewBackup}
}

// Renderer is notified after a mutation commits. The service guarantees its
// document is consistent before Refresh is called and does not hold its lock
// during the call, so a renderer may read back through the service.
type Renderer interface {
	Refresh(ctx context.Context, views ...View) error
}

// RendererFunc adapts a function into a Renderer.
type RendererFunc func(ctx context.Context, views ...View) error

// Refresh implements Renderer.
func (f RendererFunc) Refresh(ctx context.Context, views ...View) error { return f(ctx, views...) }

type noopRenderer struct{}

func (noopRenderer) Refresh(context.Context, ...View) error { return nil }

func (s *Service) refresh(ctx context.Context, views []View) {
	if len(views) == 0 {
		return
	}
	if err := s.renderer.Refresh(ctx, views...); err != nil {
		s.logger.Warn("view refresh failed", "views", views, "err", err)
	}
}
