package domain

import "context"

// StateStore is a persistent single-slot holder of the state document. Save
// always replaces the whole document; there is no partial update and no
// query interface.
type StateStore interface {
	// Load returns the stored document. The boolean is false on first run,
	// when nothing has been saved yet.
	Load(ctx context.Context) (Document, bool, error)
	Save(ctx context.Context, doc Document) error
	Driver() string
}
