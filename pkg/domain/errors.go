package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedBackup is returned when an imported document is not a JSON
// object at all. Partially valid documents are accepted and default-filled.
var ErrMalformedBackup = errors.New("backup is not a well-formed document")

// ErrNotFound is returned when a mutation references an unknown record.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports input rejected before any store write.
type ValidationError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}
