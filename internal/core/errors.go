package core

import (
	"fmt"
	"strings"
)

// BlobCleanupError reports blob deletions that failed after the state document
// was already committed. The state change stands; the listed blobs are left
// behind as orphans.
type BlobCleanupError struct {
	IDs []string
	Err error
}

func (e *BlobCleanupError) Error() string {
	return fmt.Sprintf("state committed but blob cleanup failed for %s: %v", strings.Join(e.IDs, ", "), e.Err)
}

func (e *BlobCleanupError) Unwrap() error { return e.Err }
