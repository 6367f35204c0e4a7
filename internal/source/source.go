// Package source materializes campaign rows from contact data sources.
// Reads are lazy only in the sense of restartable-from-the-beginning; a
// re-sync produces the same natural keys so rows are never duplicated.
package source

import "context"

// Contact is one row of contact data. Key is stable across re-syncs of the
// same locator.
type Contact struct {
	Key     string
	Payload map[string]string
}

type Reader interface {
	ReadRows(ctx context.Context, locator string) ([]Contact, error)
}
