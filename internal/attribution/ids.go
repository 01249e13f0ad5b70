package attribution

import "github.com/google/uuid"

// IDSource mints ids for report and ledger rows.
// Implemented by UUIDv7Source (production) and testutil.FixedIDSource.
type IDSource interface {
	NewID() string
}

// UUIDv7Source mints time-sortable UUIDv7 ids, so report rows created later
// sort later. Stateless and safe for concurrent use.
type UUIDv7Source struct{}

// NewID returns a new UUIDv7 as a hyphenated string.
//
// Panics only if the system entropy source fails, which is not a
// recoverable condition.
func (UUIDv7Source) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
