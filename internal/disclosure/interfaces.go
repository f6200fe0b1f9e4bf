package disclosure

import (
	"context"
	"time"
)

// Fetcher returns the current window of raw records, newest first.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// Session is implemented by fetchers that hold a long-lived stateful
// resource (e.g. a browser) which the supervisor recycles.
type Session interface {
	Open(ctx context.Context) error
	Close() error
}

// Ledger remembers identity keys that were already dispatched.
type Ledger interface {
	Seen(key string) bool
	Mark(key string)
	Len() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher derives a stable identity key from canonical record fields.
type Hasher interface {
	Key(fields ...string) string
}

// Notifier delivers one formatted message to a destination. Implementations
// must be safe to call again for the same record after a failure.
type Notifier interface {
	Notify(ctx context.Context, destination string, msg Message) error
}
