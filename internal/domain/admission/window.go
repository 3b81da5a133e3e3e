package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Key identifies one usage window.
type Key struct {
	PrincipalID uuid.UUID
	Feature     Feature
}

// String renders the key as "<principal>:<feature>".
func (k Key) String() string {
	return k.PrincipalID.String() + ":" + string(k.Feature)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest counted invocation leaves the
	// window. Zero when allowed, and zero when the limit itself is zero since
	// waiting never frees a slot.
	RetryAfter time.Duration
}

// WindowStore keeps per-key invocation timestamps over a rolling window.
//
// Acquire must be linearizable per key: prune entries at or older than
// now-window, and if fewer than limit remain, record now and allow.
type WindowStore interface {
	Acquire(ctx context.Context, key Key, limit int, window time.Duration, now time.Time) (Decision, error)
	// Peek reports the same decision Acquire would make without recording anything.
	Peek(ctx context.Context, key Key, limit int, window time.Duration, now time.Time) (Decision, error)
}
