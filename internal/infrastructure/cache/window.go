package cache

import (
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/admission"
)

// WindowStore is an admission.WindowStore that holds resources.
type WindowStore interface {
	admission.WindowStore
	Close() error
}

func validateWindow(limit int, window time.Duration) error {
	if window <= 0 {
		return fmt.Errorf("window must be positive, got %s", window)
	}
	if limit < 0 {
		return fmt.Errorf("limit cannot be negative, got %d", limit)
	}
	return nil
}

// expired reports whether a hit at t no longer counts at now.
func expired(t, now time.Time, window time.Duration) bool {
	return now.Sub(t) >= window
}

// retryAfter is the time until the oldest hit leaves the window. A zero limit
// never frees a slot, so there is nothing to wait for.
func retryAfter(oldest, now time.Time, limit int, window time.Duration) time.Duration {
	if limit == 0 || oldest.IsZero() {
		return 0
	}
	if d := oldest.Add(window).Sub(now); d > 0 {
		return d
	}
	return 0
}
