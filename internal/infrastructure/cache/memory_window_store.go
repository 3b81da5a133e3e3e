package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"go.uber.org/zap"
)

const windowShards = 64

type usageWindow struct {
	hits   []time.Time
	window time.Duration
}

// prune drops hits that left the window and returns the oldest remaining one.
func (w *usageWindow) prune(now time.Time) time.Time {
	var oldest time.Time
	kept := w.hits[:0]
	for _, t := range w.hits {
		if expired(t, now, w.window) {
			continue
		}
		kept = append(kept, t)
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	clear(w.hits[len(kept):])
	w.hits = kept
	return oldest
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string]*usageWindow
}

// MemoryWindowStore keeps usage windows in process memory. Keys are spread
// over shards by xxhash; each shard lock covers the whole prune, count and
// record step, so decisions for one key are linearizable.
type MemoryWindowStore struct {
	shards [windowShards]*windowShard

	logger        *zap.Logger
	sweepInterval time.Duration
	now           func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// MemoryStoreOption configures a MemoryWindowStore
type MemoryStoreOption func(*MemoryWindowStore)

// WithSweepInterval sets how often empty windows are removed. Zero disables the sweep.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.sweepInterval = d }
}

// WithStoreLogger sets the logger
func WithStoreLogger(l *zap.Logger) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.logger = l }
}

// WithClock sets the clock used by the background sweep
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

// NewMemoryWindowStore creates an empty store. Call Start to run the sweep.
func NewMemoryWindowStore(opts ...MemoryStoreOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		logger:        zap.NewNop(),
		sweepInterval: 10 * time.Minute,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{windows: make(map[string]*usageWindow)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryWindowStore) shard(key string) *windowShard {
	return s.shards[xxhash.Sum64String(key)%windowShards]
}

// Acquire implements admission.WindowStore
func (s *MemoryWindowStore) Acquire(_ context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	return s.decide(key, limit, window, now, true)
}

// Peek implements admission.WindowStore
func (s *MemoryWindowStore) Peek(_ context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	return s.decide(key, limit, window, now, false)
}

func (s *MemoryWindowStore) decide(key admission.Key, limit int, window time.Duration, now time.Time, record bool) (admission.Decision, error) {
	if err := validateWindow(limit, window); err != nil {
		return admission.Decision{}, err
	}

	k := key.String()
	sh := s.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[k]
	if !ok {
		if !record || limit == 0 {
			return admission.Decision{Allowed: limit > 0, Limit: limit, Remaining: limit}, nil
		}
		w = &usageWindow{hits: make([]time.Time, 0, min(limit, 16))}
		sh.windows[k] = w
	}
	w.window = window

	oldest := w.prune(now)
	count := len(w.hits)

	if count >= limit {
		if count == 0 {
			delete(sh.windows, k)
		}
		return admission.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: retryAfter(oldest, now, limit, window),
		}, nil
	}

	if record {
		w.hits = append(w.hits, now)
		count++
	}
	return admission.Decision{Allowed: true, Limit: limit, Remaining: limit - count}, nil
}

// Sweep removes windows whose hits have all expired at now and returns how
// many were removed.
func (s *MemoryWindowStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if w.prune(now); len(w.hits) == 0 {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of live windows.
func (s *MemoryWindowStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// Start runs the periodic sweep in the background until Close.
func (s *MemoryWindowStore) Start() {
	if s.sweepInterval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop()
	})
}

func (s *MemoryWindowStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				s.logger.Debug("Swept idle usage windows", zap.Int("removed", removed))
			}
		case <-s.stopChan:
			return
		}
	}
}

// Close stops the sweep and waits for it to exit.
func (s *MemoryWindowStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	return nil
}

var _ WindowStore = (*MemoryWindowStore)(nil)
