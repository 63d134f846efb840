package replay

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/agentauth/observe"
)

type record struct {
	expiresAt   time.Time
	fingerprint string
}

// Guard is an in-memory replay table. It is safe for concurrent use; Record
// and Bind are atomic check-and-insert operations, so a race between two
// verifications of the same jti yields exactly one acceptance.
type Guard struct {
	mu      sync.Mutex
	records map[string]record
	now     func() time.Time
}

type settings struct {
	now    func() time.Time
	logger observe.Logger
}

// Option configures a Guard or SQLiteGuard.
type Option func(*settings)

// WithClock overrides the time source used to decide record expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for storage failures. Default: no-op.
func WithLogger(logger observe.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewGuard creates an empty replay guard.
func NewGuard(opts ...Option) *Guard {
	return &Guard{
		records: make(map[string]record),
		now:     newSettings(opts).now,
	}
}

// Record marks jwtID as consumed until expiresAt. It returns false if the
// identifier is already recorded and its record has not expired; otherwise it
// stores the record and returns true.
func (g *Guard) Record(jwtID string, expiresAt time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.records[jwtID]; ok && g.now().Before(existing.expiresAt) {
		return false
	}
	g.records[jwtID] = record{expiresAt: expiresAt}
	return true
}

// Bind is Record for reusable bearer credentials. The first presentation of
// jwtID stores fingerprint; later presentations are accepted only if they
// carry the same fingerprint, i.e. they are the very same token. A different
// token reusing a live jwtID is rejected.
func (g *Guard) Bind(jwtID, fingerprint string, expiresAt time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.records[jwtID]; ok && g.now().Before(existing.expiresAt) {
		return existing.fingerprint != "" && existing.fingerprint == fingerprint
	}
	g.records[jwtID] = record{expiresAt: expiresAt, fingerprint: fingerprint}
	return true
}

// Seen reports whether jwtID has a live record.
func (g *Guard) Seen(jwtID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.records[jwtID]
	return ok && g.now().Before(existing.expiresAt)
}

// SweepExpired removes all records whose expiry has passed and returns the
// number removed.
func (g *Guard) SweepExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for id, rec := range g.records {
		if !now.Before(rec.expiresAt) {
			delete(g.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held, expired or not.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Run sweeps expired records every interval until ctx is done.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SweepExpired()
		}
	}
}
