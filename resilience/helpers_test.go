package resilience

import (
	"sync"
	"time"

	"github.com/jonwraymond/agentauth/auth"
)

var (
	errUnreachable = auth.NewError(auth.KindTokenServiceUnreachable, "connection refused", nil)
	errDenied      = auth.NewError(auth.KindPolicyDenied, "not allowed", nil)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
