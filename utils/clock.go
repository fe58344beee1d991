package utils

import (
	"sync"
	"time"
)

// Clock abstracts wall time so schedulers can be driven from tests
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real UTC time
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return UTCNow()
}

// FakeClock is a manually advanced clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
