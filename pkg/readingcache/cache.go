// Package readingcache holds the latest station reading. One writer (the
// poller) replaces an immutable snapshot; any number of readers copy it out
// without locking.
package readingcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

// Reading is what readers get back. Present is false until the first
// telegram has been decoded, which is not the same as a stale value.
type Reading struct {
	Measurement types.Measurement
	Present     bool
	State       types.ConnectionState
	// Updated is when Measurement was cached, Age is measured from it.
	Updated time.Time
	Age     time.Duration
}

type snapshot struct {
	measurement types.Measurement
	present     bool
	state       types.ConnectionState
	updated     time.Time
}

type Cache struct {
	current atomic.Pointer[snapshot]
	now     func() time.Time

	subMu sync.Mutex
	subs  map[chan Reading]struct{}
}

func New() *Cache {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Cache {
	c := &Cache{
		now:  now,
		subs: make(map[chan Reading]struct{}),
	}
	c.current.Store(&snapshot{
		state: types.ConnectionState{Status: types.Disconnected, Since: now()},
	})
	return c
}

// Get never blocks and never fails.
func (c *Cache) Get() Reading {
	return c.reading(c.current.Load())
}

// CurrentReading is the read-only view handed to the web layer.
func (c *Cache) CurrentReading() Reading {
	return c.Get()
}

func (c *Cache) reading(s *snapshot) Reading {
	r := Reading{
		Measurement: s.measurement,
		Present:     s.present,
		State:       s.state,
		Updated:     s.updated,
	}
	if s.present {
		if age := c.now().Sub(s.updated); age > 0 {
			r.Age = age
		}
	}
	return r
}

// Set replaces the cached measurement and state in one step. Poller only.
func (c *Cache) Set(m types.Measurement, state types.ConnectionState) {
	s := &snapshot{
		measurement: m,
		present:     true,
		state:       state,
		updated:     c.now(),
	}
	c.current.Store(s)
	c.publish(s)
}

// SetState changes the connection state and keeps the last measurement.
// Poller only.
func (c *Cache) SetState(state types.ConnectionState) {
	prev := c.current.Load()
	if prev.state.Status == state.Status && prev.state.Since.Equal(state.Since) {
		return
	}
	s := *prev
	s.state = state
	c.current.Store(&s)
	c.publish(&s)
}

// Subscribe returns a channel receiving every update. A subscriber that
// falls behind only misses intermediate updates, the newest is always
// delivered. cancel closes the channel.
func (c *Cache) Subscribe() (updates <-chan Reading, cancel func()) {
	ch := make(chan Reading, 1)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.subMu.Unlock()
		})
	}
}

func (c *Cache) publish(s *snapshot) {
	r := c.reading(s)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- r:
			continue
		default:
		}
		// replace the unread update with the newer one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r:
		default:
		}
	}
}
