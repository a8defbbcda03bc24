// Package poller drives a transport and the telegram decoder in a loop and
// publishes every decoded sentence into the reading cache.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/port_reader"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/telegram"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

// MaxBuffer bounds the rolling receive buffer. Older bytes are dropped when
// a stream without valid frames fills it.
const MaxBuffer = 4 * telegram.MaxFrameLen

type Config struct {
	// FailureThreshold is the number of consecutive decode failures after
	// which the link is reported degraded.
	FailureThreshold int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

type Poller struct {
	transport port_reader.Transport
	cache     *readingcache.Cache
	cfg       Config
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	backoff  *backoff.Backoff
	buf      []byte
	chunk    []byte
	state    types.ConnectionState
	failures int
	working  types.Measurement
	counters counters
}

func New(transport port_reader.Transport, cache *readingcache.Cache, cfg Config, logger *slog.Logger) *Poller {
	return &Poller{
		transport: transport,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		backoff: &backoff.Backoff{
			Min:    cfg.BackoffBase,
			Max:    cfg.BackoffMax,
			Factor: 2,
		},
		buf:   make([]byte, 0, MaxBuffer),
		chunk: make([]byte, telegram.MaxFrameLen),
		state: types.ConnectionState{Status: types.Disconnected},
	}
}

// Run loops until ctx is cancelled. The transport is closed on return.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started")
	defer p.release()

	for ctx.Err() == nil {
		if p.state.Status == types.Disconnected {
			p.open(ctx)
			continue
		}
		p.read(ctx)
	}
}

func (p *Poller) open(ctx context.Context) {
	if err := p.transport.Open(); err != nil {
		p.logger.Warn("failed to open transport", "error", err)
		p.wait(ctx)
		return
	}
	p.counters.opens.Add(1)
	p.buf = p.buf[:0]
	p.setState(types.Connecting)
}

func (p *Poller) read(ctx context.Context) {
	n, err := p.transport.Read(p.chunk)
	if n > 0 {
		p.push(p.chunk[:n])
		p.drain()
	}
	if err != nil {
		p.counters.ioErrors.Add(1)
		p.logger.Warn("transport failure, reconnecting", "error", err)
		if err := p.transport.Close(); err != nil {
			p.logger.Debug("closing transport", "error", err)
		}
		p.setState(types.Disconnected)
		p.wait(ctx)
		return
	}
	p.backoff.Reset()
}

// push appends b to the buffer, dropping the oldest bytes past MaxBuffer.
func (p *Poller) push(b []byte) {
	p.buf = append(p.buf, b...)
	if over := len(p.buf) - MaxBuffer; over > 0 {
		p.counters.droppedBytes.Add(uint64(over))
		p.consume(over)
	}
}

func (p *Poller) consume(n int) {
	if n > len(p.buf) {
		n = len(p.buf)
	}
	rest := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}

// drain decodes every complete sentence in the buffer.
func (p *Poller) drain() {
	for len(p.buf) > 0 {
		tg, n, err := telegram.Decode(p.buf)
		if err == nil {
			p.consume(n)
			p.accept(tg)
			continue
		}

		kind := telegram.KindOf(err)
		if kind == telegram.Incomplete {
			// leading noise only, the frame start stays for the next read
			p.consume(n)
			return
		}
		p.consume(n + 1)
		p.reject(kind, err)
	}
}

func (p *Poller) accept(tg telegram.Telegram) {
	p.failures = 0
	p.counters.frames.Add(1)
	p.counters.consecutive.Store(0)

	now := p.now()
	p.working = tg.Apply(p.working)
	p.working.Timestamp = now
	if p.state.Status != types.Connected {
		p.state = types.ConnectionState{Status: types.Connected, Since: now}
		p.logger.Info("station connected")
	}
	p.cache.Set(p.working, p.state)
}

func (p *Poller) reject(kind telegram.Kind, err error) {
	p.failures++
	p.counters.consecutive.Store(uint64(p.failures))
	switch kind {
	case telegram.ChecksumMismatch:
		p.counters.checksum.Add(1)
	case telegram.MalformedField:
		p.counters.malformed.Add(1)
	case telegram.UnknownFrameType:
		p.counters.unknown.Add(1)
	}

	if kind == telegram.UnknownFrameType {
		p.logger.Debug("skipping sentence", "error", err)
	} else {
		p.logger.Warn("corrupt sentence", "kind", kind.String(), "error", err, "failures", p.failures)
	}

	if p.failures >= p.cfg.FailureThreshold && p.state.Status != types.Degraded {
		p.logger.Warn("station degraded", "failures", p.failures)
		p.setState(types.Degraded)
	}
}

func (p *Poller) setState(status types.LinkStatus) {
	if p.state.Status == status {
		return
	}
	p.state = types.ConnectionState{Status: status, Since: p.now()}
	p.cache.SetState(p.state)
}

func (p *Poller) wait(ctx context.Context) {
	d := p.backoff.Duration()
	p.logger.Info("retrying", "delay", d)
	p.sleep(ctx, d)
}

func (p *Poller) release() {
	if err := p.transport.Close(); err != nil && !errors.Is(err, port_reader.ErrNotOpen) {
		p.logger.Warn("closing transport", "error", err)
	}
	p.setState(types.Disconnected)
	p.logger.Info("poller stopped")
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
