package bridge

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often a device's active app is refreshed
const DefaultPollInterval = 5 * time.Second

// Poller runs a poll function on a fixed cadence in a single goroutine, so
// ticks for one device never overlap.
type Poller struct {
	clock    Clock
	interval time.Duration
	poll     func(ctx context.Context)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPoller creates a stopped poller
func NewPoller(clock Clock, interval time.Duration, poll func(ctx context.Context)) *Poller {
	if clock == nil {
		clock = realClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		clock:    clock,
		interval: interval,
		poll:     poll,
	}
}

// Start begins polling until ctx is done or Stop is called. Starting a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	ticker := p.clock.Ticker(p.interval)
	go p.run(ctx, ticker, p.done)
}

func (p *Poller) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

// Stop halts polling and waits for an in-progress tick to return
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the poller is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
