package health

import (
	"context"
	"sync"
	"time"
)

// Poller re-checks a reachability probe on a fixed interval and records the
// result in a Monitor. The transport primitive offers no connection-state
// push, so polling is the only way to observe the peer coming or going.
type Poller struct {
	component string
	interval  time.Duration
	probe     func() bool
	monitor   *Monitor
	onChange  func(connected bool)

	mu      sync.Mutex
	last    bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller for the named component. onChange, when
// non-nil, fires on every transition of the probe result, including the
// first observation.
func NewPoller(component string, interval time.Duration, probe func() bool,
	monitor *Monitor, onChange func(connected bool)) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		component: component,
		interval:  interval,
		probe:     probe,
		monitor:   monitor,
		onChange:  onChange,
	}
}

// Start begins polling until ctx is cancelled or Stop is called. The first
// probe runs immediately rather than one interval in.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.observe(true)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.observe(false)
		}
	}
}

func (p *Poller) observe(first bool) {
	connected := p.probe()

	p.mu.Lock()
	changed := first || connected != p.last
	p.last = connected
	p.mu.Unlock()

	if p.monitor != nil {
		if connected {
			p.monitor.UpdateHealthy(p.component, "peer reachable")
		} else {
			p.monitor.UpdateUnhealthy(p.component, "peer unreachable")
		}
	}
	if changed && p.onChange != nil {
		p.onChange(connected)
	}
}

// Connected returns the most recent probe result.
func (p *Poller) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Stop halts polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	started := p.started
	p.started = false
	p.cancel = nil
	p.mu.Unlock()

	if !started || cancel == nil {
		return
	}
	cancel()
	<-done
}
