// Package netx tracks backend reachability. A background loop probes the
// server on an interval and keeps the verdict in an atomic flag, so routing
// decisions read an already-known signal instead of blocking on the network.
package netx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/logging"
)

const (
	defaultInterval    = 30 * time.Second
	defaultPingTimeout = 3 * time.Second
)

// Pinger probes the backend without touching any data.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is a point-in-time connectivity snapshot for the status screen.
type Status struct {
	Online    bool
	CheckedAt time.Time
	LastError string
}

// Monitor keeps an online/offline verdict current. It starts offline; the
// first probe runs as soon as Run is called. Safe for concurrent use.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger
	now      func() time.Time

	online atomic.Bool
	kick   chan struct{}

	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
	onChange  func(online bool)
}

func NewMonitor(pinger Pinger, interval, timeout time.Duration, log logging.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "connectivity"),
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// OnChange registers a hook invoked on every offline/online transition.
// Register before Run; the hook runs on the monitor goroutine and must not
// block.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Run probes immediately, then on every interval tick or Kick, until ctx
// ends. Callers own the goroutine it runs on.
func (m *Monitor) Run(ctx context.Context) {
	m.check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.kick:
			m.check(ctx)
		}
	}
}

// Online reports the last known verdict without probing.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Status returns the verdict together with when and why it was set.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{Online: m.online.Load(), CheckedAt: m.checkedAt}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// ForceCheck probes synchronously and returns the fresh verdict.
func (m *Monitor) ForceCheck(ctx context.Context) bool {
	return m.check(ctx)
}

// Kick schedules an out-of-band probe on the Run loop. Never blocks.
func (m *Monitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// MarkOffline records an offline verdict observed elsewhere, typically a
// remote call that just failed, so routing reacts before the next probe.
func (m *Monitor) MarkOffline(err error) {
	m.set(false, err)
}

func (m *Monitor) check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.pinger.Ping(pctx)
	return m.set(err == nil, err)
}

func (m *Monitor) set(online bool, err error) bool {
	prev := m.online.Swap(online)

	m.mu.Lock()
	m.checkedAt = m.now()
	m.lastErr = err
	fn := m.onChange
	m.mu.Unlock()

	if prev != online {
		m.log.Info(context.Background(), "connectivity changed", "online", online)
		if fn != nil {
			fn(online)
		}
	}
	return online
}
