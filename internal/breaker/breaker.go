// Package breaker guards calls to unreliable dependencies with per-name
// circuit breakers. A breaker trips after enough consecutive failures, blocks
// callers while open, and admits a single probe after a cooldown to decide
// whether the dependency recovered. Timeouts count as failures.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/farmkeeper/farmkeeper/internal/logging"
)

// ErrOpen is returned without invoking the protected call while the circuit
// is open (or while another caller holds the half-open probe slot).
var ErrOpen = errors.New("circuit open")

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

const (
	eventTrip    = "trip"
	eventProbe   = "probe"
	eventRestore = "restore"
)

// Settings tune one breaker.
type Settings struct {
	// FailureThreshold is how many consecutive failures trip the circuit.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration

	// Timeout bounds each protected call; a call running past it counts as
	// a failure. Zero disables the per-call bound.
	Timeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return s
}

// Stats is a point-in-time snapshot of one breaker.
type Stats struct {
	Name           string
	State          string
	Consecutive    int
	Successes      uint64
	Failures       uint64
	Rejected       uint64
	LastError      string
	LastTransition time.Time
}

// Breaker wraps calls to one named dependency.
type Breaker struct {
	name     string
	settings Settings
	log      logging.Logger
	now      func() time.Time

	mu             sync.Mutex
	fsm            *fsm.FSM
	consecutive    int
	successes      uint64
	failures       uint64
	rejected       uint64
	lastError      string
	lastTransition time.Time
	openedAt       time.Time
	probing        bool
}

// New builds a closed breaker for one dependency name.
func New(name string, settings Settings, log logging.Logger) *Breaker {
	if log == nil {
		log = logging.Nop{}
	}
	b := &Breaker{
		name:     name,
		settings: settings.withDefaults(),
		log:      log.With("circuit", name),
		now:      time.Now,
	}
	b.fsm = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: eventTrip, Src: []string{StateClosed, StateHalfOpen}, Dst: StateOpen},
			{Name: eventProbe, Src: []string{StateOpen}, Dst: StateHalfOpen},
			{Name: eventRestore, Src: []string{StateHalfOpen, StateOpen}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.lastTransition = b.now()
				b.log.Info(context.Background(), "circuit state changed",
					"from", e.Src, "to", e.Dst)
			},
		},
	)
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state string.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fsm.Current()
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:           b.name,
		State:          b.fsm.Current(),
		Consecutive:    b.consecutive,
		Successes:      b.successes,
		Failures:       b.failures,
		Rejected:       b.rejected,
		LastError:      b.lastError,
		LastTransition: b.lastTransition,
	}
}

// Do runs fn under the breaker. While the circuit is open it returns ErrOpen
// without calling fn; otherwise fn's error is returned as-is. A call that
// outlives Settings.Timeout is cut off and counted as a failure. Caller
// cancellation is passed through without counting for or against the
// dependency.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx := ctx
	if b.settings.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.settings.Timeout)
		defer cancel()
	}

	err := fn(callCtx)
	switch {
	case err == nil:
		b.onSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The caller went away; that says nothing about the dependency.
		b.endProbe()
	default:
		b.onFailure(err)
	}
	return err
}

// allow decides whether a call may proceed, advancing open -> half_open when
// the cooldown has elapsed. In half_open exactly one caller gets through.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.fsm.Current() {
	case StateClosed:
		return nil

	case StateOpen:
		if elapsed := b.now().Sub(b.openedAt); elapsed < b.settings.Cooldown {
			b.rejected++
			left := (b.settings.Cooldown - elapsed).Round(time.Millisecond)
			return fmt.Errorf("%s: %w, retry after %s", b.name, ErrOpen, left)
		}
		if err := b.fsm.Event(context.Background(), eventProbe); err != nil {
			return fmt.Errorf("failed to arm probe: %w", err)
		}
		b.probing = true
		return nil

	default: // StateHalfOpen
		if b.probing {
			b.rejected++
			return fmt.Errorf("%s: %w, probe in flight", b.name, ErrOpen)
		}
		b.probing = true
		return nil
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.consecutive = 0
	b.probing = false
	if b.fsm.Current() == StateHalfOpen {
		if err := b.fsm.Event(context.Background(), eventRestore); err != nil {
			b.log.Error(context.Background(), "failed to close circuit", "error", err)
		}
	}
}

func (b *Breaker) onFailure(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.consecutive++
	b.lastError = cause.Error()
	b.probing = false

	current := b.fsm.Current()
	tripped := current == StateHalfOpen ||
		(current == StateClosed && b.consecutive >= b.settings.FailureThreshold)
	if !tripped {
		return
	}

	if err := b.fsm.Event(context.Background(), eventTrip); err != nil {
		b.log.Error(context.Background(), "failed to open circuit", "error", err)
		return
	}
	b.openedAt = b.now()
	b.log.Warn(context.Background(), "circuit opened",
		"consecutive_failures", b.consecutive, "last_error", b.lastError)
}

// endProbe releases the half-open probe slot without judging the outcome.
func (b *Breaker) endProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// Trip forces the circuit open, regardless of recent outcomes.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fsm.Current() == StateOpen {
		b.openedAt = b.now()
		return
	}
	if err := b.fsm.Event(context.Background(), eventTrip); err != nil {
		b.log.Error(context.Background(), "failed to open circuit", "error", err)
		return
	}
	b.openedAt = b.now()
}

// Reset forces the circuit closed and clears the failure streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.probing = false
	if b.fsm.Current() == StateClosed {
		return
	}
	if err := b.fsm.Event(context.Background(), eventRestore); err != nil {
		b.log.Error(context.Background(), "failed to close circuit", "error", err)
	}
}
