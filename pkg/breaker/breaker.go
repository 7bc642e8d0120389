// Package breaker implements the per-worker circuit breaker described
// in spec.md §4.3: a sliding-window failure counter with
// Closed/Open/HalfOpen transitions. Grounded on
// Generativebots-ocx-backend-go-svc/internal/circuitbreaker/breaker.go
// (state enum, Counts shape, OnStateChange hook) but simplified to the
// spec's explicit threshold fields — no generic ReadyToTrip callback —
// and adapted to drive core.Worker's cached CircuitState rather than
// an arbitrary named resource.
package breaker

import (
	"sync"
	"time"

	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/log"
	"github.com/cuemby/inferoute/pkg/metrics"
	"github.com/rs/zerolog"
)

// Config tunes the breaker (spec.md §6 cb_* options).
type Config struct {
	Disabled         bool
	FailureThreshold int
	SuccessThreshold int
	WindowDuration   time.Duration
	TimeoutDuration  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		WindowDuration:   30 * time.Second,
		TimeoutDuration:  30 * time.Second,
	}
}

type workerState struct {
	mu sync.Mutex

	state    core.CircuitState
	openedAt time.Time

	windowStart    time.Time
	failures       int
	successes      int
	halfOpenInUse  bool
}

// Breaker tracks circuit state per worker URL. A disabled breaker
// always admits and never transitions out of Closed.
type Breaker struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	workers map[string]*workerState
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:     cfg,
		log:     log.WithComponent("breaker"),
		workers: make(map[string]*workerState),
	}
}

func (b *Breaker) stateFor(url string) *workerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, ok := b.workers[url]
	if !ok {
		ws = &workerState{state: core.CircuitClosed, windowStart: time.Now()}
		b.workers[url] = ws
	}
	return ws
}

// Admit decides whether a dispatch to w may proceed, advancing
// Open→HalfOpen when the timeout has elapsed (spec.md §4.3).
func (b *Breaker) Admit(w *core.Worker) bool {
	if b.cfg.Disabled {
		return true
	}

	ws := b.stateFor(w.URL)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	switch ws.state {
	case core.CircuitClosed:
		return true
	case core.CircuitOpen:
		if time.Since(ws.openedAt) >= b.cfg.TimeoutDuration {
			ws.state = core.CircuitHalfOpen
			ws.halfOpenInUse = false
			w.SetCircuitState(core.CircuitHalfOpen)
			b.recordTransition(w.URL, core.CircuitHalfOpen)
			b.log.Info().Str("worker", w.URL).Msg("breaker half-open")
			ws.halfOpenInUse = true
			return true
		}
		return false
	case core.CircuitHalfOpen:
		if ws.halfOpenInUse {
			return false // one probe at a time
		}
		ws.halfOpenInUse = true
		return true
	default:
		return true
	}
}

// Record applies a dispatch outcome, driving the state machine forward.
func (b *Breaker) Record(w *core.Worker, outcome core.Outcome) {
	if b.cfg.Disabled {
		return
	}

	ws := b.stateFor(w.URL)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	now := time.Now()
	if now.Sub(ws.windowStart) > b.cfg.WindowDuration {
		ws.windowStart = now
		ws.failures = 0
		ws.successes = 0
	}

	switch ws.state {
	case core.CircuitClosed:
		if outcome == core.OutcomeSuccess {
			ws.failures = 0
			return
		}
		ws.failures++
		if ws.failures >= b.cfg.FailureThreshold {
			ws.state = core.CircuitOpen
			ws.openedAt = now
			w.SetCircuitState(core.CircuitOpen)
			b.recordTransition(w.URL, core.CircuitOpen)
			b.log.Warn().Str("worker", w.URL).Int("failures", ws.failures).Msg("breaker opened")
		}
	case core.CircuitHalfOpen:
		ws.halfOpenInUse = false
		if outcome == core.OutcomeFailure {
			ws.state = core.CircuitOpen
			ws.openedAt = now
			w.SetCircuitState(core.CircuitOpen)
			b.recordTransition(w.URL, core.CircuitOpen)
			b.log.Warn().Str("worker", w.URL).Msg("breaker reopened from half-open")
			return
		}
		ws.successes++
		if ws.successes >= b.cfg.SuccessThreshold {
			ws.state = core.CircuitClosed
			ws.failures = 0
			ws.successes = 0
			w.SetCircuitState(core.CircuitClosed)
			b.recordTransition(w.URL, core.CircuitClosed)
			b.log.Info().Str("worker", w.URL).Msg("breaker closed")
		}
	case core.CircuitOpen:
		// A report arriving while open (e.g. a straggling probe) does
		// not reset the timeout.
	}
}

// State returns the breaker's current view of a worker, for tests and
// diagnostics.
func (b *Breaker) State(url string) core.CircuitState {
	ws := b.stateFor(url)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.state
}

// recordTransition updates the breaker gauges/counters for a worker's
// new state.
func (b *Breaker) recordTransition(url string, state core.CircuitState) {
	metrics.BreakerState.WithLabelValues(url).Set(float64(state))
	metrics.BreakerTransitionsTotal.WithLabelValues(url, state.String()).Inc()
}
