// Package core defines the Worker and WorkerRegistry types shared by
// every policy, breaker, and router in the system.
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the role a worker plays in the request pipeline.
type Kind int

const (
	KindRegular Kind = iota
	KindPrefill
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindPrefill:
		return "prefill"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Connection is the transport used to reach a worker, derived from its
// URL scheme.
type Connection int

const (
	ConnHTTP Connection = iota
	ConnGRPC
)

// CircuitState mirrors the breaker's view of a worker, cached on the
// Worker itself so policies can filter without round-tripping to the
// breaker on every selection.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Outcome is reported back to a worker (and its breaker) after a
// dispatch completes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// Worker is a single upstream inference endpoint. All mutable fields
// are guarded by mu except inflight, which is updated atomically on
// the hot path.
type Worker struct {
	URL           string
	Kind          Kind
	Connection    Connection
	BootstrapPort *uint16 // only meaningful for KindPrefill
	DPRank        *int    // set when the URL carries an "@<rank>" suffix

	inflight int64 // atomic

	mu                   sync.Mutex
	sideChannel          string // resolved side-channel address, may equal URL's host:port
	healthy              bool
	consecutiveFails     int
	consecutiveSuccesses int
	circuitState         CircuitState
	openedAt             time.Time
}

// NewWorker parses a canonical worker URL (optionally suffixed with
// "@<rank>" for data-parallel replicas) and returns an unhealthy Worker
// awaiting its first successful probe.
func NewWorker(rawURL string, kind Kind) (*Worker, error) {
	dialURL, rank, err := splitDPRank(rawURL)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(dialURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid worker url %q: %w", rawURL, errInvalidURL)
	}

	conn := ConnHTTP
	if parsed.Scheme == "grpc" || parsed.Scheme == "grpcs" {
		conn = ConnGRPC
	}

	w := &Worker{
		URL:          dialURL,
		Kind:         kind,
		Connection:   conn,
		sideChannel:  parsed.Host,
		circuitState: CircuitClosed,
	}
	if rank != nil {
		w.DPRank = rank
	}
	return w, nil
}

var errInvalidURL = fmt.Errorf("must include scheme and host")

// splitDPRank extracts a trailing "@<rank>" data-parallel suffix, if
// present, from a worker URL.
func splitDPRank(rawURL string) (string, *int, error) {
	idx := strings.LastIndexByte(rawURL, '@')
	if idx == -1 {
		return rawURL, nil, nil
	}
	suffix := rawURL[idx+1:]
	rank, err := strconv.Atoi(suffix)
	if err != nil {
		// '@' may legitimately appear in userinfo; only treat it as a
		// DP-rank suffix when the trailing token parses as an integer.
		return rawURL, nil, nil
	}
	return rawURL[:idx], &rank, nil
}

// SideChannelAddr returns the worker's current side-channel address,
// defaulting to its HTTP host:port until discovery resolves an
// out-of-band transport mapping for it (spec.md §4.7).
func (w *Worker) SideChannelAddr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sideChannel
}

// SetSideChannel overrides the worker's side-channel address once
// discovery resolves a transport-reported mapping distinct from its
// own HTTP host:port.
func (w *Worker) SetSideChannel(addr string) {
	w.mu.Lock()
	w.sideChannel = addr
	w.mu.Unlock()
}

// Inflight returns the current number of outstanding dispatches.
func (w *Worker) Inflight() int64 { return atomic.LoadInt64(&w.inflight) }

// IncInflight increments the inflight counter and must be paired with
// exactly one DecInflight on every exit path.
func (w *Worker) IncInflight() { atomic.AddInt64(&w.inflight, 1) }

// DecInflight decrements the inflight counter.
func (w *Worker) DecInflight() {
	if atomic.AddInt64(&w.inflight, -1) < 0 {
		atomic.StoreInt64(&w.inflight, 0)
	}
}

// Healthy reports whether the worker has passed enough consecutive
// probes to be considered up.
func (w *Worker) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.healthy
}

// Selectable reports whether the worker may currently receive traffic:
// healthy and with its circuit Closed or HalfOpen.
func (w *Worker) Selectable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.healthy && w.circuitState != CircuitOpen
}

// CircuitStateSnapshot returns the worker's cached breaker state.
func (w *Worker) CircuitStateSnapshot() CircuitState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.circuitState
}

// SetCircuitState updates the cached breaker state; called by the
// breaker after a transition so policies can filter without a second
// lock round-trip.
func (w *Worker) SetCircuitState(s CircuitState) {
	w.mu.Lock()
	w.circuitState = s
	if s == CircuitOpen {
		w.openedAt = time.Now()
	}
	w.mu.Unlock()
}

// RecordProbe applies the result of a health probe, updating the
// consecutive counters and flipping Healthy once the configured
// thresholds are crossed.
func (w *Worker) RecordProbe(success bool, successThreshold, failureThreshold int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if success {
		w.consecutiveSuccesses++
		w.consecutiveFails = 0
		if w.consecutiveSuccesses >= successThreshold {
			w.healthy = true
		}
	} else {
		w.consecutiveFails++
		w.consecutiveSuccesses = 0
		if w.consecutiveFails >= failureThreshold {
			w.healthy = false
		}
	}
}

// Counters returns the current consecutive success/failure counts,
// primarily for tests and diagnostics.
func (w *Worker) Counters() (successes, fails int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consecutiveSuccesses, w.consecutiveFails
}
