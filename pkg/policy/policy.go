// Package policy implements the worker-selection algorithms: random,
// round-robin, power-of-two-choices, session-sticky consistent hash,
// and cache-aware prefix matching (spec.md §4.2).
package policy

import "github.com/cuemby/inferoute/pkg/core"

// Engine is the closed set of worker-selection algorithms. Each
// variant is dispatched on directly rather than through open
// polymorphism, per spec.md §9's preference for a tagged sum type —
// in Go that's simply a small interface with five concrete
// implementations and no fifth-party registration.
type Engine interface {
	// Name identifies the policy for logging and diagnostics.
	Name() string

	// NeedsRequestText reports whether the router must materialize the
	// request fingerprint before calling Select.
	NeedsRequestText() bool

	// Select returns the index of the chosen worker in workers, or -1
	// if none is selectable.
	Select(workers []*core.Worker, requestText string) int

	// SelectPair chooses a (prefill, decode) index pair for PD mode.
	// Returns (-1, -1) if no valid pair exists.
	SelectPair(prefills, decodes []*core.Worker, requestText string) (int, int)

	// Reset clears any cached/derived state (hash ring, prefix tree,
	// round-robin counter). Idempotent and safe to call at any time
	// (spec.md §9 Open Question).
	Reset()
}

// candidates returns the indices of workers eligible for selection:
// healthy and with a closed or half-open circuit (spec.md §3).
func candidates(workers []*core.Worker) []int {
	out := make([]int, 0, len(workers))
	for i, w := range workers {
		if w.Selectable() {
			out = append(out, i)
		}
	}
	return out
}

func leastLoaded(workers []*core.Worker, idxs []int) int {
	best := -1
	var bestLoad int64
	for _, i := range idxs {
		load := workers[i].Inflight()
		if best == -1 || load < bestLoad {
			best = i
			bestLoad = load
		}
	}
	return best
}
