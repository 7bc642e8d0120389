package policy

import (
	"math/rand"
	"time"

	"github.com/cuemby/inferoute/pkg/core"
)

// PowerOfTwo picks two candidates uniformly at random and routes to
// whichever has fewer in-flight requests, tie-breaking on the lower
// index (spec.md §4.2).
type PowerOfTwo struct {
	loadCheckInterval time.Duration
}

func NewPowerOfTwo(loadCheckInterval time.Duration) *PowerOfTwo {
	return &PowerOfTwo{loadCheckInterval: loadCheckInterval}
}

func (p *PowerOfTwo) Name() string           { return "power_of_two" }
func (p *PowerOfTwo) NeedsRequestText() bool { return false }
func (p *PowerOfTwo) Reset()                 {}

func (p *PowerOfTwo) Select(workers []*core.Worker, _ string) int {
	idxs := candidates(workers)
	switch len(idxs) {
	case 0:
		return -1
	case 1:
		return idxs[0]
	}

	i := rand.Intn(len(idxs))
	j := rand.Intn(len(idxs) - 1)
	if j >= i {
		j++
	}
	return pickLessLoaded(workers, idxs[i], idxs[j])
}

func (p *PowerOfTwo) SelectPair(prefills, decodes []*core.Worker, requestText string) (int, int) {
	pi := p.Select(prefills, requestText)
	di := p.Select(decodes, requestText)
	if pi == -1 || di == -1 {
		return -1, -1
	}
	return pi, di
}

func pickLessLoaded(workers []*core.Worker, a, b int) int {
	loadA, loadB := workers[a].Inflight(), workers[b].Inflight()
	switch {
	case loadA < loadB:
		return a
	case loadB < loadA:
		return b
	case a <= b:
		return a
	default:
		return b
	}
}
