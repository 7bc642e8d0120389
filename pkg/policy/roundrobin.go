package policy

import (
	"sync/atomic"

	"github.com/cuemby/inferoute/pkg/core"
)

// RoundRobin advances a monotonic counter modulo the selectable count,
// grounded on the teacher's ingress LoadBalancer round-robin index
// (pkg/ingress/loadbalancer.go), promoted from a mutex-guarded map to
// atomic counters: counter drives Select and the prefill side of
// SelectPair, decodeCounter drives the decode side.
type RoundRobin struct {
	counter       uint64
	decodeCounter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) Name() string           { return "round_robin" }
func (p *RoundRobin) NeedsRequestText() bool { return false }

func (p *RoundRobin) Reset() {
	atomic.StoreUint64(&p.counter, 0)
	atomic.StoreUint64(&p.decodeCounter, 0)
}

func (p *RoundRobin) Select(workers []*core.Worker, _ string) int {
	idxs := candidates(workers)
	if len(idxs) == 0 {
		return -1
	}
	n := atomic.AddUint64(&p.counter, 1) - 1
	return idxs[n%uint64(len(idxs))]
}

func (p *RoundRobin) SelectPair(prefills, decodes []*core.Worker, _ string) (int, int) {
	pidxs := candidates(prefills)
	didxs := candidates(decodes)
	if len(pidxs) == 0 || len(didxs) == 0 {
		return -1, -1
	}
	pn := atomic.AddUint64(&p.counter, 1) - 1
	dn := atomic.AddUint64(&p.decodeCounter, 1) - 1
	return pidxs[pn%uint64(len(pidxs))], didxs[dn%uint64(len(didxs))]
}
