package policy

import (
	"math/rand"

	"github.com/cuemby/inferoute/pkg/core"
)

// Random selects uniformly among healthy, selectable workers.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (p *Random) Name() string            { return "random" }
func (p *Random) NeedsRequestText() bool  { return false }
func (p *Random) Reset()                  {}

func (p *Random) Select(workers []*core.Worker, _ string) int {
	idxs := candidates(workers)
	if len(idxs) == 0 {
		return -1
	}
	return idxs[rand.Intn(len(idxs))]
}

func (p *Random) SelectPair(prefills, decodes []*core.Worker, requestText string) (int, int) {
	pi := p.Select(prefills, requestText)
	di := p.Select(decodes, requestText)
	if pi == -1 || di == -1 {
		return -1, -1
	}
	return pi, di
}
