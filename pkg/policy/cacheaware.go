package policy

import (
	"time"

	"github.com/cuemby/inferoute/pkg/core"
)

// CacheAwareConfig tunes the CacheAware policy (spec.md §3 PolicyConfig
// variant, §4.2).
type CacheAwareConfig struct {
	CacheThreshold       float64
	BalanceAbsThreshold  int64
	BalanceRelThreshold  float64
	EvictionInterval     time.Duration
	MaxTreeSize          int
}

func DefaultCacheAwareConfig() CacheAwareConfig {
	return CacheAwareConfig{
		CacheThreshold:      0.5,
		BalanceAbsThreshold: 64,
		BalanceRelThreshold: 1.5,
		EvictionInterval:    time.Minute,
		MaxTreeSize:         1 << 16,
	}
}

// CacheAware routes requests sharing a long common prefix to the
// worker(s) that already served it, falling back to the globally
// least-loaded worker when no prefix match exists or the matched
// workers are imbalanced (spec.md §4.2, Testable Property 4). No
// teacher analogue exists for prefix-aware routing; built fresh in the
// teacher's idiom (dedicated mutex owned by the tree, not
// the policy, matching pkg/ingress's separation of Router/LoadBalancer
// state).
type CacheAware struct {
	cfg  CacheAwareConfig
	tree *PrefixTree
}

func NewCacheAware(cfg CacheAwareConfig) *CacheAware {
	ca := &CacheAware{
		cfg:  cfg,
		tree: NewPrefixTree(cfg.MaxTreeSize),
	}
	if cfg.EvictionInterval > 0 {
		ca.tree.StartEvictionLoop(cfg.EvictionInterval)
	}
	return ca
}

func (p *CacheAware) Name() string           { return "cache_aware" }
func (p *CacheAware) NeedsRequestText() bool { return true }

func (p *CacheAware) Reset() {
	p.tree.Reset()
}

func (p *CacheAware) Select(workers []*core.Worker, requestText string) int {
	idx := p.selectIndex(workers, requestText)
	if idx != -1 {
		p.tree.Insert(requestText, workers[idx].URL)
	}
	return idx
}

func (p *CacheAware) selectIndex(workers []*core.Worker, requestText string) int {
	idxs := candidates(workers)
	if len(idxs) == 0 {
		return -1
	}

	if len(requestText) == 0 {
		return leastLoaded(workers, idxs)
	}

	matchLen, stamped := p.tree.Match(requestText)
	ratio := float64(matchLen) / float64(len(requestText))

	if ratio >= p.cfg.CacheThreshold && len(stamped) > 0 {
		var matched []int
		for _, i := range idxs {
			if _, ok := stamped[workers[i].URL]; ok {
				matched = append(matched, i)
			}
		}
		if len(matched) > 0 && p.balanced(workers, matched) {
			return leastLoaded(workers, matched)
		}
	}

	return leastLoaded(workers, idxs)
}

// balanced reports whether the load spread among matched candidates is
// within the configured thresholds (spec.md §4.2's OR condition).
func (p *CacheAware) balanced(workers []*core.Worker, idxs []int) bool {
	var minLoad, maxLoad int64
	for i, idx := range idxs {
		load := workers[idx].Inflight()
		if i == 0 || load < minLoad {
			minLoad = load
		}
		if i == 0 || load > maxLoad {
			maxLoad = load
		}
	}
	if maxLoad-minLoad <= p.cfg.BalanceAbsThreshold {
		return true
	}
	return float64(maxLoad) <= p.cfg.BalanceRelThreshold*float64(minLoad)
}

func (p *CacheAware) SelectPair(prefills, decodes []*core.Worker, requestText string) (int, int) {
	pi := p.Select(prefills, requestText)
	di := p.Select(decodes, requestText)
	if pi == -1 || di == -1 {
		return -1, -1
	}
	return pi, di
}
