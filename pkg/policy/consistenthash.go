package policy

import (
	"sync"

	"github.com/cuemby/inferoute/pkg/core"
)

// ConsistentHash is the session-sticky policy: requests sharing a
// routing key (session id, user id, or full text) land on the same
// worker as long as the worker set is stable (spec.md §4.2, Testable
// Property 1). Grounded on
// original_source/tests/test_consistent_hash_policy.rs for the key
// priority, DP-rank handling, and select_worker_pair semantics.
type ConsistentHash struct {
	virtualNodes int

	mu    sync.Mutex
	rings map[string]*hashRing // keyed by ringSignature(urls)
}

func NewConsistentHash(virtualNodes int) *ConsistentHash {
	if virtualNodes <= 0 {
		virtualNodes = 160
	}
	return &ConsistentHash{
		virtualNodes: virtualNodes,
		rings:        make(map[string]*hashRing),
	}
}

func (p *ConsistentHash) Name() string           { return "consistent_hash" }
func (p *ConsistentHash) NeedsRequestText() bool { return true }

// Reset clears every cached ring; the next Select rebuilds from
// scratch. Safe to call at any time (spec.md §9 Open Question).
func (p *ConsistentHash) Reset() {
	p.mu.Lock()
	p.rings = make(map[string]*hashRing)
	p.mu.Unlock()
}

func (p *ConsistentHash) ringFor(workers []*core.Worker) *hashRing {
	urls := make([]string, len(workers))
	byURL := make(map[string]*core.Worker, len(workers))
	for i, w := range workers {
		urls[i] = w.URL
		byURL[w.URL] = w
	}
	sig := ringSignature(urls)

	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rings[sig]; ok {
		return r
	}
	r := buildRing(urls, p.virtualNodes)
	// Rebuild (don't accumulate stale rings forever): one cached ring
	// per distinct worker-set signature is enough for the steady state
	// of a running process, but prune aggressively on growth.
	if len(p.rings) > 8 {
		p.rings = make(map[string]*hashRing)
	}
	p.rings[sig] = r
	return r
}

func (p *ConsistentHash) Select(workers []*core.Worker, requestText string) int {
	if len(workers) == 0 {
		return -1
	}
	key := routingKey(requestText)
	ring := p.ringFor(workers)
	hash := hashKey(key)

	byURL := make(map[string]int, len(workers))
	for i, w := range workers {
		byURL[w.URL] = i
	}

	for _, url := range ring.walk(hash) {
		idx, ok := byURL[url]
		if !ok {
			continue
		}
		if workers[idx].Selectable() {
			return idx
		}
	}
	return -1
}

func (p *ConsistentHash) SelectPair(prefills, decodes []*core.Worker, requestText string) (int, int) {
	pi := p.Select(prefills, requestText)
	di := p.Select(decodes, requestText)
	if pi == -1 || di == -1 {
		return -1, -1
	}
	return pi, di
}
