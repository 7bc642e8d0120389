package policy

import (
	"testing"

	"github.com/cuemby/inferoute/pkg/core"
)

func healthyWorker(t *testing.T, url string) *core.Worker {
	t.Helper()
	w, err := core.NewWorker(url, core.KindRegular)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.RecordProbe(true, 1, 3)
	return w
}

func TestRandomSelectReturnsMinusOneWithNoCandidates(t *testing.T) {
	p := NewRandom()
	if got := p.Select(nil, ""); got != -1 {
		t.Fatalf("expected -1 with no workers, got %d", got)
	}
}

func TestRandomSelectOnlyReturnsSelectableIndices(t *testing.T) {
	p := NewRandom()
	unhealthy, _ := core.NewWorker("http://10.0.0.1:8000", core.KindRegular)
	healthy := healthyWorker(t, "http://10.0.0.2:8000")
	workers := []*core.Worker{unhealthy, healthy}

	for i := 0; i < 50; i++ {
		got := p.Select(workers, "")
		if got != 1 {
			t.Fatalf("expected only the selectable index 1, got %d", got)
		}
	}
}

func TestRandomSelectDistributesAcrossAllCandidates(t *testing.T) {
	p := NewRandom()
	workers := []*core.Worker{
		healthyWorker(t, "http://10.0.0.1:8000"),
		healthyWorker(t, "http://10.0.0.2:8000"),
		healthyWorker(t, "http://10.0.0.3:8000"),
	}

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[p.Select(workers, "")] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all three workers to be selected at least once over 200 draws, saw %d", len(seen))
	}
}

func TestRandomSelectPairFailsWhenEitherSideEmpty(t *testing.T) {
	p := NewRandom()
	decodes := []*core.Worker{healthyWorker(t, "http://10.0.0.1:8000")}
	if pi, di := p.SelectPair(nil, decodes, ""); pi != -1 || di != -1 {
		t.Fatalf("expected (-1, -1) with no prefill candidates, got (%d, %d)", pi, di)
	}
}
