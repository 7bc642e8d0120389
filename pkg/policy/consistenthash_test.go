package policy

import (
	"testing"

	"github.com/cuemby/inferoute/pkg/core"
)

func TestConsistentHashIsStickyForTheSameKey(t *testing.T) {
	p := NewConsistentHash(0)
	workers := []*core.Worker{
		healthyWorker(t, "http://10.0.0.1:8000"),
		healthyWorker(t, "http://10.0.0.2:8000"),
		healthyWorker(t, "http://10.0.0.3:8000"),
	}

	body := `{"user": "alice", "prompt": "hello"}`
	first := p.Select(workers, body)
	if first == -1 {
		t.Fatal("expected a selectable worker")
	}
	for i := 0; i < 20; i++ {
		if got := p.Select(workers, body); got != first {
			t.Fatalf("expected sticky selection %d, got %d on attempt %d", first, got, i)
		}
	}
}

func TestConsistentHashSessionIDTakesPriorityOverUser(t *testing.T) {
	p := NewConsistentHash(0)
	workers := []*core.Worker{
		healthyWorker(t, "http://10.0.0.1:8000"),
		healthyWorker(t, "http://10.0.0.2:8000"),
	}

	bodyA := `{"session_params": {"session_id": "s1"}, "user": "alice"}`
	bodyB := `{"session_params": {"session_id": "s1"}, "user": "bob"}`

	if p.Select(workers, bodyA) != p.Select(workers, bodyB) {
		t.Fatal("expected matching session_id to route identically regardless of differing user field")
	}
}

func TestConsistentHashFallsBackToFullBodyWithoutSessionOrUser(t *testing.T) {
	p := NewConsistentHash(0)
	workers := []*core.Worker{
		healthyWorker(t, "http://10.0.0.1:8000"),
		healthyWorker(t, "http://10.0.0.2:8000"),
	}

	body := "not even json"
	first := p.Select(workers, body)
	if got := p.Select(workers, body); got != first {
		t.Fatalf("expected identical raw body to route identically, got %d vs %d", got, first)
	}
}

func TestConsistentHashSkipsUnselectableWorkerOnRing(t *testing.T) {
	p := NewConsistentHash(0)
	unhealthy, _ := core.NewWorker("http://10.0.0.1:8000", core.KindRegular)
	workers := []*core.Worker{
		unhealthy,
		healthyWorker(t, "http://10.0.0.2:8000"),
	}

	if got := p.Select(workers, "any text"); got != 1 {
		t.Fatalf("expected the only selectable worker (index 1), got %d", got)
	}
}

func TestConsistentHashResetDropsCachedRings(t *testing.T) {
	p := NewConsistentHash(0)
	workers := []*core.Worker{healthyWorker(t, "http://10.0.0.1:8000")}
	p.Select(workers, "x")
	if len(p.rings) != 1 {
		t.Fatalf("expected one cached ring, got %d", len(p.rings))
	}
	p.Reset()
	if len(p.rings) != 0 {
		t.Fatalf("expected Reset to clear cached rings, got %d", len(p.rings))
	}
}
