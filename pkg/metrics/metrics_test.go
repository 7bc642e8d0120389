package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorsReturnsEveryDefinedCollector(t *testing.T) {
	cols := Collectors()
	if len(cols) != 8 {
		t.Fatalf("expected 8 collectors, got %d", len(cols))
	}
	for i, c := range cols {
		if c == nil {
			t.Fatalf("collector at index %d is nil", i)
		}
	}
}

func TestCollectorsRegisterWithoutDuplicateDescriptors(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("failed to register collector: %v", err)
		}
	}
}
