package breaker

import (
	"testing"
	"time"

	"github.com/cuemby/inferoute/pkg/core"
	"github.com/stretchr/testify/assert"
)

func newTestWorker(t *testing.T, url string) *core.Worker {
	t.Helper()
	w, err := core.NewWorker(url, core.KindRegular)
	assert.NoError(t, err)
	return w
}

// TestBreakerOpensAfterFailureThreshold tests the closed-to-open transition.
func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := New(cfg)
	w := newTestWorker(t, "http://10.0.0.1:8000")

	for i := 0; i < 2; i++ {
		assert.True(t, b.Admit(w), "expected admit before threshold reached, attempt %d", i)
		b.Record(w, core.OutcomeFailure)
	}
	assert.Equal(t, core.CircuitClosed, b.State(w.URL))

	b.Record(w, core.OutcomeFailure)
	assert.Equal(t, core.CircuitOpen, b.State(w.URL))
	assert.False(t, b.Admit(w), "expected admit to refuse while open and before timeout elapses")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := New(cfg)
	w := newTestWorker(t, "http://10.0.0.1:8000")

	b.Record(w, core.OutcomeFailure)
	b.Record(w, core.OutcomeFailure)
	b.Record(w, core.OutcomeSuccess)
	b.Record(w, core.OutcomeFailure)
	b.Record(w, core.OutcomeFailure)

	assert.Equal(t, core.CircuitClosed, b.State(w.URL), "a success should reset the failure streak")
}

func TestBreakerHalfOpenAllowsSingleProbeAndCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.TimeoutDuration = time.Millisecond
	b := New(cfg)
	w := newTestWorker(t, "http://10.0.0.1:8000")

	b.Record(w, core.OutcomeFailure)
	assert.Equal(t, core.CircuitOpen, b.State(w.URL))

	time.Sleep(2 * time.Millisecond)

	assert.True(t, b.Admit(w), "expected first probe admitted once timeout elapses")
	assert.False(t, b.Admit(w), "expected a second concurrent probe refused while one is in flight")
	assert.Equal(t, core.CircuitHalfOpen, b.State(w.URL))

	b.Record(w, core.OutcomeSuccess)
	assert.Equal(t, core.CircuitHalfOpen, b.State(w.URL), "still half-open before success threshold reached")
	b.Record(w, core.OutcomeSuccess)
	assert.Equal(t, core.CircuitClosed, b.State(w.URL))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.TimeoutDuration = time.Millisecond
	b := New(cfg)
	w := newTestWorker(t, "http://10.0.0.1:8000")

	b.Record(w, core.OutcomeFailure)
	time.Sleep(2 * time.Millisecond)
	b.Admit(w)

	b.Record(w, core.OutcomeFailure)
	assert.Equal(t, core.CircuitOpen, b.State(w.URL), "expected reopen after a failed half-open probe")
}

func TestBreakerDisabledAlwaysAdmits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = true
	b := New(cfg)
	w := newTestWorker(t, "http://10.0.0.1:8000")

	for i := 0; i < 10; i++ {
		b.Record(w, core.OutcomeFailure)
	}
	assert.True(t, b.Admit(w), "a disabled breaker should always admit")
	assert.Equal(t, core.CircuitClosed, b.State(w.URL))
}
