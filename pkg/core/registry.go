package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/inferoute/pkg/log"
	"github.com/cuemby/inferoute/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrAlreadyExists is returned by Add when the URL is already registered.
var ErrAlreadyExists = fmt.Errorf("worker already exists")

// ErrNotFound is returned by Remove when the URL is not registered.
var ErrNotFound = fmt.Errorf("worker not found")

// HealthCheckConfig tunes the registry's background probe loop
// (spec.md §4.1).
type HealthCheckConfig struct {
	CheckInterval    time.Duration
	TimeoutSecs      time.Duration
	SuccessThreshold int
	FailureThreshold int
	Endpoint         string // path appended to worker URL, e.g. "/health"
}

// DefaultHealthCheckConfig mirrors the teacher's health package defaults,
// adjusted to the router's own thresholds.
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		CheckInterval:    10 * time.Second,
		TimeoutSecs:      5 * time.Second,
		SuccessThreshold: 1,
		FailureThreshold: 3,
		Endpoint:         "/health",
	}
}

// WorkerRegistry holds the full worker set, partitioned by Kind.
// Writers (health loop, discovery) mutate under mu; readers take a
// reader lock for the duration of a single Snapshot call, matching the
// teacher's readers-writer discipline in pkg/worker and pkg/ingress.
type WorkerRegistry struct {
	mu      sync.RWMutex
	byURL   map[string]*Worker
	byKind  map[Kind][]*Worker
	client  *http.Client
	cfg     HealthCheckConfig
	log     zerolog.Logger
	stopCh  chan struct{}
	started bool

	onChange []func()
}

// NewWorkerRegistry creates an empty registry. httpClient is the
// shared, process-wide client used both for health probes and (by
// routers) for forwarding requests — one connection pool for the
// whole process, per spec.md §5.
func NewWorkerRegistry(httpClient *http.Client, cfg HealthCheckConfig) *WorkerRegistry {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WorkerRegistry{
		byURL:  make(map[string]*Worker),
		byKind: make(map[Kind][]*Worker),
		client: httpClient,
		cfg:    cfg,
		log:    log.WithComponent("registry"),
		stopCh: make(chan struct{}),
	}
}

// OnChange registers a callback invoked after any Add/Remove. Used by
// policies (e.g. ConsistentHash) that must rebuild derived state when
// the worker set changes.
func (r *WorkerRegistry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

func (r *WorkerRegistry) notifyChange() {
	for _, fn := range r.onChange {
		fn()
	}
}

// Add registers a new worker. Returns ErrAlreadyExists for a duplicate
// URL (idempotent add is the caller's responsibility, per spec.md
// §4.7's discovery dedup requirement).
func (r *WorkerRegistry) Add(rawURL string, kind Kind) (*Worker, error) {
	w, err := NewWorker(rawURL, kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.byURL[w.URL]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	r.byURL[w.URL] = w
	r.byKind[kind] = append(r.byKind[kind], w)
	r.mu.Unlock()

	metrics.WorkersTotal.WithLabelValues(kind.String()).Inc()
	r.log.Info().Str("worker", w.URL).Str("kind", kind.String()).Msg("worker added")
	r.notifyChange()
	return w, nil
}

// Remove deregisters a worker by URL. Health state alone never
// triggers removal (spec.md §4.1) — only explicit deregistration does.
func (r *WorkerRegistry) Remove(rawURL string) error {
	r.mu.Lock()
	w, exists := r.byURL[rawURL]
	if !exists {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.byURL, rawURL)
	list := r.byKind[w.Kind]
	for i, cand := range list {
		if cand.URL == rawURL {
			r.byKind[w.Kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	metrics.WorkersTotal.WithLabelValues(w.Kind.String()).Dec()
	metrics.WorkerInflight.DeleteLabelValues(rawURL, w.Kind.String())
	metrics.WorkerHealthy.DeleteLabelValues(rawURL, w.Kind.String())
	r.log.Info().Str("worker", rawURL).Msg("worker removed")
	r.notifyChange()
	return nil
}

// Snapshot returns a stable slice of every worker of the given kind,
// safe to range over without holding any lock — selectors see a
// consistent view for the duration of one Select call (spec.md §3).
func (r *WorkerRegistry) Snapshot(kind Kind) []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byKind[kind]
	out := make([]*Worker, len(src))
	copy(out, src)
	return out
}

// All returns a snapshot across every kind.
func (r *WorkerRegistry) All() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.byURL))
	for _, w := range r.byURL {
		out = append(out, w)
	}
	return out
}

// Get looks up a worker by URL.
func (r *WorkerRegistry) Get(rawURL string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byURL[rawURL]
	return w, ok
}

// Report applies a dispatch outcome to the named worker's health
// counters. Policy- and breaker-level outcome reporting happen
// separately (see pkg/breaker); this feeds the outcome into the same
// consecutive counters the health probe uses, so it can mark the
// worker healthy or unhealthy once the configured thresholds are met.
func (r *WorkerRegistry) Report(rawURL string, outcome Outcome) {
	w, ok := r.Get(rawURL)
	if !ok {
		return
	}
	w.RecordProbe(outcome == OutcomeSuccess, r.cfg.SuccessThreshold, r.cfg.FailureThreshold)
}

// StartHealthLoop launches the background probe goroutine. Safe to
// call once; a second call is a no-op.
func (r *WorkerRegistry) StartHealthLoop(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.healthLoop(ctx)
}

// Stop terminates the background probe goroutine.
func (r *WorkerRegistry) Stop() {
	close(r.stopCh)
}

func (r *WorkerRegistry) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.probeAll(ctx)
		}
	}
}

func (r *WorkerRegistry) probeAll(ctx context.Context) {
	for _, w := range r.All() {
		w := w
		go r.probeOne(ctx, w)
	}
}

func (r *WorkerRegistry) probeOne(ctx context.Context, w *Worker) {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.TimeoutSecs)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, w.URL+r.cfg.Endpoint, nil)
	if err != nil {
		w.RecordProbe(false, r.cfg.SuccessThreshold, r.cfg.FailureThreshold)
		return
	}

	resp, err := r.client.Do(req)
	success := err == nil && resp != nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	wasHealthy := w.Healthy()
	w.RecordProbe(success, r.cfg.SuccessThreshold, r.cfg.FailureThreshold)
	isHealthy := w.Healthy()

	healthyVal := 0.0
	if isHealthy {
		healthyVal = 1.0
	}
	metrics.WorkerHealthy.WithLabelValues(w.URL, w.Kind.String()).Set(healthyVal)

	if wasHealthy != isHealthy {
		r.log.Info().Str("worker", w.URL).Bool("healthy", isHealthy).Msg("worker health changed")
		r.notifyChange()
	}
}

// LoadSnapshot returns per-worker inflight counts across the whole
// registry, grounded on original_source's get_worker_loads delegate —
// the data is exposed here; wiring it to an HTTP endpoint stays external.
func (r *WorkerRegistry) LoadSnapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, w := range r.All() {
		out[w.URL] = w.Inflight()
	}
	return out
}
