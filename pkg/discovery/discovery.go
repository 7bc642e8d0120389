// Package discovery ingests worker lifecycle events from an external
// service-discovery transport and applies them to a WorkerRegistry.
// The transport itself — watching a Kubernetes endpoint list, polling a
// control-plane API, consuming the cluster platform's own push stream —
// is explicitly out of scope (spec.md Non-goals); this package only
// defines the event shape a transport must produce and the side-channel
// address resolution spec.md §4.7 requires once an event arrives.
//
// Grounded on the DiscoveryConfig/ServiceDiscoveryConfig shape in
// original_source/sgl-router/src/main.rs (selector, namespace, port,
// bootstrap-port annotation) and on the teacher's pkg/events consumer
// loop shape (a channel of typed events fed into a single-writer
// apply loop), adapted from cluster-wide service events to worker
// Register/Deregister events.
package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/log"
	"github.com/rs/zerolog"
)

// EventKind distinguishes a worker coming up from going away.
type EventKind int

const (
	EventRegister EventKind = iota
	EventDeregister
)

// Event is one worker lifecycle notification, as produced by a Source.
type Event struct {
	Kind       EventKind
	URL        string
	WorkerKind core.Kind // worker role (regular/prefill/decode)

	// SideChannelAddr is the address used for the kind-specific
	// out-of-band transport (e.g. ZMQ for vLLM P2P NCCL coordination),
	// if the transport reported one. Empty means "use the worker's own
	// host:port", per spec.md §4.7's fallback rule.
	SideChannelAddr string
}

// Source is implemented by a concrete discovery transport (Kubernetes
// endpoint watch, static file poller, control-plane push stream). This
// package ships none; wiring a Source is a cmd/-level concern.
type Source interface {
	// Watch streams lifecycle events until ctx is canceled or the
	// source is exhausted. It must close events before returning.
	Watch(ctx context.Context, events chan<- Event) error
}

// SideChannelTable resolves a worker's side-channel address by worker
// URL, falling back to its HTTP address when the transport never
// reported one (spec.md §4.7). The worker kind is not part of the key.
type SideChannelTable struct {
	mu    sync.RWMutex
	byURL map[string]string
}

func NewSideChannelTable() *SideChannelTable {
	return &SideChannelTable{byURL: make(map[string]string)}
}

func (t *SideChannelTable) Set(workerURL, addr string) {
	t.mu.Lock()
	t.byURL[workerURL] = addr
	t.mu.Unlock()
}

func (t *SideChannelTable) Delete(workerURL string) {
	t.mu.Lock()
	delete(t.byURL, workerURL)
	t.mu.Unlock()
}

// Resolve returns the side-channel address for workerURL, or httpAddr
// if none was ever reported.
func (t *SideChannelTable) Resolve(workerURL, httpAddr string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if addr, ok := t.byURL[workerURL]; ok && addr != "" {
		return addr
	}
	return httpAddr
}

// Ingestor applies events from one or more Sources to a WorkerRegistry,
// deduplicating repeated Register events the way spec.md §4.7 requires
// (a duplicate add is a no-op, not an error surfaced to the transport).
type Ingestor struct {
	registry     *core.WorkerRegistry
	sideChannels *SideChannelTable
	log          zerolog.Logger
}

func NewIngestor(registry *core.WorkerRegistry, sideChannels *SideChannelTable) *Ingestor {
	return &Ingestor{
		registry:     registry,
		sideChannels: sideChannels,
		log:          log.WithComponent("discovery"),
	}
}

// Run drains a Source's event channel and applies each event until ctx
// is canceled or the source's Watch returns.
func (in *Ingestor) Run(ctx context.Context, src Source) error {
	events := make(chan Event, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- src.Watch(ctx, events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return <-errCh
			}
			in.apply(ev)
		}
	}
}

// canonicalWorkerURL resolves a bare http_addr into the canonical
// worker URL the registry keys on, prepending "http://" when the
// transport reported a scheme-less host:port (spec.md §4.7).
func canonicalWorkerURL(rawURL string) string {
	if strings.Contains(rawURL, "://") {
		return rawURL
	}
	return "http://" + rawURL
}

func (in *Ingestor) apply(ev Event) {
	switch ev.Kind {
	case EventRegister:
		workerURL := canonicalWorkerURL(ev.URL)
		w, err := in.registry.Add(workerURL, ev.WorkerKind)
		if err != nil {
			if err == core.ErrAlreadyExists {
				in.log.Debug().Str("worker", workerURL).Msg("duplicate register ignored")
				return
			}
			in.log.Warn().Str("worker", workerURL).Err(err).Msg("failed to register discovered worker")
			return
		}
		if ev.SideChannelAddr != "" {
			in.sideChannels.Set(workerURL, ev.SideChannelAddr)
		}
		w.SetSideChannel(in.sideChannels.Resolve(workerURL, w.SideChannelAddr()))
	case EventDeregister:
		workerURL := canonicalWorkerURL(ev.URL)
		in.sideChannels.Delete(workerURL)
		if err := in.registry.Remove(workerURL); err != nil && err != core.ErrNotFound {
			in.log.Warn().Str("worker", workerURL).Err(err).Msg("failed to deregister worker")
		}
	default:
		in.log.Warn().Int("kind", int(ev.Kind)).Msg("unknown discovery event kind")
	}
}
