package httpgateway

import (
	"net/http"
	"time"

	"github.com/cuemby/inferoute/pkg/log"
	"github.com/rs/zerolog"
)

// AdmissionConfig bounds how much concurrent and queued work the gate
// admits before shedding load (spec.md §5). MaxConcurrent <= 0 disables
// admission control and NewGate returns next unwrapped.
type AdmissionConfig struct {
	MaxConcurrent int
	QueueSize     int
	QueueTimeout  time.Duration
}

// Gate wraps an http.Handler with bounded-concurrency admission
// control: a buffered channel sized MaxConcurrent is the running
// semaphore, and a second buffered channel sized QueueSize bounds how
// many requests may wait for a free slot. A request that can't even
// join the queue, or that waits longer than QueueTimeout for a slot,
// gets a 429 before it ever reaches next.
type Gate struct {
	next    http.Handler
	sem     chan struct{}
	waiting chan struct{}
	timeout time.Duration
	log     zerolog.Logger
}

// NewGate wraps next with admission control per cfg. A non-positive
// MaxConcurrent means unbounded admission, matching the config's
// default of "backpressure off."
func NewGate(next http.Handler, cfg AdmissionConfig) http.Handler {
	if cfg.MaxConcurrent <= 0 {
		return next
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	return &Gate{
		next:    next,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		waiting: make(chan struct{}, queueSize),
		timeout: cfg.QueueTimeout,
		log:     log.WithComponent("httpgateway.admission"),
	}
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
		g.next.ServeHTTP(w, r)
		return
	default:
	}

	select {
	case g.waiting <- struct{}{}:
	default:
		g.reject(w, "queue full")
		return
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.sem <- struct{}{}:
		<-g.waiting
	case <-timer.C:
		<-g.waiting
		g.reject(w, "queue timeout")
		return
	case <-r.Context().Done():
		<-g.waiting
		return
	}
	defer func() { <-g.sem }()

	g.next.ServeHTTP(w, r)
}

func (g *Gate) reject(w http.ResponseWriter, reason string) {
	g.log.Warn().Str("reason", reason).Msg("request rejected by admission gate")
	http.Error(w, "too many concurrent requests", http.StatusTooManyRequests)
}
