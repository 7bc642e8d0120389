// Package router implements the two dispatch strategies that put a
// selected worker on the wire: RegularRouter, a single-hop forward, and
// PDRouter, the two-stage prefill/decode protocol (spec.md §4.4, §5).
// Grounded on the proxying shape of
// cuemby-warren/pkg/ingress/proxy.go's handleRequest/proxyRequest
// (director customization, structured error responses) generalized
// from httputil.ReverseProxy's single upstream to a worker-registry- and
// policy-driven target, and on original_source's
// vllm_pd_router.rs two_stage_request for the PD wire protocol.
package router

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/inferoute/pkg/breaker"
	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/log"
	"github.com/cuemby/inferoute/pkg/metrics"
	"github.com/cuemby/inferoute/pkg/policy"
	"github.com/cuemby/inferoute/pkg/retry"
	"github.com/cuemby/inferoute/pkg/routererr"
	"github.com/rs/zerolog"
)

// hopByHopHeaders are stripped before forwarding a response body back
// to the caller, the set RFC 7230 §6.1 names plus the two the teacher's
// proxy already special-cases (Content-Length changes once a body is
// re-read into memory; Transfer-Encoding is invalidated the same way).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

func stripHopByHop(h http.Header) {
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}

func copyHeaders(dst http.Header, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// Deps bundles the collaborators both router flavors share.
type Deps struct {
	Client   *http.Client
	Registry *core.WorkerRegistry
	Policy   policy.Engine
	Breaker  *breaker.Breaker
	Retry    *retry.Controller
}

// forwardResult carries the outcome of a single HTTP round trip to a
// worker, used to classify the attempt for both the breaker and the
// retry controller.
type forwardResult struct {
	statusCode int
	header     http.Header
	body       []byte
	err        error
}

// forward issues req against client and buffers the full response body.
// Buffering (rather than streaming straight through) mirrors what the
// PD protocol requires at the prefill stage regardless, and keeps the
// retry path simple: a half-written streamed response can't be retried.
func forward(client *http.Client, req *http.Request) forwardResult {
	resp, err := client.Do(req)
	if err != nil {
		return forwardResult{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return forwardResult{statusCode: resp.StatusCode, err: err}
	}
	return forwardResult{statusCode: resp.StatusCode, header: resp.Header, body: body}
}

// writeUpstream copies a forwardResult onto the caller's
// http.ResponseWriter, stripping hop-by-hop headers.
func writeUpstream(w http.ResponseWriter, r forwardResult) {
	h := w.Header()
	copyHeaders(h, r.header)
	stripHopByHop(h)
	w.WriteHeader(r.statusCode)
	_, _ = w.Write(r.body)
}

// clampMaxTokens returns a copy of body with max_tokens (and, if
// present, max_completion_tokens) forced to 1 — the prefill-only
// request shape from original_source's prepare_prefill_request.
func clampMaxTokens(body []byte) []byte {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}
	payload["max_tokens"] = 1
	if _, ok := payload["max_completion_tokens"]; ok {
		payload["max_completion_tokens"] = 1
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return out
}

func requestFingerprint(policyNeedsText bool, body []byte) string {
	if !policyNeedsText {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func componentLogger(name string) zerolog.Logger {
	return log.WithComponent(name)
}

func withDeadline(cfg time.Duration) time.Duration {
	if cfg <= 0 {
		return 30 * time.Second
	}
	return cfg
}

// trackInflight increments worker's inflight counter (and the matching
// gauge) for the duration of fn.
func trackInflight(w *core.Worker, fn func() forwardResult) forwardResult {
	w.IncInflight()
	metrics.WorkerInflight.WithLabelValues(w.URL, w.Kind.String()).Inc()
	defer func() {
		w.DecInflight()
		metrics.WorkerInflight.WithLabelValues(w.URL, w.Kind.String()).Dec()
	}()
	return fn()
}

// recordDispatch updates the dispatch-level counters once a Dispatch
// call (regular or PD) has fully resolved.
func recordDispatch(routerName string, start time.Time, attempts int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.DispatchTotal.WithLabelValues(routerName, outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(routerName).Observe(time.Since(start).Seconds())
	if attempts > 1 {
		metrics.RetryAttemptsTotal.WithLabelValues(routerName).Add(float64(attempts - 1))
	}
}
