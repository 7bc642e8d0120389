package router

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/retry"
	"github.com/cuemby/inferoute/pkg/routererr"
	"github.com/rs/zerolog"
)

// RegularRouter dispatches a single request to one selected worker,
// wrapped in the retry controller. Used whenever the cluster is not
// running in prefill/decode disaggregated mode (spec.md §4.4).
type RegularRouter struct {
	deps Deps
	log  zerolog.Logger
}

func NewRegularRouter(deps Deps) *RegularRouter {
	return &RegularRouter{deps: deps, log: componentLogger("router.regular")}
}

// Dispatch selects a worker and forwards method/path/body/header to it,
// retrying on transient failures and writing the final response to w.
// On failure it writes nothing to w and returns the error.
func (rt *RegularRouter) Dispatch(ctx context.Context, w http.ResponseWriter, method, path string, header http.Header, body []byte) error {
	fingerprint := requestFingerprint(rt.deps.Policy.NeedsRequestText(), body)

	start := time.Now()
	attempts := 0
	var lastResult forwardResult

	err := rt.deps.Retry.Run(ctx, func(ctx context.Context, n int) (retry.Outcome, error) {
		attempts++
		workers := rt.deps.Registry.Snapshot(core.KindRegular)
		idx := rt.deps.Policy.Select(workers, fingerprint)
		if idx == -1 {
			return retry.OutcomeTerminal, routererr.ErrNoWorkersAvailable
		}
		worker := workers[idx]

		if !rt.deps.Breaker.Admit(worker) {
			return retry.OutcomeRetryable, fmt.Errorf("%w: %s", routererr.ErrCircuitOpen, worker.URL)
		}

		result := trackInflight(worker, func() forwardResult {
			return rt.dispatchOnce(ctx, worker, method, path, header, body)
		})
		lastResult = result

		outcome := outcomeFor(result)
		rt.deps.Breaker.Record(worker, outcome)
		rt.deps.Registry.Report(worker.URL, outcome)

		if result.err != nil {
			rt.log.Warn().Str("worker", worker.URL).Int("attempt", n).Err(result.err).Msg("dispatch failed")
			return retry.OutcomeRetryable, fmt.Errorf("%w: %v", routererr.ErrUpstreamFailure, result.err)
		}
		if retry.IsRetryable(result.statusCode, nil) {
			return retry.OutcomeRetryable, fmt.Errorf("%w: status %d", routererr.ErrUpstreamFailure, result.statusCode)
		}
		return retry.OutcomeOK, nil
	})

	recordDispatch("regular", start, attempts, err)
	if err != nil {
		return err
	}

	writeUpstream(w, lastResult)
	return nil
}

func (rt *RegularRouter) dispatchOnce(ctx context.Context, worker *core.Worker, method, path string, header http.Header, body []byte) forwardResult {
	req, err := http.NewRequestWithContext(ctx, method, worker.URL+path, bytes.NewReader(body))
	if err != nil {
		return forwardResult{err: err}
	}
	copyHeaders(req.Header, header)
	stripHopByHop(req.Header)
	return forward(rt.deps.Client, req)
}
