package router

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/retry"
	"github.com/cuemby/inferoute/pkg/routererr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PDRouter implements the prefill/decode disaggregated dispatch
// protocol (spec.md §4.4, §5): a stage-1 request to the prefill worker
// with max_tokens clamped to 1 to force the KV cache transfer without
// generating tokens, followed by a stage-2 request to the decode
// worker carrying the original body, both tagged with the same
// synthesized X-Request-Id so the two workers' out-of-band transport
// (ZMQ, NIXL, etc. — outside this router's scope) can correlate them.
// Grounded on original_source/src/routers/http/vllm_pd_router.rs's
// process_vllm_two_stage_request.
type PDRouter struct {
	deps Deps
	log  zerolog.Logger
}

func NewPDRouter(deps Deps) *PDRouter {
	return &PDRouter{deps: deps, log: componentLogger("router.pd")}
}

// pdRequestID reproduces original_source's generate_vllm_request_id:
// "___prefill_addr_<addr>___decode_addr_<addr>_<uuid>", with the UUID
// hex-encoded and its separators stripped (Uuid::new_v4().to_string().replace('-', "")).
func pdRequestID(prefillAddr, decodeAddr string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("___prefill_addr_%s___decode_addr_%s_%s", prefillAddr, decodeAddr, id)
}

// Dispatch selects a (prefill, decode) worker pair and runs both
// stages, retrying the whole pair on transient failure.
func (rt *PDRouter) Dispatch(ctx context.Context, w http.ResponseWriter, method, path string, header http.Header, body []byte) error {
	fingerprint := requestFingerprint(rt.deps.Policy.NeedsRequestText(), body)
	prefillBody := clampMaxTokens(body)

	start := time.Now()
	attempts := 0
	var lastResult forwardResult

	err := rt.deps.Retry.Run(ctx, func(ctx context.Context, n int) (retry.Outcome, error) {
		attempts++
		prefills := rt.deps.Registry.Snapshot(core.KindPrefill)
		decodes := rt.deps.Registry.Snapshot(core.KindDecode)
		pi, di := rt.deps.Policy.SelectPair(prefills, decodes, fingerprint)
		if pi == -1 || di == -1 {
			return retry.OutcomeTerminal, routererr.ErrNoWorkersAvailable
		}
		prefill, decode := prefills[pi], decodes[di]

		if !rt.deps.Breaker.Admit(prefill) || !rt.deps.Breaker.Admit(decode) {
			return retry.OutcomeRetryable, fmt.Errorf("%w: prefill=%s decode=%s", routererr.ErrCircuitOpen, prefill.URL, decode.URL)
		}

		requestID := pdRequestID(prefill.SideChannelAddr(), decode.SideChannelAddr())
		reqLog := rt.log.With().Str("request_id", requestID).Logger()

		prefillResult := trackInflight(prefill, func() forwardResult {
			return rt.sendStage(ctx, prefill, method, path, header, prefillBody, requestID)
		})

		prefillOutcome := outcomeFor(prefillResult)
		rt.deps.Breaker.Record(prefill, prefillOutcome)
		rt.deps.Registry.Report(prefill.URL, prefillOutcome)

		if prefillResult.err != nil || retry.IsRetryable(prefillResult.statusCode, prefillResult.err) {
			reqLog.Warn().Str("worker", prefill.URL).Int("attempt", n).Err(prefillResult.err).Msg("prefill stage failed")
			return retry.OutcomeRetryable, fmt.Errorf("%w: prefill stage: %v", routererr.ErrUpstreamFailure, prefillResult.err)
		}

		decodeResult := trackInflight(decode, func() forwardResult {
			return rt.sendStage(ctx, decode, method, path, header, body, requestID)
		})
		lastResult = decodeResult

		decodeOutcome := outcomeFor(decodeResult)
		rt.deps.Breaker.Record(decode, decodeOutcome)
		rt.deps.Registry.Report(decode.URL, decodeOutcome)

		if decodeResult.err != nil {
			reqLog.Warn().Str("worker", decode.URL).Int("attempt", n).Err(decodeResult.err).Msg("decode stage failed")
			return retry.OutcomeRetryable, fmt.Errorf("%w: decode stage: %v", routererr.ErrUpstreamFailure, decodeResult.err)
		}
		if retry.IsRetryable(decodeResult.statusCode, nil) {
			return retry.OutcomeRetryable, fmt.Errorf("%w: decode stage status %d", routererr.ErrUpstreamFailure, decodeResult.statusCode)
		}
		return retry.OutcomeOK, nil
	})

	recordDispatch("pd", start, attempts, err)
	if err != nil {
		return err
	}

	writeUpstream(w, lastResult)
	return nil
}

func outcomeFor(r forwardResult) core.Outcome {
	if r.err != nil || retry.IsRetryable(r.statusCode, r.err) {
		return core.OutcomeFailure
	}
	return core.OutcomeSuccess
}

func (rt *PDRouter) sendStage(ctx context.Context, worker *core.Worker, method, path string, header http.Header, body []byte, requestID string) forwardResult {
	req, err := http.NewRequestWithContext(ctx, method, worker.URL+path, bytes.NewReader(body))
	if err != nil {
		return forwardResult{err: err}
	}
	copyHeaders(req.Header, header)
	stripHopByHop(req.Header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	return forward(rt.deps.Client, req)
}
