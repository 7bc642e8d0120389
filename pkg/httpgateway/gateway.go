// Package httpgateway is the thin HTTP surface cmd/inferoute mounts on
// its listener. It only translates an *http.Request into a dispatch
// call and a routererr sentinel into a status code — the listener
// itself, CORS, payload-size limits, and TLS termination are the
// external-boundary concerns spec.md's Non-goals name and stay out of
// this package, grounded on the same separation
// cuemby-warren/pkg/ingress/proxy.go draws between handleRequest (thin)
// and the HTTP server construction that owns it (left to cmd/ here,
// rather than bundled into this package).
package httpgateway

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cuemby/inferoute/pkg/log"
	"github.com/cuemby/inferoute/pkg/routererr"
	"github.com/rs/zerolog"
)

// Dispatcher is satisfied by *router.RegularRouter and *router.PDRouter.
type Dispatcher interface {
	Dispatch(ctx context.Context, w http.ResponseWriter, method, path string, header http.Header, body []byte) error
}

// Gateway adapts one Dispatcher (selected once at startup, per
// spec.md §4.4's cluster-wide PD-mode flag) onto an http.Handler.
type Gateway struct {
	dispatcher Dispatcher
	log        zerolog.Logger
}

func New(dispatcher Dispatcher) *Gateway {
	return &Gateway{dispatcher: dispatcher, log: log.WithComponent("httpgateway")}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := ReadBody(r)
	if err != nil {
		g.writeError(w, r, routererr.ErrInvalidRequest)
		return
	}

	if err := g.dispatcher.Dispatch(r.Context(), w, r.Method, r.URL.Path, r.Header, body); err != nil {
		g.writeError(w, r, err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	g.log.Error().Str("path", r.URL.Path).Int("status", status).Err(err).Msg("dispatch error")
	http.Error(w, err.Error(), status)
}

// statusFor maps a routererr sentinel to the HTTP status an
// OpenAI-compatible client expects to see.
func statusFor(err error) int {
	switch {
	case errors.Is(err, routererr.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, routererr.ErrNoWorkersAvailable), errors.Is(err, routererr.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, routererr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, routererr.ErrConfigInvalid):
		return http.StatusInternalServerError
	case errors.Is(err, routererr.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ReadBody reads and closes r.Body, the one piece of request-shape
// handling every dispatcher needs before it can fingerprint or forward
// a request.
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
