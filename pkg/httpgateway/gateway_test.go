package httpgateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/inferoute/pkg/routererr"
	"github.com/stretchr/testify/assert"
)

type fakeDispatcher struct {
	err        error
	gotMethod  string
	gotPath    string
	gotBody    []byte
	writeToRec func(w http.ResponseWriter)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, w http.ResponseWriter, method, path string, header http.Header, body []byte) error {
	f.gotMethod = method
	f.gotPath = path
	f.gotBody = body
	if f.err != nil {
		return f.err
	}
	if f.writeToRec != nil {
		f.writeToRec(w)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	return nil
}

func TestGatewayServeHTTPForwardsMethodPathAndBody(t *testing.T) {
	fd := &fakeDispatcher{}
	gw := New(fd)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	assert.Equal(t, http.MethodPost, fd.gotMethod)
	assert.Equal(t, "/v1/chat/completions", fd.gotPath)
	assert.Equal(t, `{"a":1}`, string(fd.gotBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestGatewayServeHTTPWritesStatusForDispatchError tests the routererr-to-HTTP-status mapping.
func TestGatewayServeHTTPWritesStatusForDispatchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", routererr.ErrInvalidRequest, http.StatusBadRequest},
		{"no workers", routererr.ErrNoWorkersAvailable, http.StatusServiceUnavailable},
		{"circuit open", routererr.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"timeout", routererr.ErrTimeout, http.StatusGatewayTimeout},
		{"context deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"upstream failure", routererr.ErrUpstreamFailure, http.StatusBadGateway},
		{"config invalid", routererr.ErrConfigInvalid, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := &fakeDispatcher{err: tt.err}
			gw := New(fd)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			gw.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestReadBodyReturnsFullBodyAndCloses(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello world"))
	body, err := ReadBody(req)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}
