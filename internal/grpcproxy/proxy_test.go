package grpcproxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/descriptor"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/pipeline"
)

// newEchoBackend starts an h2c backend that echoes the request body back
// with a fixed header, the same cleartext HTTP/2 fabric the proxy itself
// dials out over.
func newEchoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	handler := h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-echoed-path", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}), &http2.Server{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func backendAddr(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func TestServeHTTPForwardsNonGRPCRequestsUntouched(t *testing.T) {
	backend := newEchoBackend(t)
	p := New(&pipeline.Pipeline{Methods: descriptor.New(), Index: noPayloadsIndex{}}, backendAddr(t, backend), nil)

	req := httptest.NewRequest(http.MethodPost, "/plain.Service/Call", strings.NewReader("raw body"))
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "raw body", rec.Body.String())
	require.Equal(t, "/plain.Service/Call", rec.Header().Get("x-echoed-path"))
}

func TestServeHTTPPassthroughOnUnknownGRPCMethod(t *testing.T) {
	backend := newEchoBackend(t)
	p := New(&pipeline.Pipeline{Methods: descriptor.New(), Index: noPayloadsIndex{}}, backendAddr(t, backend), nil)

	framed := pipeline.BuildFrame([]byte("unary-body"))
	req := httptest.NewRequest(http.MethodPost, "/unknown.Service/Call", strings.NewReader(string(framed)))
	req.Header.Set("content-type", "application/grpc")
	req.Header.Set(TenantHeader, "default")
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(framed), rec.Body.String())
}

type noPayloadsIndex struct{}

func (noPayloadsIndex) MessageHasPayloads(string) bool                         { return false }
func (noPayloadsIndex) IsPayload(string, int32) bool                          { return false }
func (noPayloadsIndex) DirectTargetType(string, int32) (string, bool)         { return "", false }
func (noPayloadsIndex) HasTransitivePayloads(string, int32) bool              { return false }
func (noPayloadsIndex) TransitiveTargetType(string, int32) (string, bool)     { return "", false }
