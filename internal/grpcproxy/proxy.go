// Package grpcproxy is the HTTP/2 fabric (A2): a thin reverse proxy that
// terminates client gRPC connections, decides whether a call needs
// rewriting, and hands the raw message frame to the interception pipeline
// before forwarding to the backend. It is intentionally minimal — no
// connection pooling, retries, or streaming-call support — everything the
// core cares about lives in internal/pipeline.
package grpcproxy

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"google.golang.org/grpc/status"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/pipeline"
)

// TenantHeader is the metadata key carrying the tenant identifier on every
// intercepted call (temporal.api's namespace header).
const TenantHeader = "temporal-namespace"

const grpcContentTypePrefix = "application/grpc"

// Proxy is the HTTP/2 handler that fronts a single backend address.
type Proxy struct {
	Pipeline *pipeline.Pipeline
	Backend  string
	Logger   *zap.Logger

	client *http.Client
}

// New returns a Proxy ready to serve, dialing backend over HTTP/2 cleartext
// (h2c) — Temporal's own gRPC services are typically reached this way
// inside a cluster, so there is no TLS handshake to perform against it.
func New(p *pipeline.Pipeline, backend string, logger *zap.Logger) *Proxy {
	return &Proxy{
		Pipeline: p,
		Backend:  backend,
		Logger:   logger,
		client: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
	}
}

// ServeHTTP implements http.Handler. Only unary request/response framing is
// supported: the whole request and response bodies are buffered, split into
// one gRPC frame each, rewritten, and re-framed. A call whose body does not
// look like gRPC at all (wrong content-type) is forwarded untouched without
// engaging the pipeline.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.Header.Get("content-type"), grpcContentTypePrefix) {
		p.forwardRaw(w, r)
		return
	}

	tenant := r.Header.Get(TenantHeader)
	methodPath := r.URL.Path

	reqBody, err := io.ReadAll(r.Body)
	if err != nil {
		p.writeGRPCError(w, status.Convert(err))
		return
	}

	rewrittenReq, err := p.Pipeline.InterceptRequest(r.Context(), methodPath, tenant, reqBody)
	switch {
	case err == nil:
		reqBody = rewrittenReq
	case isPassthrough(err):
		// forward reqBody unchanged
	default:
		p.logFailure("request", methodPath, err)
		p.writeGRPCError(w, pipeline.ToStatus(err))
		return
	}

	backendReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "http://"+p.Backend+methodPath, strings.NewReader(string(reqBody)))
	if err != nil {
		p.writeGRPCError(w, status.Convert(err))
		return
	}
	backendReq.Header = r.Header.Clone()
	backendReq.ContentLength = int64(len(reqBody))

	resp, err := p.client.Do(backendReq)
	if err != nil {
		p.writeGRPCError(w, status.Convert(err))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.writeGRPCError(w, status.Convert(err))
		return
	}

	rewrittenResp, err := p.Pipeline.InterceptResponse(r.Context(), methodPath, tenant, respBody)
	switch {
	case err == nil:
		respBody = rewrittenResp
	case isPassthrough(err):
		// forward respBody unchanged
	default:
		p.logFailure("response", methodPath, err)
		p.writeGRPCError(w, pipeline.ToStatus(err))
		return
	}

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.Header().Set("content-length", strconv.Itoa(len(respBody)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
	for k, v := range resp.Trailer {
		w.Header()[http.TrailerPrefix+k] = v
	}
}

func (p *Proxy) forwardRaw(w http.ResponseWriter, r *http.Request) {
	backendReq, err := http.NewRequestWithContext(r.Context(), r.Method, "http://"+p.Backend+r.URL.Path, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	backendReq.Header = r.Header.Clone()
	resp, err := p.client.Do(backendReq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// writeGRPCError writes an empty gRPC message body with grpc-status/
// grpc-message trailers carrying st, the shape a client expects for a
// call that failed before any response message was produced.
func (p *Proxy) writeGRPCError(w http.ResponseWriter, st *status.Status) {
	w.Header().Set("content-type", grpcContentTypePrefix+"+proto")
	w.Header().Set("trailer", "grpc-status, grpc-message")
	w.WriteHeader(http.StatusOK)
	w.Header().Set("grpc-status", strconv.Itoa(int(st.Code())))
	w.Header().Set("grpc-message", st.Message())
}

func (p *Proxy) logFailure(direction, method string, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.Error("pipeline rewrite failed",
		zap.String("direction", direction),
		zap.String("method", method),
		zap.Error(err),
	)
}

func isPassthrough(err error) bool {
	_, ok := err.(*pipeline.PassthroughCondition)
	return ok
}
