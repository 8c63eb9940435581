// Package pipeline implements the per-call interception pipeline (C6):
// given a method path, a tenant, and a raw gRPC message frame, it decides
// whether the message needs rewriting at all, and if so drives the wire
// rewriter and a fresh codec instance through one full direction's
// lifecycle.
package pipeline

import (
	"context"
	"fmt"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/descriptor"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/wire"
)

// MethodResolver resolves an RPC method path to its request/response
// message types. Satisfied by *descriptor.Store.
type MethodResolver interface {
	LookupMethod(path string) (descriptor.ServiceMethodInfo, bool)
}

// Index is the subset of payloadindex.Index the pipeline consults directly
// (the rewriter consults the rest).
type Index interface {
	MessageHasPayloads(name string) bool
}

// Pipeline wires the descriptor store, payload index, wire rewriter, and a
// codec factory into one per-call entry point.
type Pipeline struct {
	Methods  MethodResolver
	Index    Index
	Rewriter *wire.Rewriter
	Codecs   codec.Factory
}

// InterceptRequest rewrites one outbound (client-to-upstream) message
// frame for methodPath. frame is the complete gRPC-framed message as read
// off the wire (header plus body). A PassthroughCondition return means the
// frame should be forwarded completely unchanged — not an error condition
// to surface to the client.
func (p *Pipeline) InterceptRequest(ctx context.Context, methodPath, tenant string, frame []byte) ([]byte, error) {
	return p.intercept(ctx, methodPath, tenant, frame, codec.Outbound)
}

// InterceptResponse rewrites one inbound (upstream-to-client) message
// frame for methodPath.
func (p *Pipeline) InterceptResponse(ctx context.Context, methodPath, tenant string, frame []byte) ([]byte, error) {
	return p.intercept(ctx, methodPath, tenant, frame, codec.Inbound)
}

func (p *Pipeline) intercept(ctx context.Context, methodPath, tenant string, raw []byte, dir codec.Direction) ([]byte, error) {
	if tenant == "" {
		return nil, &PassthroughCondition{Reason: "missing tenant header"}
	}

	info, ok := p.Methods.LookupMethod(methodPath)
	if !ok {
		return nil, &PassthroughCondition{Reason: fmt.Sprintf("unknown method %q", methodPath)}
	}

	msgType := info.RequestType
	if dir == codec.Inbound {
		msgType = info.ResponseType
	}
	if !p.Index.MessageHasPayloads(msgType) {
		return nil, &PassthroughCondition{Reason: fmt.Sprintf("%s has no payload fields", msgType)}
	}

	frame, rest, err := SplitFrame(raw)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, &UnsupportedFraming{Reason: "multiple coalesced frames"}
	}

	tr := p.Codecs.NewCall()
	lifecycle, hasLifecycle := tr.(codec.Lifecycle)

	if hasLifecycle {
		if err := lifecycle.Init(ctx, dir); err != nil {
			return nil, err
		}
	}

	plan, err := p.Rewriter.Plan(ctx, msgType, frame.Message, dir, tenant, tr)
	if err != nil {
		if hasLifecycle {
			_ = lifecycle.Finish(ctx, dir)
		}
		return nil, err
	}

	if hasLifecycle {
		if err := lifecycle.Finish(ctx, dir); err != nil {
			return nil, err
		}
	}

	body, err := plan.Materialize()
	if err != nil {
		return nil, err
	}
	return BuildFrame(body), nil
}
