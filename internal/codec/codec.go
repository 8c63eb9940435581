// Package codec defines the pluggable per-payload transformer contract
// (C4) that the wire rewriter invokes for every payload field it
// encounters, and the per-call lifecycle a codec may optionally implement
// to batch external I/O at call boundaries.
package codec

import "context"

// Direction is the half of the call a transform runs on: outbound for the
// request leaving toward upstream, inbound for the response arriving back
// toward the client.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Context carries everything a codec needs to make a per-payload decision.
// FieldPath is a human-readable hierarchical locator: the fully-qualified
// type name of the rewritten message followed by the dot-separated field
// names leading to the payload, with "[]" appended for an entry of a
// repeated payload wrapper, such as
// "temporal.api.workflowservice.v1.StartWorkflowExecutionRequest.input[]".
// A field whose descriptor is not known appears as "field_<number>". It
// has no semantic meaning to the core and exists purely for codec-side
// policy.
type Context struct {
	Tenant    string
	FieldPath string
}

// LifecycleError reports that Transform was invoked outside an open
// lifecycle scope, or that Init/Finish were invoked out of sequence.
type LifecycleError struct {
	Msg string
}

func (e *LifecycleError) Error() string { return "codec: " + e.Msg }
func (e *LifecycleError) Kind() string  { return "LifecycleError" }

// Error wraps any failure a codec surfaces while transforming a payload or
// performing its batched I/O (external store unreachable, decryption
// failure, a missing identifier during inbound resolution, ...). Unavailable
// distinguishes "the external collaborator could not be reached" (mapped to
// codes.Unavailable) from every other codec failure (mapped to
// codes.Internal) — see internal/pipeline.ToStatus.
type Error struct {
	Err         error
	Unavailable bool
}

func (e *Error) Error() string { return "codec: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Kind() string  { return "CodecError" }

// Transformer transforms one serialized Payload submessage at a time. Every
// codec implements this; it is the minimum the wire rewriter requires.
type Transformer interface {
	Transform(ctx context.Context, pctx Context, dir Direction, body []byte) ([]byte, error)
}

// Lifecycle is the optional capability a "scoped" codec implements to
// bracket a call with Init/Finish and batch external I/O across every
// Transform invoked in between. The pipeline type-asserts for this
// interface and calls it only when present; a "stateless" codec
// (Transformer only) never sees Init/Finish.
type Lifecycle interface {
	// Init is called exactly once per intercepted call, before any
	// Transform in this direction.
	Init(ctx context.Context, dir Direction) error

	// Finish is called exactly once per intercepted call, after every
	// Transform in this direction has returned (including one that
	// suspended on deferred resolution), regardless of whether any
	// Transform or the rewriter itself failed.
	Finish(ctx context.Context, dir Direction) error
}

// Future is a single-assignment deferred result a DeferredTransformer
// hands back immediately in place of final bytes. Its value must not be
// observed until after the owning scope's Finish has returned — see
// DeferredTransformer.
type Future struct {
	resolve func() ([]byte, error)
}

// NewFuture wraps a resolver function as a Future.
func NewFuture(resolve func() ([]byte, error)) Future {
	return Future{resolve: resolve}
}

// Resolve returns the future's value. Called by the rewriter only once the
// scope that produced the future has had Finish invoked on it.
func (f Future) Resolve() ([]byte, error) { return f.resolve() }

// DeferredTransformer is an optional capability a codec implements when a
// payload's final bytes cannot be known until the scope's batched Finish
// has run (the reference batching codec's inbound direction: it must
// resolve an opaque identifier against an external store before it knows
// the real bytes, and wants to do that resolution once, batched, for every
// pending payload in the call).
//
// The rewriter calls TransformDeferred in place of Transform whenever a
// codec implements this interface, and defers calling Future.Resolve on
// the result until the whole message has been walked (i.e. every
// TransformDeferred call for this scope has been issued) and the scope's
// Finish has returned.
type DeferredTransformer interface {
	Transformer
	TransformDeferred(ctx context.Context, pctx Context, dir Direction, body []byte) (Future, error)
}

// Factory produces one codec instance per intercepted call. Per-call state
// (buffers, pending-resolution tables) must live on the instance Factory
// returns, never on a shared instance reused across calls — see spec.md §5
// and §9.
type Factory interface {
	NewCall() Transformer
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func() Transformer

func (f FactoryFunc) NewCall() Transformer { return f() }
