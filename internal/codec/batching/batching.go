// Package batching implements the batched-external-store reference codec
// (C5): outbound payloads are buffered per call and flushed to a BlobStore
// in one write per tenant; inbound payloads are resolved the same way, one
// read per tenant, with every payload's result deferred until that read
// has completed.
package batching

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/payload"
)

// Metadata keys the codec reads and writes on the Payload it rewrites.
// EncodingKey and EncodingValue mark a payload this codec has already
// replaced with a store reference, so the inbound direction can tell a
// rewritten payload apart from one that passed through some earlier call
// untouched. OriginalEncodingKey preserves whatever encoding metadata key
// the original payload carried (if any) so it can be restored on the way
// back in.
const (
	EncodingKey         = "encoding"
	EncodingValue       = "binary/store-reference"
	OriginalEncodingKey = "encoding-original"
	IdentifierKey       = "store-id"
)

type scopeState int

const (
	stateIdle scopeState = iota
	stateOpen
	stateFinished
)

// pending is one inbound payload still waiting on its batched store read.
type pending struct {
	id       string
	metadata map[string][]byte
	result   []byte
	err      error
	done     chan struct{}
}

// Codec is the per-call scope for one direction of one intercepted call. A
// Factory must hand out a fresh Codec per call per direction — see
// spec.md §5 and §9; reusing one across calls would leak buffered state
// from a previous call into the next.
type Codec struct {
	Store BlobStore

	mu      sync.Mutex
	state   scopeState
	dir     codec.Direction
	tenant  string               // learned from the first payload's Context, not set up front
	staged  []Record             // outbound: buffered original payloads awaiting PutBatch
	waiting map[string]*pending // inbound: by store id, awaiting GetBatch
}

// NewFactory returns a codec.Factory that hands out a fresh *Codec bound to
// store on every call. Tenant is not a factory parameter: it varies per
// call and is recovered from the codec.Context the rewriter passes to the
// codec's first Transform/TransformDeferred call, since every payload
// within one call shares the same tenant header.
func NewFactory(store BlobStore) codec.Factory {
	return codec.FactoryFunc(func() codec.Transformer {
		return &Codec{Store: store}
	})
}

func (c *Codec) Init(ctx context.Context, dir codec.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return &codec.LifecycleError{Msg: fmt.Sprintf("Init called in state %d", c.state)}
	}
	c.state = stateOpen
	c.dir = dir
	c.staged = nil
	c.waiting = make(map[string]*pending)
	return nil
}

// Transform satisfies codec.Transformer for completeness; the rewriter
// always prefers TransformDeferred when it is available, so this is only
// reached if something calls Transform directly outside the rewriter (e.g.
// a unit test exercising the codec in isolation without a Finish cycle —
// in that case outbound still completes synchronously, inbound does not,
// since there is no batched read to resolve against).
func (c *Codec) Transform(ctx context.Context, pctx codec.Context, dir codec.Direction, body []byte) ([]byte, error) {
	future, err := c.TransformDeferred(ctx, pctx, dir, body)
	if err != nil {
		return nil, err
	}
	return future.Resolve()
}

func (c *Codec) TransformDeferred(ctx context.Context, pctx codec.Context, dir codec.Direction, body []byte) (codec.Future, error) {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return codec.Future{}, &codec.LifecycleError{Msg: "TransformDeferred called outside an open scope"}
	}
	if c.tenant == "" {
		c.tenant = pctx.Tenant
	}
	c.mu.Unlock()

	if dir == codec.Outbound {
		return c.transformOutbound(body)
	}
	return c.transformInbound(body)
}

func (c *Codec) transformOutbound(body []byte) (codec.Future, error) {
	p, err := payload.Unmarshal(body)
	if err != nil {
		return codec.Future{}, &codec.Error{Err: err}
	}

	id := uuid.New().String()
	meta := make(map[string][]byte, len(p.Metadata))
	for k, v := range p.Metadata {
		meta[k] = v
	}

	rewrittenMeta := make(map[string][]byte, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		rewrittenMeta[k] = v
	}
	if orig, ok := p.Metadata[EncodingKey]; ok {
		rewrittenMeta[OriginalEncodingKey] = orig
	}
	rewrittenMeta[EncodingKey] = []byte(EncodingValue)
	rewrittenMeta[IdentifierKey] = []byte(id)
	out := payload.Marshal(payload.Payload{Metadata: rewrittenMeta})

	c.mu.Lock()
	c.staged = append(c.staged, Record{ID: id, Tenant: c.tenant, Data: p.Data, Metadata: meta})
	c.mu.Unlock()

	return codec.NewFuture(func() ([]byte, error) { return out, nil }), nil
}

func (c *Codec) transformInbound(body []byte) (codec.Future, error) {
	p, err := payload.Unmarshal(body)
	if err != nil {
		return codec.Future{}, &codec.Error{Err: err}
	}

	if string(p.Metadata[EncodingKey]) != EncodingValue {
		// Not a payload this codec rewrote on the way out — pass through
		// unchanged (spec.md §4.5 passthrough condition).
		return codec.NewFuture(func() ([]byte, error) { return body, nil }), nil
	}

	id := string(p.Metadata[IdentifierKey])
	if id == "" {
		return codec.Future{}, &codec.Error{Err: fmt.Errorf("batching: inbound payload marked %s but missing %s", EncodingValue, IdentifierKey)}
	}

	entry := &pending{id: id, metadata: p.Metadata, done: make(chan struct{})}
	c.mu.Lock()
	c.waiting[id] = entry
	c.mu.Unlock()

	return codec.NewFuture(func() ([]byte, error) {
		<-entry.done
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.result, nil
	}), nil
}

// Finish flushes every outbound payload staged this scope in one write per
// tenant, or resolves every inbound payload registered this scope in one
// read per tenant. It is called exactly once, after every Transform or
// TransformDeferred call for this direction has returned — including ones
// still waiting on a Future, since issuing the deferred call and resolving
// its Future are separate steps (see internal/wire.Plan).
func (c *Codec) Finish(ctx context.Context, dir codec.Direction) error {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return &codec.LifecycleError{Msg: "Finish called outside an open scope"}
	}
	c.state = stateFinished
	staged := c.staged
	waiting := c.waiting
	tenant := c.tenant
	c.mu.Unlock()

	if dir == codec.Outbound {
		if len(staged) == 0 {
			return nil
		}
		if err := c.Store.PutBatch(ctx, tenant, staged); err != nil {
			return &codec.Error{Err: fmt.Errorf("batching: put batch: %w", err), Unavailable: true}
		}
		return nil
	}

	if len(waiting) == 0 {
		return nil
	}
	ids := make([]string, 0, len(waiting))
	for id := range waiting {
		ids = append(ids, id)
	}
	fetched, err := c.Store.GetBatch(ctx, tenant, ids)
	if err != nil {
		wrapped := &codec.Error{Err: fmt.Errorf("batching: get batch: %w", err), Unavailable: true}
		resolveAll(waiting, nil, wrapped)
		return wrapped
	}

	byID := make(map[string]Fetched, len(fetched))
	for _, f := range fetched {
		byID[f.ID] = f
	}
	for id, p := range waiting {
		f, ok := byID[id]
		if !ok || !f.Found {
			p.err = &codec.Error{Err: fmt.Errorf("batching: no record found for id %s", id)}
			close(p.done)
			continue
		}
		p.result = rebuildInbound(f, p.metadata)
		close(p.done)
	}
	return nil
}

func resolveAll(waiting map[string]*pending, result []byte, err error) {
	for _, p := range waiting {
		p.result, p.err = result, err
		close(p.done)
	}
}

// rebuildInbound restores the original payload shape: the retrieved data,
// the original metadata from the store, with the identifier and sentinel
// encoding keys stripped and the original encoding (if any) restored.
func rebuildInbound(f Fetched, rewrittenMeta map[string][]byte) []byte {
	meta := make(map[string][]byte, len(f.Metadata))
	for k, v := range f.Metadata {
		meta[k] = v
	}
	if orig, ok := rewrittenMeta[OriginalEncodingKey]; ok {
		meta[EncodingKey] = orig
	}
	delete(meta, IdentifierKey)
	return payload.Marshal(payload.Payload{Metadata: meta, Data: f.Data})
}
