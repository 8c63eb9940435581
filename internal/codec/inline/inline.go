// Package inline implements the default-inline-transform reference codec:
// a stateless Transformer with no Lifecycle, no batching, and no external
// I/O. It exists as the "do nothing interesting" baseline codec-strategy
// and as the simplest possible implementation of the codec contract.
package inline

import (
	"context"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
)

// Transform is the function a default-inline-transform codec applies to
// every payload body, in either direction.
type Transform func(ctx context.Context, pctx codec.Context, dir codec.Direction, body []byte) ([]byte, error)

// Codec wraps a Transform as a codec.Transformer. It implements no
// Lifecycle: the rewriter and pipeline never call Init/Finish on it, and
// every Transform call is independent of every other.
type Codec struct {
	fn Transform
}

// New wraps fn as a stateless codec.
func New(fn Transform) *Codec {
	return &Codec{fn: fn}
}

// NewFactory returns a codec.Factory producing a fresh *Codec wrapping fn
// for every call. A stateless codec has nothing to reset between calls, so
// a single shared instance would be just as safe, but handing out a fresh
// one keeps this codec's lifecycle identical to every other factory's.
func NewFactory(fn Transform) codec.Factory {
	return codec.FactoryFunc(func() codec.Transformer { return New(fn) })
}

func (c *Codec) Transform(ctx context.Context, pctx codec.Context, dir codec.Direction, body []byte) ([]byte, error) {
	return c.fn(ctx, pctx, dir, body)
}

// Identity is the trivial default-inline-transform: it returns every
// payload body unchanged. Useful as a passthrough strategy and in tests
// that only want to exercise the rewriter's field-walking, not a real
// transform.
func Identity() *Codec {
	return New(func(_ context.Context, _ codec.Context, _ codec.Direction, body []byte) ([]byte, error) {
		return body, nil
	})
}
