// Package wire implements the streaming protobuf wire-format rewriter
// (C3): it walks message bytes left to right, recursing only into fields
// the payload index marks interesting, and never materializes a full
// message object of its own.
package wire

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/payloadindex"
)

// Index is the subset of payloadindex.Index the rewriter consults. Defined
// as an interface here so tests can supply a minimal fake without building
// real descriptors.
type Index interface {
	MessageHasPayloads(name string) bool
	IsPayload(name string, fieldNo int32) bool
	DirectTargetType(name string, fieldNo int32) (string, bool)
	HasTransitivePayloads(name string, fieldNo int32) bool
	TransitiveTargetType(name string, fieldNo int32) (string, bool)
}

// Resolver resolves a message type name to its descriptor, used only to
// recover field names for human-readable field paths — never to build a
// full message object.
type Resolver interface {
	LookupMessage(name string) (*desc.MessageDescriptor, bool)
}

// Rewriter is the streaming wire-format rewriter over a message type.
type Rewriter struct {
	Index    Index
	Messages Resolver
}

// Rewrite transforms the payload fields of a serialized message of the
// given type, in the given direction, via tr, and returns the final bytes
// directly. It is a convenience wrapper around Plan+Materialize for
// stateless codecs and tests; a Lifecycle codec that needs its Finish to
// run between "every Transform issued" and "every result observed" should
// call Plan and Materialize itself (see internal/pipeline).
func (r *Rewriter) Rewrite(ctx context.Context, typeName string, body []byte, dir codec.Direction, tenant string, tr codec.Transformer) ([]byte, error) {
	plan, err := r.Plan(ctx, typeName, body, dir, tenant, tr)
	if err != nil {
		return nil, err
	}
	return plan.Materialize()
}

// Plan walks a serialized message of the given type and builds a Plan:
// every payload field's Transform (or TransformDeferred) call is issued
// during this walk, but nothing is assembled into final bytes yet. A
// message with no payload fields (the fast path, spec.md §4.3 step 1) is
// returned unchanged as a single literal segment without being walked at
// all.
func (r *Rewriter) Plan(ctx context.Context, typeName string, body []byte, dir codec.Direction, tenant string, tr codec.Transformer) (*Plan, error) {
	if !r.Index.MessageHasPayloads(typeName) {
		return &Plan{segments: []segment{{literal: body}}}, nil
	}
	return r.planWalk(ctx, typeName, body, dir, tenant, tr, typeName)
}

func (r *Rewriter) planWalk(ctx context.Context, typeName string, body []byte, dir codec.Direction, tenant string, tr codec.Transformer, path string) (*Plan, error) {
	md, _ := r.Messages.LookupMessage(typeName)

	plan := &Plan{}
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("consume tag: %w", protowire.ParseError(n))}
		}
		if num == 0 {
			break
		}
		tagBytes := protowire.AppendTag(nil, num, typ)
		b = b[n:]
		fieldNo := int32(num)

		switch target, ok := r.Index.DirectTargetType(typeName, fieldNo); {
		case ok:
			if typ != protowire.BytesType {
				return nil, &FormatError{Path: path, Err: fmt.Errorf("field %d: direct payload field is not length-delimited", fieldNo)}
			}
			fieldBody, n2 := protowire.ConsumeBytes(b)
			if n2 < 0 {
				return nil, &FormatError{Path: path, Err: fmt.Errorf("consume field %d body: %w", fieldNo, protowire.ParseError(n2))}
			}
			b = b[n2:]
			fname := fieldName(md, fieldNo)

			if target == payloadindex.PayloadsType {
				child, err := r.planWrapper(ctx, fieldBody, dir, tenant, tr, path+"."+fname)
				if err != nil {
					return nil, err
				}
				plan.segments = append(plan.segments, segment{tag: tagBytes, child: child})
			} else {
				pctx := codec.Context{Tenant: tenant, FieldPath: path + "." + fname}
				resolve, err := resolverFor(ctx, tr, pctx, dir, fieldBody)
				if err != nil {
					return nil, err
				}
				plan.segments = append(plan.segments, segment{tag: tagBytes, resolve: resolve})
			}
			continue
		}

		switch target, ok := r.Index.TransitiveTargetType(typeName, fieldNo); {
		case ok:
			if typ != protowire.BytesType {
				return nil, &FormatError{Path: path, Err: fmt.Errorf("field %d: transitive field is not length-delimited", fieldNo)}
			}
			fieldBody, n2 := protowire.ConsumeBytes(b)
			if n2 < 0 {
				return nil, &FormatError{Path: path, Err: fmt.Errorf("consume field %d body: %w", fieldNo, protowire.ParseError(n2))}
			}
			b = b[n2:]
			fname := fieldName(md, fieldNo)

			child, err := r.planWalk(ctx, target, fieldBody, dir, tenant, tr, path+"."+fname)
			if err != nil {
				return nil, err
			}
			plan.segments = append(plan.segments, segment{tag: tagBytes, child: child})
			continue
		}

		n2 := protowire.ConsumeFieldValue(num, typ, b)
		if n2 < 0 {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("field %d: %w", fieldNo, protowire.ParseError(n2))}
		}
		lit := make([]byte, 0, len(tagBytes)+n2)
		lit = append(lit, tagBytes...)
		lit = append(lit, b[:n2]...)
		plan.segments = append(plan.segments, segment{literal: lit})
		b = b[n2:]
	}
	return plan, nil
}

// planWrapper is the sub-walker over the repeated payload wrapper (Ps):
// only field number 1, length-delimited, is treated specially — extracted
// as a single payload body and handed to the codec with a "[]" field-path
// suffix. Everything else (including unknown tags) is copied verbatim.
// This avoids parsing the wrapper message itself and preserves the exact
// number and order of contained payload entries.
func (r *Rewriter) planWrapper(ctx context.Context, body []byte, dir codec.Direction, tenant string, tr codec.Transformer, path string) (*Plan, error) {
	const repeatedField = protowire.Number(1)

	plan := &Plan{}
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("consume tag: %w", protowire.ParseError(n))}
		}
		if num == 0 {
			break
		}
		tagBytes := protowire.AppendTag(nil, num, typ)
		b = b[n:]

		if num == repeatedField && typ == protowire.BytesType {
			entry, n2 := protowire.ConsumeBytes(b)
			if n2 < 0 {
				return nil, &FormatError{Path: path, Err: fmt.Errorf("consume entry: %w", protowire.ParseError(n2))}
			}
			b = b[n2:]

			pctx := codec.Context{Tenant: tenant, FieldPath: path + "[]"}
			resolve, err := resolverFor(ctx, tr, pctx, dir, entry)
			if err != nil {
				return nil, err
			}
			plan.segments = append(plan.segments, segment{tag: tagBytes, resolve: resolve})
			continue
		}

		n2 := protowire.ConsumeFieldValue(num, typ, b)
		if n2 < 0 {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("%w", protowire.ParseError(n2))}
		}
		lit := make([]byte, 0, len(tagBytes)+n2)
		lit = append(lit, tagBytes...)
		lit = append(lit, b[:n2]...)
		plan.segments = append(plan.segments, segment{literal: lit})
		b = b[n2:]
	}
	return plan, nil
}

// resolverFor issues exactly one Transform/TransformDeferred call for a
// payload body and returns a function that yields its final bytes. For a
// plain Transformer the call already happened and the result is captured;
// for a DeferredTransformer, resolution is postponed to whenever the
// returned function is invoked (after the owning scope's Finish).
func resolverFor(ctx context.Context, tr codec.Transformer, pctx codec.Context, dir codec.Direction, body []byte) (func() ([]byte, error), error) {
	if dt, ok := tr.(codec.DeferredTransformer); ok {
		future, err := dt.TransformDeferred(ctx, pctx, dir, body)
		if err != nil {
			return nil, err
		}
		return future.Resolve, nil
	}
	val, err := tr.Transform(ctx, pctx, dir, body)
	if err != nil {
		return nil, err
	}
	return func() ([]byte, error) { return val, nil }, nil
}

func fieldName(md *desc.MessageDescriptor, fieldNo int32) string {
	if md != nil {
		for _, fd := range md.GetFields() {
			if fd.GetNumber() == fieldNo {
				return fd.GetName()
			}
		}
	}
	return fmt.Sprintf("field_%d", fieldNo)
}
