package wire

import "google.golang.org/protobuf/encoding/protowire"

// segment is one emitted unit of a Plan: either a literal byte run already
// known in full (an unmodified field, tag included), or a tag paired with
// something that must be resolved before the final bytes are known — a
// nested message Plan (transitive field) or a deferred payload resolver
// (direct payload field, or one entry of a repeated payload wrapper).
type segment struct {
	literal []byte
	tag     []byte
	child   *Plan
	resolve func() ([]byte, error)
}

// Plan is the rewriter's intermediate representation of one message's
// rewritten bytes. Building a Plan issues every Transform/TransformDeferred
// call the walk requires; Materialize assembles the final bytes, resolving
// any deferred payload results and recomputing length-delimited wrapping
// bottom-up. Separating "build" from "materialize" is what lets a
// Lifecycle codec's Finish run in between: every payload call has already
// been issued by the time Finish runs, and Materialize only reads already-
// completed futures, so it never blocks.
type Plan struct {
	segments []segment
}

// Materialize assembles the plan's final bytes. Safe to call only after
// every deferred resolver the plan holds is guaranteed to return without
// blocking (i.e. after the owning scope's Finish has completed, for a
// Lifecycle codec; immediately, for a stateless one).
func (p *Plan) Materialize() ([]byte, error) {
	var out []byte
	for _, seg := range p.segments {
		switch {
		case seg.resolve != nil:
			val, err := seg.resolve()
			if err != nil {
				return nil, err
			}
			out = append(out, seg.tag...)
			out = protowire.AppendBytes(out, val)
		case seg.child != nil:
			body, err := seg.child.Materialize()
			if err != nil {
				return nil, err
			}
			out = append(out, seg.tag...)
			out = protowire.AppendBytes(out, body)
		default:
			out = append(out, seg.literal...)
		}
	}
	return out, nil
}
