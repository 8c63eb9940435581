package pipeline

import "fmt"

// UnsupportedFraming reports a gRPC message frame this proxy cannot
// rewrite in place: a buffer shorter than the frame header, a declared
// length that exceeds the bytes available, more than one frame in one
// buffer, or a compressed frame (rewriting that would require
// decompressing, rewriting, and recompressing rather than the streaming
// byte-level rewrite the rest of the pipeline performs).
type UnsupportedFraming struct {
	Reason string
}

func (e *UnsupportedFraming) Error() string { return "pipeline: unsupported framing: " + e.Reason }
func (e *UnsupportedFraming) Kind() string  { return "UnsupportedFraming" }

// PassthroughCondition is not an error: it signals that a call should be
// forwarded byte-for-byte without engaging the rewriter at all (a missing
// tenant header, an unknown method, or a request or response type with no
// payload fields). Callers type-assert for this to tell
// "forward unchanged" apart from a real failure; it is never surfaced to
// a client as a gRPC status.
type PassthroughCondition struct {
	Reason string
}

func (e *PassthroughCondition) Error() string { return fmt.Sprintf("pipeline: passthrough: %s", e.Reason) }
func (e *PassthroughCondition) Kind() string  { return "PassthroughCondition" }
