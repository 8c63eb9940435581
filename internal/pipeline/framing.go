package pipeline

import "encoding/binary"

// frameHeaderLen is the gRPC length-prefixed message framing: one
// compression-flag byte followed by a 4-byte big-endian message length.
const frameHeaderLen = 5

// Frame is one decoded gRPC message frame.
type Frame struct {
	Compressed bool
	Message    []byte
}

// SplitFrame parses the leading frame out of b and returns it alongside
// whatever bytes remain after it (always empty for a unary call's single
// frame, non-empty only if multiple messages were coalesced into one
// buffer). A buffer too short to contain a full frame header, or whose
// declared length exceeds the bytes available, is reported as an
// UnsupportedFraming error rather than silently truncated.
func SplitFrame(b []byte) (Frame, []byte, error) {
	if len(b) < frameHeaderLen {
		return Frame{}, nil, &UnsupportedFraming{Reason: "buffer shorter than frame header"}
	}
	compressed := b[0] != 0
	length := binary.BigEndian.Uint32(b[1:5])
	if uint64(len(b)-frameHeaderLen) < uint64(length) {
		return Frame{}, nil, &UnsupportedFraming{Reason: "declared length exceeds buffer"}
	}
	msg := b[frameHeaderLen : frameHeaderLen+int(length)]
	rest := b[frameHeaderLen+int(length):]

	if compressed {
		return Frame{}, nil, &UnsupportedFraming{Reason: "compressed frame"}
	}
	return Frame{Compressed: compressed, Message: msg}, rest, nil
}

// BuildFrame re-frames a rewritten message with an uncompressed frame
// header. The pipeline never recompresses, since SplitFrame already
// rejected any frame arriving compressed.
func BuildFrame(message []byte) []byte {
	out := make([]byte, frameHeaderLen+len(message))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:5], uint32(len(message)))
	copy(out[frameHeaderLen:], message)
	return out
}
