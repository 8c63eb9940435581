package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFrameAndBuildFrameRoundTrip(t *testing.T) {
	msg := []byte("hello world")
	framed := BuildFrame(msg)

	frame, rest, err := SplitFrame(framed)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.False(t, frame.Compressed)
	require.Equal(t, msg, frame.Message)
}

func TestSplitFrameRejectsCompressed(t *testing.T) {
	framed := BuildFrame([]byte("x"))
	framed[0] = 1 // mark compressed

	_, _, err := SplitFrame(framed)
	require.Error(t, err)
	var uf *UnsupportedFraming
	require.ErrorAs(t, err, &uf)
}

func TestSplitFrameRejectsShortBuffer(t *testing.T) {
	_, _, err := SplitFrame([]byte{0, 0, 0})
	require.Error(t, err)
}

func TestSplitFrameRejectsTruncatedMessage(t *testing.T) {
	framed := BuildFrame([]byte("hello"))
	_, _, err := SplitFrame(framed[:len(framed)-1])
	require.Error(t, err)
}
