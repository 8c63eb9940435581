package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := Payload{
		Metadata: map[string][]byte{
			"encoding": []byte("json/plain"),
			"z-key":    []byte("last"),
		},
		Data: []byte(`{"hello":"world"}`),
	}

	b := Marshal(p)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, p.Data, got.Data)
	require.Equal(t, p.Metadata, got.Metadata)
}

func TestMarshalIsDeterministic(t *testing.T) {
	p := Payload{
		Metadata: map[string][]byte{
			"b": []byte("2"),
			"a": []byte("1"),
			"c": []byte("3"),
		},
		Data: []byte("x"),
	}
	require.Equal(t, Marshal(p), Marshal(p))
}

func TestUnmarshalEmptyPayload(t *testing.T) {
	got, err := Unmarshal(nil)
	require.NoError(t, err)
	require.Empty(t, got.Data)
	require.Empty(t, got.Metadata)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	// field 3, varint type, value 42 — not part of Payload's shape but must
	// not break parsing of metadata/data around it.
	p := Payload{Data: []byte("payload-data")}
	b := Marshal(p)
	b = append(b, 0x18, 42) // tag for field 3 varint, then value 42

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, p.Data, got.Data)
}
