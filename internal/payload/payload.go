// Package payload parses and serializes the one concrete submessage shape
// codecs are allowed to understand: temporal.api.common.v1.Payload, a
// {metadata map<string,bytes>; data bytes} message. The core never uses
// this package — only reference codecs (internal/codec/...) do, on the
// single payload body the rewriter hands them.
//
// It is hand-rolled over protowire rather than generated from a .proto
// file: a codec's whole job is reading and rewriting this one small
// message, and the rest of this repository already reaches for protowire
// directly instead of materializing full message objects, so doing the
// same here keeps one posture throughout instead of introducing generated
// code for a single two-field type.
package payload

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	metadataFieldNumber protowire.Number = 1
	dataFieldNumber     protowire.Number = 2

	mapKeyFieldNumber   protowire.Number = 1
	mapValueFieldNumber protowire.Number = 2
)

// Payload mirrors temporal.api.common.v1.Payload.
type Payload struct {
	Metadata map[string][]byte
	Data     []byte
}

// Unmarshal decodes a serialized Payload submessage. Unknown fields are
// ignored: a codec only needs metadata and data.
func Unmarshal(b []byte) (Payload, error) {
	p := Payload{Metadata: make(map[string][]byte)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Payload{}, fmt.Errorf("payload: consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == metadataFieldNumber && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Payload{}, fmt.Errorf("payload: consume metadata entry: %w", protowire.ParseError(n))
			}
			b = b[n:]
			key, val, err := unmarshalMapEntry(entry)
			if err != nil {
				return Payload{}, err
			}
			p.Metadata[key] = val

		case num == dataFieldNumber && typ == protowire.BytesType:
			data, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Payload{}, fmt.Errorf("payload: consume data: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.Data = append([]byte(nil), data...)

		default:
			n, err := skipField(num, typ, b)
			if err != nil {
				return Payload{}, err
			}
			b = b[n:]
		}
	}
	return p, nil
}

func unmarshalMapEntry(b []byte) (key string, val []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("payload: consume map entry tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == mapKeyFieldNumber && typ == protowire.BytesType:
			kb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("payload: consume map key: %w", protowire.ParseError(n))
			}
			key = string(kb)
			b = b[n:]
		case num == mapValueFieldNumber && typ == protowire.BytesType:
			vb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("payload: consume map value: %w", protowire.ParseError(n))
			}
			val = append([]byte(nil), vb...)
			b = b[n:]
		default:
			n, err := skipField(num, typ, b)
			if err != nil {
				return "", nil, err
			}
			b = b[n:]
		}
	}
	return key, val, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("payload: skip field: %w", protowire.ParseError(n))
	}
	return n, nil
}

// Marshal serializes a Payload back to its wire form. Map entries are
// emitted in an arbitrary but deterministic (sorted) key order so repeated
// Marshal calls over the same value produce identical bytes.
func Marshal(p Payload) []byte {
	var out []byte
	for _, key := range sortedKeys(p.Metadata) {
		entry := protowire.AppendTag(nil, mapKeyFieldNumber, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(key))
		entry = protowire.AppendTag(entry, mapValueFieldNumber, protowire.BytesType)
		entry = protowire.AppendBytes(entry, p.Metadata[key])

		out = protowire.AppendTag(out, metadataFieldNumber, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	if len(p.Data) > 0 {
		out = protowire.AppendTag(out, dataFieldNumber, protowire.BytesType)
		out = protowire.AppendBytes(out, p.Data)
	}
	return out
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
