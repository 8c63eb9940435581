package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/descriptor"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/wire"
)

type fakeMethods struct {
	methods map[string]descriptor.ServiceMethodInfo
}

func (f fakeMethods) LookupMethod(path string) (descriptor.ServiceMethodInfo, bool) {
	info, ok := f.methods[strings.TrimPrefix(path, "/")]
	return info, ok
}

type fakeIndex struct{ hasPayloads map[string]bool }

func (f fakeIndex) MessageHasPayloads(name string) bool { return f.hasPayloads[name] }
func (f fakeIndex) IsPayload(string, int32) bool         { return false }
func (f fakeIndex) DirectTargetType(name string, fieldNo int32) (string, bool) {
	if fieldNo == 1 {
		return "temporal.api.common.v1.Payload", true
	}
	return "", false
}
func (f fakeIndex) HasTransitivePayloads(string, int32) bool { return false }
func (f fakeIndex) TransitiveTargetType(string, int32) (string, bool) { return "", false }

type passthroughCodec struct{}

func (passthroughCodec) Transform(_ context.Context, _ codec.Context, _ codec.Direction, body []byte) ([]byte, error) {
	return body, nil
}

func (passthroughCodec) NewCall() codec.Transformer { return passthroughCodec{} }

func buildFramedMessage(fieldNo int32, value []byte) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, protowire.Number(fieldNo), protowire.BytesType)
	msg = protowire.AppendBytes(msg, value)
	return BuildFrame(msg)
}

func TestInterceptRequestPassthroughOnUnknownMethod(t *testing.T) {
	p := &Pipeline{
		Methods: fakeMethods{methods: map[string]descriptor.ServiceMethodInfo{}},
		Index:   fakeIndex{},
	}
	_, err := p.InterceptRequest(context.Background(), "/unknown.Service/Method", "tenant-a", buildFramedMessage(1, []byte("x")))
	require.Error(t, err)
	var pc *PassthroughCondition
	require.ErrorAs(t, err, &pc)
}

func TestInterceptRequestPassthroughWhenNoPayloadFields(t *testing.T) {
	p := &Pipeline{
		Methods: fakeMethods{methods: map[string]descriptor.ServiceMethodInfo{
			"svc.Service/Call": {RequestType: "test.Req", ResponseType: "test.Resp"},
		}},
		Index: fakeIndex{hasPayloads: map[string]bool{}},
	}
	_, err := p.InterceptRequest(context.Background(), "/svc.Service/Call", "tenant-a", buildFramedMessage(1, []byte("x")))
	require.Error(t, err)
	var pc *PassthroughCondition
	require.ErrorAs(t, err, &pc)
}

func TestInterceptRequestPassthroughOnMissingTenant(t *testing.T) {
	store := descriptor.New()
	idx := fakeIndex{hasPayloads: map[string]bool{"test.Req": true}}
	p := &Pipeline{
		Methods: fakeMethods{methods: map[string]descriptor.ServiceMethodInfo{
			"svc.Service/Call": {RequestType: "test.Req", ResponseType: "test.Resp"},
		}},
		Index:    idx,
		Rewriter: &wire.Rewriter{Index: idx, Messages: store},
		Codecs:   passthroughCodec{},
	}

	_, err := p.InterceptRequest(context.Background(), "/svc.Service/Call", "", buildFramedMessage(1, []byte("x")))
	require.Error(t, err)
	var pc *PassthroughCondition
	require.ErrorAs(t, err, &pc)
}

func TestInterceptRequestRewritesPayloadField(t *testing.T) {
	store := descriptor.New()
	idx := fakeIndex{hasPayloads: map[string]bool{"test.Req": true}}
	p := &Pipeline{
		Methods: fakeMethods{methods: map[string]descriptor.ServiceMethodInfo{
			"svc.Service/Call": {RequestType: "test.Req", ResponseType: "test.Resp"},
		}},
		Index:    idx,
		Rewriter: &wire.Rewriter{Index: idx, Messages: store},
		Codecs:   passthroughCodec{},
	}

	out, err := p.InterceptRequest(context.Background(), "/svc.Service/Call", "tenant-a", buildFramedMessage(1, []byte("unchanged")))
	require.NoError(t, err)

	frame, _, err := SplitFrame(out)
	require.NoError(t, err)
	_, _, n := protowire.ConsumeTag(frame.Message)
	val, _ := protowire.ConsumeBytes(frame.Message[n:])
	require.Equal(t, "unchanged", string(val))
}
