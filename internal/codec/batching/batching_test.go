package batching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/payload"
)

func TestOutboundStagesAndFlushesOnFinish(t *testing.T) {
	store := NewMemoryStore()
	c := &Codec{Store: store}
	ctx := context.Background()

	require.NoError(t, c.Init(ctx, codec.Outbound))

	orig := payload.Payload{Metadata: map[string][]byte{
		"encoding":      []byte("json/plain"),
		"encoding-type": []byte("io.temporal.workflow.v1"),
	}, Data: []byte("secret")}
	future, err := c.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Outbound, payload.Marshal(orig))
	require.NoError(t, err)

	rewritten, err := future.Resolve()
	require.NoError(t, err)

	rewrittenPayload, err := payload.Unmarshal(rewritten)
	require.NoError(t, err)
	require.Equal(t, EncodingValue, string(rewrittenPayload.Metadata[EncodingKey]))
	require.Equal(t, "json/plain", string(rewrittenPayload.Metadata[OriginalEncodingKey]))
	require.Equal(t, "io.temporal.workflow.v1", string(rewrittenPayload.Metadata["encoding-type"]))
	id := string(rewrittenPayload.Metadata[IdentifierKey])
	require.NotEmpty(t, id)

	require.NoError(t, c.Finish(ctx, codec.Outbound))

	fetched, err := store.GetBatch(ctx, "tenant-a", []string{id})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	require.True(t, fetched[0].Found)
	require.Equal(t, orig.Data, fetched[0].Data)
}

func TestInboundResolvesAfterFinish(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Stage via the outbound direction first.
	out := &Codec{Store: store}
	require.NoError(t, out.Init(ctx, codec.Outbound))
	orig := payload.Payload{Data: []byte("round-trip-me")}
	future, err := out.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Outbound, payload.Marshal(orig))
	require.NoError(t, err)
	rewritten, err := future.Resolve()
	require.NoError(t, err)
	require.NoError(t, out.Finish(ctx, codec.Outbound))

	// Now resolve it via the inbound direction, as a later call's response
	// would carry the same reference back to the proxy.
	in := &Codec{Store: store}
	require.NoError(t, in.Init(ctx, codec.Inbound))
	inFuture, err := in.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Inbound, rewritten)
	require.NoError(t, err)

	require.NoError(t, in.Finish(ctx, codec.Inbound))

	resolved, err := inFuture.Resolve()
	require.NoError(t, err)

	got, err := payload.Unmarshal(resolved)
	require.NoError(t, err)
	require.Equal(t, orig.Data, got.Data)
	_, hasID := got.Metadata[IdentifierKey]
	require.False(t, hasID)
}

func TestInboundPassthroughForUnrecognizedPayload(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	c := &Codec{Store: store}
	require.NoError(t, c.Init(ctx, codec.Inbound))

	untouched := payload.Marshal(payload.Payload{Data: []byte("plain")})
	future, err := c.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Inbound, untouched)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, codec.Inbound))

	got, err := future.Resolve()
	require.NoError(t, err)
	require.Equal(t, untouched, got)
}

func TestInboundMissingRecordIsAnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rewritten := payload.Marshal(payload.Payload{Metadata: map[string][]byte{
		EncodingKey:   []byte(EncodingValue),
		IdentifierKey: []byte("does-not-exist"),
	}})

	c := &Codec{Store: store}
	require.NoError(t, c.Init(ctx, codec.Inbound))
	future, err := c.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Inbound, rewritten)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, codec.Inbound))

	_, err = future.Resolve()
	require.Error(t, err)
}

func TestTransformOutsideOpenScopeIsLifecycleError(t *testing.T) {
	c := &Codec{Store: NewMemoryStore()}
	_, err := c.TransformDeferred(context.Background(), codec.Context{}, codec.Outbound, nil)
	require.Error(t, err)
	var lifecycleErr *codec.LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
}

func TestFinishBatchesMultiplePayloadsPerTenantInOneCall(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()
	c := &Codec{Store: store}
	require.NoError(t, c.Init(ctx, codec.Outbound))

	for i := 0; i < 3; i++ {
		_, err := c.TransformDeferred(ctx, codec.Context{Tenant: "tenant-a"}, codec.Outbound, payload.Marshal(payload.Payload{Data: []byte{byte(i)}}))
		require.NoError(t, err)
	}
	require.NoError(t, c.Finish(ctx, codec.Outbound))
	require.Equal(t, 1, store.putCalls)
}

type countingStore struct {
	*MemoryStore
	putCalls int
}

func (s *countingStore) PutBatch(ctx context.Context, tenant string, records []Record) error {
	s.putCalls++
	return s.MemoryStore.PutBatch(ctx, tenant, records)
}
