package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/triton-marine/umaa-assembly/internal/transport"
)

func TestMemory_WriteThenTakeDrainsPending(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	w, err := mem.Writer("topic", transport.ProfileReport)
	require.NoError(t, err)
	r, err := mem.Reader("topic", transport.ProfileReport)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, "sample-1"))
	require.NoError(t, w.Write(ctx, "sample-2"))

	results, err := r.Take(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "sample-1", results[0].Sample)
	require.True(t, results[0].Valid)

	again, err := r.Take(ctx)
	require.NoError(t, err)
	require.Empty(t, again, "a second Take must not redeliver already-drained samples")
}

func TestMemory_DisposeInstanceEmitsInvalidSample(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	w, err := mem.Writer("disposable", transport.ProfileReport)
	require.NoError(t, err)
	r, err := mem.Reader("disposable", transport.ProfileReport)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, "v1"))
	handle, ok := w.LookupInstance("v1")
	require.True(t, ok)

	require.NoError(t, w.DisposeInstance(ctx, handle))

	results, err := r.Take(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.False(t, results[1].Valid)
	require.Equal(t, transport.NotAliveDisposed, results[1].Info.State)

	_, ok = r.KeyValue(handle)
	require.False(t, ok, "disposed instance must no longer resolve via KeyValue")
}

func TestMemory_SetDataAvailableListenerFiresOnWrite(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	w, err := mem.Writer("notify-topic", transport.ProfileReport)
	require.NoError(t, err)
	r, err := mem.Reader("notify-topic", transport.ProfileReport)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	r.SetDataAvailableListener(transport.OnDataAvailable, func() { wg.Done() })

	require.NoError(t, w.Write(ctx, "payload"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("data-available listener was never invoked")
	}
}

func TestMemory_WriterKeyedLookupInstanceByDerivedKey(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	type keyed struct {
		ID   string
		Data int
	}
	w := mem.WriterKeyed("keyed-topic", func(s any) any { return s.(keyed).ID })

	require.NoError(t, w.Write(ctx, keyed{ID: "a", Data: 1}))
	require.NoError(t, w.Write(ctx, keyed{ID: "a", Data: 2}))

	handle, ok := w.LookupInstance(keyed{ID: "a"})
	require.True(t, ok)
	require.Equal(t, "a", handle)

	r, err := mem.Reader("keyed-topic", transport.ProfileReport)
	require.NoError(t, err)
	v, ok := r.KeyValue(handle)
	require.True(t, ok)
	require.Equal(t, keyed{ID: "a", Data: 2}, v, "later write to the same key must replace the resolvable instance value")
}

func TestFilterExpression_AndOrComposeHexLiterals(t *testing.T) {
	expr := transport.And(
		transport.HexEq("DestinationID", []byte{0xAB, 0xCD}),
		transport.Or(
			transport.HexEq("CommandTopic", []byte{0x01}),
			transport.HexEq("CommandTopic", []byte{0x02}),
		),
	)
	require.Equal(t, "(DestinationID = &hex(abcd)) AND ((CommandTopic = &hex(01)) OR (CommandTopic = &hex(02)))", expr.String())
}
