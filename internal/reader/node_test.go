package reader_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/reader"
	"github.com/triton-marine/umaa-assembly/internal/transport"
	"github.com/triton-marine/umaa-assembly/internal/umaatypes"
)

// neverCompletes is a Decorator stub that always reports its role
// incomplete, keeping an assembly key resident in the node's in-flight
// state so max-in-flight eviction can be exercised deterministically.
type neverCompletes struct{}

func (neverCompletes) Role() string { return "stalled" }
func (neverCompletes) OnReaderData(ctx context.Context, n *reader.ReaderNode, key reader.AssemblyKey) (bool, error) {
	return false, nil
}
func (neverCompletes) OnChildAssembled(ctx context.Context, n *reader.ReaderNode, childName string, child assembly.CombinedSample) error {
	return nil
}

func TestReaderNode_MaxInFlightEvictsLeastRecentlyTouched(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	w, err := mem.Writer("bounded_topic", transport.ProfileReport)
	require.NoError(t, err)
	r, err := mem.Reader("bounded_topic", transport.ProfileReport)
	require.NoError(t, err)

	root := reader.NewReaderNode("bounded", r, nil, nil)
	root.AttachDecorator(neverCompletes{})
	root.SetMaxInFlight(2)

	require.NoError(t, w.Write(ctx, umaatypes.MissionCommandType{MissionName: "a"}))
	require.NoError(t, root.Poll(ctx))
	require.NoError(t, w.Write(ctx, umaatypes.MissionCommandType{MissionName: "b"}))
	require.NoError(t, root.Poll(ctx))
	require.NoError(t, w.Write(ctx, umaatypes.MissionCommandType{MissionName: "c"}))
	require.NoError(t, root.Poll(ctx))

	stats := root.StatsSnapshot()
	require.Equal(t, uint64(1), stats.DroppedAssemblies)
	require.LessOrEqual(t, stats.InFlight, 2)
}

func TestReaderNode_StatsSnapshotReportsZeroDroppedByDefault(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(nil)

	w, err := mem.Writer("unbounded_topic", transport.ProfileReport)
	require.NoError(t, err)
	r, err := mem.Reader("unbounded_topic", transport.ProfileReport)
	require.NoError(t, err)

	root := reader.NewReaderNode("unbounded", r, nil, nil)
	root.SetConsumer(func(key reader.AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo) {}, 0)

	require.NoError(t, w.Write(ctx, umaatypes.MissionCommandType{MissionName: "only"}))
	require.NoError(t, root.Poll(ctx))

	stats := root.StatsSnapshot()
	require.Equal(t, uint64(0), stats.DroppedAssemblies)
}
