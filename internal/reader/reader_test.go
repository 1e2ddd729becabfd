package reader_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
	"github.com/triton-marine/umaa-assembly/internal/reader"
	"github.com/triton-marine/umaa-assembly/internal/taskpool"
	"github.com/triton-marine/umaa-assembly/internal/transport"
	"github.com/triton-marine/umaa-assembly/internal/umaatypes"
)

type emission struct {
	key      reader.AssemblyKey
	combined *assembly.CombinedSample
	info     transport.SampleInfo
}

func waitEmission(t *testing.T, ch <-chan emission) emission {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for assembled sample")
		return emission{}
	}
}

func newRootWithConsumer(t *testing.T, mem *transport.Memory, topic string) (*reader.ReaderNode, chan emission) {
	t.Helper()
	tr, err := mem.Reader(topic, transport.ProfileCommand)
	require.NoError(t, err)
	n := reader.NewReaderNode(topic, tr, nil, nil)
	ch := make(chan emission, 4)
	n.SetConsumer(func(key reader.AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo) {
		ch <- emission{key: key, combined: combined, info: info}
	}, taskpool.High)
	return n, ch
}

func newChildNode(t *testing.T, mem *transport.Memory, topic string) *reader.ReaderNode {
	t.Helper()
	tr, err := mem.Reader(topic, transport.ProfileCommand)
	require.NoError(t, err)
	return reader.NewReaderNode(topic, tr, nil, nil)
}

func TestGenSpecReader_RoundTripGeneralizationThenSpecialization(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command")
	root.AttachDecorator(reader.NewGenSpecReader("objective", guidkey.AttributePath{"Objective"}, nil))

	routeNode := newChildNode(t, mem, "RouteObjectiveType")
	root.AttachChild("objective", "RouteObjectiveType", routeNode)

	specID := guidkey.New()
	cmdID := guidkey.New()
	ctx := context.Background()

	cmdWriter, err := mem.Writer("mission_command", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID:   cmdID,
		MissionName: "patrol",
		Objective: umaatypes.ObjectiveGeneralization{
			SpecializationTopic: "RouteObjectiveType",
			SpecializationID:    specID,
		},
	}))
	require.NoError(t, root.Poll(ctx))

	routeWriter, err := mem.Writer("RouteObjectiveType", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, routeWriter.Write(ctx, umaatypes.RouteObjectiveType{
		SpecializationReferenceID: specID,
		Speed:                     12.5,
		Heading:                   270,
	}))
	require.NoError(t, routeNode.Poll(ctx))

	got := waitEmission(t, done)
	require.NotNil(t, got.combined)
	base := got.combined.Base.(umaatypes.MissionCommandType)
	require.Equal(t, cmdID, base.CommandID)
	overlay, ok := got.combined.Overlays["Objective"]
	require.True(t, ok)
	route, ok := overlay.(umaatypes.RouteObjectiveType)
	require.True(t, ok)
	require.Equal(t, 12.5, route.Speed)
}

func TestGenSpecReader_ReversedArrivalSpecializationFirst(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command")
	root.AttachDecorator(reader.NewGenSpecReader("objective", guidkey.AttributePath{"Objective"}, nil))

	routeNode := newChildNode(t, mem, "RouteObjectiveType")
	root.AttachChild("objective", "RouteObjectiveType", routeNode)

	specID := guidkey.New()
	cmdID := guidkey.New()
	ctx := context.Background()

	routeWriter, err := mem.Writer("RouteObjectiveType", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, routeWriter.Write(ctx, umaatypes.RouteObjectiveType{
		SpecializationReferenceID: specID,
		Speed:                     4,
		Heading:                   10,
	}))
	require.NoError(t, routeNode.Poll(ctx))

	cmdWriter, err := mem.Writer("mission_command", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID:   cmdID,
		MissionName: "loiter-then-route",
		Objective: umaatypes.ObjectiveGeneralization{
			SpecializationTopic: "RouteObjectiveType",
			SpecializationID:    specID,
		},
	}))
	require.NoError(t, root.Poll(ctx))

	got := waitEmission(t, done)
	base := got.combined.Base.(umaatypes.MissionCommandType)
	require.Equal(t, cmdID, base.CommandID)
	route := got.combined.Overlays["Objective"].(umaatypes.RouteObjectiveType)
	require.Equal(t, 4.0, route.Speed)
}

func TestLargeSetReader_OutOfOrderElementAssembly(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command_set")
	root.AttachDecorator(reader.NewLargeSetReader("waypoints", "Waypoints", guidkey.AttributePath{"WaypointSetMeta"}, nil))

	elemNode := newChildNode(t, mem, "waypoint_set_element")
	root.AttachChild("waypoints", "waypoint_set_element", elemNode)

	setID := guidkey.New()
	w1, w2 := guidkey.New(), guidkey.New()
	ctx := context.Background()

	elemWriter, err := mem.Writer("waypoint_set_element", transport.ProfileReport)
	require.NoError(t, err)
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointSetElement{
		Element: &umaatypes.Waypoint{Latitude: 1}, SetID: setID, ElementID: w1,
	}))
	require.NoError(t, elemNode.Poll(ctx))

	cmdWriter, err := mem.Writer("mission_command_set", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID: guidkey.New(),
		WaypointSetMeta: umaatypes.WaypointSetMetadata{
			SetID: setID, UpdateElementID: w2, Size: 2,
		},
	}))
	require.NoError(t, root.Poll(ctx))

	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointSetElement{
		Element: &umaatypes.Waypoint{Latitude: 2}, SetID: setID, ElementID: w2,
	}))
	require.NoError(t, elemNode.Poll(ctx))

	got := waitEmission(t, done)
	coll := got.combined.Collections["WaypointSetMeta"]["Waypoints"]
	require.Len(t, coll, 2)
}

func TestLargeSetReader_EmptySetCompletesWithNoElements(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command_empty_set")
	root.AttachDecorator(reader.NewLargeSetReader("waypoints", "Waypoints", guidkey.AttributePath{"WaypointSetMeta"}, nil))
	elemNode := newChildNode(t, mem, "waypoint_set_element_empty")
	root.AttachChild("waypoints", "waypoint_set_element_empty", elemNode)

	ctx := context.Background()
	cmdWriter, err := mem.Writer("mission_command_empty_set", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID:       guidkey.New(),
		WaypointSetMeta: umaatypes.WaypointSetMetadata{SetID: guidkey.New(), Size: 0},
	}))
	require.NoError(t, root.Poll(ctx))

	got := waitEmission(t, done)
	coll, ok := got.combined.Collections["WaypointSetMeta"]["Waypoints"]
	require.True(t, ok)
	require.Empty(t, coll)
}

func TestLargeListReader_OrdersChainByNextElementID(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command_list")
	root.AttachDecorator(reader.NewLargeListReader("waypoints", "Waypoints", guidkey.AttributePath{"WaypointListMeta"}, nil))
	elemNode := newChildNode(t, mem, "waypoint_list_element")
	root.AttachChild("waypoints", "waypoint_list_element", elemNode)

	ctx := context.Background()
	listID := guidkey.New()
	w1, w2, w3 := guidkey.New(), guidkey.New(), guidkey.New()

	elemWriter, err := mem.Writer("waypoint_list_element", transport.ProfileReport)
	require.NoError(t, err)
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointListElement{
		Element: &umaatypes.Waypoint{Latitude: 3}, ListID: listID, ElementID: w3,
	}))
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointListElement{
		Element: &umaatypes.Waypoint{Latitude: 1}, ListID: listID, ElementID: w1, NextElementID: w2,
	}))
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointListElement{
		Element: &umaatypes.Waypoint{Latitude: 2}, ListID: listID, ElementID: w2, NextElementID: w3,
	}))
	require.NoError(t, elemNode.Poll(ctx))

	cmdWriter, err := mem.Writer("mission_command_list", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID: guidkey.New(),
		WaypointListMeta: umaatypes.WaypointListMetadata{
			ListID: listID, StartingElementID: w1, UpdateElementID: w3, Size: 3,
		},
	}))
	require.NoError(t, root.Poll(ctx))

	got := waitEmission(t, done)
	coll := got.combined.Collections["WaypointListMeta"]["Waypoints"]
	require.Len(t, coll, 3)
	require.Equal(t, 1.0, coll[0].(umaatypes.WaypointListElement).Element.Latitude)
	require.Equal(t, 2.0, coll[1].(umaatypes.WaypointListElement).Element.Latitude)
	require.Equal(t, 3.0, coll[2].(umaatypes.WaypointListElement).Element.Latitude)
}

func TestLargeListReader_TruncatedChainStopsAtMissingElement(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command_truncated_list")
	root.AttachDecorator(reader.NewLargeListReader("waypoints", "Waypoints", guidkey.AttributePath{"WaypointListMeta"}, nil))
	elemNode := newChildNode(t, mem, "waypoint_list_element_trunc")
	root.AttachChild("waypoints", "waypoint_list_element_trunc", elemNode)

	ctx := context.Background()
	listID := guidkey.New()
	w1, w2, missing := guidkey.New(), guidkey.New(), guidkey.New()

	elemWriter, err := mem.Writer("waypoint_list_element_trunc", transport.ProfileReport)
	require.NoError(t, err)
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointListElement{
		Element: &umaatypes.Waypoint{Latitude: 1}, ListID: listID, ElementID: w1, NextElementID: w2,
	}))
	// w2 chains to `missing`, which never arrives.
	require.NoError(t, elemWriter.Write(ctx, umaatypes.WaypointListElement{
		Element: &umaatypes.Waypoint{Latitude: 2}, ListID: listID, ElementID: w2, NextElementID: missing,
	}))
	require.NoError(t, elemNode.Poll(ctx))

	cmdWriter, err := mem.Writer("mission_command_truncated_list", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID: guidkey.New(),
		WaypointListMeta: umaatypes.WaypointListMetadata{
			ListID: listID, StartingElementID: w1, UpdateElementID: w2, Size: 3,
		},
	}))
	require.NoError(t, root.Poll(ctx))

	got := waitEmission(t, done)
	coll := got.combined.Collections["WaypointListMeta"]["Waypoints"]
	require.Len(t, coll, 2) // truncated at the missing element with a one-time warning logged; no error surfaced
}

func TestGenSpecReader_DuplicateSpecializationIDOverwritesBinding(t *testing.T) {
	mem := transport.NewMemory(nil)
	root, done := newRootWithConsumer(t, mem, "mission_command_dup")
	root.AttachDecorator(reader.NewGenSpecReader("objective", guidkey.AttributePath{"Objective"}, nil))
	routeNode := newChildNode(t, mem, "RouteObjectiveTypeDup")
	root.AttachChild("objective", "RouteObjectiveTypeDup", routeNode)

	ctx := context.Background()
	specID := guidkey.New()
	cmdWriter, err := mem.Writer("mission_command_dup", transport.ProfileCommand)
	require.NoError(t, err)

	// First generalization binds specID under key A (never completes: no
	// specialization arrives for it).
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID: guidkey.New(),
		Objective: umaatypes.ObjectiveGeneralization{SpecializationTopic: "RouteObjectiveTypeDup", SpecializationID: specID},
	}))
	require.NoError(t, root.Poll(ctx))
	// Second generalization overwrites the same specID's buffered binding.
	secondCmdID := guidkey.New()
	require.NoError(t, cmdWriter.Write(ctx, umaatypes.MissionCommandType{
		CommandID: secondCmdID,
		Objective: umaatypes.ObjectiveGeneralization{SpecializationTopic: "RouteObjectiveTypeDup", SpecializationID: specID},
	}))
	require.NoError(t, root.Poll(ctx))

	routeWriter, err := mem.Writer("RouteObjectiveTypeDup", transport.ProfileCommand)
	require.NoError(t, err)
	require.NoError(t, routeWriter.Write(ctx, umaatypes.RouteObjectiveType{SpecializationReferenceID: specID, Speed: 9}))
	require.NoError(t, routeNode.Poll(ctx))

	got := waitEmission(t, done)
	base := got.combined.Base.(umaatypes.MissionCommandType)
	require.Equal(t, secondCmdID, base.CommandID, "the second, overwriting binding should be the one that completes")
}
