// Command umaa-demo wires a complete reader/writer assembly graph over the
// in-memory transport and publishes one mission command carrying a
// generalized objective plus a waypoint set, demonstrating the
// Generalization/Specialization and Large Set decomposition patterns
// end to end (spec §1, §4.D, §4.E).
package main

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/classify"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
	"github.com/triton-marine/umaa-assembly/internal/reader"
	"github.com/triton-marine/umaa-assembly/internal/taskpool"
	"github.com/triton-marine/umaa-assembly/internal/transport"
	"github.com/triton-marine/umaa-assembly/internal/umaatypes"
	"github.com/triton-marine/umaa-assembly/internal/writer"
)

const (
	topicMissionCommand  = "mission_command"
	topicRouteObjective  = "RouteObjectiveType"
	topicWaypointElement = "waypoint_set_element"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	describeScenario(logger)

	ctx := context.Background()
	mem := transport.NewMemory(logger)
	pool := taskpool.NewWorkerPool(4)
	defer pool.Close()

	assembled := make(chan struct {
		key      reader.AssemblyKey
		combined *assembly.CombinedSample
	}, 1)

	rootReader := buildReaderGraph(mem, pool, logger)
	rootReader.SetConsumer(func(key reader.AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo) {
		assembled <- struct {
			key      reader.AssemblyKey
			combined *assembly.CombinedSample
		}{key, combined}
	}, taskpool.High)

	rootWriter := buildWriterGraph(mem, logger)

	if err := publishSample(ctx, rootWriter); err != nil {
		logger.Error("publish failed", "error", err)
		os.Exit(1)
	}

	select {
	case result := <-assembled:
		mission := result.combined.Base.(*umaatypes.MissionCommandType)
		logger.Info("assembly complete",
			"assembly_key", result.key.String(),
			"mission_name", mission.MissionName)

		objective, err := result.combined.View(guidkey.Root).Attr("Objective")
		if err != nil {
			logger.Error("objective lookup failed", "error", err)
			return
		}
		speed, err := objective.(assembly.OverlayView).Attr("Speed")
		if err != nil {
			logger.Error("objective speed lookup failed", "error", err)
			return
		}
		logger.Info("resolved route objective", "speed", speed)

		waypoints, err := result.combined.View(guidkey.AttributePath{"WaypointSetMeta"}).Attr("Waypoints")
		if err != nil {
			logger.Error("waypoint collection lookup failed", "error", err)
			return
		}
		logger.Info("resolved waypoint set", "count", len(waypoints.([]any)))
	case <-time.After(2 * time.Second):
		logger.Error("assembly never completed")
		os.Exit(1)
	}
}

// describeScenario walks the generated-type registry with the classifier and
// logs what it discovers, standing in for the introspection a code generator
// or diagnostic tool would run before wiring a graph by hand (spec §4.B,
// §6).
func describeScenario(logger *slog.Logger) {
	registry := umaatypes.NewRegistry()

	paths, err := classify.Classify(reflect.TypeOf(umaatypes.MissionCommandType{}))
	if err != nil {
		logger.Error("classify failed", "error", err)
		return
	}
	for path, info := range paths {
		logger.Info("classified attribute path", "path", path, "concepts", info.Concepts)
	}

	specs, err := registry.SpecializationsOf(reflect.TypeOf(umaatypes.ObjectiveGeneralization{}))
	if err != nil {
		logger.Error("specialization discovery failed", "error", err)
		return
	}
	if len(specs) == 0 {
		logger.Warn("no specializations discovered for ObjectiveGeneralization")
	}
	for prefix, t := range specs {
		logger.Info("discovered specialization", "prefix", prefix, "type", t.Name())
	}

	elemType, err := registry.ResolveCollectionElementType("Waypoint", false)
	if err != nil {
		logger.Error("collection element resolution failed", "error", err)
		return
	}
	logger.Info("resolved set element type", "type", elemType.Name())
}

// buildWriterGraph wires a root WriterNode for MissionCommandType with a
// GenSpecWriter fanning Objective out to RouteObjectiveType and a
// LargeSetWriter fanning the waypoint collection out to its element topic
// (spec §4.E).
func buildWriterGraph(mem *transport.Memory, logger *slog.Logger) *writer.WriterNode {
	rootTr, err := mem.Writer(topicMissionCommand, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	root := writer.NewWriterNode(topicMissionCommand, rootTr, true, logger)

	specTr, err := mem.Writer(topicRouteObjective, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	specNode := writer.NewWriterNode(topicRouteObjective, specTr, true, logger)
	root.AttachChild("objective", topicRouteObjective, specNode)
	root.AttachDecorator(writer.NewGenSpecWriter("objective", guidkey.AttributePath{"Objective"}, nil, logger))

	elemTr, err := mem.Writer(topicWaypointElement, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	elemNode := writer.NewWriterNode(topicWaypointElement, elemTr, true, logger)
	root.AttachChild("waypoints", topicWaypointElement, elemNode)
	root.AttachDecorator(writer.NewLargeSetWriter("waypoints", "Waypoints", guidkey.AttributePath{"WaypointSetMeta"}, topicWaypointElement, logger))

	return root
}

// buildReaderGraph mirrors buildWriterGraph on the read side, sharing the
// worker pool so completed-sample callbacks never run on a transport-owned
// goroutine (spec §5).
func buildReaderGraph(mem *transport.Memory, pool taskpool.Pool, logger *slog.Logger) *reader.ReaderNode {
	rootTr, err := mem.Reader(topicMissionCommand, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	root := reader.NewReaderNode(topicMissionCommand, rootTr, logger, pool)

	specTr, err := mem.Reader(topicRouteObjective, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	specNode := reader.NewReaderNode(topicRouteObjective, specTr, logger, pool)
	root.AttachChild("objective", topicRouteObjective, specNode)
	root.AttachDecorator(reader.NewGenSpecReader("objective", guidkey.AttributePath{"Objective"}, logger))

	elemTr, err := mem.Reader(topicWaypointElement, transport.ProfileReport)
	if err != nil {
		panic(err)
	}
	elemNode := reader.NewReaderNode(topicWaypointElement, elemTr, logger, pool)
	root.AttachChild("waypoints", topicWaypointElement, elemNode)
	root.AttachDecorator(reader.NewLargeSetReader("waypoints", "Waypoints", guidkey.AttributePath{"WaypointSetMeta"}, logger))

	return root
}

// publishSample builds one mission command with a route objective and three
// waypoints and drives it through the writer graph.
func publishSample(ctx context.Context, root *writer.WriterNode) error {
	b := assembly.NewCombinedBuilder(&umaatypes.MissionCommandType{MissionName: "patrol-alpha"})
	b.UseSpecializationAt(guidkey.AttributePath{"Objective"}, &umaatypes.RouteObjectiveType{Speed: 12.5, Heading: 90})

	collAny, err := b.EnsureCollection(guidkey.AttributePath{"WaypointSetMeta"}, "Waypoints", assembly.KindSet)
	if err != nil {
		return err
	}
	set := collAny.(*assembly.SetCollection)
	waypoints := []umaatypes.Waypoint{
		{Latitude: 37.8, Longitude: -122.4, AltitudeM: 0},
		{Latitude: 37.9, Longitude: -122.5, AltitudeM: 10},
		{Latitude: 38.0, Longitude: -122.6, AltitudeM: 5},
	}
	for i := range waypoints {
		set.Put(guidkey.New(), &umaatypes.WaypointSetElement{Element: &waypoints[i]})
	}

	return root.Publish(ctx, b)
}
