package umaatypes

import "github.com/triton-marine/umaa-assembly/internal/classify"

// NewRegistry builds the classifier registry for this package's generated
// types, the way a real codegen step would emit a manifest of every type it
// produced (spec §9: "generate the classification table during type
// generation").
func NewRegistry() *classify.Registry {
	r := classify.NewRegistry()
	r.Register(
		MissionCommandType{},
		ObjectiveGeneralization{},
		RouteObjectiveType{},
		LoiterObjectiveType{},
		WaypointSetMetadata{},
		WaypointSetElement{},
		WaypointListMetadata{},
		WaypointListElement{},
		Waypoint{},
		NestedSpecializationType{},
	)
	return r
}
