// Package umaatypes stands in for the types a UMAA interface-definition code
// generator would emit (spec §6, "Classifier → Generated Types"). Real
// generated types additionally carry wire marshal/unmarshal methods (see
// kernel/gen/... in the teacher, which pairs generated types with Cap'n
// Proto bindings); this package keeps the generated-type shape the
// classifier and graphs need — exported fields matching the UMAA concept
// names below — without a wire codec of its own, since this engine's scope
// ends at the Transport interface (spec §1 Non-goals: no wire format) and
// the classifier itself only ever requires field names, never a marshaler.
//
// The scenario modeled is a maritime mission command: a base command
// carries a route-objective generalization and a waypoint collection that
// can be assembled as either a Large Set or a Large List depending on the
// topic configuration chosen by the application.
package umaatypes

import "github.com/triton-marine/umaa-assembly/internal/guidkey"

// MissionCommandType is the root ("base") message of the assembly: it
// carries a generalized objective and a waypoint collection's metadata.
type MissionCommandType struct {
	CommandID         guidkey.HashableGUID
	MissionName       string
	Objective         ObjectiveGeneralization
	WaypointSetMeta   WaypointSetMetadata
	WaypointListMeta  WaypointListMetadata
}

// ObjectiveGeneralization is the Generalization-concept object: it points
// at a specialization published on a separate topic.
type ObjectiveGeneralization struct {
	SpecializationTopic     string
	SpecializationID        guidkey.HashableGUID
	SpecializationTimestamp *int64
}

// RouteObjectiveType is one specialization of ObjectiveGeneralization
// ("Route" is the naming-convention prefix; "ObjectiveType", derived from
// "ObjectiveGeneralization", is the suffix match — see TestSpecializationsOf).
type RouteObjectiveType struct {
	SpecializationReferenceID        guidkey.HashableGUID
	SpecializationReferenceTimestamp *int64
	Speed                            float64
	Heading                          float64
}

// LoiterObjectiveType is a second, simpler specialization used to exercise
// specialization discovery with more than one candidate.
type LoiterObjectiveType struct {
	SpecializationReferenceID        guidkey.HashableGUID
	SpecializationReferenceTimestamp *int64
	RadiusMeters                     float64
}

// WaypointSetMetadata is the LargeSetMetadata-concept object.
type WaypointSetMetadata struct {
	SetID                  guidkey.HashableGUID
	UpdateElementID        guidkey.HashableGUID
	UpdateElementTimestamp *int64
	Size                   int32
}

// WaypointSetElement is the LargeSetElement-concept object published on the
// waypoint element topic.
type WaypointSetElement struct {
	Element         *Waypoint
	SetID           guidkey.HashableGUID
	ElementID       guidkey.HashableGUID
	ElementTimestamp *int64
}

// WaypointListMetadata is the LargeListMetadata-concept object.
type WaypointListMetadata struct {
	ListID                  guidkey.HashableGUID
	UpdateElementID         guidkey.HashableGUID
	UpdateElementTimestamp  *int64
	StartingElementID       guidkey.HashableGUID
	Size                    int32
}

// WaypointListElement is the LargeListElement-concept object published on
// the waypoint element topic, chained via NextElementID.
type WaypointListElement struct {
	Element          *Waypoint
	ListID           guidkey.HashableGUID
	ElementID        guidkey.HashableGUID
	ElementTimestamp *int64
	NextElementID    guidkey.HashableGUID
}

// Waypoint is the plain payload carried by each set/list element; it has no
// UMAA concept fields of its own.
type Waypoint struct {
	Latitude  float64
	Longitude float64
	AltitudeM float64
}

// NestedSpecializationType demonstrates arbitrary nesting (spec §1/§8
// scenario 6): a specialization that itself carries a Large List.
type NestedSpecializationType struct {
	SpecializationReferenceID        guidkey.HashableGUID
	SpecializationReferenceTimestamp *int64
	WaypointListMeta                 WaypointListMetadata
}
