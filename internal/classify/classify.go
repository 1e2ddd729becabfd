// Package classify walks a generated UMAA message type and labels each
// reachable attribute path with the UMAA concepts it satisfies (spec §4.B).
//
// The source implementation used runtime reflection/duck typing; per the
// redesign note in spec §9 this Go port uses build-time schema
// introspection instead: concept membership is still computed by inspecting
// exported field names (Go has no compile-time code-generation hook this
// module can reach into), but specialization discovery does NOT use
// isinstance-style dynamic typing — it walks an explicit Registry that
// stands in for the generated-type manifest a real codegen step would emit.
package classify

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// Concept is a closed enumeration of the UMAA decomposition patterns a
// generated type's attributes can satisfy (spec §3).
type Concept string

const (
	Generalization    Concept = "Generalization"
	Specialization    Concept = "Specialization"
	LargeSetMetadata  Concept = "LargeSetMetadata"
	LargeSetElement   Concept = "LargeSetElement"
	LargeListMetadata Concept = "LargeListMetadata"
	LargeListElement  Concept = "LargeListElement"
)

// requiredFields lists the Go-exported field names each concept requires.
// Field names are PascalCase renderings of the spec's camelCase attribute
// names (SpecializationTopic for specializationTopic, and so on).
var requiredFields = map[Concept][]string{
	Generalization:    {"SpecializationTopic", "SpecializationID", "SpecializationTimestamp"},
	Specialization:    {"SpecializationReferenceID", "SpecializationReferenceTimestamp"},
	LargeSetMetadata:  {"SetID", "UpdateElementID", "UpdateElementTimestamp", "Size"},
	LargeSetElement:   {"Element", "SetID", "ElementID", "ElementTimestamp"},
	LargeListMetadata: {"ListID", "UpdateElementID", "UpdateElementTimestamp", "StartingElementID", "Size"},
	LargeListElement:  {"Element", "ListID", "ElementID", "ElementTimestamp", "NextElementID"},
}

// conceptOrder fixes iteration order so subset comparisons and output are
// deterministic.
var conceptOrder = []Concept{
	LargeListElement, LargeSetElement, LargeListMetadata, LargeSetMetadata, Specialization, Generalization,
}

// PathInfo is the classifier's per-path result: the (most-specific) concepts
// an object at that path satisfies, plus the concrete type for later
// reflective construction by reader/writer decorators.
type PathInfo struct {
	Concepts []Concept
	GoType   reflect.Type
}

// Has reports whether the path was classified with the given concept.
func (pi PathInfo) Has(c Concept) bool {
	for _, have := range pi.Concepts {
		if have == c {
			return true
		}
	}
	return false
}

var guidType = reflect.TypeOf(guidkey.HashableGUID{})

// Classify performs a breadth-first walk over T's attribute graph and
// returns a map from attribute path (by AttributePath.Key()) to the concepts
// satisfied at that path, skipping primitives, strings, and nil-typed
// fields. T may be a struct type or a pointer to one.
func Classify(t reflect.Type) (map[string]PathInfo, error) {
	result := make(map[string]PathInfo)
	t = deref(t)
	if t.Kind() != reflect.Struct {
		return nil, errs.Configuration("classify: root type must be a struct, got " + t.Kind().String())
	}

	type queueItem struct {
		path  guidkey.AttributePath
		t     reflect.Type
		chain map[reflect.Type]bool // types already visited on this root-to-node chain, cycle guard
	}

	queue := []queueItem{{path: guidkey.Root, t: t, chain: map[reflect.Type]bool{t: true}}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		concepts := classifyOne(item.t)
		if len(concepts) > 0 {
			result[item.path.Key()] = PathInfo{Concepts: concepts, GoType: item.t}
		}

		for i := 0; i < item.t.NumField(); i++ {
			f := item.t.Field(i)
			if !f.IsExported() {
				continue
			}
			ft := deref(f.Type)
			if ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array {
				elem := deref(ft.Elem())
				if elem.Kind() == reflect.Struct && elem != guidType {
					ft = elem
				} else {
					continue
				}
			}
			if ft.Kind() != reflect.Struct || ft == guidType {
				continue
			}
			if item.chain[ft] {
				continue // cycle guard
			}
			childChain := make(map[reflect.Type]bool, len(item.chain)+1)
			for k := range item.chain {
				childChain[k] = true
			}
			childChain[ft] = true
			queue = append(queue, queueItem{path: item.path.Child(f.Name), t: ft, chain: childChain})
		}
	}

	return result, nil
}

// classifyOne returns the most-specific concepts a single struct type
// satisfies: a concept matches if every one of its required fields is
// present by name on t; a matched concept is dropped if another matched
// concept's required-field set is a strict superset of it (spec §3,
// "most-specific wins").
func classifyOne(t reflect.Type) []Concept {
	fieldSet := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.IsExported() {
			fieldSet[f.Name] = true
		}
	}

	var matched []Concept
	for _, c := range conceptOrder {
		req := requiredFields[c]
		ok := true
		for _, r := range req {
			if !fieldSet[r] {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, c)
		}
	}

	var mostSpecific []Concept
	for _, c := range matched {
		subsumed := false
		for _, other := range matched {
			if other == c {
				continue
			}
			if isProperSubset(requiredFields[c], requiredFields[other]) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			mostSpecific = append(mostSpecific, c)
		}
	}
	sort.Slice(mostSpecific, func(i, j int) bool { return mostSpecific[i] < mostSpecific[j] })
	return mostSpecific
}

func isProperSubset(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	bset := make(map[string]bool, len(b))
	for _, x := range b {
		bset[x] = true
	}
	for _, x := range a {
		if !bset[x] {
			return false
		}
	}
	return true
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Registry stands in for the manifest a real UMAA code generator would
// emit: the set of generated message types reachable by name, used to
// discover specializations and collection element types without dynamic
// isinstance checks.
type Registry struct {
	byName map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]reflect.Type)}
}

// Register adds one or more generated types to the registry, keyed by their
// Go type name. Pass zero values or nil pointers of the types to register;
// only the type is retained.
func (r *Registry) Register(samples ...any) {
	for _, s := range samples {
		t := deref(reflect.TypeOf(s))
		r.byName[t.Name()] = t
	}
}

// Lookup returns the registered type named name, if any.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// generalizationSuffix is the required suffix on a generated Generalization
// concept's type name (e.g. "ObjectiveGeneralization").
const generalizationSuffix = "Generalization"

// SpecializationsOf finds all registered types matching the naming rule
// "<prefix><base>Type" for the generalization type g (spec §4.B.2), where
// base is g's name with its "Generalization" suffix stripped (e.g.
// "ObjectiveGeneralization" -> base "Objective", so "RouteObjectiveType" and
// "LoiterObjectiveType" both match with prefixes "Route" and "Loiter"). The
// prefix must be non-empty, and the candidate type must itself satisfy the
// Specialization concept. Returns a map from prefix ("short name") to type.
// Duplicate prefixes, matches that are not actually specializations, or a
// g whose name doesn't end in "Generalization" are a fatal ConfigurationError.
func (r *Registry) SpecializationsOf(g reflect.Type) (map[string]reflect.Type, error) {
	g = deref(g)
	gName := g.Name()
	if !strings.HasSuffix(gName, generalizationSuffix) {
		return nil, errs.Configuration(fmt.Sprintf(
			"type %s does not end in %q, so it cannot be resolved as a Generalization concept", gName, generalizationSuffix))
	}
	base := strings.TrimSuffix(gName, generalizationSuffix)
	suffix := base + "Type"
	out := make(map[string]reflect.Type)

	for name, t := range r.byName {
		if name == gName || !strings.HasSuffix(name, suffix) {
			continue
		}
		prefix := strings.TrimSuffix(name, suffix)
		if prefix == "" {
			continue
		}
		if !hasConcept(classifyOne(t), Specialization) {
			return nil, errs.Configuration(fmt.Sprintf(
				"type %s matches naming convention for specializations of %s but does not satisfy the Specialization concept", name, gName))
		}
		if existing, ok := out[prefix]; ok {
			return nil, errs.Configuration(fmt.Sprintf(
				"duplicate specialization short name %q for %s: %s and %s both match", prefix, gName, existing.Name(), name))
		}
		out[prefix] = t
	}
	return out, nil
}

func hasConcept(concepts []Concept, c Concept) bool {
	for _, have := range concepts {
		if have == c {
			return true
		}
	}
	return false
}

// ResolveCollectionElementType locates the element type for a Large
// Set/List attribute base name (e.g. "Waypoint"), per spec §4.B.3: strip a
// trailing "SetMetadata"/"ListMetadata" from baseName, capitalize the
// result, then look up "<Base>SetElement" or "<Base>ListElement" in the
// registry. Only the registry is searched; no parent type is consulted.
func (r *Registry) ResolveCollectionElementType(baseName string, list bool) (reflect.Type, error) {
	suffix := "SetElement"
	if list {
		suffix = "ListElement"
	}
	base := strings.TrimSuffix(strings.TrimSuffix(baseName, "SetMetadata"), "ListMetadata")
	if base != "" {
		base = strings.ToUpper(base[:1]) + base[1:]
	}
	name := base + suffix
	t, ok := r.byName[name]
	if !ok {
		return nil, errs.Configuration("no registered element type named " + name)
	}
	return t, nil
}
