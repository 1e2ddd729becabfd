package assembly

import (
	"strings"

	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// CollectionKind distinguishes the two collection containers a
// CombinedBuilder can hold at a path (spec §4.C).
type CollectionKind int

const (
	KindSet CollectionKind = iota
	KindList
)

// SetCollection is the write-side container for a Large Set, keyed by
// elementID (spec §4.C: "explicit SetCollection ... containers keyed by
// elementID").
type SetCollection struct {
	order    []guidkey.HashableGUID
	elements map[guidkey.HashableGUID]any
}

// NewSetCollection creates an empty set collection.
func NewSetCollection() *SetCollection {
	return &SetCollection{elements: map[guidkey.HashableGUID]any{}}
}

// Put inserts or replaces the element keyed by id.
func (s *SetCollection) Put(id guidkey.HashableGUID, elem any) {
	if _, exists := s.elements[id]; !exists {
		s.order = append(s.order, id)
	}
	s.elements[id] = elem
}

// Elements returns the set's elements in insertion order. Order is not part
// of the spec's contract for Large Sets but is kept deterministic for
// testability.
func (s *SetCollection) Elements() []any {
	out := make([]any, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.elements[id])
	}
	return out
}

// IDs returns the element IDs in insertion order.
func (s *SetCollection) IDs() []guidkey.HashableGUID {
	out := make([]guidkey.HashableGUID, len(s.order))
	copy(out, s.order)
	return out
}

// Len reports the number of elements currently in the collection.
func (s *SetCollection) Len() int { return len(s.order) }

// ListCollection is the write-side container for a Large List, ordered by
// insertion order (spec §4.C: "by insertion order (list)").
type ListCollection struct {
	elements []any
}

// NewListCollection creates an empty list collection.
func NewListCollection() *ListCollection {
	return &ListCollection{}
}

// Append adds elem to the end of the list.
func (l *ListCollection) Append(elem any) {
	l.elements = append(l.elements, elem)
}

// Elements returns the list's elements in order.
func (l *ListCollection) Elements() []any {
	out := make([]any, len(l.elements))
	copy(out, l.elements)
	return out
}

// Len reports the number of elements currently in the collection.
func (l *ListCollection) Len() int { return len(l.elements) }

// CombinedBuilder is the mutable write-side counterpart of CombinedSample
// (spec §4.C).
type CombinedBuilder struct {
	Base        any
	path        guidkey.AttributePath
	collections map[string]map[string]any // path.Key() -> collection name -> *SetCollection|*ListCollection
	overlays    map[string]any            // path.Key() -> specialization object
}

// NewCombinedBuilder creates a root builder around base.
func NewCombinedBuilder(base any) *CombinedBuilder {
	return &CombinedBuilder{
		Base:        base,
		path:        guidkey.Root,
		collections: map[string]map[string]any{},
		overlays:    map[string]any{},
	}
}

// Path returns the path this builder is scoped to. It is the root path both
// for a top-level builder and for one produced by SpawnChild, whose maps are
// rebased so that paths are relative to the child's own Base.
func (b *CombinedBuilder) Path() guidkey.AttributePath {
	return b.path
}

// EnsureCollection idempotently creates the named collection at path of the
// given kind, returning the existing one if already present. Mismatched
// kinds are a configuration error.
func (b *CombinedBuilder) EnsureCollection(path guidkey.AttributePath, name string, kind CollectionKind) (any, error) {
	byName, ok := b.collections[path.Key()]
	if !ok {
		byName = map[string]any{}
		b.collections[path.Key()] = byName
	}
	if existing, ok := byName[name]; ok {
		switch kind {
		case KindSet:
			if _, ok := existing.(*SetCollection); !ok {
				return nil, errs.Configuration("collection " + name + " at " + path.String() + " already exists with a different kind")
			}
		case KindList:
			if _, ok := existing.(*ListCollection); !ok {
				return nil, errs.Configuration("collection " + name + " at " + path.String() + " already exists with a different kind")
			}
		}
		return existing, nil
	}
	var created any
	switch kind {
	case KindSet:
		created = NewSetCollection()
	case KindList:
		created = NewListCollection()
	}
	byName[name] = created
	return created, nil
}

// Collection returns the named collection at path, if any.
func (b *CombinedBuilder) Collection(path guidkey.AttributePath, name string) (any, bool) {
	byName, ok := b.collections[path.Key()]
	if !ok {
		return nil, false
	}
	c, ok := byName[name]
	return c, ok
}

// UseSpecializationAt registers spec as the specialization object for the
// generalization located at path.
func (b *CombinedBuilder) UseSpecializationAt(path guidkey.AttributePath, spec any) {
	b.overlays[path.Key()] = spec
}

// OverlayAt returns the specialization registered at path, if any.
func (b *CombinedBuilder) OverlayAt(path guidkey.AttributePath) (any, bool) {
	s, ok := b.overlays[path.Key()]
	return s, ok
}

// SpawnChild returns a child builder whose Base is elem and whose
// collections/overlays are rebased to the slice of the parent's maps under
// elemPath: every entry whose path has elemPath as a prefix is copied into
// the child with elemPath stripped off, so the child sees paths relative to
// itself exactly as a root builder would. Entries outside elemPath's subtree
// are never copied, so concurrent siblings spawned from the same parent for
// different elements are independent (spec §4.C invariant).
func (b *CombinedBuilder) SpawnChild(elemPath guidkey.AttributePath, elem any) *CombinedBuilder {
	child := &CombinedBuilder{
		Base:        elem,
		path:        guidkey.Root,
		collections: map[string]map[string]any{},
		overlays:    map[string]any{},
	}
	prefix := elemPath.Key()

	for key, byName := range b.collections {
		rel, ok := stripPrefix(key, prefix)
		if !ok {
			continue
		}
		copied := make(map[string]any, len(byName))
		for k, v := range byName {
			copied[k] = v
		}
		child.collections[rel] = copied
	}
	for key, spec := range b.overlays {
		rel, ok := stripPrefix(key, prefix)
		if !ok {
			continue
		}
		child.overlays[rel] = spec
	}
	return child
}

// stripPrefix reports whether key (a dotted path string) lies within the
// subtree rooted at prefix, and if so returns the remaining suffix key.
func stripPrefix(key, prefix string) (string, bool) {
	if prefix == "" {
		return key, true
	}
	if key == prefix {
		return "", true
	}
	if strings.HasPrefix(key, prefix+".") {
		return strings.TrimPrefix(key, prefix+"."), true
	}
	return "", false
}

// Snapshot materializes the builder's state into an immutable CombinedSample,
// letting tests observe what a builder holds without a real wire format.
func (b *CombinedBuilder) Snapshot() CombinedSample {
	cs := NewCombinedSample(b.Base)
	for pathKey, spec := range b.overlays {
		cs.Overlays[pathKey] = spec
	}
	for pathKey, byName := range b.collections {
		out := map[string][]any{}
		for name, coll := range byName {
			switch c := coll.(type) {
			case *SetCollection:
				out[name] = c.Elements()
			case *ListCollection:
				out[name] = c.Elements()
			}
		}
		cs.Collections[pathKey] = out
	}
	return cs
}
