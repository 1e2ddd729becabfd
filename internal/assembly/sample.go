// Package assembly implements the read-side CombinedSample/OverlayView and
// write-side CombinedBuilder value types (spec §3, §4.C).
package assembly

import (
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// CombinedSample is the immutable, application-visible reassembly of a base
// message with its resolved specialization overlays and collections (spec
// §3). Every mutation returns a new instance; the zero value's Base is nil.
type CombinedSample struct {
	Base        any
	Collections map[string]map[string][]any // path.Key() -> collection name -> elements
	Overlays    map[string]any               // path.Key() -> specialization object
}

// NewCombinedSample wraps base with no overlays or collections.
func NewCombinedSample(base any) CombinedSample {
	return CombinedSample{
		Base:        base,
		Collections: map[string]map[string][]any{},
		Overlays:    map[string]any{},
	}
}

// WithOverlay returns a copy of cs with base replaced.
func (cs CombinedSample) WithOverlay(base any) CombinedSample {
	cs.Base = base
	return cs.clone()
}

// AddOverlayAt returns a copy of cs with a specialization object registered
// at path, shadowing base attributes there (spec §4.C).
func (cs CombinedSample) AddOverlayAt(path guidkey.AttributePath, spec any) CombinedSample {
	next := cs.clone()
	next.Overlays[path.Key()] = spec
	return next
}

// WithCollectionAt returns a copy of cs with a resolved collection (the
// elements of a Large Set or Large List) registered at path under name.
func (cs CombinedSample) WithCollectionAt(path guidkey.AttributePath, name string, elements []any) CombinedSample {
	next := cs.clone()
	byName, ok := next.Collections[path.Key()]
	if !ok {
		byName = map[string][]any{}
		next.Collections[path.Key()] = byName
	} else {
		// copy-on-write: don't mutate a map shared with a prior version.
		fresh := make(map[string][]any, len(byName)+1)
		for k, v := range byName {
			fresh[k] = v
		}
		byName = fresh
		next.Collections[path.Key()] = byName
	}
	byName[name] = elements
	return next
}

// MergeChildAt installs child as the overlay at path and additionally
// rebases any collections/overlays child itself carries (from its own
// nested Gen/Spec, Large Set, or Large List assembly) under path, so
// arbitrary nesting resolves transparently through OverlayView (spec §1
// "arbitrary nesting", §8 scenario 6).
func (cs CombinedSample) MergeChildAt(path guidkey.AttributePath, child CombinedSample) CombinedSample {
	next := cs.AddOverlayAt(path, child.Base)
	prefix := path.Key()
	for childPathKey, byName := range child.Collections {
		rebased := joinKeys(prefix, childPathKey)
		out, ok := next.Collections[rebased]
		if !ok {
			out = map[string][]any{}
		} else {
			fresh := make(map[string][]any, len(out))
			for k, v := range out {
				fresh[k] = v
			}
			out = fresh
		}
		for name, elems := range byName {
			out[name] = elems
		}
		next.Collections[rebased] = out
	}
	for childPathKey, spec := range child.Overlays {
		if childPathKey == "" {
			continue // already installed as the child's own overlay above
		}
		next.Overlays[joinKeys(prefix, childPathKey)] = spec
	}
	return next
}

func joinKeys(prefix, suffix string) string {
	switch {
	case prefix == "":
		return suffix
	case suffix == "":
		return prefix
	default:
		return prefix + "." + suffix
	}
}

// View returns an OverlayView rooted at path.
func (cs CombinedSample) View(path guidkey.AttributePath) OverlayView {
	return OverlayView{sample: cs, path: path}
}

// clone performs a shallow copy of the map fields so that WithOverlay et al.
// never alias a mutation back into a sample still held by another goroutine
// (spec §4.C invariant; value-like semantics).
func (cs CombinedSample) clone() CombinedSample {
	collections := make(map[string]map[string][]any, len(cs.Collections))
	for k, v := range cs.Collections {
		collections[k] = v
	}
	overlays := make(map[string]any, len(cs.Overlays))
	for k, v := range cs.Overlays {
		overlays[k] = v
	}
	return CombinedSample{Base: cs.Base, Collections: collections, Overlays: overlays}
}
