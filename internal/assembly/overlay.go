package assembly

import (
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// OverlayView is a read projection of a CombinedSample rooted at an
// AttributePath, giving specialization-wins-over-base attribute lookup
// scoped to that path (spec §3, §4.C).
type OverlayView struct {
	sample CombinedSample
	path   guidkey.AttributePath
}

// Path returns the path this view is scoped to.
func (v OverlayView) Path() guidkey.AttributePath {
	return v.path
}

// Attr resolves attribute name according to the precedence in spec §3:
//  1. a nested overlay registered at path+[name] — return a scoped view;
//  2. the overlay registered at the current path has a field named name;
//  3. else the base object at the current path has a field named name;
//  4. else name names a collection registered at the current path;
//  5. else lookup fails.
func (v OverlayView) Attr(name string) (any, error) {
	childPath := v.path.Child(name)
	if _, ok := v.sample.Overlays[childPath.Key()]; ok {
		return OverlayView{sample: v.sample, path: childPath}, nil
	}

	if overlay, ok := v.sample.Overlays[v.path.Key()]; ok {
		if val, err := guidkey.GetAtPath(overlay, guidkey.AttributePath{name}); err == nil {
			return val, nil
		}
	}

	base, err := v.currentBase()
	if err == nil {
		if val, err2 := guidkey.GetAtPath(base, guidkey.AttributePath{name}); err2 == nil {
			return val, nil
		}
	}

	if byName, ok := v.sample.Collections[v.path.Key()]; ok {
		if list, ok2 := byName[name]; ok2 {
			return list, nil
		}
	}

	return nil, errs.ContractViolation("attribute " + name + " not found at path " + v.path.String())
}

// currentBase resolves the base object at v's path (the generalization's own
// field, before any overlay is applied).
func (v OverlayView) currentBase() (any, error) {
	return guidkey.GetAtPath(v.sample.Base, v.path)
}
