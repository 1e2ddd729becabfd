package guidkey

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/triton-marine/umaa-assembly/internal/errs"
)

// AttributePath is an ordered sequence of field-name segments. The empty
// path refers to the root object. Paths are used to scope overlays and
// collections to a nested location within a base object (spec §3).
//
// AttributePath is a plain string slice rather than a linked structure. Go
// slices are not comparable, so callers needing it as a map key should call
// Key().
type AttributePath []string

// Root is the empty attribute path.
var Root = AttributePath{}

// Child returns a new path with segment appended. The receiver is never
// mutated.
func (p AttributePath) Child(segment string) AttributePath {
	out := make(AttributePath, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// Join returns a new path with suffix appended after the receiver's
// segments, matching the writer-side "elementPath ++ attrPath" composition
// used by LargeSetWriter/LargeListWriter (spec §4.E).
func (p AttributePath) Join(suffix AttributePath) AttributePath {
	out := make(AttributePath, 0, len(p)+len(suffix))
	out = append(out, p...)
	out = append(out, suffix...)
	return out
}

// Key renders the path as a string suitable for use as a map key.
func (p AttributePath) Key() string {
	return strings.Join(p, ".")
}

func (p AttributePath) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	return p.Key()
}

// PathForSetElement produces the attribute path scoping a Large Set
// element, by convention "<setName>[<elementID>]" (spec §4.A).
func PathForSetElement(setName string, elementID HashableGUID) AttributePath {
	return AttributePath{fmt.Sprintf("%s[%s]", setName, elementID.String())}
}

// PathForListElement produces the attribute path scoping a Large List
// element, mirroring PathForSetElement.
func PathForListElement(listName string, elementID HashableGUID) AttributePath {
	return AttributePath{fmt.Sprintf("%s[%s]", listName, elementID.String())}
}

// GetAtPath walks named attributes of root following path, returning the
// leaf value. Each segment is resolved as an exported struct field by name;
// pointers are dereferenced along the way. An empty path returns root
// unchanged.
func GetAtPath(root any, path AttributePath) (any, error) {
	v := reflect.ValueOf(root)
	for _, segment := range path {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, errs.ContractViolation("nil pointer while resolving path " + path.String()).WithContext("segment", segment)
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, errs.ContractViolation("cannot descend into non-struct while resolving path " + path.String())
		}
		fv := v.FieldByName(segment)
		if !fv.IsValid() {
			return nil, errs.ContractViolation(fmt.Sprintf("field %q not found while resolving path %s", segment, path.String()))
		}
		v = fv
	}
	if !v.IsValid() {
		return nil, errs.ContractViolation("path resolved to invalid value: " + path.String())
	}
	return v.Interface(), nil
}

// SetAtPath sets the leaf named by path on root to value. root must be a
// pointer so the mutation is visible to the caller.
func SetAtPath(root any, path AttributePath, value any) error {
	v := reflect.ValueOf(root)
	if v.Kind() != reflect.Ptr {
		return errs.ContractViolation("SetAtPath requires a pointer root")
	}
	v = v.Elem()
	for i, segment := range path {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return errs.ContractViolation("nil pointer while resolving path " + path.String())
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return errs.ContractViolation("cannot descend into non-struct while resolving path " + path.String())
		}
		fv := v.FieldByName(segment)
		if !fv.IsValid() {
			return errs.ContractViolation(fmt.Sprintf("field %q not found while resolving path %s", segment, path.String()))
		}
		if i == len(path)-1 {
			rv := reflect.ValueOf(value)
			if !fv.CanSet() {
				return errs.ContractViolation("field " + segment + " is not settable")
			}
			if rv.Type() != fv.Type() && rv.Type().ConvertibleTo(fv.Type()) {
				rv = rv.Convert(fv.Type())
			}
			fv.Set(rv)
			return nil
		}
		v = fv
	}
	return errs.ContractViolation("empty path passed to SetAtPath")
}
