// Package guidkey provides hashable GUID wrappers and attribute-path helpers
// (spec §4.A). GUIDs are 16-octet opaque identifiers; the only operations the
// rest of the engine needs are "make this usable as a map key" and
// "compare two GUID-like values for equality regardless of wrapper type."
package guidkey

import (
	"reflect"

	"github.com/google/uuid"
)

// HashableGUID wraps a 16-octet identifier so it can be used directly as a
// Go map key (arrays are comparable; uuid.UUID already is one, but callers
// may hand us other 16-byte representations produced by a code generator).
type HashableGUID [16]byte

// NilGUID is the all-zero sentinel meaning "unassigned".
var NilGUID = HashableGUID{}

// IsNil reports whether g is the all-zero sentinel.
func (g HashableGUID) IsNil() bool {
	return g == NilGUID
}

// String renders the GUID in canonical UUID form for logging.
func (g HashableGUID) String() string {
	return uuid.UUID(g).String()
}

// New allocates a fresh random GUID.
func New() HashableGUID {
	return HashableGUID(uuid.New())
}

// GUIDLike is satisfied by any type whose underlying type is [16]byte: a
// HashableGUID itself, a uuid.UUID, or a plain [16]byte array. Byte slices
// do not satisfy it; Key accepts them at run time instead.
type GUIDLike interface {
	~[16]byte
}

// Key converts any GUID-like input into its hashable, comparable form. Types
// that are structurally [16]byte (HashableGUID, uuid.UUID, or an arbitrary
// generated-type alias of the same shape) convert directly; anything else
// falls back to reflection, which accepts a named 16-byte array type or a
// byte slice (first 16 bytes), possibly behind pointers. Any other value,
// including a struct that wraps a [16]byte field, yields NilGUID.
func Key(v any) HashableGUID {
	switch x := v.(type) {
	case HashableGUID:
		return x
	case uuid.UUID:
		return HashableGUID(x)
	case [16]byte:
		return HashableGUID(x)
	case []byte:
		var g HashableGUID
		copy(g[:], x)
		return g
	case nil:
		return NilGUID
	}

	// Reflective fallback: an array-of-16-bytes typed value, or a pointer to
	// one, produced by a generated type that doesn't import this package.
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return NilGUID
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Array && rv.Len() == 16 && rv.Type().Elem().Kind() == reflect.Uint8 {
		var g HashableGUID
		reflect.Copy(reflect.ValueOf(g[:]), rv)
		return g
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		var g HashableGUID
		n := rv.Len()
		if n > 16 {
			n = 16
		}
		reflect.Copy(reflect.ValueOf(g[:n]), rv.Slice(0, n))
		return g
	}
	return NilGUID
}

// Equal reports whether a and b name the same GUID regardless of wrapper
// type (e.g. a HashableGUID compared against a raw uuid.UUID).
func Equal(a, b any) bool {
	return Key(a) == Key(b)
}
