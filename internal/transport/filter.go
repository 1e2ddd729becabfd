package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FilterExpression builds a content-filter expression over field paths and
// hex-literal parameters, used by upper layers (command façades, out of
// scope for this engine) to scope a FilteredReader to a destination (spec
// §6: "field = &hex(...) and boolean AND/OR"). The engine's core never
// constructs or evaluates these; Provider has no filtered-reader method, and
// a FilteredReader reaches the engine only as a plain Reader.
type FilterExpression struct {
	expr string
}

// HexEq builds "field = &hex(<hex-encoded value>)".
func HexEq(field string, value []byte) FilterExpression {
	return FilterExpression{expr: fmt.Sprintf("%s = &hex(%s)", field, hex.EncodeToString(value))}
}

// And combines expressions with a boolean AND.
func And(exprs ...FilterExpression) FilterExpression {
	return combine("AND", exprs)
}

// Or combines expressions with a boolean OR.
func Or(exprs ...FilterExpression) FilterExpression {
	return combine("OR", exprs)
}

func combine(op string, exprs []FilterExpression) FilterExpression {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = "(" + e.expr + ")"
	}
	return FilterExpression{expr: strings.Join(parts, " "+op+" ")}
}

func (e FilterExpression) String() string { return e.expr }

// FilteredReader is a Reader additionally scoped by a FilterExpression.
type FilteredReader interface {
	Reader
	Expression() FilterExpression
}
