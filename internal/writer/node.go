// Package writer implements the write-side fan-out runtime (spec §4.E):
// WriterNode wraps one transport writer plus ordered decorators for the
// Generalization/Specialization, Large Set, and Large List UMAA patterns,
// each owning child WriterNodes keyed by topic name.
package writer

import (
	"context"
	"log/slog"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/transport"
)

// Decorator fans a publish out to child writer nodes and mutates the
// builder's base in place (installing GUIDs, size, update markers, chain
// links, and generalization pointers) before the node writes its own base
// (spec §4.E).
type Decorator interface {
	Role() string
	Publish(ctx context.Context, n *WriterNode, b *assembly.CombinedBuilder) error
}

// WriterNode holds one transport writer and an ordered set of decorators,
// each owning child WriterNodes keyed by topic name (spec §4.E
// "WriterNode").
type WriterNode struct {
	name       string
	writer     transport.Writer
	logger     *slog.Logger
	writesBase bool

	decoratorOrder []string
	decorators     map[string]Decorator
	children       map[string]map[string]*WriterNode // role -> topic -> node
}

// NewWriterNode creates a node wrapping wr, named for logging. writesBase
// is true for every node except a pure meta-coordinator that exists only to
// fan out to children without itself owning a topic (spec §4.E step 2).
func NewWriterNode(name string, wr transport.Writer, writesBase bool, logger *slog.Logger) *WriterNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriterNode{
		name:       name,
		writer:     wr,
		writesBase: writesBase,
		logger:     logger.With("component", "writer_node", "node", name),
		decorators: map[string]Decorator{},
		children:   map[string]map[string]*WriterNode{},
	}
}

// AttachDecorator installs d under its own role, in registration order.
// Registration order is significant: when a base field depends on a
// child's published identity, that decorator must precede any that also
// mutates the same field (spec §4.E).
func (n *WriterNode) AttachDecorator(d Decorator) {
	role := d.Role()
	if _, exists := n.decorators[role]; !exists {
		n.decoratorOrder = append(n.decoratorOrder, role)
	}
	n.decorators[role] = d
}

// AttachChild installs child under role/topic so a decorator registered
// under role can resolve it by ResolveChild.
func (n *WriterNode) AttachChild(role, topic string, child *WriterNode) {
	if n.children[role] == nil {
		n.children[role] = map[string]*WriterNode{}
	}
	n.children[role][topic] = child
}

// ResolveChild looks up the child registered under role/topic.
func (n *WriterNode) ResolveChild(role, topic string) (*WriterNode, bool) {
	byTopic, ok := n.children[role]
	if !ok {
		return nil, false
	}
	child, ok := byTopic[topic]
	return child, ok
}

// Publish drives one publish cycle: each decorator runs in registration
// order, then (if this node writes its own base) the transport writer is
// called with b.Base (spec §4.E "WriterNode.publish").
func (n *WriterNode) Publish(ctx context.Context, b *assembly.CombinedBuilder) error {
	for _, role := range n.decoratorOrder {
		if err := n.decorators[role].Publish(ctx, n, b); err != nil {
			return err
		}
	}
	if n.writesBase {
		return n.writer.Write(ctx, b.Base)
	}
	return nil
}

// Logger exposes the node's logger so decorators can log consistently.
func (n *WriterNode) Logger() *slog.Logger { return n.logger }
