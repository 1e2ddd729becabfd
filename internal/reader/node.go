// Package reader implements the read-side assembly runtime (spec §4.D):
// ReaderNode wraps one transport reader plus ordered decorators for the
// Generalization/Specialization, Large Set, and Large List UMAA patterns,
// and bubbles completed combined samples up to a parent node or the
// top-level application listener.
package reader

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
	"github.com/triton-marine/umaa-assembly/internal/taskpool"
	"github.com/triton-marine/umaa-assembly/internal/transport"
)

// DefaultMaxInFlight bounds the number of concurrently in-flight assembly
// keys a ReaderNode tracks before it starts evicting the least recently
// touched one (spec §9 Open Question 3). Override via SetMaxInFlight.
const DefaultMaxInFlight = 10000

// droppedFilterEstimate and droppedFilterFPRate size the Bloom filter that
// backs the dropped-assembly late-arrival check; it only ever needs to hold
// recently-evicted keys, not the node's full lifetime history (mirroring the
// teacher's peerCacheTTL eviction window rather than an unbounded set).
const (
	droppedFilterEstimate = uint(DefaultMaxInFlight)
	droppedFilterFPRate   = 0.01
)

// AssemblyKey opaquely identifies one in-flight combined sample at a node
// (spec glossary: "Assembly Key").
type AssemblyKey = guidkey.HashableGUID

// KeyFunc mints an assembly key for a freshly-arrived raw sample. The
// default (see NewReaderNode) mints a new synthetic key per arrival; nodes
// that need stable correlation across re-publishes may supply their own.
type KeyFunc func(sample any, info transport.SampleInfo) AssemblyKey

// Decorator is a stateful participant implementing one UMAA concept on a
// ReaderNode (spec §4.D / glossary "Decorator"). Decorators consume the raw
// sample already folded into the node's per-key CombinedSample (via the
// node's accessor methods) and/or an attached child's earlier-assembled
// sample, and report whether their role is now complete for key.
//
// Implementations live alongside ReaderNode in this package (rather than
// behind a narrower per-concept interface split across packages) because
// they need privileged access to the node's per-key assembly state, exactly
// as the teacher's gossip/DHT/reputation managers are siblings of
// MeshCoordinator inside one package rather than plugins behind a public
// boundary.
type Decorator interface {
	// Role names this decorator for child-linkage and completion tracking.
	Role() string
	// OnReaderData is invoked after a raw sample has been folded into the
	// node's state for key; it inspects/mutates that state via the node's
	// accessor methods and reports whether its role is complete for key.
	OnReaderData(ctx context.Context, n *ReaderNode, key AssemblyKey) (complete bool, err error)
	// OnChildAssembled is invoked when a child ReaderNode attached under
	// this decorator's role completes a sample. Unlike OnReaderData, there
	// is no single "current key" in scope — the decorator must resolve
	// which parent assembly key(s) the child's identity maps to from its
	// own internal state and call n.MarkComplete itself.
	OnChildAssembled(ctx context.Context, n *ReaderNode, childName string, child assembly.CombinedSample) error
}

// assemblyState is the per-in-flight-sample bookkeeping a node keeps (spec
// §3 "Assembly state").
type assemblyState struct {
	combined  assembly.CombinedSample
	completed map[string]bool
	lastInfo  transport.SampleInfo
}

// ReaderNode wraps one transport reader, its ordered decorators, and the
// child nodes each decorator owns (spec §4.D).
type ReaderNode struct {
	name   string
	reader transport.Reader
	logger *slog.Logger
	pool   taskpool.Pool

	mu             sync.Mutex // guards everything below; decorators run with it held, and parent/consumer notifications run after it is released
	decoratorOrder []string
	decorators     map[string]Decorator
	children       map[string]map[string]*ReaderNode // role -> child name -> node
	state          map[AssemblyKey]*assemblyState
	handleToKey    map[any]AssemblyKey

	keyFn        KeyFunc
	parentNotify func(key AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo)

	maxInFlight       int
	lru               *list.List // of AssemblyKey; front = most recently touched
	lruElem           map[AssemblyKey]*list.Element
	droppedFilter     *bloom.BloomFilter
	droppedAssemblies uint64
}

// NewReaderNode creates a node wrapping reader, named for logging.
func NewReaderNode(name string, tr transport.Reader, logger *slog.Logger, pool taskpool.Pool) *ReaderNode {
	if logger == nil {
		logger = slog.Default()
	}
	n := &ReaderNode{
		name:        name,
		reader:      tr,
		logger:      logger.With("component", "reader_node", "node", name),
		pool:        pool,
		decorators:  map[string]Decorator{},
		children:    map[string]map[string]*ReaderNode{},
		state:       map[AssemblyKey]*assemblyState{},
		handleToKey: map[any]AssemblyKey{},
		maxInFlight: DefaultMaxInFlight,
		lru:         list.New(),
		lruElem:     map[AssemblyKey]*list.Element{},
		droppedFilter: bloom.NewWithEstimates(droppedFilterEstimate, droppedFilterFPRate),
	}
	n.keyFn = func(sample any, info transport.SampleInfo) AssemblyKey { return guidkey.New() }
	if tr != nil {
		tr.SetDataAvailableListener(transport.OnDataAvailable, func() {
			if err := n.Poll(context.Background()); err != nil {
				n.logger.Error("poll failed", "error", err)
			}
		})
	}
	return n
}

// SetKeyFunc overrides the default per-arrival synthetic key minting.
func (n *ReaderNode) SetKeyFunc(fn KeyFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keyFn = fn
}

// AttachDecorator installs d under its own role, in registration order.
// Registration order is significant for decorators that read each other's
// completion state indirectly through shared combined-sample content, same
// as writer-side registration order (spec §4.E).
func (n *ReaderNode) AttachDecorator(d Decorator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	role := d.Role()
	if _, exists := n.decorators[role]; !exists {
		n.decoratorOrder = append(n.decoratorOrder, role)
	}
	n.decorators[role] = d
}

// AttachChild installs child under role/childName and wires the child's
// completion to route into this node's decorator for role (spec §4.D
// "Child linkage. ... This is the only entry point by which a child's
// completion influences a parent's completion.").
func (n *ReaderNode) AttachChild(role, childName string, child *ReaderNode) {
	n.mu.Lock()
	if n.children[role] == nil {
		n.children[role] = map[string]*ReaderNode{}
	}
	n.children[role][childName] = child
	n.mu.Unlock()

	child.mu.Lock()
	child.parentNotify = func(key AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo) {
		n.onChildAssembled(role, childName, combined, info)
	}
	child.mu.Unlock()
}

// SetConsumer wires this (root) node's completions to an application
// listener, dispatched through the priority task pool at priority (spec §5:
// user callbacks are dispatched via the external task pool, never invoked
// directly on a transport-owned thread).
func (n *ReaderNode) SetConsumer(fn func(key AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo), priority taskpool.Priority) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pool := n.pool
	n.parentNotify = func(key AssemblyKey, combined *assembly.CombinedSample, info transport.SampleInfo) {
		if pool == nil {
			fn(key, combined, info)
			return
		}
		pool.Submit(func(ctx context.Context) {
			fn(key, combined, info)
		}, priority)
	}
}

// SetMaxInFlight overrides the default bound on concurrently in-flight
// assembly keys (spec §9 Open Question 3: "overridable per ReaderNode"). A
// value <= 0 disables bounding entirely.
func (n *ReaderNode) SetMaxInFlight(max int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxInFlight = max
}

// touchLocked records key as the most recently touched in-flight assembly
// and evicts the least recently touched entry if the node is now over its
// bound. Callers must already hold n.mu.
func (n *ReaderNode) touchLocked(key AssemblyKey) {
	if elem, ok := n.lruElem[key]; ok {
		n.lru.MoveToFront(elem)
	} else {
		n.lruElem[key] = n.lru.PushFront(key)
	}
	if n.maxInFlight <= 0 {
		return
	}
	for len(n.state) > n.maxInFlight {
		n.evictOldestLocked()
	}
}

// evictOldestLocked drops the least recently touched in-flight assembly,
// recording it in the dropped-assembly Bloom filter and counter (spec §9
// Open Question 3). The filter is read only by wasDropped; incoming samples
// and child fragments are not checked against it. Callers must already hold
// n.mu.
func (n *ReaderNode) evictOldestLocked() {
	elem := n.lru.Back()
	if elem == nil {
		return
	}
	key := elem.Value.(AssemblyKey)
	n.lru.Remove(elem)
	delete(n.lruElem, key)

	if st, ok := n.state[key]; ok {
		delete(n.handleToKey, fmt.Sprint(st.lastInfo.Handle))
		delete(n.state, key)
	}
	n.droppedFilter.Add(key[:])
	n.droppedAssemblies++
	n.logger.Warn("evicted in-flight assembly past max-in-flight bound", "key", key.String(), "max_in_flight", n.maxInFlight)
}

// forgetLocked removes key from LRU bookkeeping without counting it as a
// drop (used when an assembly completes normally). Callers must already
// hold n.mu.
func (n *ReaderNode) forgetLocked(key AssemblyKey) {
	if elem, ok := n.lruElem[key]; ok {
		n.lru.Remove(elem)
		delete(n.lruElem, key)
	}
}

// wasDropped reports whether key was previously evicted under the
// max-in-flight bound, for decorators that want to distinguish a genuine
// drop from an assembly that simply hasn't started yet. False positives are
// possible (Bloom filter), false negatives are not.
func (n *ReaderNode) wasDropped(key AssemblyKey) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.droppedFilter.Test(key[:])
}

// Stats reports dropped-assembly accounting (spec §9 Open Question 3).
type Stats struct {
	DroppedAssemblies uint64
	InFlight          int
}

func (n *ReaderNode) StatsSnapshot() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{DroppedAssemblies: n.droppedAssemblies, InFlight: len(n.state)}
}

// Poll drives one non-blocking drain cycle (spec §4.D "Drain protocol").
func (n *ReaderNode) Poll(ctx context.Context) error {
	if n.reader == nil {
		return nil
	}
	results, err := n.reader.Take(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		n.handleTakeResult(ctx, r)
	}
	return nil
}

func (n *ReaderNode) handleTakeResult(ctx context.Context, r transport.TakeResult) {
	if !r.Valid {
		n.mu.Lock()
		key, ok := n.handleToKey[fmt.Sprint(r.Info.Handle)]
		if ok {
			delete(n.state, key)
			delete(n.handleToKey, fmt.Sprint(r.Info.Handle))
			n.forgetLocked(key)
		}
		notify := n.parentNotify
		n.mu.Unlock()
		if notify != nil {
			notify(key, nil, r.Info)
		}
		return
	}

	n.mu.Lock()
	key := n.keyFn(r.Sample, r.Info)
	n.handleToKey[fmt.Sprint(r.Info.Handle)] = key

	st, exists := n.state[key]
	if !exists {
		st = &assemblyState{combined: assembly.NewCombinedSample(r.Sample), completed: map[string]bool{}}
		n.state[key] = st
	} else {
		st.combined = st.combined.WithOverlay(r.Sample)
	}
	st.lastInfo = r.Info
	n.touchLocked(key)

	for _, role := range n.decoratorOrder {
		d := n.decorators[role]
		complete, err := d.OnReaderData(ctx, n, key)
		if err != nil {
			n.logger.Error("decorator callback failed", "role", role, "key", key.String(), "error", err)
			continue
		}
		if complete {
			st.completed[role] = true
		}
	}

	allComplete := n.allRequiredComplete(st)
	var emit assembly.CombinedSample
	var info transport.SampleInfo
	notify := n.parentNotify
	if allComplete {
		emit = st.combined
		info = st.lastInfo
		delete(n.state, key)
		n.forgetLocked(key)
	}
	n.mu.Unlock()

	if allComplete && notify != nil {
		notify(key, &emit, info)
	}
}

// onChildAssembled routes a child's completed sample into the decorator
// registered under role, and re-evaluates this node's completion for the
// parent assembly key the decorator resolves (spec §4.D "Child linkage").
func (n *ReaderNode) onChildAssembled(role, childName string, child *assembly.CombinedSample, info transport.SampleInfo) {
	n.mu.Lock()
	d, ok := n.decorators[role]
	if !ok {
		n.mu.Unlock()
		n.logger.Error("no decorator registered for child role", "role", role, "child", childName)
		return
	}
	if child == nil {
		// A child disposal does not, by itself, complete or drop the
		// parent's in-flight assembly (spec leaves cross-level dispose
		// propagation to the root adapter only).
		n.mu.Unlock()
		return
	}
	err := d.OnChildAssembled(context.Background(), n, childName, *child)
	if err != nil {
		n.logger.Error("decorator child-assembled callback failed", "role", role, "child", childName, "error", err)
		n.mu.Unlock()
		return
	}

	// The decorator itself marks completion via n.MarkComplete while still
	// holding the lock (called from within OnChildAssembled), so by the
	// time we get here st.completed already reflects the outcome; we just
	// need to find which key(s) became complete. A decorator completes at
	// most one key per OnChildAssembled call by contract.
	var toEmit []AssemblyKey
	for key, st := range n.state {
		if n.allRequiredComplete(st) {
			toEmit = append(toEmit, key)
		}
	}
	type pending struct {
		key  AssemblyKey
		cs   assembly.CombinedSample
		info transport.SampleInfo
	}
	var emitList []pending
	for _, key := range toEmit {
		st := n.state[key]
		emitList = append(emitList, pending{key: key, cs: st.combined, info: st.lastInfo})
		delete(n.state, key)
		n.forgetLocked(key)
	}
	notify := n.parentNotify
	n.mu.Unlock()

	if notify != nil {
		for _, p := range emitList {
			cs := p.cs
			notify(p.key, &cs, p.info)
		}
	}
}

func (n *ReaderNode) allRequiredComplete(st *assemblyState) bool {
	if len(n.decoratorOrder) == 0 {
		return true
	}
	for _, role := range n.decoratorOrder {
		if !st.completed[role] {
			return false
		}
	}
	return true
}

// --- accessor methods used by decorators; callers must already hold n.mu
// (i.e. be invoked from within OnReaderData/OnChildAssembled). ---

// Combined returns the current combined sample for key.
func (n *ReaderNode) Combined(key AssemblyKey) (assembly.CombinedSample, bool) {
	st, ok := n.state[key]
	if !ok {
		return assembly.CombinedSample{}, false
	}
	return st.combined, true
}

// MutateCombined applies fn to the current combined sample for key and
// stores the result back.
func (n *ReaderNode) MutateCombined(key AssemblyKey, fn func(assembly.CombinedSample) assembly.CombinedSample) bool {
	st, ok := n.state[key]
	if !ok {
		return false
	}
	st.combined = fn(st.combined)
	return true
}

// MarkComplete records that role has finished assembling for key.
func (n *ReaderNode) MarkComplete(key AssemblyKey, role string) {
	st, ok := n.state[key]
	if !ok {
		return
	}
	st.completed[role] = true
}

// EnsurePlaceholderState creates empty assembly state for key if absent,
// used by decorators that learn about a key via child-assembled before any
// raw base sample has been seen (e.g. a buffered, out-of-order child).
func (n *ReaderNode) EnsurePlaceholderState(key AssemblyKey, base any) {
	if _, ok := n.state[key]; !ok {
		n.state[key] = &assemblyState{combined: assembly.NewCombinedSample(base), completed: map[string]bool{}}
	}
	n.touchLocked(key)
}

// RecordDroppedAssembly increments the dropped-assembly counter (spec §9
// Open Question 3).
func (n *ReaderNode) RecordDroppedAssembly() {
	n.droppedAssemblies++
}

// Logger exposes the node's logger so decorators can log consistently
// without holding their own.
func (n *ReaderNode) Logger() *slog.Logger { return n.logger }
