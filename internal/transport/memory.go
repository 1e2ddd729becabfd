package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/triton-marine/umaa-assembly/internal/errs"
)

// Memory is a reference, in-process Provider used by tests and the demo
// binary in place of a real pub-sub middleware. It is not a model of any
// particular transport's wire behavior — it exists only to exercise the
// engine's reader/writer graphs end-to-end (spec §8 round-trip properties)
// without depending on network I/O.
type Memory struct {
	mu     sync.Mutex
	topics map[string]*memTopic
	logger *slog.Logger
}

// NewMemory creates an empty in-memory transport.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{topics: map[string]*memTopic{}, logger: logger.With("component", "memory_transport")}
}

// KeyFunc extracts a comparable instance key from a published sample. The
// engine itself never calls this; it is transport-internal bookkeeping so
// LookupInstance/DisposeInstance/KeyValue behave like a keyed DDS topic.
type KeyFunc func(sample any) any

type memTopic struct {
	mu        sync.Mutex
	keyFunc   KeyFunc
	pending   []TakeResult
	listeners []func()
	instances map[any]any
}

func (t *memTopic) notify() {
	for _, fn := range t.listeners {
		fn := fn
		go fn()
	}
}

// topic returns (creating if necessary) the named topic's shared state.
func (m *Memory) topic(name string, keyFunc KeyFunc) *memTopic {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[name]
	if !ok {
		t = &memTopic{keyFunc: keyFunc, instances: map[any]any{}}
		m.topics[name] = t
	} else if t.keyFunc == nil && keyFunc != nil {
		t.keyFunc = keyFunc
	}
	return t
}

// Reader returns a reader for topic. profile is accepted for interface
// compatibility and logged but otherwise unused — the in-memory transport
// has no durability/reliability policy to vary.
func (m *Memory) Reader(topic string, profile QoSProfile) (Reader, error) {
	t := m.topic(topic, nil)
	m.logger.Debug("reader attached", "topic", topic, "profile", profile)
	return &memReader{topic: t}, nil
}

// Writer returns a writer for topic whose instance key is the sample value
// itself (pointer identity for pointer samples, value equality otherwise),
// so LookupInstance/DisposeInstance take the same sample that was written.
// Use WriterKeyed to derive the key from a field instead. The key function
// belongs to the topic: the first writer attached to a topic sets it, and
// later writers on that topic share it.
func (m *Memory) Writer(topic string, profile QoSProfile) (Writer, error) {
	t := m.topic(topic, func(s any) any { return s })
	m.logger.Debug("writer attached", "topic", topic, "profile", profile)
	return &memWriter{topic: t}, nil
}

// WriterKeyed returns a writer for topic using keyFunc to derive instance
// identity, enabling LookupInstance/DisposeInstance by a meaningful key
// (e.g. a GUID field) rather than by the whole sample. keyFunc takes effect
// only if no writer has been attached to the topic before.
func (m *Memory) WriterKeyed(topic string, keyFunc KeyFunc) Writer {
	t := m.topic(topic, keyFunc)
	return &memWriter{topic: t}
}

type memReader struct {
	topic *memTopic
}

func (r *memReader) Take(ctx context.Context) ([]TakeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transport("take cancelled", err)
	}
	r.topic.mu.Lock()
	defer r.topic.mu.Unlock()
	out := r.topic.pending
	r.topic.pending = nil
	return out, nil
}

func (r *memReader) KeyValue(handle InstanceHandle) (any, bool) {
	r.topic.mu.Lock()
	defer r.topic.mu.Unlock()
	v, ok := r.topic.instances[handle]
	return v, ok
}

func (r *memReader) SetDataAvailableListener(mask DataAvailableMask, fn func()) {
	r.topic.mu.Lock()
	defer r.topic.mu.Unlock()
	r.topic.listeners = append(r.topic.listeners, fn)
}

type memWriter struct {
	topic *memTopic
}

func (w *memWriter) Write(ctx context.Context, sample any) error {
	if err := ctx.Err(); err != nil {
		return errs.Transport("write cancelled", err)
	}
	w.topic.mu.Lock()
	key := w.topic.keyFunc(sample)
	w.topic.instances[key] = sample
	w.topic.pending = append(w.topic.pending, TakeResult{
		Sample: sample,
		Info:   SampleInfo{State: Alive, Handle: key, SourceTimestamp: time.Now()},
		Valid:  true,
	})
	w.topic.mu.Unlock()
	w.topic.notify()
	return nil
}

func (w *memWriter) LookupInstance(sample any) (InstanceHandle, bool) {
	w.topic.mu.Lock()
	defer w.topic.mu.Unlock()
	key := w.topic.keyFunc(sample)
	_, ok := w.topic.instances[key]
	if !ok {
		return nil, false
	}
	return key, true
}

func (w *memWriter) DisposeInstance(ctx context.Context, handle InstanceHandle) error {
	if err := ctx.Err(); err != nil {
		return errs.Transport("dispose cancelled", err)
	}
	w.topic.mu.Lock()
	delete(w.topic.instances, handle)
	w.topic.pending = append(w.topic.pending, TakeResult{
		Info:  SampleInfo{State: NotAliveDisposed, Handle: handle, SourceTimestamp: time.Now()},
		Valid: false,
	})
	w.topic.mu.Unlock()
	w.topic.notify()
	return nil
}

func (w *memWriter) SetListener(fn func(event WriterEvent)) {
	// The in-memory transport never emits match/liveliness/deadline events;
	// it exists to exercise data flow, not transport health signaling.
}
