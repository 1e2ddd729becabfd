package reader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// GenSpecReader assembles a Generalization/Specialization pair: a
// generalization object at AttrPath references a specialization published
// on a separate topic, identified by (specializationTopic, specializationID,
// specializationTimestamp) (spec §4.D "GenSpecReader").
type GenSpecReader struct {
	role     string
	attrPath guidkey.AttributePath
	logger   *slog.Logger

	mu sync.Mutex
	// genBySpecID buffers a generalization waiting for its specialization,
	// keyed by the specialization ID it points at.
	genBySpecID map[guidkey.HashableGUID]genPending
	// specByTopicID buffers specialization samples that arrived before
	// their generalization, keyed by (topic, specID).
	specByTopicID map[string]map[guidkey.HashableGUID]assembly.CombinedSample
}

type genPending struct {
	parentKey AssemblyKey
	topic     string
	timestamp *int64
}

// NewGenSpecReader creates a decorator for the generalization located at
// attrPath, registered under role for child linkage.
func NewGenSpecReader(role string, attrPath guidkey.AttributePath, logger *slog.Logger) *GenSpecReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenSpecReader{
		role:          role,
		attrPath:      attrPath,
		logger:        logger.With("decorator", "gen_spec", "role", role),
		genBySpecID:   map[guidkey.HashableGUID]genPending{},
		specByTopicID: map[string]map[guidkey.HashableGUID]assembly.CombinedSample{},
	}
}

func (g *GenSpecReader) Role() string { return g.role }

func (g *GenSpecReader) OnReaderData(ctx context.Context, n *ReaderNode, key AssemblyKey) (bool, error) {
	cs, ok := n.Combined(key)
	if !ok {
		return false, nil
	}
	genObj, err := guidkey.GetAtPath(cs.Base, g.attrPath)
	if err != nil {
		return false, errs.ContractViolation("generalization field not found at " + g.attrPath.String()).WithContext("cause", err.Error())
	}
	topic, specID, ts, err := extractGeneralization(genObj)
	if err != nil {
		return false, err
	}
	if specID.IsNil() {
		return false, nil // unassigned: writer hasn't bound a specialization yet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, exists := g.genBySpecID[specID]; exists && prev.parentKey != key {
		g.logger.Debug("duplicate specialization binding overwritten",
			"spec_id", specID.String(), "prev_parent_key", prev.parentKey.String(), "new_parent_key", key.String())
	}
	g.genBySpecID[specID] = genPending{parentKey: key, topic: topic, timestamp: ts}

	byID, ok := g.specByTopicID[topic]
	if !ok {
		return false, nil // never surfaced: transient assembly miss, buffer and wait
	}
	buffered, ok := byID[specID]
	if !ok {
		return false, nil
	}
	specTS, err := extractSpecializationTimestamp(buffered.Base)
	if err != nil {
		return false, err
	}
	if !timestampsMatch(ts, specTS) {
		return false, nil
	}

	n.MutateCombined(key, func(cs assembly.CombinedSample) assembly.CombinedSample {
		return cs.MergeChildAt(g.attrPath, buffered)
	})
	delete(g.genBySpecID, specID)
	delete(byID, specID)
	return true, nil
}

func (g *GenSpecReader) OnChildAssembled(ctx context.Context, n *ReaderNode, childName string, child assembly.CombinedSample) error {
	specID, ts, err := extractSpecializationReference(child.Base)
	if err != nil {
		return err
	}
	if specID.IsNil() {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	byID, ok := g.specByTopicID[childName]
	if !ok {
		byID = map[guidkey.HashableGUID]assembly.CombinedSample{}
		g.specByTopicID[childName] = byID
	}
	byID[specID] = child

	pending, ok := g.genBySpecID[specID]
	if !ok || pending.topic != childName {
		return nil // never surfaced: buffer and wait for the generalization
	}
	if !timestampsMatch(pending.timestamp, ts) {
		return nil
	}

	n.MutateCombined(pending.parentKey, func(cs assembly.CombinedSample) assembly.CombinedSample {
		return cs.MergeChildAt(g.attrPath, child)
	})
	n.MarkComplete(pending.parentKey, g.role)
	delete(g.genBySpecID, specID)
	delete(byID, specID)
	return nil
}

func timestampsMatch(a, b *int64) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

func extractGeneralization(v any) (topic string, specID guidkey.HashableGUID, ts *int64, err error) {
	topicAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationTopic"})
	if err != nil {
		return "", guidkey.NilGUID, nil, errs.ContractViolation("generalization missing SpecializationTopic")
	}
	idAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationID"})
	if err != nil {
		return "", guidkey.NilGUID, nil, errs.ContractViolation("generalization missing SpecializationID")
	}
	tsAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationTimestamp"})
	if err != nil {
		return "", guidkey.NilGUID, nil, errs.ContractViolation("generalization missing SpecializationTimestamp")
	}
	topic, _ = topicAny.(string)
	return topic, guidkey.Key(idAny), asTimestamp(tsAny), nil
}

func extractSpecializationReference(v any) (guidkey.HashableGUID, *int64, error) {
	idAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationReferenceID"})
	if err != nil {
		return guidkey.NilGUID, nil, errs.ContractViolation("specialization missing SpecializationReferenceID")
	}
	tsAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationReferenceTimestamp"})
	if err != nil {
		return guidkey.NilGUID, nil, errs.ContractViolation("specialization missing SpecializationReferenceTimestamp")
	}
	return guidkey.Key(idAny), asTimestamp(tsAny), nil
}

func extractSpecializationTimestamp(v any) (*int64, error) {
	tsAny, err := guidkey.GetAtPath(v, guidkey.AttributePath{"SpecializationReferenceTimestamp"})
	if err != nil {
		return nil, errs.ContractViolation("specialization missing SpecializationReferenceTimestamp")
	}
	return asTimestamp(tsAny), nil
}

func asTimestamp(v any) *int64 {
	if v == nil {
		return nil
	}
	if p, ok := v.(*int64); ok {
		return p
	}
	return nil
}
