package reader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// LargeSetReader assembles a Large Set: metadata {setID, updateElementID,
// updateElementTimestamp, size} at attrPath plus elements arriving on a
// child element topic, keyed by (setID, elementID) (spec §4.D
// "LargeSetReader").
type LargeSetReader struct {
	role     string
	setName  string
	attrPath guidkey.AttributePath
	logger   *slog.Logger

	mu      sync.Mutex
	buffers map[guidkey.HashableGUID]*setBuffer
}

type setBuffer struct {
	elements  map[guidkey.HashableGUID]any
	parentKey AssemblyKey
	hasParent bool
}

// NewLargeSetReader creates a decorator for the set named setName, with
// metadata located at attrPath. role must match the name passed as the
// child element topic's role in AttachChild.
func NewLargeSetReader(role, setName string, attrPath guidkey.AttributePath, logger *slog.Logger) *LargeSetReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &LargeSetReader{
		role:     role,
		setName:  setName,
		attrPath: attrPath,
		logger:   logger.With("decorator", "large_set", "set", setName),
		buffers:  map[guidkey.HashableGUID]*setBuffer{},
	}
}

func (r *LargeSetReader) Role() string { return r.role }

func (r *LargeSetReader) OnReaderData(ctx context.Context, n *ReaderNode, key AssemblyKey) (bool, error) {
	cs, ok := n.Combined(key)
	if !ok {
		return false, nil
	}
	meta, err := guidkey.GetAtPath(cs.Base, r.attrPath)
	if err != nil {
		return false, errs.ContractViolation("set metadata not found at " + r.attrPath.String()).WithContext("cause", err.Error())
	}
	setID, updateID, updateTS, size, err := extractSetMetadata(meta)
	if err != nil {
		return false, err
	}
	if setID.IsNil() {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.bufferFor(setID)
	buf.parentKey = key
	buf.hasParent = true

	if size == 0 && updateID.IsNil() {
		// Empty set: no content to assemble, completes at the root with an
		// empty collection (spec §8 "Empty Large Set").
		n.MutateCombined(key, func(cs assembly.CombinedSample) assembly.CombinedSample {
			return cs.WithCollectionAt(r.attrPath, r.setName, nil)
		})
		return true, nil
	}
	if updateID.IsNil() {
		return false, nil
	}
	elem, ok := buf.elements[updateID]
	if !ok {
		return false, nil
	}
	elemTS, err := elementTimestamp(elem)
	if err != nil {
		return false, err
	}
	if !timestampsMatch(updateTS, elemTS) {
		return false, nil
	}
	r.complete(n, key, buf)
	return true, nil
}

func (r *LargeSetReader) OnChildAssembled(ctx context.Context, n *ReaderNode, childName string, child assembly.CombinedSample) error {
	setID, elemID, err := extractSetElementKey(child.Base)
	if err != nil {
		return err
	}
	if setID.IsNil() || elemID.IsNil() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.bufferFor(setID)
	buf.elements[elemID] = child.Base

	if !buf.hasParent {
		return nil // never surfaced: transient assembly miss, buffer and wait
	}
	cs, ok := n.Combined(buf.parentKey)
	if !ok {
		return nil
	}
	meta, err := guidkey.GetAtPath(cs.Base, r.attrPath)
	if err != nil {
		return err
	}
	_, updateID, updateTS, _, err := extractSetMetadata(meta)
	if err != nil {
		return err
	}
	if updateID.IsNil() || updateID != elemID {
		return nil
	}
	elemTS, err := elementTimestamp(child.Base)
	if err != nil {
		return err
	}
	if !timestampsMatch(updateTS, elemTS) {
		return nil
	}
	r.complete(n, buf.parentKey, buf)
	return nil
}

// bufferFor returns (creating if necessary) the element buffer for setID.
// Callers must hold r.mu.
func (r *LargeSetReader) bufferFor(setID guidkey.HashableGUID) *setBuffer {
	buf, ok := r.buffers[setID]
	if !ok {
		buf = &setBuffer{elements: map[guidkey.HashableGUID]any{}}
		r.buffers[setID] = buf
	}
	return buf
}

// complete installs the currently-buffered elements (in no particular
// order, per spec §4.D "ordering ... is not specified") and marks the role
// done for key. Callers must hold r.mu.
func (r *LargeSetReader) complete(n *ReaderNode, key AssemblyKey, buf *setBuffer) {
	elems := make([]any, 0, len(buf.elements))
	for _, e := range buf.elements {
		elems = append(elems, e)
	}
	n.MutateCombined(key, func(cs assembly.CombinedSample) assembly.CombinedSample {
		return cs.WithCollectionAt(r.attrPath, r.setName, elems)
	})
	n.MarkComplete(key, r.role)
}

func extractSetMetadata(meta any) (setID, updateID guidkey.HashableGUID, updateTS *int64, size int32, err error) {
	setIDAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"SetID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, 0, errs.ContractViolation("set metadata missing SetID")
	}
	updateIDAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"UpdateElementID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, 0, errs.ContractViolation("set metadata missing UpdateElementID")
	}
	updateTSAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"UpdateElementTimestamp"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, 0, errs.ContractViolation("set metadata missing UpdateElementTimestamp")
	}
	sizeAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"Size"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, 0, errs.ContractViolation("set metadata missing Size")
	}
	size, _ = sizeAny.(int32)
	return guidkey.Key(setIDAny), guidkey.Key(updateIDAny), asTimestamp(updateTSAny), size, nil
}

func extractSetElementKey(elem any) (setID, elementID guidkey.HashableGUID, err error) {
	setIDAny, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"SetID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, errs.ContractViolation("set element missing SetID")
	}
	elemIDAny, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, errs.ContractViolation("set element missing ElementID")
	}
	return guidkey.Key(setIDAny), guidkey.Key(elemIDAny), nil
}

func elementTimestamp(elem any) (*int64, error) {
	tsAny, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementTimestamp"})
	if err != nil {
		return nil, errs.ContractViolation("element missing ElementTimestamp")
	}
	return asTimestamp(tsAny), nil
}
