package reader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// LargeListReader assembles a Large List: as LargeSetReader, but the
// completed collection is an ordered chain traced from startingElementID
// through each element's nextElementID (spec §4.D "LargeListReader").
type LargeListReader struct {
	role     string
	listName string
	attrPath guidkey.AttributePath
	logger   *slog.Logger

	mu      sync.Mutex
	buffers map[guidkey.HashableGUID]*listBuffer
}

type listBuffer struct {
	elements       map[guidkey.HashableGUID]any
	parentKey      AssemblyKey
	hasParent      bool
	warnedTruncate bool
}

// NewLargeListReader creates a decorator for the list named listName, with
// metadata located at attrPath. role must match the name passed as the
// child element topic's role in AttachChild.
func NewLargeListReader(role, listName string, attrPath guidkey.AttributePath, logger *slog.Logger) *LargeListReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &LargeListReader{
		role:     role,
		listName: listName,
		attrPath: attrPath,
		logger:   logger.With("decorator", "large_list", "list", listName),
		buffers:  map[guidkey.HashableGUID]*listBuffer{},
	}
}

func (r *LargeListReader) Role() string { return r.role }

func (r *LargeListReader) OnReaderData(ctx context.Context, n *ReaderNode, key AssemblyKey) (bool, error) {
	cs, ok := n.Combined(key)
	if !ok {
		return false, nil
	}
	meta, err := guidkey.GetAtPath(cs.Base, r.attrPath)
	if err != nil {
		return false, errs.ContractViolation("list metadata not found at " + r.attrPath.String()).WithContext("cause", err.Error())
	}
	listID, updateID, updateTS, startID, size, err := extractListMetadata(meta)
	if err != nil {
		return false, err
	}
	if listID.IsNil() {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.bufferFor(listID)
	buf.parentKey = key
	buf.hasParent = true

	if size == 0 && updateID.IsNil() {
		n.MutateCombined(key, func(cs assembly.CombinedSample) assembly.CombinedSample {
			return cs.WithCollectionAt(r.attrPath, r.listName, nil)
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
	r.complete(n, key, buf, startID, listID)
	return true, nil
}

func (r *LargeListReader) OnChildAssembled(ctx context.Context, n *ReaderNode, childName string, child assembly.CombinedSample) error {
	listID, elemID, err := extractListElementKey(child.Base)
	if err != nil {
		return err
	}
	if listID.IsNil() || elemID.IsNil() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.bufferFor(listID)
	buf.elements[elemID] = child.Base

	if !buf.hasParent {
		return nil
	}
	cs, ok := n.Combined(buf.parentKey)
	if !ok {
		return nil
	}
	meta, err := guidkey.GetAtPath(cs.Base, r.attrPath)
	if err != nil {
		return err
	}
	_, updateID, updateTS, startID, _, err := extractListMetadata(meta)
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
	r.complete(n, buf.parentKey, buf, startID, listID)
	return nil
}

func (r *LargeListReader) bufferFor(listID guidkey.HashableGUID) *listBuffer {
	buf, ok := r.buffers[listID]
	if !ok {
		buf = &listBuffer{elements: map[guidkey.HashableGUID]any{}}
		r.buffers[listID] = buf
	}
	return buf
}

// complete walks the chain from startID through each element's
// NextElementID, stopping at a missing next, a revisited element (cycle
// defense), or the chain end (spec §4.D). A missing startID falls back to
// buffer-iteration order, logged, since there is no anchor to trace from.
func (r *LargeListReader) complete(n *ReaderNode, key AssemblyKey, buf *listBuffer, startID, listID guidkey.HashableGUID) {
	var ordered []any
	if startID.IsNil() {
		r.logger.Warn("large list has no startingElementID; emitting buffer order", "list_id", listID.String())
		for _, e := range buf.elements {
			ordered = append(ordered, e)
		}
	} else {
		visited := map[guidkey.HashableGUID]bool{}
		cur := startID
		for !cur.IsNil() && !visited[cur] {
			elem, ok := buf.elements[cur]
			if !ok {
				if !buf.warnedTruncate {
					r.logger.Warn("large list truncated: element never arrived", "list_id", listID.String(), "element_id", cur.String())
					buf.warnedTruncate = true
				}
				break
			}
			ordered = append(ordered, elem)
			visited[cur] = true
			next, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"NextElementID"})
			if err != nil {
				break
			}
			cur = guidkey.Key(next)
		}
	}
	n.MutateCombined(key, func(cs assembly.CombinedSample) assembly.CombinedSample {
		return cs.WithCollectionAt(r.attrPath, r.listName, ordered)
	})
	n.MarkComplete(key, r.role)
}

func extractListMetadata(meta any) (listID, updateID guidkey.HashableGUID, updateTS *int64, startID guidkey.HashableGUID, size int32, err error) {
	listIDAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"ListID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, guidkey.NilGUID, 0, errs.ContractViolation("list metadata missing ListID")
	}
	updateIDAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"UpdateElementID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, guidkey.NilGUID, 0, errs.ContractViolation("list metadata missing UpdateElementID")
	}
	updateTSAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"UpdateElementTimestamp"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, guidkey.NilGUID, 0, errs.ContractViolation("list metadata missing UpdateElementTimestamp")
	}
	startIDAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"StartingElementID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, guidkey.NilGUID, 0, errs.ContractViolation("list metadata missing StartingElementID")
	}
	sizeAny, err := guidkey.GetAtPath(meta, guidkey.AttributePath{"Size"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, nil, guidkey.NilGUID, 0, errs.ContractViolation("list metadata missing Size")
	}
	size, _ = sizeAny.(int32)
	return guidkey.Key(listIDAny), guidkey.Key(updateIDAny), asTimestamp(updateTSAny), guidkey.Key(startIDAny), size, nil
}

func extractListElementKey(elem any) (listID, elementID guidkey.HashableGUID, err error) {
	listIDAny, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ListID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, errs.ContractViolation("list element missing ListID")
	}
	elemIDAny, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementID"})
	if err != nil {
		return guidkey.NilGUID, guidkey.NilGUID, errs.ContractViolation("list element missing ElementID")
	}
	return guidkey.Key(listIDAny), guidkey.Key(elemIDAny), nil
}
