package writer

import (
	"context"
	"log/slog"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// LargeListWriter fans out the elements of the named list collection at
// attrPath, in order, chaining each element's nextElementID to its
// successor (spec §4.E "LargeListWriter").
type LargeListWriter struct {
	role       string
	listName   string
	attrPath   guidkey.AttributePath
	childTopic string
	logger     *slog.Logger
}

// NewLargeListWriter creates a decorator for the list named listName, with
// metadata located at attrPath. childTopic names the element child writer
// node registered via AttachChild(role, childTopic, ...); defaults to role
// if empty.
func NewLargeListWriter(role, listName string, attrPath guidkey.AttributePath, childTopic string, logger *slog.Logger) *LargeListWriter {
	if childTopic == "" {
		childTopic = role
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LargeListWriter{
		role:       role,
		listName:   listName,
		attrPath:   attrPath,
		childTopic: childTopic,
		logger:     logger.With("decorator", "large_list", "list", listName),
	}
}

func (w *LargeListWriter) Role() string { return w.role }

func (w *LargeListWriter) Publish(ctx context.Context, n *WriterNode, b *assembly.CombinedBuilder) error {
	listID, err := guidkey.GetAtPath(b.Base, w.attrPath.Child("ListID"))
	if err != nil {
		return errs.ContractViolation("list metadata missing ListID").WithContext("cause", err.Error())
	}
	if guidkey.Key(listID).IsNil() {
		listID = guidkey.New()
		if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("ListID"), guidkey.Key(listID)); err != nil {
			return err
		}
	}
	resolvedListID := guidkey.Key(listID)

	coll, ok := b.Collection(w.attrPath, w.listName)
	var elements []any
	if ok {
		lc, ok := coll.(*assembly.ListCollection)
		if !ok {
			return errs.Configuration("collection " + w.listName + " at " + w.attrPath.String() + " is not a list")
		}
		elements = lc.Elements()
	}

	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("Size"), int32(len(elements))); err != nil {
		return err
	}
	if len(elements) == 0 {
		return nil
	}

	child, ok := n.ResolveChild(w.role, w.childTopic)
	if !ok {
		return errs.Configuration("no child writer registered for list element topic " + w.childTopic)
	}

	ids := make([]guidkey.HashableGUID, len(elements))
	for i, elem := range elements {
		existing, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementID"})
		if err != nil {
			return errs.ContractViolation("list element missing ElementID").WithContext("cause", err.Error())
		}
		id := guidkey.Key(existing)
		if id.IsNil() {
			id = guidkey.New()
		}
		ids[i] = id
	}

	var lastTS any
	for i, elem := range elements {
		if err := guidkey.SetAtPath(elem, guidkey.AttributePath{"ListID"}, resolvedListID); err != nil {
			return err
		}
		if err := guidkey.SetAtPath(elem, guidkey.AttributePath{"ElementID"}, ids[i]); err != nil {
			return err
		}
		next := guidkey.NilGUID
		if i < len(elements)-1 {
			next = ids[i+1]
		}
		if err := guidkey.SetAtPath(elem, guidkey.AttributePath{"NextElementID"}, next); err != nil {
			return err
		}

		elemPath := guidkey.PathForListElement(w.listName, ids[i]).Join(w.attrPath)
		childBuilder := b.SpawnChild(elemPath, elem)
		if err := child.Publish(ctx, childBuilder); err != nil {
			return err
		}

		ts, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementTimestamp"})
		if err != nil {
			return errs.ContractViolation("list element missing ElementTimestamp").WithContext("cause", err.Error())
		}
		lastTS = ts
	}

	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("StartingElementID"), ids[0]); err != nil {
		return err
	}
	lastID := ids[len(ids)-1]
	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("UpdateElementID"), lastID); err != nil {
		return err
	}
	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("UpdateElementTimestamp"), lastTS); err != nil {
		return err
	}
	return nil
}
