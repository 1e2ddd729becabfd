package writer

import (
	"context"
	"log/slog"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// LargeSetWriter fans out the elements of the named set collection at
// attrPath, publishing each through the child writer node registered under
// role/childTopic (spec §4.E "LargeSetWriter").
type LargeSetWriter struct {
	role       string
	setName    string
	attrPath   guidkey.AttributePath
	childTopic string
	logger     *slog.Logger
}

// NewLargeSetWriter creates a decorator for the set named setName, with
// metadata located at attrPath. childTopic names the element child writer
// node registered via AttachChild(role, childTopic, ...); defaults to role
// if empty.
func NewLargeSetWriter(role, setName string, attrPath guidkey.AttributePath, childTopic string, logger *slog.Logger) *LargeSetWriter {
	if childTopic == "" {
		childTopic = role
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LargeSetWriter{
		role:       role,
		setName:    setName,
		attrPath:   attrPath,
		childTopic: childTopic,
		logger:     logger.With("decorator", "large_set", "set", setName),
	}
}

func (w *LargeSetWriter) Role() string { return w.role }

func (w *LargeSetWriter) Publish(ctx context.Context, n *WriterNode, b *assembly.CombinedBuilder) error {
	setID, err := guidkey.GetAtPath(b.Base, w.attrPath.Child("SetID"))
	if err != nil {
		return errs.ContractViolation("set metadata missing SetID").WithContext("cause", err.Error())
	}
	if guidkey.Key(setID).IsNil() {
		setID = guidkey.New()
		if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("SetID"), guidkey.Key(setID)); err != nil {
			return err
		}
	}
	resolvedSetID := guidkey.Key(setID)

	coll, ok := b.Collection(w.attrPath, w.setName)
	var elements []any
	var ids []guidkey.HashableGUID
	if ok {
		sc, ok := coll.(*assembly.SetCollection)
		if !ok {
			return errs.Configuration("collection " + w.setName + " at " + w.attrPath.String() + " is not a set")
		}
		elements = sc.Elements()
		ids = sc.IDs()
	}

	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("Size"), int32(len(elements))); err != nil {
		return err
	}
	if len(elements) == 0 {
		return nil // empty set: no element write, updateElementID left unchanged (spec §8)
	}

	child, ok := n.ResolveChild(w.role, w.childTopic)
	if !ok {
		return errs.Configuration("no child writer registered for set element topic " + w.childTopic)
	}

	var lastID guidkey.HashableGUID
	var lastTS any
	for i, elem := range elements {
		id := ids[i]
		if err := guidkey.SetAtPath(elem, guidkey.AttributePath{"SetID"}, resolvedSetID); err != nil {
			return err
		}
		if err := guidkey.SetAtPath(elem, guidkey.AttributePath{"ElementID"}, id); err != nil {
			return err
		}
		elemPath := guidkey.PathForSetElement(w.setName, id).Join(w.attrPath)
		childBuilder := b.SpawnChild(elemPath, elem)
		if err := child.Publish(ctx, childBuilder); err != nil {
			return err
		}
		lastID = id
		ts, err := guidkey.GetAtPath(elem, guidkey.AttributePath{"ElementTimestamp"})
		if err != nil {
			return errs.ContractViolation("set element missing ElementTimestamp").WithContext("cause", err.Error())
		}
		lastTS = ts
	}

	// The last publish is the atomic signal that the set is at the new
	// version (spec §4.E step 5).
	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("UpdateElementID"), lastID); err != nil {
		return err
	}
	if err := guidkey.SetAtPath(b.Base, w.attrPath.Child("UpdateElementTimestamp"), lastTS); err != nil {
		return err
	}
	return nil
}
