package writer

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/triton-marine/umaa-assembly/internal/assembly"
	"github.com/triton-marine/umaa-assembly/internal/errs"
	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

// TopicNamer resolves the transport topic a specialization object publishes
// on. The default, NameOfType, uses the generated class name (spec §4.E
// step 2: "the generated class name, possibly remapped via injection").
type TopicNamer func(spec any) string

// NameOfType is the default TopicNamer: the specialization's dereferenced
// Go type name.
func NameOfType(spec any) string {
	t := reflect.TypeOf(spec)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// GenSpecWriter fans a generalization out to whichever specialization's
// child topic the builder has bound at attrPath (spec §4.E "GenSpecWriter").
type GenSpecWriter struct {
	role     string
	attrPath guidkey.AttributePath
	topicFor TopicNamer
	logger   *slog.Logger
}

// NewGenSpecWriter creates a decorator for the generalization located at
// attrPath. A nil namer defaults to NameOfType.
func NewGenSpecWriter(role string, attrPath guidkey.AttributePath, namer TopicNamer, logger *slog.Logger) *GenSpecWriter {
	if namer == nil {
		namer = NameOfType
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenSpecWriter{
		role:     role,
		attrPath: attrPath,
		topicFor: namer,
		logger:   logger.With("decorator", "gen_spec", "role", role),
	}
}

func (g *GenSpecWriter) Role() string { return g.role }

func (g *GenSpecWriter) Publish(ctx context.Context, n *WriterNode, b *assembly.CombinedBuilder) error {
	spec, ok := b.OverlayAt(g.attrPath)
	if !ok {
		return nil
	}
	topic := g.topicFor(spec)

	specID, err := guidkey.GetAtPath(spec, guidkey.AttributePath{"SpecializationReferenceID"})
	if err != nil {
		return errs.ContractViolation("specialization missing SpecializationReferenceID").WithContext("cause", err.Error())
	}
	if guidkey.Key(specID).IsNil() {
		fresh := guidkey.New()
		if err := guidkey.SetAtPath(spec, guidkey.AttributePath{"SpecializationReferenceID"}, fresh); err != nil {
			return err
		}
	}

	child, ok := n.ResolveChild(g.role, topic)
	if !ok {
		return errs.Configuration("no child writer registered for specialization topic " + topic)
	}

	childBuilder := b.SpawnChild(g.attrPath, spec)
	if err := child.Publish(ctx, childBuilder); err != nil {
		return err
	}

	finalID, err := guidkey.GetAtPath(spec, guidkey.AttributePath{"SpecializationReferenceID"})
	if err != nil {
		return err
	}
	tsAny, err := guidkey.GetAtPath(spec, guidkey.AttributePath{"SpecializationReferenceTimestamp"})
	if err != nil {
		return errs.ContractViolation("specialization missing SpecializationReferenceTimestamp").WithContext("cause", err.Error())
	}

	if err := guidkey.SetAtPath(b.Base, g.attrPath.Child("SpecializationTopic"), topic); err != nil {
		return err
	}
	if err := guidkey.SetAtPath(b.Base, g.attrPath.Child("SpecializationID"), guidkey.Key(finalID)); err != nil {
		return err
	}
	if err := guidkey.SetAtPath(b.Base, g.attrPath.Child("SpecializationTimestamp"), tsAny); err != nil {
		return err
	}
	return nil
}
