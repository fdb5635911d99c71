package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kvorm/internal/hydrate"
	"github.com/roach88/kvorm/internal/meta"
)

// CompileError is a problem in an entity declaration, with its CUE
// position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileEntity turns one CUE entity declaration into a descriptor backed
// by Record. The value should be the entity struct itself:
//
//	entity: Car: {
//		fields: {
//			id:              {type: "int", id: true}
//			color:           {type: "string", index: true}
//			manufactureDate: {type: "time", sorted: true, temporal: true}
//		}
//	}
//
// index and sorted take true for the property name or a string naming the
// index. Field order is declaration order.
func CompileEntity(v cue.Value) (*meta.Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, &CompileError{Field: "entity", Message: "entity must be a named struct", Pos: v.Pos()}
	}
	name := labels[len(labels)-1].String()

	t := meta.NewType(name, func() meta.Entity { return NewRecord(name) })

	if pv := v.LookupPath(cue.ParsePath("prefix")); pv.Exists() {
		prefix, err := pv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.WithPrefix(prefix)
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "fields is required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		p, err := compileProperty(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		t.Properties = append(t.Properties, p)
	}
	if len(t.Properties) == 0 {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}

	return t, nil
}

func compileProperty(name string, v cue.Value) (meta.Property, error) {
	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return meta.Property{}, &CompileError{Field: "type", Message: fmt.Sprintf("field %q: type is required", name), Pos: v.Pos()}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return meta.Property{}, formatCUEError(err)
	}
	kind, err := meta.ParseKind(typeName)
	if err != nil {
		return meta.Property{}, &CompileError{Field: "type", Message: fmt.Sprintf("field %q: %v", name, err), Pos: typeVal.Pos()}
	}

	p := recordProperty(name, kind)

	if p.ID, err = lookupBool(v, "id"); err != nil {
		return meta.Property{}, err
	}
	if p.Temporal, err = lookupBool(v, "temporal"); err != nil {
		return meta.Property{}, err
	}
	if p.Index, err = lookupMarker(v, "index"); err != nil {
		return meta.Property{}, err
	}
	if p.Sorted, err = lookupMarker(v, "sorted"); err != nil {
		return meta.Property{}, err
	}
	if p.Temporal && kind != meta.KindTime {
		return meta.Property{}, &CompileError{
			Field:   "temporal",
			Message: fmt.Sprintf("field %q: temporal requires type \"time\", got %q", name, typeName),
			Pos:     v.Pos(),
		}
	}
	return p, nil
}

// recordProperty builds accessors that read and write a Record's value
// map, coercing input to the property's kind.
func recordProperty(name string, kind meta.Kind) meta.Property {
	return meta.Property{
		Name: name,
		Kind: kind,
		Get: func(e meta.Entity) any {
			return e.(*Record).Get(name)
		},
		Set: func(e meta.Entity, v any) error {
			val, err := hydrate.Coerce(kind, v)
			if err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			e.(*Record).set(name, val)
			return nil
		},
	}
}

func lookupBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// lookupMarker reads an index marker written as a bool or an index name.
func lookupMarker(v cue.Value, field string) (*meta.IndexMarker, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	if s, err := fv.String(); err == nil {
		return &meta.IndexMarker{Name: s}, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a bool or an index name", Pos: fv.Pos()}
	}
	if !b {
		return nil, nil
	}
	return &meta.IndexMarker{}, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
