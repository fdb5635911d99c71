package schema

import (
	"maps"

	"github.com/roach88/kvorm/internal/meta"
)

// Record is the entity behind every CUE-declared type. It holds one value
// per property, typed by the property's kind; absent means null.
type Record struct {
	typ    string
	values map[string]any
}

// NewRecord returns an empty record of the named type.
func NewRecord(typeName string) *Record {
	return &Record{typ: typeName, values: make(map[string]any)}
}

// EntityType implements meta.Entity.
func (r *Record) EntityType() string { return r.typ }

// Get returns the value of a property, or nil.
func (r *Record) Get(name string) any {
	return r.values[name]
}

// Values returns a copy of every non-null property value.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

func (r *Record) set(name string, v any) {
	if v == nil {
		delete(r.values, name)
		return
	}
	r.values[name] = v
}

// Fill sets properties of r from loosely typed input such as decoded JSON
// or YAML. Names that are not properties of t are rejected.
func Fill(t *meta.Type, r *Record, in map[string]any) error {
	for name, v := range in {
		p, ok := t.Property(name)
		if !ok {
			return &meta.MetadataError{Type: t.Name, Property: name, Message: "unknown property"}
		}
		if err := p.Set(r, v); err != nil {
			return err
		}
	}
	return nil
}
