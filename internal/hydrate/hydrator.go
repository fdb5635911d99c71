// Package hydrate converts entities to and from flat string mappings.
//
// The flat mapping is what a canonical record stores: one field per
// property, keyed by property name. Null values are written as the empty
// string, and an empty string is read back as null.
package hydrate

import (
	"fmt"

	"github.com/roach88/kvorm/internal/meta"
)

// Flat hydrates entities of one type through its property accessors.
type Flat struct {
	typ *meta.Type
}

// New returns a hydrator for t.
func New(t *meta.Type) *Flat {
	return &Flat{typ: t}
}

// ToMap returns one entry per property, including nulls as "".
func (h *Flat) ToMap(e meta.Entity) (map[string]string, error) {
	out := make(map[string]string, len(h.typ.Properties))
	for _, p := range h.typ.Properties {
		s, err := Format(p.Get(e))
		if err != nil {
			return nil, fmt.Errorf("hydrate %s.%s: %w", h.typ.Name, p.Name, err)
		}
		out[p.Name] = s
	}
	return out, nil
}

// FromMap sets every property present in m on e and returns e. Properties
// absent from m keep their current value; unknown fields are ignored.
func (h *Flat) FromMap(e meta.Entity, m map[string]string) (meta.Entity, error) {
	for _, p := range h.typ.Properties {
		s, ok := m[p.Name]
		if !ok {
			continue
		}
		v, err := Parse(p.Kind, s)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s.%s: %w", h.typ.Name, p.Name, err)
		}
		if err := p.Set(e, v); err != nil {
			return nil, fmt.Errorf("hydrate %s.%s: %w", h.typ.Name, p.Name, err)
		}
	}
	return e, nil
}
