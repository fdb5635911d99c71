package meta

import (
	"fmt"
	"time"
)

// Entity is implemented by every registered domain type.
// EntityType must return the name the type was registered under and must
// not dereference its receiver.
type Entity interface {
	EntityType() string
}

// Kind is the scalar kind of a property value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a schema type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	case "time":
		return KindTime, nil
	default:
		return 0, fmt.Errorf("unknown property type %q", s)
	}
}

// Scalar enumerates the Go types a property value may hold.
type Scalar interface {
	string | int64 | float64 | bool | time.Time
}

// IndexMarker declares an index on a property. An empty Name means the
// property name is used as the index name.
type IndexMarker struct {
	Name string
}

// Property describes one field of an entity type.
//
// Get returns nil when the field is null. Set receives nil to clear the
// field, otherwise a value of the Go type matching Kind.
type Property struct {
	Name string
	Kind Kind
	Get  func(Entity) any
	Set  func(Entity, any) error

	ID       bool
	Index    *IndexMarker
	Sorted   *IndexMarker
	Temporal bool
}

// Option sets a marker on a property.
type Option func(*Property)

// ID marks the identifier property.
func ID() Option {
	return func(p *Property) { p.ID = true }
}

// Index marks an equality index. Pass "" to use the property name.
func Index(name string) Option {
	return func(p *Property) { p.Index = &IndexMarker{Name: name} }
}

// Sorted marks a score-ordered index. Pass "" to use the property name.
func Sorted(name string) Option {
	return func(p *Property) { p.Sorted = &IndexMarker{Name: name} }
}

// Temporal converts a sorted property's time value to Unix seconds for
// scoring. It has no effect without Sorted.
func Temporal() Option {
	return func(p *Property) { p.Temporal = true }
}

// Field builds a Property from a typed getter/setter pair. A nil pointer
// from get is a null value; set receives nil to clear the field.
func Field[E Entity, V Scalar](name string, get func(E) *V, set func(E, *V), opts ...Option) Property {
	kind := kindOf[V]()
	p := Property{
		Name: name,
		Kind: kind,
		Get: func(e Entity) any {
			v := get(e.(E))
			if v == nil {
				return nil
			}
			return *v
		},
		Set: func(e Entity, val any) error {
			if val == nil {
				set(e.(E), nil)
				return nil
			}
			v, ok := val.(V)
			if !ok {
				return fmt.Errorf("property %q: cannot assign %T to %s", name, val, kind)
			}
			set(e.(E), &v)
			return nil
		},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func kindOf[V Scalar]() Kind {
	var zero V
	switch any(zero).(type) {
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	default:
		return KindString
	}
}

// Type is the static descriptor of an entity type.
type Type struct {
	Name       string
	Prefix     string
	New        func() Entity
	Properties []Property
}

// NewType builds a descriptor. Property order is declaration order and
// drives index maintenance order.
func NewType(name string, newFn func() Entity, props ...Property) *Type {
	return &Type{
		Name:       name,
		New:        newFn,
		Properties: props,
	}
}

// WithPrefix overrides the key prefix and returns t.
func (t *Type) WithPrefix(prefix string) *Type {
	t.Prefix = prefix
	return t
}

// Property looks up a property by name.
func (t *Type) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}
