package meta

import (
	"fmt"
	"sort"
	"sync"
)

// IndexKind distinguishes equality sets from score-ordered sets.
type IndexKind int

const (
	Equality IndexKind = iota
	SortedSet
)

func (k IndexKind) String() string {
	if k == SortedSet {
		return "sorted"
	}
	return "equality"
}

// IndexDescriptor is one index maintained for a property.
type IndexDescriptor struct {
	Property Property
	Kind     IndexKind
	Name     string
	Temporal bool
}

// Metadata bundles everything a repository needs about a type.
type Metadata struct {
	Type       *Type
	Prefix     string
	Identifier Property
	Indexes    []IndexDescriptor
}

// Registry holds entity descriptors by name. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds a descriptor. It rejects nil or unnamed types, missing
// factories and accessors, duplicate property names, and duplicate type
// names. Identifier cardinality is checked by ResolveIdentifier.
func (r *Registry) Register(t *Type) error {
	if t == nil {
		return &MetadataError{Message: "cannot register nil type"}
	}
	if t.Name == "" {
		return &MetadataError{Message: "type name is required"}
	}
	if t.New == nil {
		return &MetadataError{Type: t.Name, Message: "factory is required"}
	}

	seen := make(map[string]bool, len(t.Properties))
	for _, p := range t.Properties {
		if p.Name == "" {
			return &MetadataError{Type: t.Name, Message: "property name is required"}
		}
		if seen[p.Name] {
			return &MetadataError{Type: t.Name, Property: p.Name, Message: "duplicate property"}
		}
		if p.Get == nil || p.Set == nil {
			return &MetadataError{Type: t.Name, Property: p.Name, Message: "accessors are required"}
		}
		seen[p.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return &MetadataError{Type: t.Name, Message: "type already registered"}
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister registers each type and panics on error.
func (r *Registry) MustRegister(types ...*Type) *Registry {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (*Type, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, &MetadataError{Type: name, Message: "type is not registered"}
	}
	return t, nil
}

// ResolvePrefix returns the declared prefix, or the type's bare name.
func (r *Registry) ResolvePrefix(name string) (string, error) {
	t, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	if t.Prefix != "" {
		return t.Prefix, nil
	}
	return t.Name, nil
}

// ResolveIdentifier returns the single property marked as identifier.
func (r *Registry) ResolveIdentifier(name string) (Property, error) {
	t, err := r.lookup(name)
	if err != nil {
		return Property{}, err
	}

	var ids []Property
	for _, p := range t.Properties {
		if p.ID {
			ids = append(ids, p)
		}
	}
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return Property{}, &MetadataError{Type: name, Message: "no identifier property declared"}
	default:
		return Property{}, &MetadataError{
			Type:    name,
			Message: fmt.Sprintf("only one identifier property is allowed, found %d", len(ids)),
		}
	}
}

// ResolveIndexes lists the type's indexes in declaration order. A property
// carrying both markers yields its equality index first.
func (r *Registry) ResolveIndexes(name string) ([]IndexDescriptor, error) {
	t, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	var out []IndexDescriptor
	for _, p := range t.Properties {
		if p.Index != nil {
			out = append(out, IndexDescriptor{
				Property: p,
				Kind:     Equality,
				Name:     indexName(p.Index, p),
			})
		}
		if p.Sorted != nil {
			out = append(out, IndexDescriptor{
				Property: p,
				Kind:     SortedSet,
				Name:     indexName(p.Sorted, p),
				Temporal: p.Temporal,
			})
		}
	}
	return out, nil
}

// Resolve runs all three resolutions for a type.
func (r *Registry) Resolve(name string) (*Metadata, error) {
	t, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	prefix, err := r.ResolvePrefix(name)
	if err != nil {
		return nil, err
	}
	id, err := r.ResolveIdentifier(name)
	if err != nil {
		return nil, err
	}
	indexes, err := r.ResolveIndexes(name)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Type:       t,
		Prefix:     prefix,
		Identifier: id,
		Indexes:    indexes,
	}, nil
}

func indexName(m *IndexMarker, p Property) string {
	if m.Name != "" {
		return m.Name
	}
	return p.Name
}
