package orm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/kvorm/internal/hydrate"
	"github.com/roach88/kvorm/internal/meta"
)

// IDGenerator produces identifier values for entities saved without one.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// AssignID sets a generated identifier on e if it has none, and returns
// the identifier e ends up with. The generated string is parsed by the
// identifier's kind, so UUIDs only fit string identifiers.
func (r *Repository) AssignID(e meta.Entity, gen IDGenerator) (string, error) {
	prop := r.meta.Identifier
	current, err := hydrate.Format(prop.Get(e))
	if err != nil {
		return "", &InvalidArgumentError{Type: r.meta.Type.Name, Message: err.Error()}
	}
	if current != "" {
		return current, nil
	}

	raw := gen.Generate()
	v, err := hydrate.Parse(prop.Kind, raw)
	if err != nil {
		return "", &InvalidArgumentError{
			Type:    r.meta.Type.Name,
			Message: fmt.Sprintf("generated identifier %q does not fit %s property %q", raw, prop.Kind, prop.Name),
		}
	}
	if err := prop.Set(e, v); err != nil {
		return "", &InvalidArgumentError{Type: r.meta.Type.Name, Message: err.Error()}
	}
	return raw, nil
}
