package orm

import (
	"fmt"
	"log/slog"

	"github.com/roach88/kvorm/internal/keys"
	"github.com/roach88/kvorm/internal/meta"
)

// Hydrator converts entities to and from the flat mapping stored in a
// record.
type Hydrator interface {
	ToMap(e meta.Entity) (map[string]string, error)
	FromMap(e meta.Entity, m map[string]string) (meta.Entity, error)
}

// WriteMode selects how Save writes the canonical record.
type WriteMode int

const (
	// MergeWrite sets the mapped fields and leaves any others in place.
	MergeWrite WriteMode = iota
	// ReplaceWrite deletes the record before writing it, so fields the
	// hydrator no longer emits disappear.
	ReplaceWrite
)

func (m WriteMode) String() string {
	if m == ReplaceWrite {
		return "replace"
	}
	return "merge"
}

// ParseWriteMode accepts "merge", "replace" or "" (merge).
func ParseWriteMode(s string) (WriteMode, error) {
	switch s {
	case "", "merge":
		return MergeWrite, nil
	case "replace":
		return ReplaceWrite, nil
	default:
		return 0, fmt.Errorf("unknown write mode %q (expected merge or replace)", s)
	}
}

type options struct {
	naming       keys.Strategy
	hydrator     Hydrator
	writeMode    WriteMode
	staleCleanup bool
	atomic       bool
	logger       *slog.Logger
}

// Option configures a Repository.
type Option func(*options)

// WithNaming sets the key naming strategy. Default keys.Colon.
func WithNaming(s keys.Strategy) Option {
	return func(o *options) { o.naming = s }
}

// WithHydrator replaces the default flat hydrator.
func WithHydrator(h Hydrator) Option {
	return func(o *options) { o.hydrator = h }
}

// WithWriteMode sets the record write mode. Default MergeWrite.
func WithWriteMode(m WriteMode) Option {
	return func(o *options) { o.writeMode = m }
}

// WithStaleCleanup removes an id from the previous value's equality set
// when an indexed property changes between two non-null values.
func WithStaleCleanup(on bool) Option {
	return func(o *options) { o.staleCleanup = on }
}

// WithAtomic runs each save as one unit when the store supports it.
// Stores without store.Atomic ignore this option.
func WithAtomic(on bool) Option {
	return func(o *options) { o.atomic = on }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
