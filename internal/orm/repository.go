package orm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/roach88/kvorm/internal/hydrate"
	"github.com/roach88/kvorm/internal/keys"
	"github.com/roach88/kvorm/internal/meta"
	"github.com/roach88/kvorm/internal/store"
)

// Repository saves and finds entities of one registered type.
// Safe for concurrent use when the store is.
type Repository struct {
	store    store.Store
	meta     *meta.Metadata
	naming   keys.Strategy
	hydrator Hydrator
	opts     options
	log      *slog.Logger
}

// New resolves the metadata of typeName and binds it to st. Metadata
// errors are returned before the store is used.
func New(st store.Store, reg *meta.Registry, typeName string, opts ...Option) (*Repository, error) {
	md, err := reg.Resolve(typeName)
	if err != nil {
		return nil, err
	}

	o := options{
		naming:    keys.Colon,
		writeMode: MergeWrite,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hydrator == nil {
		o.hydrator = hydrate.New(md.Type)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Repository{
		store:    st,
		meta:     md,
		naming:   o.naming,
		hydrator: o.hydrator,
		opts:     o,
		log:      o.logger.With("type", md.Type.Name),
	}, nil
}

// Metadata returns the resolved metadata the repository works from.
func (r *Repository) Metadata() *meta.Metadata {
	return r.meta
}

// Key returns the canonical record key for id.
func (r *Repository) Key(id any) (string, error) {
	s, err := r.formatID(id)
	if err != nil {
		return "", err
	}
	return r.naming.Key(r.meta.Prefix, s), nil
}

// Save writes the entity's record and brings every index in line with
// its current values.
func (r *Repository) Save(ctx context.Context, e meta.Entity) (err error) {
	typeName := r.meta.Type.Name
	start := time.Now()
	defer func() {
		result := resultOK
		if err != nil {
			result = resultError
		}
		SaveCount.WithLabelValues(typeName, result).Inc()
		SaveDuration.WithLabelValues(typeName).Observe(time.Since(start).Seconds())
	}()

	if e == nil || isNilPointer(e) {
		return &InvalidArgumentError{Type: typeName, Message: "entity is nil"}
	}
	if got := e.EntityType(); got != typeName {
		return &InvalidArgumentError{
			Type:    typeName,
			Message: fmt.Sprintf("entity of type %q given to %s repository", got, typeName),
		}
	}

	id, err := hydrate.Format(r.meta.Identifier.Get(e))
	if err != nil {
		return &InvalidArgumentError{Type: typeName, Message: err.Error()}
	}
	if id == "" {
		return &InvalidArgumentError{
			Type:    typeName,
			Message: fmt.Sprintf("identifier %q has no value", r.meta.Identifier.Name),
		}
	}

	fields, err := r.hydrator.ToMap(e)
	if err != nil {
		return err
	}

	key := r.naming.Key(r.meta.Prefix, id)
	if a, ok := r.store.(store.Atomic); ok && r.opts.atomic {
		return a.Atomically(ctx, []string{key}, func(s store.Store) error {
			return r.save(ctx, s, e, key, id, fields)
		})
	}
	return r.save(ctx, r.store, e, key, id, fields)
}

// save runs the snapshot, record write and index maintenance against s.
func (r *Repository) save(ctx context.Context, s store.Store, e meta.Entity, key, id string, fields map[string]string) error {
	snapshot, err := s.HGetAll(ctx, key)
	if err != nil {
		return err
	}

	if r.opts.writeMode == ReplaceWrite {
		if err := s.Del(ctx, key); err != nil {
			return err
		}
	}
	if err := s.HSet(ctx, key, fields); err != nil {
		return err
	}
	r.log.DebugContext(ctx, "record written", "key", key, "mode", r.opts.writeMode.String())

	for _, idx := range r.meta.Indexes {
		var err error
		switch idx.Kind {
		case meta.Equality:
			err = r.updateEquality(ctx, s, idx, e, id, snapshot)
		case meta.SortedSet:
			err = r.updateSorted(ctx, s, idx, e, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) updateEquality(ctx context.Context, s store.Store, idx meta.IndexDescriptor, e meta.Entity, id string, snapshot map[string]string) error {
	value, err := hydrate.Format(idx.Property.Get(e))
	if err != nil {
		return &TypeError{
			Type:     r.meta.Type.Name,
			Property: idx.Property.Name,
			Index:    idx.Name,
			Value:    idx.Property.Get(e),
			Message:  err.Error(),
		}
	}
	previous := snapshot[idx.Property.Name]

	if value == "" {
		if previous == "" {
			return nil
		}
		return r.indexOp(ctx, idx, opSRem, r.naming.Key(idx.Name, previous), id, func(k string) error {
			return s.SRem(ctx, k, id)
		})
	}

	if err := r.indexOp(ctx, idx, opSAdd, r.naming.Key(idx.Name, value), id, func(k string) error {
		return s.SAdd(ctx, k, id)
	}); err != nil {
		return err
	}

	if r.opts.staleCleanup && previous != "" && previous != value {
		return r.indexOp(ctx, idx, opSRem, r.naming.Key(idx.Name, previous), id, func(k string) error {
			return s.SRem(ctx, k, id)
		})
	}
	return nil
}

func (r *Repository) updateSorted(ctx context.Context, s store.Store, idx meta.IndexDescriptor, e meta.Entity, id string) error {
	value := idx.Property.Get(e)
	key := r.naming.Key(idx.Name)

	if value == nil {
		return r.indexOp(ctx, idx, opZRem, key, id, func(k string) error {
			return s.ZRem(ctx, k, id)
		})
	}

	score, err := r.score(idx, value)
	if err != nil {
		return err
	}
	return r.indexOp(ctx, idx, opZAdd, key, id, func(k string) error {
		return s.ZAdd(ctx, k, id, score)
	})
}

// score derives a sorted-index score from a non-null value.
func (r *Repository) score(idx meta.IndexDescriptor, value any) (float64, error) {
	fail := func(msg string) error {
		return &TypeError{
			Type:     r.meta.Type.Name,
			Property: idx.Property.Name,
			Index:    idx.Name,
			Value:    value,
			Message:  msg,
		}
	}

	if idx.Temporal {
		t, ok := value.(time.Time)
		if !ok {
			return 0, fail("temporal index requires a time value")
		}
		return float64(t.Unix()), nil
	}

	switch v := value.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fail("sorted index requires a numeric value")
	}
}

func (r *Repository) indexOp(ctx context.Context, idx meta.IndexDescriptor, op, key, id string, apply func(key string) error) error {
	if err := apply(key); err != nil {
		return err
	}
	IndexOps.WithLabelValues(r.meta.Type.Name, idx.Name, op).Inc()
	r.log.DebugContext(ctx, "index updated", "index", idx.Name, "op", op, "key", key, "id", id)
	return nil
}

// Find loads the record for id into a new entity. A missing record yields
// a blank entity and no error; see Exists.
func (r *Repository) Find(ctx context.Context, id any) (meta.Entity, error) {
	key, err := r.Key(id)
	if err != nil {
		return nil, err
	}

	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		FindCount.WithLabelValues(r.meta.Type.Name, resultError).Inc()
		return nil, err
	}

	e, err := r.hydrator.FromMap(r.meta.Type.New(), fields)
	if err != nil {
		FindCount.WithLabelValues(r.meta.Type.Name, resultError).Inc()
		return nil, err
	}

	result := resultOK
	if len(fields) == 0 {
		result = resultMiss
	}
	FindCount.WithLabelValues(r.meta.Type.Name, result).Inc()
	return e, nil
}

// Exists reports whether a record is stored for id.
func (r *Repository) Exists(ctx context.Context, id any) (bool, error) {
	key, err := r.Key(id)
	if err != nil {
		return false, err
	}
	return r.store.Exists(ctx, key)
}

// IDsByValue returns the ids in the equality index indexName for value,
// in ascending order.
func (r *Repository) IDsByValue(ctx context.Context, indexName string, value any) ([]string, error) {
	s, err := hydrate.Format(value)
	if err != nil {
		return nil, &InvalidArgumentError{Type: r.meta.Type.Name, Message: err.Error()}
	}
	return r.store.SMembers(ctx, r.naming.Key(indexName, s))
}

// IDsByScore returns the ids in the sorted index indexName whose score is
// within [min, max], lowest score first.
func (r *Repository) IDsByScore(ctx context.Context, indexName string, min, max float64) ([]string, error) {
	return r.store.ZRangeByScore(ctx, r.naming.Key(indexName), min, max)
}

// FindAs is Find with the result asserted to T.
func FindAs[T meta.Entity](ctx context.Context, r *Repository, id any) (T, error) {
	var zero T
	e, err := r.Find(ctx, id)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, &InvalidArgumentError{
			Type:    r.meta.Type.Name,
			Message: fmt.Sprintf("cannot return %T as %T", e, zero),
		}
	}
	return t, nil
}

func (r *Repository) formatID(id any) (string, error) {
	s, err := hydrate.Format(id)
	if err != nil {
		return "", &InvalidArgumentError{Type: r.meta.Type.Name, Message: err.Error()}
	}
	if s == "" {
		return "", &InvalidArgumentError{Type: r.meta.Type.Name, Message: "identifier is empty"}
	}
	return s, nil
}

func isNilPointer(e meta.Entity) bool {
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
