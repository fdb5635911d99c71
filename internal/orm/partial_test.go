package orm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvorm/internal/meta"
	"github.com/roach88/kvorm/internal/store"
	"github.com/roach88/kvorm/internal/testutil"
)

// gadget exercises index kinds Car does not: a named equality index, raw
// numeric scores, and misdeclared sorted properties.
type gadget struct {
	ID       *string
	Tag      *string
	Weight   *float64
	Rank     *string
	Released *int64
}

func (*gadget) EntityType() string { return "Gadget" }

func gadgetRegistry() *meta.Registry {
	typ := meta.NewType("Gadget", func() meta.Entity { return &gadget{} },
		meta.Field("id",
			func(g *gadget) *string { return g.ID },
			func(g *gadget, v *string) { g.ID = v },
			meta.ID()),
		meta.Field("tag",
			func(g *gadget) *string { return g.Tag },
			func(g *gadget, v *string) { g.Tag = v },
			meta.Index("tags")),
		meta.Field("weight",
			func(g *gadget) *float64 { return g.Weight },
			func(g *gadget, v *float64) { g.Weight = v },
			meta.Index(""), meta.Sorted("")),
		meta.Field("rank",
			func(g *gadget) *string { return g.Rank },
			func(g *gadget, v *string) { g.Rank = v },
			meta.Sorted("")),
		meta.Field("released",
			func(g *gadget) *int64 { return g.Released },
			func(g *gadget, v *int64) { g.Released = v },
			meta.Sorted(""), meta.Temporal()),
	).WithPrefix("gadget")
	return meta.NewRegistry().MustRegister(typ)
}

func newGadgetRepo(t *testing.T, st store.Store, opts ...Option) *Repository {
	t.Helper()
	repo, err := New(st, gadgetRegistry(), "Gadget", append([]Option{quiet}, opts...)...)
	require.NoError(t, err)
	return repo
}

func TestSave_NumericScoreAndBothMarkers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	repo := newGadgetRepo(t, st)

	require.NoError(t, repo.Save(ctx, &gadget{ID: testutil.Ptr("g1"), Weight: testutil.Ptr(2.5)}))

	ok, err := st.SIsMember(ctx, "weight:2.5", "g1")
	require.NoError(t, err)
	assert.True(t, ok)

	score, ok, err := st.ZScore(ctx, "weight", "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.5, score)
}

func TestSave_TypeErrorLeavesPartialWrite(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	repo := newGadgetRepo(t, st)

	err := repo.Save(ctx, &gadget{ID: testutil.Ptr("g1"), Tag: testutil.Ptr("blue"), Rank: testutil.Ptr("first")})
	require.Error(t, err)
	assert.True(t, IsTypeError(err), "got %v", err)

	// Record and earlier indexes were written before the failure.
	record, err := st.HGetAll(ctx, "gadget:g1")
	require.NoError(t, err)
	assert.Equal(t, "first", record["rank"])

	ok, err := st.SIsMember(ctx, "tags:blue", "g1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_TemporalRequiresTime(t *testing.T) {
	ctx := context.Background()
	repo := newGadgetRepo(t, store.NewMemory())

	err := repo.Save(ctx, &gadget{ID: testutil.Ptr("g1"), Released: testutil.Ptr(int64(1356998400))})
	require.Error(t, err)

	var te *TypeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "released", te.Property)
	assert.Equal(t, int64(1356998400), te.Value)
}

func TestSave_AtomicDiscardsPartialWrite(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := newGadgetRepo(t, st, WithAtomic(true))

			err := repo.Save(ctx, &gadget{ID: testutil.Ptr("g1"), Tag: testutil.Ptr("blue"), Rank: testutil.Ptr("first")})
			assert.True(t, IsTypeError(err), "got %v", err)

			keys, err := st.Keys(ctx, "*")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestSave_AtomicCommits(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := newCarRepo(t, st, WithAtomic(true))
			car := redCar()
			car.ManufactureDate = testutil.Date("2013-01-01T00:00:00Z")
			require.NoError(t, repo.Save(ctx, car))

			car.Color = nil
			require.NoError(t, repo.Save(ctx, car))

			keys, err := st.Keys(ctx, "*")
			require.NoError(t, err)
			assert.Equal(t, []string{"Car:1", "manufactureDate"}, keys)
		})
	}
}

// failingStore fails one operation with a backend error.
type failingStore struct {
	store.Store
	failOp string
	err    *store.Error
}

func (f *failingStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	if f.failOp == "ZADD" {
		return f.err
	}
	return f.Store.ZAdd(ctx, key, member, score)
}

func (f *failingStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if f.failOp == "HGETALL" {
		return nil, f.err
	}
	return f.Store.HGetAll(ctx, key)
}

func TestSave_StoreErrorPropagatesUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	want := &store.Error{Op: "ZADD", Key: "manufactureDate", Err: errors.New("connection reset")}
	repo := newCarRepo(t, &failingStore{Store: mem, failOp: "ZADD", err: want})

	car := redCar()
	car.ManufactureDate = testutil.Date("2013-01-01T00:00:00Z")
	err := repo.Save(ctx, car)

	var got *store.Error
	require.True(t, errors.As(err, &got))
	assert.Same(t, want, got)

	// The equality index ran before the failing sorted index.
	ok, err := mem.SIsMember(ctx, "color:red", "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFind_StoreError(t *testing.T) {
	want := &store.Error{Op: "HGETALL", Key: "Car:1", Err: errors.New("timeout")}
	repo := newCarRepo(t, &failingStore{Store: store.NewMemory(), failOp: "HGETALL", err: want})

	_, err := repo.Find(context.Background(), int64(1))
	assert.ErrorIs(t, err, want)
}

func TestSave_AtomicIgnoredWithoutSupport(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	// failingStore hides Memory's Atomically.
	repo := newGadgetRepo(t, &failingStore{Store: mem}, WithAtomic(true))

	err := repo.Save(ctx, &gadget{ID: testutil.Ptr("g1"), Rank: testutil.Ptr("first")})
	assert.True(t, IsTypeError(err))

	ok, err := mem.Exists(ctx, "gadget:g1")
	require.NoError(t, err)
	assert.True(t, ok)
}
