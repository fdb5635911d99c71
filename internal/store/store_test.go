package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	mr := miniredis.RunT(t)
	rd := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rd.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
		"redis":  rd,
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, s)
		})
	}
}

func TestStore_HashMerge(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"color": "red", "make": "Tesla"}))
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"color": "blue"}))

		got, err := s.HGetAll(ctx, "Car:1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"color": "blue", "make": "Tesla"}, got)
	})
}

func TestStore_HGetAllMissing(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		got, err := s.HGetAll(ctx, "Car:404")
		require.NoError(t, err)
		assert.Empty(t, got)

		ok, err := s.Exists(ctx, "Car:404")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_HSetEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{}))

		ok, err := s.Exists(ctx, "Car:1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_Sets(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SAdd(ctx, "color:red", "2"))
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))

		n, err := s.SCard(ctx, "color:red")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		members, err := s.SMembers(ctx, "color:red")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, members)

		ok, err := s.SIsMember(ctx, "color:red", "2")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.SRem(ctx, "color:red", "2"))
		require.NoError(t, s.SRem(ctx, "color:red", "missing"))
		require.NoError(t, s.SRem(ctx, "color:none", "1"))

		ok, err = s.SIsMember(ctx, "color:red", "2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_EmptySetDisappears(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))
		require.NoError(t, s.SRem(ctx, "color:red", "1"))

		n, err := s.SCard(ctx, "color:red")
		require.NoError(t, err)
		assert.Zero(t, n)

		typ, err := s.Type(ctx, "color:red")
		require.NoError(t, err)
		assert.Equal(t, TypeNone, typ)
	})
}

func TestStore_SortedSets(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "1", 1356998400))
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "2", 1262304000))
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "3", 1356998400))

		n, err := s.ZCard(ctx, "manufactureDate")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		score, ok, err := s.ZScore(ctx, "manufactureDate", "2")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, float64(1262304000), score)

		all, err := s.ZRangeByScore(ctx, "manufactureDate", MinScore, MaxScore)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "1", "3"}, all)

		some, err := s.ZRangeByScore(ctx, "manufactureDate", 1300000000, 1356998400)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3"}, some)

		// Re-adding updates the score instead of duplicating.
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "2", 1500000000))
		n, err = s.ZCard(ctx, "manufactureDate")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		require.NoError(t, s.ZRem(ctx, "manufactureDate", "2"))
		_, ok, err = s.ZScore(ctx, "manufactureDate", "2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_KeysAndType(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:2", map[string]string{"id": "2"}))
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"id": "1"}))
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))
		require.NoError(t, s.SAdd(ctx, "color:red/blue", "1"))
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "1", 0))

		keys, err := s.Keys(ctx, "*")
		require.NoError(t, err)
		assert.Equal(t, []string{"Car:1", "Car:2", "color:red", "color:red/blue", "manufactureDate"}, keys)

		for pattern, want := range map[string][]string{
			"Car:*":       {"Car:1", "Car:2"},
			"color:*":     {"color:red", "color:red/blue"},
			"color:red?*": {"color:red/blue"},
			"Car:[12]":    {"Car:1", "Car:2"},
			"Car:[^1]":    {"Car:2"},
			"Car:[0-1]":   {"Car:1"},
		} {
			keys, err = s.Keys(ctx, pattern)
			require.NoError(t, err, pattern)
			assert.Equal(t, want, keys, pattern)
		}

		for key, want := range map[string]KeyType{
			"Car:1":           TypeHash,
			"color:red":       TypeSet,
			"manufactureDate": TypeZSet,
			"nothing":         TypeNone,
		} {
			got, err := s.Type(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, got, key)
		}
	})
}

func TestStore_Del(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"id": "1"}))
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))

		require.NoError(t, s.Del(ctx, "Car:1", "color:red", "missing"))
		require.NoError(t, s.Del(ctx))

		keys, err := s.Keys(ctx, "*")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestStore_AtomicallyCommits(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		a, ok := s.(Atomic)
		require.True(t, ok)

		err := a.Atomically(ctx, []string{"Car:1"}, func(view Store) error {
			if err := view.HSet(ctx, "Car:1", map[string]string{"color": "red"}); err != nil {
				return err
			}
			return view.SAdd(ctx, "color:red", "1")
		})
		require.NoError(t, err)

		got, err := s.HGetAll(ctx, "Car:1")
		require.NoError(t, err)
		assert.Equal(t, "red", got["color"])

		member, err := s.SIsMember(ctx, "color:red", "1")
		require.NoError(t, err)
		assert.True(t, member)
	})
}

func TestStore_AtomicallyDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"color": "blue"}))

		err := s.(Atomic).Atomically(ctx, []string{"Car:1"}, func(view Store) error {
			if err := view.HSet(ctx, "Car:1", map[string]string{"color": "red"}); err != nil {
				return err
			}
			if err := view.SAdd(ctx, "color:red", "1"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsStoreError(err), "callback errors pass through unchanged")

		got, err := s.HGetAll(ctx, "Car:1")
		require.NoError(t, err)
		assert.Equal(t, "blue", got["color"])

		ok, err := s.Exists(ctx, "color:red")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.HSet(ctx, "Car:1", map[string]string{"id": "1", "color": "red"}))
		require.NoError(t, s.SAdd(ctx, "color:red", "1"))
		require.NoError(t, s.ZAdd(ctx, "manufactureDate", "1", 1356998400))

		entries, err := Dump(ctx, s, "*")
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Key: "Car:1", Type: TypeHash, Hash: map[string]string{"id": "1", "color": "red"}},
			{Key: "color:red", Type: TypeSet, Members: []string{"1"}},
			{Key: "manufactureDate", Type: TypeZSet, Scores: map[string]float64{"1": 1356998400}},
		}, entries)
	})
}

func TestError_Format(t *testing.T) {
	err := wrap("HGETALL", "Car:1", errors.New("connection refused"))
	assert.EqualError(t, err, "store: HGETALL Car:1: connection refused")
	assert.True(t, IsStoreError(err))

	// Already-wrapped errors keep the operation they were wrapped with.
	again := wrap("SAVE", "Car:1", err)
	assert.Same(t, err, again)

	assert.EqualError(t, wrap("BEGIN", "", ErrNotAtomic), "store: BEGIN: nested atomic section")
	assert.NoError(t, wrap("HSET", "Car:1", nil))
}
