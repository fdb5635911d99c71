package store

import (
	"context"
	"errors"
	"fmt"
)

// KeyType names the structure stored at a key.
type KeyType string

const (
	TypeNone KeyType = "none"
	TypeHash KeyType = "hash"
	TypeSet  KeyType = "set"
	TypeZSet KeyType = "zset"
)

// Store is the capability set the repository and its tooling need.
// Implementations must be safe for concurrent use.
type Store interface {
	// HGetAll returns every field of the hash at key, or an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HSet merges fields into the hash at key. Existing fields not named
	// in fields are left untouched.
	HSet(ctx context.Context, key string, fields map[string]string) error

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZAdd inserts member or updates its score.
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRem(ctx context.Context, key, member string) error
	ZCard(ctx context.Context, key string) (int64, error)
	// ZScore reports the member's score and whether it is present.
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	// ZRangeByScore returns members with min <= score <= max.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	Keys(ctx context.Context, pattern string) ([]string, error)
	Type(ctx context.Context, key string) (KeyType, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error

	Close() error
}

// Atomic is implemented by stores that can run several operations as a
// single unit. fn receives a Store bound to the unit; watch lists keys
// whose concurrent modification must abort the unit.
type Atomic interface {
	Atomically(ctx context.Context, watch []string, fn func(Store) error) error
}

// ErrNotAtomic is returned when Atomically is called on a view that is
// already inside a unit.
var ErrNotAtomic = errors.New("nested atomic section")

// Error is a failed store operation.
type Error struct {
	Op  string // command name, e.g. "HGETALL"
	Key string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is or wraps a *Error.
func IsStoreError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}
