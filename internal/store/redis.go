package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// commands is the subset of go-redis shared by clients, transactions
// and pipelines.
type commands interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Type(ctx context.Context, key string) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type queuedOp func(commands) redis.Cmder

// Redis is a Store backed by a Redis server.
type Redis struct {
	c      commands
	client *redis.Client // nil for views inside Atomically
	queue  *[]queuedOp   // writes deferred to EXEC; nil outside Atomically
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{c: client, client: client}
}

// DialRedis connects to the server described by opts and verifies the
// connection with PING.
func DialRedis(ctx context.Context, opts *redis.Options) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrap("PING", opts.Addr, err)
	}
	return NewRedis(client), nil
}

// Close implements Store.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Atomically runs fn under WATCH on the given keys. Reads made through
// the view see the state before the unit; writes are queued and sent in
// a single MULTI/EXEC. If a watched key changes first, the unit fails
// with a *Error wrapping redis.TxFailedErr and nothing is applied.
//
// EXEC has no rollback. A queued command that fails at run time, such as
// SADD on a key holding a hash, makes the unit return a *Error while the
// other queued writes still apply.
func (r *Redis) Atomically(ctx context.Context, watch []string, fn func(Store) error) error {
	if r.client == nil {
		return wrap("MULTI", "", ErrNotAtomic)
	}

	var fnErr error
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var queue []queuedOp
		if fnErr = fn(&Redis{c: tx, queue: &queue}); fnErr != nil {
			return fnErr
		}
		if len(queue) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, op := range queue {
				op(p)
			}
			return nil
		})
		return err
	}, watch...)

	if fnErr != nil {
		return fnErr
	}
	return wrap("EXEC", strings.Join(watch, " "), err)
}

func (r *Redis) write(ctx context.Context, op, key string, do queuedOp) error {
	if r.queue != nil {
		*r.queue = append(*r.queue, do)
		return nil
	}
	return wrap(op, key, do(r.c).Err())
}

// HGetAll implements Store.
func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("HGETALL", key, err)
	}
	return m, nil
}

// HSet implements Store.
func (r *Redis) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	args := make([]interface{}, 0, 2*len(names))
	for _, f := range names {
		args = append(args, f, fields[f])
	}
	return r.write(ctx, "HSET", key, func(c commands) redis.Cmder {
		return c.HSet(ctx, key, args...)
	})
}

// SAdd implements Store.
func (r *Redis) SAdd(ctx context.Context, key, member string) error {
	return r.write(ctx, "SADD", key, func(c commands) redis.Cmder {
		return c.SAdd(ctx, key, member)
	})
}

// SRem implements Store.
func (r *Redis) SRem(ctx context.Context, key, member string) error {
	return r.write(ctx, "SREM", key, func(c commands) redis.Cmder {
		return c.SRem(ctx, key, member)
	})
}

// SCard implements Store.
func (r *Redis) SCard(ctx context.Context, key string) (int64, error) {
	n, err := r.c.SCard(ctx, key).Result()
	return n, wrap("SCARD", key, err)
}

// SIsMember implements Store.
func (r *Redis) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.c.SIsMember(ctx, key, member).Result()
	return ok, wrap("SISMEMBER", key, err)
}

// SMembers implements Store.
func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap("SMEMBERS", key, err)
	}
	sort.Strings(members)
	return members, nil
}

// ZAdd implements Store.
func (r *Redis) ZAdd(ctx context.Context, key, member string, score float64) error {
	return r.write(ctx, "ZADD", key, func(c commands) redis.Cmder {
		return c.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	})
}

// ZRem implements Store.
func (r *Redis) ZRem(ctx context.Context, key, member string) error {
	return r.write(ctx, "ZREM", key, func(c commands) redis.Cmder {
		return c.ZRem(ctx, key, member)
	})
}

// ZCard implements Store.
func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.c.ZCard(ctx, key).Result()
	return n, wrap("ZCARD", key, err)
}

// ZScore implements Store.
func (r *Redis) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := r.c.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("ZSCORE", key, err)
	}
	return score, true, nil
}

// ZRangeByScore implements Store.
func (r *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := r.c.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: scoreBound(min),
		Max: scoreBound(max),
	}).Result()
	if err != nil {
		return nil, wrap("ZRANGEBYSCORE", key, err)
	}
	return members, nil
}

func scoreBound(f float64) string {
	switch {
	case f == MinScore:
		return "-inf"
	case f == MaxScore:
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Keys implements Store. KEYS blocks the server while it scans and is
// meant for tooling and tests, not request paths.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.c.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, wrap("KEYS", pattern, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Type implements Store.
func (r *Redis) Type(ctx context.Context, key string) (KeyType, error) {
	t, err := r.c.Type(ctx, key).Result()
	if err != nil {
		return TypeNone, wrap("TYPE", key, err)
	}
	switch KeyType(t) {
	case TypeNone, TypeHash, TypeSet, TypeZSet:
		return KeyType(t), nil
	}
	return TypeNone, wrap("TYPE", key, fmt.Errorf("unsupported key type %q", t))
}

// Exists implements Store.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	return n > 0, wrap("EXISTS", key, err)
}

// Del implements Store.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.write(ctx, "DEL", keys[0], func(c commands) redis.Cmder {
		return c.Del(ctx, keys...)
	})
}
