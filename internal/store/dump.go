package store

import (
	"context"
	"fmt"
)

// Entry is one key of a keyspace dump. Exactly one of Hash, Members or
// Scores is set, matching Type.
type Entry struct {
	Key     string             `json:"key"`
	Type    KeyType            `json:"type"`
	Hash    map[string]string  `json:"hash,omitempty"`
	Members []string           `json:"members,omitempty"`
	Scores  map[string]float64 `json:"scores,omitempty"`
}

// Dump reads every key matching pattern. Entries are ordered by key.
func Dump(ctx context.Context, s Store, pattern string) ([]Entry, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		t, err := s.Type(ctx, key)
		if err != nil {
			return nil, err
		}
		e := Entry{Key: key, Type: t}
		switch t {
		case TypeHash:
			if e.Hash, err = s.HGetAll(ctx, key); err != nil {
				return nil, err
			}
		case TypeSet:
			if e.Members, err = s.SMembers(ctx, key); err != nil {
				return nil, err
			}
		case TypeZSet:
			if e.Scores, err = dumpScores(ctx, s, key); err != nil {
				return nil, err
			}
		case TypeNone:
			// Removed between KEYS and TYPE.
			continue
		default:
			return nil, fmt.Errorf("dump %s: unexpected type %q", key, t)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func dumpScores(ctx context.Context, s Store, key string) (map[string]float64, error) {
	members, err := s.ZRangeByScore(ctx, key, MinScore, MaxScore)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(members))
	for _, m := range members {
		score, ok, err := s.ZScore(ctx, key, m)
		if err != nil {
			return nil, err
		}
		if ok {
			scores[m] = score
		}
	}
	return scores, nil
}
