package store

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// memState holds the three keyspaces. It is not synchronized.
type memState struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
}

func newMemState() *memState {
	return &memState{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
	}
}

// keySnapshot is what one key held before a unit first wrote it. A nil
// map means the key had no value of that type.
type keySnapshot struct {
	hash map[string]string
	set  map[string]struct{}
	zset map[string]float64
}

func (s *memState) snapshot(key string) keySnapshot {
	return keySnapshot{
		hash: maps.Clone(s.hashes[key]),
		set:  maps.Clone(s.sets[key]),
		zset: maps.Clone(s.zsets[key]),
	}
}

func (s *memState) restore(key string, snap keySnapshot) {
	delete(s.hashes, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	if snap.hash != nil {
		s.hashes[key] = snap.hash
	}
	if snap.set != nil {
		s.sets[key] = snap.set
	}
	if snap.zset != nil {
		s.zsets[key] = snap.zset
	}
}

// Memory is an in-process Store. Values are copied on the way in and out
// so callers cannot mutate stored state.
type Memory struct {
	mu   *sync.RWMutex // nil inside Atomically
	st   *memState
	undo map[string]keySnapshot // first-write snapshots; nil outside Atomically
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, st: newMemState()}
}

func (m *Memory) rlock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) lock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// touch records key's current value the first time a unit writes it.
func (m *Memory) touch(key string) {
	if m.undo == nil {
		return
	}
	if _, ok := m.undo[key]; !ok {
		m.undo[key] = m.st.snapshot(key)
	}
}

// HGetAll implements Store.
func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	defer m.rlock()()
	out := make(map[string]string, len(m.st.hashes[key]))
	for f, v := range m.st.hashes[key] {
		out[f] = v
	}
	return out, nil
}

// HSet implements Store.
func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	defer m.lock()()
	m.touch(key)
	h, ok := m.st.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.st.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

// SAdd implements Store.
func (m *Memory) SAdd(_ context.Context, key, member string) error {
	defer m.lock()()
	m.touch(key)
	set, ok := m.st.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.st.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SRem implements Store.
func (m *Memory) SRem(_ context.Context, key, member string) error {
	defer m.lock()()
	m.touch(key)
	set, ok := m.st.sets[key]
	if !ok {
		return nil
	}
	delete(set, member)
	if len(set) == 0 {
		delete(m.st.sets, key)
	}
	return nil
}

// SCard implements Store.
func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	defer m.rlock()()
	return int64(len(m.st.sets[key])), nil
}

// SIsMember implements Store.
func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	defer m.rlock()()
	_, ok := m.st.sets[key][member]
	return ok, nil
}

// SMembers implements Store.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	defer m.rlock()()
	out := make([]string, 0, len(m.st.sets[key]))
	for member := range m.st.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

// ZAdd implements Store.
func (m *Memory) ZAdd(_ context.Context, key, member string, score float64) error {
	defer m.lock()()
	m.touch(key)
	z, ok := m.st.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.st.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRem implements Store.
func (m *Memory) ZRem(_ context.Context, key, member string) error {
	defer m.lock()()
	m.touch(key)
	z, ok := m.st.zsets[key]
	if !ok {
		return nil
	}
	delete(z, member)
	if len(z) == 0 {
		delete(m.st.zsets, key)
	}
	return nil
}

// ZCard implements Store.
func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	defer m.rlock()()
	return int64(len(m.st.zsets[key])), nil
}

// ZScore implements Store.
func (m *Memory) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	defer m.rlock()()
	score, ok := m.st.zsets[key][member]
	return score, ok, nil
}

// ZRangeByScore implements Store.
func (m *Memory) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	defer m.rlock()()
	type entry struct {
		member string
		score  float64
	}
	var entries []entry
	for member, score := range m.st.zsets[key] {
		if score >= min && score <= max {
			entries = append(entries, entry{member, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out, nil
}

// Keys implements Store.
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := globRegexp(pattern)
	if err != nil {
		return nil, wrap("KEYS", pattern, err)
	}

	defer m.rlock()()
	seen := make(map[string]struct{})
	for _, keys := range []iter.Seq[string]{
		maps.Keys(m.st.hashes),
		maps.Keys(m.st.sets),
		maps.Keys(m.st.zsets),
	} {
		for k := range keys {
			if re.MatchString(k) {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Type implements Store.
func (m *Memory) Type(_ context.Context, key string) (KeyType, error) {
	defer m.rlock()()
	return m.st.typeOf(key), nil
}

func (s *memState) typeOf(key string) KeyType {
	if _, ok := s.hashes[key]; ok {
		return TypeHash
	}
	if _, ok := s.sets[key]; ok {
		return TypeSet
	}
	if _, ok := s.zsets[key]; ok {
		return TypeZSet
	}
	return TypeNone
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	defer m.rlock()()
	return m.st.typeOf(key) != TypeNone, nil
}

// Del implements Store.
func (m *Memory) Del(_ context.Context, keys ...string) error {
	defer m.lock()()
	for _, k := range keys {
		m.touch(k)
		delete(m.st.hashes, k)
		delete(m.st.sets, k)
		delete(m.st.zsets, k)
	}
	return nil
}

// Close implements Store. The memory store holds no resources.
func (m *Memory) Close() error {
	return nil
}

// Atomically runs fn under the store's write lock. If fn fails, every
// key it wrote is put back the way it was. The watch list is ignored
// since nothing else can run while the lock is held.
func (m *Memory) Atomically(_ context.Context, _ []string, fn func(Store) error) error {
	if m.mu == nil {
		return wrap("MULTI", "", ErrNotAtomic)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &Memory{st: m.st, undo: make(map[string]keySnapshot)}
	if err := fn(view); err != nil {
		for key, snap := range view.undo {
			m.st.restore(key, snap)
		}
		return err
	}
	return nil
}

// globRegexp translates a Redis KEYS pattern into an anchored regexp.
// Unlike path.Match, '*' and '?' also match '/'.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '\\':
			if i+1 < len(pattern) {
				i++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		case '[':
			j := i + 1
			b.WriteByte('[')
			if j < len(pattern) && pattern[j] == '^' {
				b.WriteByte('^')
				j++
			}
			start := j
			for ; j < len(pattern) && pattern[j] != ']'; j++ {
				if pattern[j] == '\\' && j+1 < len(pattern) {
					j++
					if pattern[j] == '-' {
						b.WriteString(`\-`)
						continue
					}
				}
				b.WriteString(classEscape(pattern[j]))
			}
			if j == len(pattern) {
				return nil, fmt.Errorf("unterminated character class in %q", pattern)
			}
			if j == start {
				return nil, fmt.Errorf("empty character class in %q", pattern)
			}
			b.WriteByte(']')
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// classEscape quotes the bytes that are special inside a regexp class.
// '-' is left alone so ranges like [a-z] keep working.
func classEscape(c byte) string {
	switch c {
	case '\\', ']', '[', '^':
		return `\` + string(c)
	}
	return string(c)
}

// Unbounded score limits for ZRangeByScore.
var (
	MinScore = math.Inf(-1)
	MaxScore = math.Inf(1)
)
