// Package store provides the key-value capability set behind kvorm
// repositories: hash records, sets, and sorted sets.
//
// Three backends implement Store:
//   - Memory: maps guarded by a mutex, for tests and embedding
//   - SQLite: one table per structure (hashes, sets, zsets), WAL mode
//   - Redis: a thin mapping onto native Redis commands via go-redis
//
// All backends also implement Atomic, which runs a sequence of operations
// as one unit: a locked section with rollback (Memory), a transaction
// (SQLite), or WATCH/MULTI/EXEC (Redis).
//
// # Errors
//
// Every backend failure is returned as a *Error carrying the command name
// and key. Callers should propagate it unchanged; IsStoreError detects it
// through wrapping.
//
// # Semantics
//
//   - Sets and sorted sets disappear when their last member is removed.
//   - SMembers, Keys and ZRangeByScore return deterministic orderings
//     (members sorted, keys sorted, scores ascending then member).
//   - Keys accepts a glob pattern. Memory translates it to a regexp,
//     SQLite uses GLOB and Redis uses KEYS. The three agree on *, ? and
//     [...] classes, and * matches '/' on all of them.
//   - Only Redis enforces one structure per key. The other backends keep
//     hashes, sets and sorted sets in separate namespaces.
package store
