// Package orm persists entities as hash records and keeps their secondary
// indexes in step with the record.
//
// A Repository serves one registered entity type. Save writes the record at
// prefix:id and then walks the type's indexes in declaration order:
//
//   - an equality index named n holds the id in the set n:value
//   - a sorted index named n holds the id in the sorted set n, scored by
//     the raw number or, for temporal properties, Unix seconds
//
// Setting an indexed property to null removes the id from the index. For
// equality indexes the old value is read from the record as it was before
// the write, so the id is removed from n:old.
//
// # Stale equality membership
//
// When an equality-indexed property moves from one non-null value to
// another, the id stays in the old value's set unless the repository was
// built WithStaleCleanup(true). The default keeps this behaviour so that
// existing keyspaces are not rewritten behind their owners' backs.
//
// # Partial failure
//
// Each store call is independent. If one fails partway through a save, the
// record may already be written while later indexes are not. Nothing is
// rolled back. WithAtomic(true) on a store implementing store.Atomic runs
// the whole save as a single unit instead.
//
// # Missing records
//
// Find returns a blank entity when no record exists. Use Exists to tell a
// missing record from one whose fields are all null.
package orm
