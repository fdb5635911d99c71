// Package keys builds store keys from ordered segments.
//
// A Strategy joins segments into a single key. The default strategy,
// Colon, produces keys such as "Car:1" for canonical records and
// "color:red" for equality indexes.
//
// Segments are not escaped. A segment that itself contains the delimiter
// yields a key that cannot be split back unambiguously; callers that need
// such identifiers should plug in a different Strategy.
package keys
