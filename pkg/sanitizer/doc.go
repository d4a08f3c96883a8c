// Package sanitizer normalizes booking contact fields before validation and
// storage.
//
// All functions are idempotent. Unparseable input is returned as an empty
// string (phones) or trimmed (everything else) so that the validator, not the
// sanitizer, decides what is acceptable.
package sanitizer
