// Package filter implements attribution filter matching.
//
// A source carries filter data: a map from attribute keys to lists of
// values. A trigger carries filter sets: lists of filter maps. Matching is
// OR across the maps of a set, AND across the keys of one map, and
// value-set intersection within one key.
//
// Matching has two modes:
//   - positive ("filters"): every common key must share at least one value
//   - negated ("not_filters"): no common key may share a value
//
// A key present on only one side never constrains the match. Empty inputs
// (no filter data, or an empty set) always match.
//
// Filter JSON arrives from untrusted registration payloads; parse errors are
// returned to the caller, which treats them as "no match" (fails closed).
package filter
