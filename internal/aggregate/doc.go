// Package aggregate builds the histogram payload of aggregate reports.
//
// A source registers named aggregation keys, each a 128-bit bucket prefix.
// A trigger contributes key pieces (OR-ed into matching buckets) and values
// (one per key name). A contribution exists for a key name only when both
// sides name it: the final bucket is the source prefix OR-ed with every
// matching trigger key piece, and the value is the trigger's value for that
// name. Trigger key pieces and aggregate dedup-key rules carry their own
// filter sets, evaluated against the source's filter data.
package aggregate
