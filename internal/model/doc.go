// Package model defines the value records the attribution engine operates
// on: sources, triggers, reports, and attribution rate-limit ledger rows.
//
// Records are plain immutable values. Nothing here mutates in place; the
// With* helpers derive modified copies so that a transaction either persists
// a fully updated record or nothing. Structured sub-fields (filter data,
// event triggers, aggregation keys) are carried as the raw JSON text they
// were registered with and parsed on demand, matching how they are stored.
package model
