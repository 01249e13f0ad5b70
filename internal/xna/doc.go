// Package xna generates derived sources for cross-network attribution.
//
// A trigger may carry an ordered attribution config delegating attribution
// credit: each entry names another enrolled network and the constraints
// under which that network's sources may compete for this trigger. For
// every parent source that passes an entry's constraints, a synthetic
// derived source is produced. Derived sources are never persisted; they are
// resolved back to their parent for all bookkeeping, and a parent consumed
// by one config entry is excluded from later entries.
package xna
