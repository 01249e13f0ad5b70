// Package attribution decides which source, if any, caused each pending
// conversion trigger.
//
// The engine processes triggers strictly sequentially. Each trigger runs as
// one datastore transaction: re-check the pending status, select a winning
// source by deterministic priority ordering, verify the trigger's top-level
// filters against the winner, enforce cross-party rate limits, then attempt
// an aggregate and an event report. A trigger becomes ATTRIBUTED when either
// report was produced, IGNORED otherwise. All side effects (report rows,
// source status flips, dedup-key growth, contribution counters, the
// attribution ledger row) commit or roll back together.
//
// Business outcomes (no matching source, dedup collision, rate limit hit,
// budget exhausted) are classified on the per-attempt status record and
// optionally forwarded to the debug-report recorder; they never surface as
// errors. Datastore failures abort the trigger and the surrounding batch.
package attribution
