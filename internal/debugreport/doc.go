// Package debugreport emits verbose diagnostics for attribution decisions.
//
// Every terminal decision the engine makes (no matching source, rate limit
// hit, dedup drop, quota eviction) maps to a typed reason code. Recording is
// fire-and-forget: a throttle caps the emission rate and a failed or
// suppressed record never affects the attribution transaction.
package debugreport
