// Package harness runs end-to-end attribution scenarios described in YAML.
//
// A scenario seeds sources and triggers into a fresh store, runs engine
// passes until the pending queue drains, and captures a trace of the final
// state: per-trigger outcomes, the reports each trigger produced, and the
// post-run status of every seeded source. The engine is wired with a
// sequential id source and zero report-time jitter, so the same scenario
// always yields the same trace.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	limits:
//	  max_event_reports_per_navigation_source: 1
//	sources:
//	  - id: s-1
//	    event_id: 11
//	    publisher: "https://ads.adtech.com"
//	    app_destination: "android-app://com.example.store"
//	    ...
//	triggers:
//	  - id: t-1
//	    enrollment_id: enrollment-a
//	    ...
//	expect:
//	  - trigger: t-1
//	    status: attributed
//	    event_reports: 1
//	    aggregate_reports: 1
//
// The limits block overrides individual fields of config.DefaultLimits;
// absent fields keep their defaults.
//
// Traces can be checked two ways: the declarative expect block inside the
// scenario file (final trigger status, report counts), or byte-for-byte
// golden comparison against testdata/golden via RunWithGolden. Golden
// files are regenerated with `go test ./internal/harness -update`.
package harness
