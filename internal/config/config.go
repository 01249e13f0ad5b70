// Package config holds the engine's privacy and system-health limits.
//
// The defaults mirror the measurement API's published parameters; a YAML
// file can override individual values for testing or staged rollouts.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits bounds every quota, budget, and window the engine enforces.
// All durations are in milliseconds to match record timestamps.
type Limits struct {
	// RateLimitWindow is the sliding window for the attribution ledger
	// checks, ending at trigger time.
	RateLimitWindow int64 `yaml:"rate_limit_window_ms"`

	// MaxAttributionsPerRateLimitWindow caps ledger rows per
	// (source site, destination site, enrollment) within the window.
	MaxAttributionsPerRateLimitWindow int64 `yaml:"max_attributions_per_rate_limit_window"`

	// MaxDistinctEnrollments caps how many distinct enrollments may
	// attribute the same (publisher, destination) pair within the window.
	MaxDistinctEnrollments int64 `yaml:"max_distinct_enrollments"`

	// Per-destination report ceilings. Hard caps: reports at the ceiling
	// are dropped, never evicted.
	MaxEventReportsPerDestination     int64 `yaml:"max_event_reports_per_destination"`
	MaxAggregateReportsPerDestination int64 `yaml:"max_aggregate_reports_per_destination"`

	// MaxAggregateContributions is the per-source aggregate value budget.
	MaxAggregateContributions int64 `yaml:"max_aggregate_contributions"`

	// Aggregate report delay: a uniform jitter in [0, span) added to the
	// minimum delay.
	AggregateReportMinDelay  int64 `yaml:"aggregate_report_min_delay_ms"`
	AggregateReportDelaySpan int64 `yaml:"aggregate_report_delay_span_ms"`

	// EventReportQuotas bound pending event reports per source by type.
	MaxEventReportsPerEventSource      int64 `yaml:"max_event_reports_per_event_source"`
	MaxEventReportsPerNavigationSource int64 `yaml:"max_event_reports_per_navigation_source"`

	// EventReportDelay is added past the source's event report window when
	// scheduling a report.
	EventReportDelay int64 `yaml:"event_report_delay_ms"`

	// MaxAttributionsPerInvocation caps triggers handled in one batch.
	MaxAttributionsPerInvocation int `yaml:"max_attributions_per_invocation"`
}

// DefaultLimits returns the production parameter set.
func DefaultLimits() Limits {
	return Limits{
		RateLimitWindow:                    30 * 24 * time.Hour.Milliseconds(),
		MaxAttributionsPerRateLimitWindow:  100,
		MaxDistinctEnrollments:             10,
		MaxEventReportsPerDestination:      1024,
		MaxAggregateReportsPerDestination:  1024,
		MaxAggregateContributions:          65536,
		AggregateReportMinDelay:            10 * time.Minute.Milliseconds(),
		AggregateReportDelaySpan:           50 * time.Minute.Milliseconds(),
		MaxEventReportsPerEventSource:      1,
		MaxEventReportsPerNavigationSource: 3,
		EventReportDelay:                   time.Hour.Milliseconds(),
		MaxAttributionsPerInvocation:       100,
	}
}

// Load reads limits from a YAML file. Fields absent from the file keep
// their defaults; unknown fields are an error.
func Load(path string) (Limits, error) {
	limits := DefaultLimits()

	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("load limits: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&limits); err != nil {
		return Limits{}, fmt.Errorf("load limits %s: %w", path, err)
	}
	if err := limits.Validate(); err != nil {
		return Limits{}, fmt.Errorf("load limits %s: %w", path, err)
	}
	return limits, nil
}

// Validate rejects limit sets that would make the engine inert or racy.
func (l Limits) Validate() error {
	if l.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window_ms must be positive")
	}
	if l.MaxAttributionsPerInvocation <= 0 {
		return fmt.Errorf("max_attributions_per_invocation must be positive")
	}
	if l.AggregateReportDelaySpan < 0 || l.AggregateReportMinDelay < 0 {
		return fmt.Errorf("aggregate report delay bounds must be non-negative")
	}
	if l.MaxAggregateContributions <= 0 {
		return fmt.Errorf("max_aggregate_contributions must be positive")
	}
	return nil
}
