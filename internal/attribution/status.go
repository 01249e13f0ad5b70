package attribution

import "go.uber.org/atomic"

// Result classifies how one trigger attempt ended.
type Result string

const (
	// ResultAttributed means at least one report was generated.
	ResultAttributed Result = "attributed"
	// ResultIgnored means the trigger was finalized without a report.
	ResultIgnored Result = "ignored"
	// ResultAlreadyHandled means the trigger was no longer pending.
	ResultAlreadyHandled Result = "already-handled"
)

// FailureType names the first condition that blocked attribution for an
// ignored trigger.
type FailureType string

const (
	FailureNone              FailureType = ""
	FailureNoMatchingSource  FailureType = "no-matching-source"
	FailureTopLevelFilters   FailureType = "top-level-filter-mismatch"
	FailureRateLimit         FailureType = "rate-limit-exceeded"
	FailureNoReportGenerated FailureType = "no-report-generated"
	FailureMalformedTrigger  FailureType = "malformed-trigger"
)

// AttemptStatus is the structured per-attempt record surfaced for metrics.
type AttemptStatus struct {
	TriggerID string
	Result    Result
	Failure   FailureType

	// Surface combination of the attributed pair, e.g. "app-app".
	SurfaceCombination string

	SourceType        string
	SourceDerived     bool
	InstallAttributed bool

	// AttributionDelay is triggerTime - eventTime of the winning source
	// in milliseconds. Zero when no source won.
	AttributionDelay int64

	// DelayedSourceDelay is set when no source matched but one registered
	// shortly after the trigger would have. Zero otherwise.
	DelayedSourceDelay int64

	EventReportGenerated     bool
	AggregateReportGenerated bool
}

// PassStats aggregates attempt outcomes across one or more passes. Counters
// are atomic so callers may read them while a pass is running.
type PassStats struct {
	Attempted        atomic.Int64
	Attributed       atomic.Int64
	Ignored          atomic.Int64
	AlreadyHandled   atomic.Int64
	EventReports     atomic.Int64
	AggregateReports atomic.Int64
}

func (ps *PassStats) observe(st AttemptStatus) {
	ps.Attempted.Inc()
	switch st.Result {
	case ResultAttributed:
		ps.Attributed.Inc()
	case ResultIgnored:
		ps.Ignored.Inc()
	case ResultAlreadyHandled:
		ps.AlreadyHandled.Inc()
	}
	if st.EventReportGenerated {
		ps.EventReports.Inc()
	}
	if st.AggregateReportGenerated {
		ps.AggregateReports.Inc()
	}
}
