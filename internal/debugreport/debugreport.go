package debugreport

import (
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// Reason identifies why a trigger, report, or candidate source was dropped
// or demoted. Values are stable strings suitable for log filtering.
type Reason string

const (
	ReasonTriggerNoMatchingSource       Reason = "trigger-no-matching-source"
	ReasonTriggerTopLevelFilterMismatch Reason = "trigger-top-level-filter-mismatch"
	ReasonTriggerAttributionsPerWindow  Reason = "trigger-max-attributions-per-window"
	ReasonTriggerDistinctEnrollments    Reason = "trigger-max-distinct-enrollments"
	ReasonEventNoMatchingTriggerData    Reason = "event-no-matching-trigger-data"
	ReasonEventDeduplicated             Reason = "event-deduplicated"
	ReasonEventDestinationCeiling       Reason = "event-max-reports-per-destination"
	ReasonEventLowPriority              Reason = "event-excessive-reports-low-priority"
	ReasonEventReportEvicted            Reason = "event-report-evicted"
	ReasonEventReportWindowPassed       Reason = "event-report-window-passed"
	ReasonEventNoise                    Reason = "event-noised-source"
	ReasonAggregateDeduplicated         Reason = "aggregate-deduplicated"
	ReasonAggregateDestinationCeiling   Reason = "aggregate-max-reports-per-destination"
	ReasonAggregateInsufficientBudget   Reason = "aggregate-insufficient-budget"
	ReasonAggregateNoContributions      Reason = "aggregate-no-contributions"
	ReasonAggregateReportWindowPassed   Reason = "aggregate-report-window-passed"
	ReasonDelayedSourceRegistration     Reason = "delayed-source-registration"
	ReasonDerivedSourceParentIgnored    Reason = "derived-source-parent-ignored"
	ReasonTriggerMalformed              Reason = "trigger-malformed"
)

// defaultRate bounds emission to 10 records/s with a burst of 50; decisions
// beyond that are counted as suppressed but not logged.
const (
	defaultRate  = 10
	defaultBurst = 50
)

// Recorder emits decision diagnostics through a throttled structured logger.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New builds a Recorder on the given logger.
func New(logger *slog.Logger) *Recorder {
	return &Recorder{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
	}
}

// NewUnthrottled builds a Recorder without rate limiting, for tests and
// replay harnesses that assert on emitted records.
func NewUnthrottled(logger *slog.Logger) *Recorder {
	return &Recorder{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// Nop returns a Recorder that discards everything.
func Nop() *Recorder {
	return NewUnthrottled(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Record emits one decision record. Never blocks and never returns an
// error; when the throttle is exhausted the record is dropped.
func (r *Recorder) Record(reason Reason, args ...any) {
	if r == nil {
		return
	}
	if !r.limiter.Allow() {
		return
	}
	r.logger.Debug("attribution decision",
		append([]any{slog.String("reason", string(reason))}, args...)...)
}
