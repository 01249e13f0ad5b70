package harness

import "github.com/atrius/attribution/internal/model"

// Result captures the observable outcome of a scenario run. Field order
// matters: the JSON rendering of this tree is what golden files compare.
type Result struct {
	// Drained reports whether the final pass saw the queue fit within
	// one invocation's cap.
	Drained bool `json:"drained"`

	// Passes is the number of engine invocations it took to drain.
	Passes int `json:"passes"`

	// Trace holds one entry per seeded trigger, in seed order.
	Trace []TraceEntry `json:"trace"`

	// Sources holds the post-run state of each seeded source, in seed
	// order.
	Sources []SourceState `json:"sources,omitempty"`
}

// TraceEntry is the final state of one trigger and the reports it produced.
type TraceEntry struct {
	TriggerID string `json:"trigger_id"`
	Status    string `json:"status"`

	EventReports     []EventReportLine     `json:"event_reports,omitempty"`
	AggregateReports []AggregateReportLine `json:"aggregate_reports,omitempty"`
}

// EventReportLine is the trace projection of an event-level report.
type EventReportLine struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	TriggerData uint64 `json:"trigger_data"`
	Priority    int64  `json:"priority"`
	ReportTime  int64  `json:"report_time"`
}

// AggregateReportLine is the trace projection of an aggregate report.
type AggregateReportLine struct {
	ID                  string               `json:"id"`
	SourceID            string               `json:"source_id"`
	Contributions       []model.Contribution `json:"contributions"`
	ScheduledReportTime int64                `json:"scheduled_report_time"`
}

// SourceState is the post-run projection of a seeded source.
type SourceState struct {
	ID                     string `json:"id"`
	Status                 string `json:"status"`
	AggregateContributions int64  `json:"aggregate_contributions"`
}
