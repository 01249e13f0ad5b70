package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/atrius/attribution/internal/attribution"
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/store"
	"github.com/atrius/attribution/internal/testutil"
)

// reportIDPrefix seeds the sequential id source, so every record the
// engine mints during a run reads "r-0001", "r-0002", ... in mint order.
const reportIDPrefix = "r"

// maxPasses bounds the drain loop against a scenario that never settles.
const maxPasses = 100

// Run executes a scenario against a fresh store and returns the trace.
//
// The store lives in a temp directory that is removed before returning;
// everything observable about the run is captured in the Result.
func Run(scenario *Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "attrib-harness-")
	if err != nil {
		return nil, fmt.Errorf("harness temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "attribution.db"))
	if err != nil {
		return nil, fmt.Errorf("harness store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := seed(ctx, st, scenario); err != nil {
		return nil, err
	}

	engine := attribution.New(st, scenario.limits(),
		attribution.WithIDSource(testutil.NewSequenceIDSource(reportIDPrefix)),
		attribution.WithJitter(testutil.ZeroJitter),
		attribution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		attribution.WithDebugRecorder(debugreport.Nop()),
	)

	result := &Result{}
	for {
		drained, err := engine.PerformPendingAttributions(ctx)
		if err != nil {
			return nil, fmt.Errorf("harness pass %d: %w", result.Passes+1, err)
		}
		result.Passes++
		if drained {
			result.Drained = true
			break
		}
		if result.Passes >= maxPasses {
			break
		}
	}

	if err := collect(ctx, st, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

func seed(ctx context.Context, st *store.Store, scenario *Scenario) error {
	return st.RunInTransaction(ctx, func(dao *store.DAO) error {
		for _, r := range scenario.Sources {
			if err := dao.InsertSource(r.toModel()); err != nil {
				return fmt.Errorf("seed source %s: %w", r.ID, err)
			}
		}
		for _, r := range scenario.Triggers {
			if err := dao.InsertTrigger(r.toModel()); err != nil {
				return fmt.Errorf("seed trigger %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// collect reads the final state back into the trace. Reports are gathered
// per seeded source and matched to triggers by id, so reports landing on a
// derived winner's parent still appear under the trigger that produced
// them.
func collect(ctx context.Context, st *store.Store, scenario *Scenario, result *Result) error {
	return st.RunInTransaction(ctx, func(dao *store.DAO) error {
		eventBy := make(map[string][]EventReportLine)
		aggregateBy := make(map[string][]AggregateReportLine)

		for _, r := range scenario.Sources {
			events, err := dao.EventReportsBySource(r.ID)
			if err != nil {
				return err
			}
			for _, rep := range events {
				eventBy[rep.TriggerID] = append(eventBy[rep.TriggerID], EventReportLine{
					ID:          rep.ID,
					SourceID:    rep.SourceID,
					TriggerData: rep.TriggerData,
					Priority:    rep.TriggerPriority,
					ReportTime:  rep.ReportTime,
				})
			}

			aggregates, err := dao.AggregateReportsBySource(r.ID)
			if err != nil {
				return err
			}
			for _, rep := range aggregates {
				aggregateBy[rep.TriggerID] = append(aggregateBy[rep.TriggerID], AggregateReportLine{
					ID:                  rep.ID,
					SourceID:            rep.SourceID,
					Contributions:       rep.Contributions,
					ScheduledReportTime: rep.ScheduledReportTime,
				})
			}
		}

		for _, r := range scenario.Triggers {
			trigger, err := dao.TriggerByID(r.ID)
			if err != nil {
				return fmt.Errorf("collect trigger %s: %w", r.ID, err)
			}
			result.Trace = append(result.Trace, TraceEntry{
				TriggerID:        trigger.ID,
				Status:           string(trigger.Status),
				EventReports:     eventBy[trigger.ID],
				AggregateReports: aggregateBy[trigger.ID],
			})
		}

		for _, r := range scenario.Sources {
			source, err := dao.SourceByID(r.ID)
			if err != nil {
				return fmt.Errorf("collect source %s: %w", r.ID, err)
			}
			result.Sources = append(result.Sources, SourceState{
				ID:                     source.ID,
				Status:                 string(source.Status),
				AggregateContributions: source.AggregateContributions,
			})
		}
		return nil
	})
}

// entry returns the trace entry for a trigger id, if present.
func (r *Result) entry(triggerID string) (TraceEntry, bool) {
	for _, e := range r.Trace {
		if e.TriggerID == triggerID {
			return e, true
		}
	}
	return TraceEntry{}, false
}
