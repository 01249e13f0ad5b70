package attribution

import (
	"math"

	"github.com/atrius/attribution/internal/aggregate"
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/filter"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
)

// aggregateAPIVersion tags emitted aggregate reports.
const aggregateAPIVersion = "0.1"

const dayMillis = 24 * 60 * 60 * 1000

// maybeGenerateAggregateReport attempts the aggregate histogram report for
// an attributed pairing. Returns whether a report was persisted; every drop
// condition is a classified outcome, not an error.
//
// For a derived winner the histogram is built from the derived source's
// narrowed key surface, while dedup state lives on the parent and the
// contribution budget bookkeeping is skipped entirely.
func (e *Engine) maybeGenerateAggregateReport(dao *store.DAO, winner model.Source, trigger model.Trigger) (bool, error) {
	if trigger.TriggerTime > winner.AggregatableReportWindow {
		e.debug.Record(debugreport.ReasonAggregateReportWindowPassed,
			"trigger_id", trigger.ID, "source_id", sourceLogID(winner))
		return false, nil
	}

	destination, err := trigger.CanonicalDestination()
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		return false, nil
	}
	count, err := dao.CountAggregateReportsPerDestination(destination, trigger.DestinationType)
	if err != nil {
		return false, err
	}
	if count >= e.limits.MaxAggregateReportsPerDestination {
		e.debug.Record(debugreport.ReasonAggregateDestinationCeiling,
			"trigger_id", trigger.ID, "destination", destination)
		return false, nil
	}

	sourceMap, err := winner.FilterMap()
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "source_id", sourceLogID(winner), "error", err.Error())
		return false, nil
	}
	rules, err := aggregate.ParseDedupKeys(trigger.AggregateDedupKeys)
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		return false, nil
	}
	dedupKey := aggregate.ExtractDedupKey(rules, sourceMap)

	// Dedup state accrues on the parent for derived winners, so the
	// collision check must read the parent's current key set.
	dedupTarget := winner
	if winner.IsDerived() {
		dedupTarget, err = dao.SourceByID(*winner.ParentID)
		if err != nil {
			return false, err
		}
	}
	if dedupKey != nil && dedupTarget.HasAggregateDedupKey(*dedupKey) {
		e.debug.Record(debugreport.ReasonAggregateDeduplicated,
			"trigger_id", trigger.ID, "source_id", dedupTarget.ID)
		return false, nil
	}

	contributions, ok := e.computeContributions(winner, trigger, sourceMap)
	if !ok {
		e.debug.Record(debugreport.ReasonTriggerMalformed, "trigger_id", trigger.ID)
		return false, nil
	}
	if len(contributions) == 0 {
		e.debug.Record(debugreport.ReasonAggregateNoContributions,
			"trigger_id", trigger.ID, "source_id", sourceLogID(winner))
		return false, nil
	}

	newSum, ok := addContributions(winner.AggregateContributions, contributions)
	if !ok || newSum > e.limits.MaxAggregateContributions {
		e.debug.Record(debugreport.ReasonAggregateInsufficientBudget,
			"trigger_id", trigger.ID, "source_id", sourceLogID(winner))
		return false, nil
	}

	report := model.AggregateReport{
		ID:                     e.ids.NewID(),
		SourceID:               sourceLogID(winner),
		TriggerID:              trigger.ID,
		EnrollmentID:           trigger.EnrollmentID,
		Publisher:              winner.Publisher,
		AttributionDestination: destination,
		DestinationType:        trigger.DestinationType,
		SourceRegistrationTime: roundDownToDay(winner.EventTime),
		ScheduledReportTime: trigger.TriggerTime +
			e.limits.AggregateReportMinDelay +
			e.jitter(e.limits.AggregateReportDelaySpan),
		Contributions: contributions,
		DedupKey:      dedupKey,
		APIVersion:    aggregateAPIVersion,
		Status:        model.ReportPending,
	}
	if err := dao.InsertAggregateReport(report); err != nil {
		return false, err
	}

	// Derived sources are excluded from contribution bookkeeping; the
	// cross-network budget is whatever the parent had at derivation.
	if !winner.IsDerived() {
		if err := dao.UpdateSourceAggregateContributions(
			winner.WithAggregateContributions(newSum)); err != nil {
			return false, err
		}
	}
	if dedupKey != nil {
		if err := dao.UpdateSourceAggregateDedupKeys(
			dedupTarget.WithAggregateDedupKey(*dedupKey)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// computeContributions builds the histogram for this pairing. Malformed
// key, data, or value JSON fails closed.
func (e *Engine) computeContributions(winner model.Source, trigger model.Trigger, sourceMap filter.Map) ([]model.Contribution, bool) {
	sourceKeys, err := aggregate.ParseSourceKeys(winner.AggregationKeys)
	if err != nil {
		return nil, false
	}
	data, err := aggregate.ParseTriggerData(trigger.AggregateTriggerData)
	if err != nil {
		return nil, false
	}
	values, err := aggregate.ParseValues(trigger.AggregateValues)
	if err != nil {
		return nil, false
	}
	return aggregate.Contributions(sourceKeys, sourceMap, data, values), true
}

// addContributions sums the histogram values onto the running counter with
// overflow checking. Overflow reads as budget exhaustion, never a crash.
func addContributions(current int64, contributions []model.Contribution) (int64, bool) {
	sum := current
	for _, c := range contributions {
		if c.Value < 0 {
			return 0, false
		}
		if sum > math.MaxInt64-c.Value {
			return 0, false
		}
		sum += c.Value
	}
	return sum, true
}

func roundDownToDay(t int64) int64 {
	return t - t%dayMillis
}

// sourceLogID is the id attribution records carry for a source: its own, or
// the parent's when derived.
func sourceLogID(s model.Source) string {
	if s.IsDerived() {
		return *s.ParentID
	}
	return s.ID
}
