package attribution

import (
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
)

// maybeGenerateEventReport attempts the event-level report for an
// attributed pairing. Returns whether a report was persisted; every drop
// condition is a classified outcome, not an error.
func (e *Engine) maybeGenerateEventReport(dao *store.DAO, winner model.Source, trigger model.Trigger) (bool, error) {
	// Derived sources never produce event-level reports; only their
	// parent network may observe event data.
	if winner.IsDerived() {
		e.debug.Record(debugreport.ReasonEventNoMatchingTriggerData,
			"trigger_id", trigger.ID, "source_id", *winner.ParentID, "derived", true)
		return false, nil
	}
	if winner.AttributionMode != model.AttributionModeTruthful {
		e.debug.Record(debugreport.ReasonEventNoise,
			"trigger_id", trigger.ID, "source_id", winner.ID)
		return false, nil
	}
	if trigger.TriggerTime > winner.EventReportWindow {
		e.debug.Record(debugreport.ReasonEventReportWindowPassed,
			"trigger_id", trigger.ID, "source_id", winner.ID)
		return false, nil
	}

	sourceMap, err := winner.FilterMap()
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "source_id", winner.ID, "error", err.Error())
		return false, nil
	}
	eventTriggers, err := trigger.ParseEventTriggers()
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		return false, nil
	}

	// First matching event trigger wins, not the best matching one.
	var matched *model.EventTrigger
	for i := range eventTriggers {
		if eventTriggers[i].MatchesSource(sourceMap) {
			matched = &eventTriggers[i]
			break
		}
	}
	if matched == nil {
		e.debug.Record(debugreport.ReasonEventNoMatchingTriggerData,
			"trigger_id", trigger.ID, "source_id", winner.ID)
		return false, nil
	}

	if matched.DedupKey != nil && winner.HasEventDedupKey(*matched.DedupKey) {
		e.debug.Record(debugreport.ReasonEventDeduplicated,
			"trigger_id", trigger.ID, "source_id", winner.ID)
		return false, nil
	}

	destination, err := trigger.CanonicalDestination()
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		return false, nil
	}
	count, err := dao.CountEventReportsPerDestination(destination, trigger.DestinationType)
	if err != nil {
		return false, err
	}
	if count >= e.limits.MaxEventReportsPerDestination {
		e.debug.Record(debugreport.ReasonEventDestinationCeiling,
			"trigger_id", trigger.ID, "destination", destination)
		return false, nil
	}

	reportTime := winner.EventReportWindow + e.limits.EventReportDelay
	winner, admitted, err := e.provisionEventReportQuota(
		dao, winner, trigger, matched.Priority, reportTime)
	if err != nil || !admitted {
		return false, err
	}

	report := model.EventReport{
		ID:                     e.ids.NewID(),
		SourceID:               winner.ID,
		TriggerID:              trigger.ID,
		SourceEventID:          winner.EventID,
		EnrollmentID:           trigger.EnrollmentID,
		AttributionDestination: destination,
		DestinationType:        trigger.DestinationType,
		TriggerData:            matched.Data,
		TriggerPriority:        matched.Priority,
		TriggerDedupKey:        matched.DedupKey,
		TriggerTime:            trigger.TriggerTime,
		ReportTime:             reportTime,
		SourceType:             winner.Type,
		Status:                 model.ReportPending,
	}
	if err := dao.InsertEventReport(report); err != nil {
		return false, err
	}

	if matched.DedupKey != nil {
		winner = winner.WithEventDedupKey(*matched.DedupKey)
	}
	if err := dao.UpdateSourceEventDedupKeys(winner); err != nil {
		return false, err
	}
	return true, nil
}
