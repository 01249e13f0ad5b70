package attribution

import (
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
)

// sitePair carries the ledger identity of one (source, trigger) pairing.
// Sites key the rate-limit counters; origins are recorded alongside.
type sitePair struct {
	sourceSite        string
	sourceOrigin      string
	destinationSite   string
	destinationOrigin string
}

func attributionSites(winner model.Source, trigger model.Trigger) (sitePair, error) {
	sourceSite, err := model.TopPrivateDomain(winner.Publisher, winner.PublisherType)
	if err != nil {
		return sitePair{}, err
	}
	destinationSite, err := model.TopPrivateDomain(trigger.AttributionDestination, trigger.DestinationType)
	if err != nil {
		return sitePair{}, err
	}
	destinationOrigin, err := model.BaseURI(trigger.AttributionDestination)
	if err != nil {
		return sitePair{}, err
	}
	return sitePair{
		sourceSite:        sourceSite,
		sourceOrigin:      winner.Publisher,
		destinationSite:   destinationSite,
		destinationOrigin: destinationOrigin,
	}, nil
}

// checkRateLimits applies the two ledger-backed cross-party limits inside
// the window ending at trigger time: the attribution count for this exact
// (source site, destination site, enrollment) triple, and the number of
// distinct other enrollments already attributing the same site pair.
// Ledger rows fall inside the window by their source event time, so the
// caps bound attributions to recently registered sources.
func (e *Engine) checkRateLimits(dao *store.DAO, trigger model.Trigger, sites sitePair) (bool, debugreport.Reason, error) {
	windowStart := trigger.TriggerTime - e.limits.RateLimitWindow

	count, err := dao.CountAttributionsInWindow(
		sites.sourceSite, sites.destinationSite, trigger.EnrollmentID,
		windowStart, trigger.TriggerTime)
	if err != nil {
		return false, "", err
	}
	if count >= e.limits.MaxAttributionsPerRateLimitWindow {
		return false, debugreport.ReasonTriggerAttributionsPerWindow, nil
	}

	distinct, err := dao.CountDistinctEnrollmentsInWindow(
		sites.sourceSite, sites.destinationSite, trigger.EnrollmentID,
		windowStart, trigger.TriggerTime)
	if err != nil {
		return false, "", err
	}
	if distinct >= e.limits.MaxDistinctEnrollments {
		return false, debugreport.ReasonTriggerDistinctEnrollments, nil
	}
	return true, "", nil
}

// maxEventReports is the per-source pending report quota for this pairing.
// Install-attributed sources earn one extra report for app conversions.
func (e *Engine) maxEventReports(source model.Source, trigger model.Trigger) int64 {
	max := e.limits.MaxEventReportsPerEventSource
	if source.Type == model.SourceTypeNavigation {
		max = e.limits.MaxEventReportsPerNavigationSource
	}
	if source.InstallAttributed && trigger.DestinationType == model.SurfaceApp {
		max++
	}
	return max
}

// provisionEventReportQuota makes room for a new event report within the
// source's quota for the report-time bucket. When the bucket is full, the
// lowest-priority pending report is evicted, but only if the new report
// strictly outranks it; ties evict nothing and drop the newcomer. An
// evicted report's dedup key is released back onto the source.
//
// Returns the source (possibly with a dedup key released) and whether the
// new report may be admitted.
func (e *Engine) provisionEventReportQuota(
	dao *store.DAO,
	source model.Source,
	trigger model.Trigger,
	newPriority int64,
	reportTime int64,
) (model.Source, bool, error) {
	existing, err := dao.EventReportsBySource(source.ID)
	if err != nil {
		return source, false, err
	}

	var bucket []model.EventReport
	for _, r := range existing {
		if r.Status == model.ReportPending && r.ReportTime == reportTime {
			bucket = append(bucket, r)
		}
	}
	if int64(len(bucket)) < e.maxEventReports(source, trigger) {
		return source, true, nil
	}

	evict := lowestPriorityReport(bucket)
	if newPriority <= evict.TriggerPriority {
		e.debug.Record(debugreport.ReasonEventLowPriority,
			"trigger_id", trigger.ID, "source_id", source.ID)
		return source, false, nil
	}

	if err := dao.DeleteEventReport(evict.ID); err != nil {
		return source, false, err
	}
	if evict.TriggerDedupKey != nil {
		source = source.WithoutEventDedupKey(*evict.TriggerDedupKey)
	}
	e.debug.Record(debugreport.ReasonEventReportEvicted,
		"trigger_id", trigger.ID, "source_id", source.ID, "report_id", evict.ID)
	return source, true, nil
}

// lowestPriorityReport picks the eviction candidate: lowest trigger
// priority, ties broken by most recent trigger time.
func lowestPriorityReport(bucket []model.EventReport) model.EventReport {
	evict := bucket[0]
	for _, r := range bucket[1:] {
		if r.TriggerPriority < evict.TriggerPriority ||
			(r.TriggerPriority == evict.TriggerPriority && r.TriggerTime > evict.TriggerTime) {
			evict = r
		}
	}
	return evict
}
