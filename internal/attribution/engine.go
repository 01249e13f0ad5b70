package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/atrius/attribution/internal/config"
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
)

// delayedSourceLookahead bounds how far past the trigger time the engine
// looks for a late-registered source when explaining a no-match outcome.
const delayedSourceLookahead = 2 * 60 * 1000

// Engine drives attribution for pending triggers. Construct with New; the
// zero value is not usable.
//
// All mutations happen inside per-trigger datastore transactions, so a
// single Engine may be shared, but concurrent passes over the same database
// only serialize on the store's single writer connection.
type Engine struct {
	store  *store.Store
	limits config.Limits
	logger *slog.Logger
	debug  *debugreport.Recorder
	ids    IDSource
	jitter func(span int64) int64
	stats  *PassStats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDebugRecorder sets the drop-reason recorder.
func WithDebugRecorder(r *debugreport.Recorder) Option {
	return func(e *Engine) { e.debug = r }
}

// WithIDSource overrides the report/ledger id source.
func WithIDSource(ids IDSource) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithJitter overrides the aggregate report delay jitter. The function
// receives the configured span and must return a value in [0, span).
func WithJitter(jitter func(span int64) int64) Option {
	return func(e *Engine) { e.jitter = jitter }
}

// New builds an Engine over the given store and limits.
func New(s *store.Store, limits config.Limits, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		limits: limits,
		logger: slog.Default(),
		debug:  debugreport.Nop(),
		ids:    UUIDv7Source{},
		stats:  &PassStats{},
	}
	e.jitter = func(span int64) int64 {
		if span <= 0 {
			return 0
		}
		return rand.Int63n(span)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the engine's cumulative pass statistics.
func (e *Engine) Stats() *PassStats { return e.stats }

// PerformPendingAttributions runs one attribution pass: it retrieves the
// pending trigger queue in stable order and processes up to the configured
// batch cap, each trigger in its own transaction.
//
// Returns drained=true when the retrieved queue fit within the cap. A
// datastore failure aborts the remainder of the batch; the caller should
// reschedule the pass.
func (e *Engine) PerformPendingAttributions(ctx context.Context) (drained bool, err error) {
	var pending []string
	err = e.store.RunInTransaction(ctx, func(dao *store.DAO) error {
		var err error
		pending, err = dao.PendingTriggerIDs()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("perform pending attributions: %w", err)
	}

	batch := pending
	if len(batch) > e.limits.MaxAttributionsPerInvocation {
		batch = batch[:e.limits.MaxAttributionsPerInvocation]
	}

	for _, id := range batch {
		st, err := e.performAttribution(ctx, id)
		if err != nil {
			return false, fmt.Errorf("perform pending attributions: trigger %s: %w", id, err)
		}
		e.stats.observe(st)
		e.logger.Debug("trigger handled",
			slog.String("trigger_id", st.TriggerID),
			slog.String("result", string(st.Result)),
			slog.String("failure", string(st.Failure)),
		)
	}

	drained = len(pending) <= e.limits.MaxAttributionsPerInvocation
	e.logger.Info("attribution pass complete",
		slog.Int("handled", len(batch)),
		slog.Int("pending", len(pending)),
		slog.Bool("drained", drained),
	)
	return drained, nil
}

// performAttribution runs the per-trigger state machine inside one
// transaction. Business outcomes land on the returned status; only
// datastore failures return an error.
func (e *Engine) performAttribution(ctx context.Context, triggerID string) (AttemptStatus, error) {
	st := AttemptStatus{TriggerID: triggerID}

	err := e.store.RunInTransaction(ctx, func(dao *store.DAO) error {
		trigger, err := dao.TriggerByID(triggerID)
		if err != nil {
			return err
		}
		// Another pass may have finalized this trigger between queue
		// retrieval and now.
		if trigger.Status != model.TriggerPending {
			st.Result = ResultAlreadyHandled
			return nil
		}

		sel, err := e.selectSource(dao, trigger)
		if err != nil {
			return err
		}
		e.observeDelayedSource(dao, trigger, &st)
		if sel == nil {
			e.debug.Record(debugreport.ReasonTriggerNoMatchingSource,
				"trigger_id", trigger.ID)
			return e.ignoreTrigger(dao, trigger, &st, FailureNoMatchingSource)
		}

		winner := sel.winner
		st.SourceType = string(winner.Type)
		st.SourceDerived = winner.IsDerived()
		st.InstallAttributed = winner.InstallAttributed
		st.AttributionDelay = trigger.TriggerTime - winner.EventTime
		st.SurfaceCombination = string(winner.PublisherType) + "-" + string(trigger.DestinationType)

		// Top-level filters apply to the winner only, after selection.
		// A filter mismatch drops the whole trigger; second place is
		// never promoted.
		if !topLevelFiltersMatch(winner, trigger) {
			e.debug.Record(debugreport.ReasonTriggerTopLevelFilterMismatch,
				"trigger_id", trigger.ID, "source_id", sel.winnerID())
			return e.ignoreTrigger(dao, trigger, &st, FailureTopLevelFilters)
		}

		sites, err := attributionSites(winner, trigger)
		if err != nil {
			e.debug.Record(debugreport.ReasonTriggerMalformed,
				"trigger_id", trigger.ID, "error", err.Error())
			return e.ignoreTrigger(dao, trigger, &st, FailureMalformedTrigger)
		}

		allowed, reason, err := e.checkRateLimits(dao, trigger, sites)
		if err != nil {
			return err
		}
		if !allowed {
			e.debug.Record(reason, "trigger_id", trigger.ID, "source_id", sel.winnerID())
			return e.ignoreTrigger(dao, trigger, &st, FailureRateLimit)
		}

		aggregateOK, err := e.maybeGenerateAggregateReport(dao, winner, trigger)
		if err != nil {
			return err
		}
		eventOK, err := e.maybeGenerateEventReport(dao, winner, trigger)
		if err != nil {
			return err
		}
		st.AggregateReportGenerated = aggregateOK
		st.EventReportGenerated = eventOK

		if !aggregateOK && !eventOK {
			return e.ignoreTrigger(dao, trigger, &st, FailureNoReportGenerated)
		}

		if err := e.ignoreRunnerUps(dao, trigger, sel.runnerUps); err != nil {
			return err
		}
		if err := dao.InsertAttribution(model.Attribution{
			ID:                e.ids.NewID(),
			SourceSite:        sites.sourceSite,
			SourceOrigin:      sites.sourceOrigin,
			DestinationSite:   sites.destinationSite,
			DestinationOrigin: sites.destinationOrigin,
			EnrollmentID:      trigger.EnrollmentID,
			Registrant:        trigger.Registrant,
			SourceTime:        winner.EventTime,
			TriggerTime:       trigger.TriggerTime,
			SourceID:          sel.winnerID(),
			TriggerID:         trigger.ID,
		}); err != nil {
			return err
		}
		if err := dao.UpdateTriggerStatus([]string{trigger.ID}, model.TriggerAttributed); err != nil {
			return err
		}
		st.Result = ResultAttributed
		return nil
	})
	if err != nil {
		return AttemptStatus{}, err
	}
	return st, nil
}

// ignoreTrigger finalizes a trigger without a report.
func (e *Engine) ignoreTrigger(dao *store.DAO, trigger model.Trigger, st *AttemptStatus, failure FailureType) error {
	st.Result = ResultIgnored
	st.Failure = failure
	return dao.UpdateTriggerStatus([]string{trigger.ID}, model.TriggerIgnored)
}

// ignoreRunnerUps marks losing candidates. Original sources flip to
// IGNORED; derived sources are never persisted, so the loss is recorded
// against the parent for this trigger's enrollment instead.
func (e *Engine) ignoreRunnerUps(dao *store.DAO, trigger model.Trigger, runnerUps []model.Source) error {
	var originalIDs []string
	for _, s := range runnerUps {
		if s.IsDerived() {
			if err := dao.InsertIgnoredXNASource(*s.ParentID, trigger.EnrollmentID); err != nil {
				return err
			}
			continue
		}
		originalIDs = append(originalIDs, s.ID)
	}
	return dao.UpdateSourceStatus(originalIDs, model.SourceIgnored)
}

// observeDelayedSource checks whether a source registered shortly after the
// trigger would have matched it, and surfaces the delay on the status
// record. Diagnostic only.
func (e *Engine) observeDelayedSource(dao *store.DAO, trigger model.Trigger, st *AttemptStatus) {
	delayed, err := dao.NearestDelayedMatchingSource(trigger, delayedSourceLookahead)
	if err != nil || delayed == nil {
		return
	}
	st.DelayedSourceDelay = delayed.EventTime - trigger.TriggerTime
	e.debug.Record(debugreport.ReasonDelayedSourceRegistration,
		"trigger_id", trigger.ID,
		"source_id", delayed.ID,
		"delay_ms", st.DelayedSourceDelay,
	)
}

// topLevelFiltersMatch applies the trigger's top-level filter sets to the
// winner. Malformed filter JSON on either side fails closed.
func topLevelFiltersMatch(winner model.Source, trigger model.Trigger) bool {
	sourceMap, err := winner.FilterMap()
	if err != nil {
		return false
	}
	filters, err := trigger.TopLevelFilters()
	if err != nil {
		return false
	}
	notFilters, err := trigger.TopLevelNotFilters()
	if err != nil {
		return false
	}
	return filterMatchBoth(sourceMap, filters, notFilters)
}
