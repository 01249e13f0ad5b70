package attribution

import (
	"sort"

	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/filter"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
	"github.com/atrius/attribution/internal/xna"
)

// selection is the outcome of picking one winner from a candidate pool.
type selection struct {
	winner    model.Source
	runnerUps []model.Source
}

// winnerID resolves the id attribution bookkeeping is recorded under: the
// source's own id, or the parent's for a derived winner.
func (s *selection) winnerID() string {
	return sourceLogID(s.winner)
}

// selectSource retrieves the trigger's eligible candidate pool, derives
// cross-network sources when an attribution config is present, and picks
// the winner by deterministic priority ordering. Returns nil when the pool
// is empty.
func (e *Engine) selectSource(dao *store.DAO, trigger model.Trigger) (*selection, error) {
	candidates, err := e.candidateSources(dao, trigger)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sortCandidates(candidates, trigger.TriggerTime)
	return &selection{
		winner:    candidates[0],
		runnerUps: candidates[1:],
	}, nil
}

// candidateSources returns the pool the selector ranks. Without an
// attribution config this is the trigger's own-enrollment window-eligible
// sources; with one it also includes derived sources generated from the
// named foreign enrollments.
func (e *Engine) candidateSources(dao *store.DAO, trigger model.Trigger) ([]model.Source, error) {
	enrollments, err := xna.EnrollmentIDs(trigger.AttributionConfig)
	if err != nil {
		// An unparsable config yields no derived sources, it never
		// fails the trigger.
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		enrollments = nil
	}
	if len(enrollments) == 0 {
		return dao.MatchingActiveSources(trigger)
	}

	pool, err := dao.XNAMatchingSources(trigger, enrollments)
	if err != nil {
		return nil, err
	}

	var own, foreign []model.Source
	for _, s := range pool {
		if s.EnrollmentID == trigger.EnrollmentID {
			own = append(own, s)
		} else {
			foreign = append(foreign, s)
		}
	}

	derived, err := xna.DeriveSources(trigger, foreign)
	if err != nil {
		e.debug.Record(debugreport.ReasonTriggerMalformed,
			"trigger_id", trigger.ID, "error", err.Error())
		derived = nil
	}
	return append(own, derived...), nil
}

// sortCandidates orders the pool winner-first. Install-attributed sources
// still inside their cooldown window at trigger time rank above everything,
// then higher priority, then more recent event time. The sort is stable so
// remaining ties keep retrieval order.
func sortCandidates(candidates []model.Source, triggerTime int64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aInstall := installWindowActive(a, triggerTime)
		bInstall := installWindowActive(b, triggerTime)
		if aInstall != bInstall {
			return aInstall
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.EventTime > b.EventTime
	})
}

func installWindowActive(s model.Source, triggerTime int64) bool {
	return s.InstallAttributed && triggerTime < s.EventTime+s.InstallCooldownWindow
}

// filterMatchBoth applies a positive and a negated filter set to one source
// filter map.
func filterMatchBoth(source filter.Map, filters, notFilters filter.Set) bool {
	return filter.Match(source, filters, true) &&
		filter.Match(source, notFilters, false)
}
