package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrius/attribution/internal/config"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
)

// runEventPath invokes the event generator in one transaction against
// already-seeded records.
func runEventPath(t *testing.T, e *Engine, s *store.Store, src model.Source, trigger model.Trigger) bool {
	t.Helper()
	var ok bool
	readBack(t, s, func(dao *store.DAO) error {
		var err error
		ok, err = e.maybeGenerateEventReport(dao, src, trigger)
		return err
	})
	return ok
}

func TestEventReport_Generated(t *testing.T) {
	limits := config.DefaultLimits()
	e, s := setupTestEngine(t, limits)

	src := makeTestSource("s1")
	trigger := makeTestTrigger("t1")
	trigger.EventTriggers = `[{"trigger_data":"5","priority":100,"deduplication_key":"77"}]`
	seed(t, s, []model.Source{src}, []model.Trigger{trigger})

	require.True(t, runEventPath(t, e, s, src, trigger))

	reports := eventReports(t, s, "s1")
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, uint64(5), r.TriggerData)
	assert.Equal(t, int64(100), r.TriggerPriority)
	assert.Equal(t, uint64(7), r.SourceEventID)
	assert.Equal(t, testDestination, r.AttributionDestination)
	assert.Equal(t, src.EventReportWindow+limits.EventReportDelay, r.ReportTime)
	require.NotNil(t, r.TriggerDedupKey)
	assert.Equal(t, uint64(77), *r.TriggerDedupKey)

	// The dedup key lands on the source in the same transaction.
	assert.True(t, sourceByID(t, s, "s1").HasEventDedupKey(77))
}

func TestEventReport_DerivedSourceSkipped(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	parent := "s-parent"
	src := makeTestSource("")
	src.ParentID = &parent

	assert.False(t, runEventPath(t, e, s, src, makeTestTrigger("t1")))
}

func TestEventReport_NonTruthfulModeSkipped(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	src.AttributionMode = model.AttributionModeNever
	seed(t, s, []model.Source{src}, nil)

	assert.False(t, runEventPath(t, e, s, src, makeTestTrigger("t1")))
	assert.Empty(t, eventReports(t, s, "s1"))
}

func TestEventReport_WindowPassed(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	src.EventReportWindow = testTriggerTime - 1
	seed(t, s, []model.Source{src}, nil)

	assert.False(t, runEventPath(t, e, s, src, makeTestTrigger("t1")))
}

func TestEventReport_FirstMatchingEventTriggerWins(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	trigger := makeTestTrigger("t1")
	// First entry's filters exclude the source; second matches; third
	// would also match but first match wins.
	trigger.EventTriggers = `[
		{"trigger_data":"1","priority":1,"filters":[{"product":["hats"]}]},
		{"trigger_data":"2","priority":2,"filters":[{"product":["shoes"]}]},
		{"trigger_data":"3","priority":3}
	]`
	seed(t, s, []model.Source{src}, []model.Trigger{trigger})

	require.True(t, runEventPath(t, e, s, src, trigger))

	reports := eventReports(t, s, "s1")
	require.Len(t, reports, 1)
	assert.Equal(t, uint64(2), reports[0].TriggerData)
}

func TestEventReport_NoMatchingEventTrigger(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	trigger := makeTestTrigger("t1")
	trigger.EventTriggers = `[{"trigger_data":"1","priority":1,"filters":[{"product":["hats"]}]}]`
	seed(t, s, []model.Source{src}, []model.Trigger{trigger})

	assert.False(t, runEventPath(t, e, s, src, trigger))
}

func TestEventReport_DedupCollisionDrops(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	src.EventDedupKeys = []uint64{77}
	trigger := makeTestTrigger("t1")
	trigger.EventTriggers = `[{"trigger_data":"5","priority":100,"deduplication_key":"77"}]`
	seed(t, s, []model.Source{src}, []model.Trigger{trigger})

	// Dropped regardless of priority.
	assert.False(t, runEventPath(t, e, s, src, trigger))
	assert.Empty(t, eventReports(t, s, "s1"))
}

func TestEventReport_DestinationCeiling(t *testing.T) {
	limits := config.DefaultLimits()
	limits.MaxEventReportsPerDestination = 1
	e, s := setupTestEngine(t, limits)

	src := makeTestSource("s1")
	seed(t, s, []model.Source{src}, nil)
	readBack(t, s, func(dao *store.DAO) error {
		// A report from an unrelated source still counts against the
		// destination ceiling.
		return dao.InsertEventReport(model.EventReport{
			ID: "r-other", SourceID: "s-other", TriggerID: "t-other",
			SourceEventID: 1, EnrollmentID: "enrollment-z",
			AttributionDestination: testDestination, DestinationType: model.SurfaceApp,
			TriggerData: 1, TriggerPriority: 1, TriggerTime: testTriggerTime - 1000,
			ReportTime: testTriggerTime + 1000, SourceType: model.SourceTypeEvent,
			Status: model.ReportPending,
		})
	})

	assert.False(t, runEventPath(t, e, s, src, makeTestTrigger("t1")))
	assert.Empty(t, eventReports(t, s, "s1"))
}

func TestEventReport_MalformedEventTriggersFailClosed(t *testing.T) {
	e, s := setupTestEngine(t, config.DefaultLimits())

	src := makeTestSource("s1")
	trigger := makeTestTrigger("t1")
	trigger.EventTriggers = `{not json`
	seed(t, s, []model.Source{src}, []model.Trigger{trigger})

	assert.False(t, runEventPath(t, e, s, src, trigger))
}
