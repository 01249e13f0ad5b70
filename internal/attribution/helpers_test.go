package attribution

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atrius/attribution/internal/config"
	"github.com/atrius/attribution/internal/model"
	"github.com/atrius/attribution/internal/store"
	"github.com/atrius/attribution/internal/testutil"
)

// Timeline used across engine tests, in unix milliseconds.
const (
	testSourceTime  = int64(1_700_000_000_000)
	testTriggerTime = testSourceTime + 3_600_000
)

const (
	testPublisher   = "https://ads.adtech.com"
	testDestination = "android-app://com.example.store"
	testEnrollment  = "enrollment-a"
)

// setupTestEngine builds an engine over a fresh store with deterministic
// ids and no report-time jitter.
func setupTestEngine(t *testing.T, limits config.Limits, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := []Option{
		WithIDSource(testutil.NewSequenceIDSource("id")),
		WithJitter(testutil.ZeroJitter),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(s, limits, append(base, opts...)...), s
}

// makeTestSource builds an active navigation source matching the test
// trigger's destination and enrollment.
func makeTestSource(id string) model.Source {
	return model.Source{
		ID:                       id,
		EventID:                  7,
		Publisher:                testPublisher,
		PublisherType:            model.SurfaceWeb,
		AppDestination:           testDestination,
		EnrollmentID:             testEnrollment,
		Registrant:               testDestination,
		Type:                     model.SourceTypeNavigation,
		EventTime:                testSourceTime,
		ExpiryTime:               testSourceTime + 30*24*3_600_000,
		EventReportWindow:        testSourceTime + 7*24*3_600_000,
		AggregatableReportWindow: testSourceTime + 30*24*3_600_000,
		Status:                   model.SourceActive,
		AttributionMode:          model.AttributionModeTruthful,
		FilterData:               `{"product":["shoes","socks"]}`,
		AggregationKeys:          `{"campaign":"0x159"}`,
	}
}

// makeTestTrigger builds a pending trigger with one event trigger and one
// aggregatable value against makeTestSource's registration.
func makeTestTrigger(id string) model.Trigger {
	return model.Trigger{
		ID:                     id,
		EnrollmentID:           testEnrollment,
		Registrant:             testDestination,
		AttributionDestination: testDestination,
		DestinationType:        model.SurfaceApp,
		TriggerTime:            testTriggerTime,
		Status:                 model.TriggerPending,
		EventTriggers:          `[{"trigger_data":"5","priority":100}]`,
		AggregateTriggerData:   `[{"key_piece":"0x400","source_keys":["campaign"]}]`,
		AggregateValues:        `{"campaign":1664}`,
	}
}

// seed inserts records in one transaction.
func seed(t *testing.T, s *store.Store, sources []model.Source, triggers []model.Trigger) {
	t.Helper()
	err := s.RunInTransaction(context.Background(), func(dao *store.DAO) error {
		for _, src := range sources {
			if err := dao.InsertSource(src); err != nil {
				return err
			}
		}
		for _, tr := range triggers {
			if err := dao.InsertTrigger(tr); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// readBack runs read-only DAO calls for assertions.
func readBack(t *testing.T, s *store.Store, fn func(dao *store.DAO) error) {
	t.Helper()
	require.NoError(t, s.RunInTransaction(context.Background(), fn))
}

func triggerStatus(t *testing.T, s *store.Store, id string) model.TriggerStatus {
	t.Helper()
	var status model.TriggerStatus
	readBack(t, s, func(dao *store.DAO) error {
		trigger, err := dao.TriggerByID(id)
		if err != nil {
			return err
		}
		status = trigger.Status
		return nil
	})
	return status
}

func sourceByID(t *testing.T, s *store.Store, id string) model.Source {
	t.Helper()
	var src model.Source
	readBack(t, s, func(dao *store.DAO) error {
		var err error
		src, err = dao.SourceByID(id)
		return err
	})
	return src
}

func eventReports(t *testing.T, s *store.Store, sourceID string) []model.EventReport {
	t.Helper()
	var reports []model.EventReport
	readBack(t, s, func(dao *store.DAO) error {
		var err error
		reports, err = dao.EventReportsBySource(sourceID)
		return err
	})
	return reports
}

func aggregateReports(t *testing.T, s *store.Store, sourceID string) []model.AggregateReport {
	t.Helper()
	var reports []model.AggregateReport
	readBack(t, s, func(dao *store.DAO) error {
		var err error
		reports, err = dao.AggregateReportsBySource(sourceID)
		return err
	})
	return reports
}
