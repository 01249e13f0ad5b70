package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/atrius/attribution/internal/model"
)

// createTestStore creates a fresh store under a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn inside one transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(dao *DAO) error) {
	t.Helper()
	if err := s.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("RunInTransaction() failed: %v", err)
	}
}

// createTestSource builds an active app source with sensible defaults.
func createTestSource(id, enrollmentID string, eventTime int64) model.Source {
	return model.Source{
		ID:                       id,
		EventID:                  42,
		Publisher:                "https://publisher.example",
		PublisherType:            model.SurfaceApp,
		AppDestination:           "android-app://com.example.shop",
		EnrollmentID:             enrollmentID,
		Registrant:               "android-app://com.example.shop",
		Type:                     model.SourceTypeNavigation,
		EventTime:                eventTime,
		ExpiryTime:               eventTime + 30*24*3600*1000,
		EventReportWindow:        eventTime + 7*24*3600*1000,
		AggregatableReportWindow: eventTime + 30*24*3600*1000,
		Status:                   model.SourceActive,
		AttributionMode:          model.AttributionModeTruthful,
	}
}

// createTestTrigger builds a pending app trigger aimed at the test source's
// destination.
func createTestTrigger(id, enrollmentID string, triggerTime int64) model.Trigger {
	return model.Trigger{
		ID:                     id,
		EnrollmentID:           enrollmentID,
		Registrant:             "android-app://com.example.shop",
		AttributionDestination: "android-app://com.example.shop",
		DestinationType:        model.SurfaceApp,
		TriggerTime:            triggerTime,
		Status:                 model.TriggerPending,
	}
}
