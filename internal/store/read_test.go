package store

import (
	"context"
	"errors"
	"testing"

	"github.com/atrius/attribution/internal/model"
)

func TestPendingTriggerIDs_OrderedByTimeThenID(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(dao *DAO) error {
		for _, tr := range []model.Trigger{
			createTestTrigger("t-b", "enroll-1", 2000),
			createTestTrigger("t-a", "enroll-1", 2000),
			createTestTrigger("t-c", "enroll-1", 1000),
		} {
			if err := dao.InsertTrigger(tr); err != nil {
				return err
			}
		}
		return nil
	})

	var ids []string
	inTx(t, s, func(dao *DAO) error {
		var err error
		ids, err = dao.PendingTriggerIDs()
		return err
	})

	want := []string{"t-c", "t-a", "t-b"}
	if len(ids) != len(want) {
		t.Fatalf("PendingTriggerIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestTriggerByID_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.RunInTransaction(context.Background(), func(dao *DAO) error {
		_, err := dao.TriggerByID("missing")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("TriggerByID() error = %v, want ErrNotFound", err)
	}
}

func TestTriggerByID_RoundTrip(t *testing.T) {
	s := createTestStore(t)

	tr := createTestTrigger("t1", "enroll-1", 5000)
	tr.EventTriggers = `[{"trigger_data":"5","priority":10}]`
	tr.Filters = `[{"product":["shoes"]}]`
	tr.AggregateValues = `{"campaign":1664}`

	inTx(t, s, func(dao *DAO) error {
		return dao.InsertTrigger(tr)
	})

	var got model.Trigger
	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.TriggerByID("t1")
		return err
	})

	if got.EventTriggers != tr.EventTriggers {
		t.Errorf("event triggers = %q, want %q", got.EventTriggers, tr.EventTriggers)
	}
	if got.Filters != tr.Filters {
		t.Errorf("filters = %q, want %q", got.Filters, tr.Filters)
	}
	if got.AggregateValues != tr.AggregateValues {
		t.Errorf("aggregate values = %q, want %q", got.AggregateValues, tr.AggregateValues)
	}
	if got.AttributionConfig != "" {
		t.Errorf("attribution config = %q, want empty", got.AttributionConfig)
	}
}

func TestMatchingActiveSources_WindowAndDestination(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(dao *DAO) error {
		within := createTestSource("s-within", "enroll-1", 1000)
		expired := createTestSource("s-expired", "enroll-1", 100)
		expired.ExpiryTime = 500
		future := createTestSource("s-future", "enroll-1", 9000)
		otherEnrollment := createTestSource("s-other", "enroll-2", 1000)
		otherDestination := createTestSource("s-dest", "enroll-1", 1000)
		otherDestination.AppDestination = "android-app://com.example.news"

		for _, src := range []model.Source{within, expired, future, otherEnrollment, otherDestination} {
			if err := dao.InsertSource(src); err != nil {
				return err
			}
		}
		return nil
	})

	var got []model.Source
	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.MatchingActiveSources(createTestTrigger("t1", "enroll-1", 2000))
		return err
	})

	if len(got) != 1 || got[0].ID != "s-within" {
		ids := make([]string, len(got))
		for i, src := range got {
			ids[i] = src.ID
		}
		t.Errorf("matching sources = %v, want [s-within]", ids)
	}
}

func TestMatchingActiveSources_WebDestinationUsesSite(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(dao *DAO) error {
		// Web destinations are stored at site granularity.
		src := createTestSource("s1", "enroll-1", 1000)
		src.AppDestination = ""
		src.WebDestination = "https://example.com"
		return dao.InsertSource(src)
	})

	// A deep subdomain URL on the trigger resolves to the same site.
	tr := createTestTrigger("t1", "enroll-1", 2000)
	tr.AttributionDestination = "https://checkout.shop.example.com/cart"
	tr.DestinationType = model.SurfaceWeb

	var got []model.Source
	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.MatchingActiveSources(tr)
		return err
	})

	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("got %d sources, want the site-matched one", len(got))
	}
}

func TestXNAMatchingSources_ForeignEligibility(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(dao *DAO) error {
		own := createTestSource("s-own", "enroll-1", 1000)

		shared := createTestSource("s-shared", "enroll-2", 1000)
		shared.SharedAggregationKeys = `["campaign"]`

		unshared := createTestSource("s-unshared", "enroll-2", 1000)

		ignored := createTestSource("s-ignored", "enroll-2", 1000)
		ignored.SharedAggregationKeys = `["campaign"]`

		unlisted := createTestSource("s-unlisted", "enroll-3", 1000)
		unlisted.SharedAggregationKeys = `["campaign"]`

		for _, src := range []model.Source{own, shared, unshared, ignored, unlisted} {
			if err := dao.InsertSource(src); err != nil {
				return err
			}
		}
		return dao.InsertIgnoredXNASource("s-ignored", "enroll-1")
	})

	var got []model.Source
	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.XNAMatchingSources(
			createTestTrigger("t1", "enroll-1", 2000), []string{"enroll-2"})
		return err
	})

	ids := make(map[string]bool, len(got))
	for _, src := range got {
		ids[src.ID] = true
	}
	if len(got) != 2 || !ids["s-own"] || !ids["s-shared"] {
		t.Errorf("xna candidates = %v, want {s-own, s-shared}", ids)
	}
}

func TestNearestDelayedMatchingSource(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(dao *DAO) error {
		near := createTestSource("s-near", "enroll-1", 3000)
		far := createTestSource("s-far", "enroll-1", 4000)
		beyond := createTestSource("s-beyond", "enroll-1", 99000)
		for _, src := range []model.Source{near, far, beyond} {
			if err := dao.InsertSource(src); err != nil {
				return err
			}
		}
		return nil
	})

	tr := createTestTrigger("t1", "enroll-1", 2000)

	var got *model.Source
	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.NearestDelayedMatchingSource(tr, 5000)
		return err
	})
	if got == nil || got.ID != "s-near" {
		t.Errorf("delayed source = %v, want s-near", got)
	}

	inTx(t, s, func(dao *DAO) error {
		var err error
		got, err = dao.NearestDelayedMatchingSource(tr, 500)
		return err
	})
	if got != nil {
		t.Errorf("delayed source within 500ms = %v, want nil", got)
	}
}

func TestAttributionWindowCounts(t *testing.T) {
	s := createTestStore(t)

	// Windowing keys off the source event time stored on the row; the
	// row's own trigger time is irrelevant to the counters.
	row := func(id, enrollment string, sourceTime int64) model.Attribution {
		return model.Attribution{
			ID:                id,
			SourceSite:        "https://publisher.example",
			SourceOrigin:      "https://publisher.example",
			DestinationSite:   "android-app://com.example.shop",
			DestinationOrigin: "android-app://com.example.shop",
			EnrollmentID:      enrollment,
			Registrant:        "android-app://com.example.shop",
			SourceTime:        sourceTime,
			TriggerTime:       20000,
			SourceID:          "s1",
			TriggerID:         "t-" + id,
		}
	}

	inTx(t, s, func(dao *DAO) error {
		for _, a := range []model.Attribution{
			row("a1", "enroll-1", 5000),
			row("a2", "enroll-1", 6000),
			row("a3", "enroll-1", 100), // registered before the window
			row("a4", "enroll-2", 5500),
			row("a5", "enroll-3", 5600),
		} {
			if err := dao.InsertAttribution(a); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(dao *DAO) error {
		n, err := dao.CountAttributionsInWindow(
			"https://publisher.example", "android-app://com.example.shop",
			"enroll-1", 1000, 10000)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("attributions in window = %d, want 2", n)
		}

		distinct, err := dao.CountDistinctEnrollmentsInWindow(
			"https://publisher.example", "android-app://com.example.shop",
			"enroll-1", 1000, 10000)
		if err != nil {
			return err
		}
		if distinct != 2 {
			t.Errorf("distinct other enrollments = %d, want 2", distinct)
		}
		return nil
	})
}
