package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atrius/attribution/internal/model"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// PendingTriggerIDs returns the ids of all pending triggers, oldest first.
// Ties on trigger time break by id so retrieval order is stable.
func (d *DAO) PendingTriggerIDs() ([]string, error) {
	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT id FROM triggers
		WHERE status = ?
		ORDER BY trigger_time, id
	`, model.TriggerPending)
	if err != nil {
		return nil, fmt.Errorf("pending trigger ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pending trigger ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending trigger ids: %w", err)
	}
	return ids, nil
}

// TriggerByID fetches one trigger. Returns ErrNotFound if absent.
func (d *DAO) TriggerByID(id string) (model.Trigger, error) {
	row := d.tx.QueryRowContext(d.ctx, `
		SELECT id, enrollment_id, registrant, attribution_destination,
			destination_type, trigger_time, status, event_triggers, filters,
			not_filters, aggregate_trigger_data, aggregate_values,
			aggregate_dedup_keys, attribution_config
		FROM triggers WHERE id = ?
	`, id)

	var t model.Trigger
	var eventTriggers, filters, notFilters sql.NullString
	var aggData, aggValues, aggDedup, attConfig sql.NullString
	err := row.Scan(
		&t.ID, &t.EnrollmentID, &t.Registrant, &t.AttributionDestination,
		&t.DestinationType, &t.TriggerTime, &t.Status, &eventTriggers,
		&filters, &notFilters, &aggData, &aggValues, &aggDedup, &attConfig,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trigger{}, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Trigger{}, fmt.Errorf("trigger %s: %w", id, err)
	}
	t.EventTriggers = stringOrEmpty(eventTriggers)
	t.Filters = stringOrEmpty(filters)
	t.NotFilters = stringOrEmpty(notFilters)
	t.AggregateTriggerData = stringOrEmpty(aggData)
	t.AggregateValues = stringOrEmpty(aggValues)
	t.AggregateDedupKeys = stringOrEmpty(aggDedup)
	t.AttributionConfig = stringOrEmpty(attConfig)
	return t, nil
}

// SourceByID fetches one source. Returns ErrNotFound if absent.
func (d *DAO) SourceByID(id string) (model.Source, error) {
	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+sourceColumns+`
		FROM sources WHERE id = ?
	`, id)
	if err != nil {
		return model.Source{}, fmt.Errorf("source %s: %w", id, err)
	}
	defer rows.Close()

	sources, err := scanSources(rows)
	if err != nil {
		return model.Source{}, fmt.Errorf("source %s: %w", id, err)
	}
	if len(sources) == 0 {
		return model.Source{}, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return sources[0], nil
}

// destinationMatch returns the source column and canonical value that a
// source's registered destination must equal for this trigger.
func destinationMatch(t model.Trigger) (column, value string, err error) {
	value, err = t.CanonicalDestination()
	if err != nil {
		return "", "", err
	}
	if t.DestinationType == model.SurfaceApp {
		return "app_destination", value, nil
	}
	return "web_destination", value, nil
}

// MatchingActiveSources returns the trigger's own-enrollment candidate
// sources: active, destination-matched, and within the
// [event_time, expiry_time) window at trigger time. Candidate order is
// stable (event time, then id).
func (d *DAO) MatchingActiveSources(t model.Trigger) ([]model.Source, error) {
	column, value, err := destinationMatch(t)
	if err != nil {
		return nil, fmt.Errorf("matching sources: %w", err)
	}

	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE status = ?
		  AND enrollment_id = ?
		  AND `+column+` = ?
		  AND event_time <= ?
		  AND expiry_time > ?
		ORDER BY event_time, id
	`, model.SourceActive, t.EnrollmentID, value, t.TriggerTime, t.TriggerTime)
	if err != nil {
		return nil, fmt.Errorf("matching sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// XNAMatchingSources returns candidate sources for a trigger whose
// attribution config names other enrollments: the trigger's own sources
// plus foreign sources from the named enrollments. Foreign sources must
// expose shared aggregation keys and must not have been ignored for this
// enrollment by an earlier attribution.
func (d *DAO) XNAMatchingSources(t model.Trigger, enrollmentIDs []string) ([]model.Source, error) {
	column, value, err := destinationMatch(t)
	if err != nil {
		return nil, fmt.Errorf("xna matching sources: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(enrollmentIDs)), ",")
	args := []any{
		model.SourceActive, value, t.TriggerTime, t.TriggerTime,
		t.EnrollmentID,
	}
	for _, id := range enrollmentIDs {
		args = append(args, id)
	}
	args = append(args, t.EnrollmentID)

	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE status = ?
		  AND `+column+` = ?
		  AND event_time <= ?
		  AND expiry_time > ?
		  AND (
			enrollment_id = ?
			OR (
				enrollment_id IN (`+placeholders+`)
				AND shared_aggregation_keys IS NOT NULL
				AND id NOT IN (
					SELECT source_id FROM xna_ignored_sources
					WHERE enrollment_id = ?
				)
			)
		  )
		ORDER BY event_time, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("xna matching sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// NearestDelayedMatchingSource returns the earliest active source that was
// registered after the trigger fired but would otherwise have matched it,
// looking ahead at most lookahead milliseconds. Returns nil when there is
// none. Feeds the delayed-registration metric only.
func (d *DAO) NearestDelayedMatchingSource(t model.Trigger, lookahead int64) (*model.Source, error) {
	column, value, err := destinationMatch(t)
	if err != nil {
		return nil, fmt.Errorf("delayed matching source: %w", err)
	}

	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE status = ?
		  AND enrollment_id = ?
		  AND `+column+` = ?
		  AND event_time > ?
		  AND event_time <= ?
		ORDER BY event_time, id
		LIMIT 1
	`, model.SourceActive, t.EnrollmentID, value, t.TriggerTime, t.TriggerTime+lookahead)
	if err != nil {
		return nil, fmt.Errorf("delayed matching source: %w", err)
	}
	defer rows.Close()

	sources, err := scanSources(rows)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return &sources[0], nil
}

// CountEventReportsPerDestination counts event reports already stored for a
// destination, across all sources.
func (d *DAO) CountEventReportsPerDestination(destination string, surface model.Surface) (int64, error) {
	return d.countPerDestination("event_reports", destination, surface)
}

// CountAggregateReportsPerDestination counts aggregate reports already
// stored for a destination, across all sources.
func (d *DAO) CountAggregateReportsPerDestination(destination string, surface model.Surface) (int64, error) {
	return d.countPerDestination("aggregate_reports", destination, surface)
}

func (d *DAO) countPerDestination(table, destination string, surface model.Surface) (int64, error) {
	var n int64
	err := d.tx.QueryRowContext(d.ctx, `
		SELECT COUNT(*) FROM `+table+`
		WHERE attribution_destination = ? AND destination_type = ?
	`, destination, surface).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s per destination: %w", table, err)
	}
	return n, nil
}

// CountAttributionsInWindow counts ledger rows for a
// (source site, destination site, enrollment) triple whose source event
// time lies in (windowStart, windowEnd]. The window slides with the
// current trigger, but rows are bucketed by when their source was
// registered, not when they converted.
func (d *DAO) CountAttributionsInWindow(sourceSite, destinationSite, enrollmentID string, windowStart, windowEnd int64) (int64, error) {
	var n int64
	err := d.tx.QueryRowContext(d.ctx, `
		SELECT COUNT(*) FROM attributions
		WHERE source_site = ? AND destination_site = ? AND enrollment_id = ?
		  AND source_time > ? AND source_time <= ?
	`, sourceSite, destinationSite, enrollmentID, windowStart, windowEnd).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attributions in window: %w", err)
	}
	return n, nil
}

// CountDistinctEnrollmentsInWindow counts the distinct enrollments other
// than excludeEnrollment that attributed the given site pair, with source
// event time in (windowStart, windowEnd].
func (d *DAO) CountDistinctEnrollmentsInWindow(sourceSite, destinationSite, excludeEnrollment string, windowStart, windowEnd int64) (int64, error) {
	var n int64
	err := d.tx.QueryRowContext(d.ctx, `
		SELECT COUNT(DISTINCT enrollment_id) FROM attributions
		WHERE source_site = ? AND destination_site = ?
		  AND enrollment_id != ?
		  AND source_time > ? AND source_time <= ?
	`, sourceSite, destinationSite, excludeEnrollment, windowStart, windowEnd).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct enrollments in window: %w", err)
	}
	return n, nil
}

// EventReportsBySource returns all event reports attributed to a source.
func (d *DAO) EventReportsBySource(sourceID string) ([]model.EventReport, error) {
	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+eventReportColumns+`
		FROM event_reports
		WHERE source_id = ?
		ORDER BY report_time, id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("event reports by source: %w", err)
	}
	defer rows.Close()

	var reports []model.EventReport
	for rows.Next() {
		r, err := scanEventReport(rows)
		if err != nil {
			return nil, fmt.Errorf("event reports by source: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event reports by source: %w", err)
	}
	return reports, nil
}

// AggregateReportsBySource returns all aggregate reports attributed to a
// source.
func (d *DAO) AggregateReportsBySource(sourceID string) ([]model.AggregateReport, error) {
	rows, err := d.tx.QueryContext(d.ctx, `
		SELECT `+aggregateReportColumns+`
		FROM aggregate_reports
		WHERE source_id = ?
		ORDER BY scheduled_report_time, id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("aggregate reports by source: %w", err)
	}
	defer rows.Close()

	var reports []model.AggregateReport
	for rows.Next() {
		r, err := scanAggregateReport(rows)
		if err != nil {
			return nil, fmt.Errorf("aggregate reports by source: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate reports by source: %w", err)
	}
	return reports, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var sources []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	return sources, nil
}

func scanSource(rows *sql.Rows) (model.Source, error) {
	var s model.Source
	var eventID string
	var appDest, webDest sql.NullString
	var installTime sql.NullInt64
	var filterData, aggKeys, sharedKeys sql.NullString
	var eventDedup, aggDedup sql.NullString

	err := rows.Scan(
		&s.ID, &eventID, &s.Publisher, &s.PublisherType,
		&appDest, &webDest, &s.EnrollmentID, &s.Registrant,
		&s.Type, &s.EventTime, &s.ExpiryTime, &s.EventReportWindow,
		&s.AggregatableReportWindow, &s.Priority, &s.Status, &s.AttributionMode,
		&s.InstallAttributed, &s.InstallCooldownWindow, &installTime,
		&filterData, &aggKeys, &sharedKeys,
		&s.AggregateContributions, &eventDedup, &aggDedup,
	)
	if err != nil {
		return model.Source{}, err
	}

	if s.EventID, err = parseStoredUint64(eventID); err != nil {
		return model.Source{}, err
	}
	s.AppDestination = stringOrEmpty(appDest)
	s.WebDestination = stringOrEmpty(webDest)
	s.InstallTime = int64OrNil(installTime)
	s.FilterData = stringOrEmpty(filterData)
	s.AggregationKeys = stringOrEmpty(aggKeys)
	s.SharedAggregationKeys = stringOrEmpty(sharedKeys)
	if s.EventDedupKeys, err = unmarshalDedupKeys(eventDedup); err != nil {
		return model.Source{}, err
	}
	if s.AggregateDedupKeys, err = unmarshalDedupKeys(aggDedup); err != nil {
		return model.Source{}, err
	}
	return s, nil
}

func scanEventReport(rows *sql.Rows) (model.EventReport, error) {
	var r model.EventReport
	var sourceEventID, triggerData string
	var dedupKey sql.NullString

	err := rows.Scan(
		&r.ID, &r.SourceID, &r.TriggerID, &sourceEventID,
		&r.EnrollmentID, &r.AttributionDestination, &r.DestinationType, &triggerData,
		&r.TriggerPriority, &dedupKey, &r.TriggerTime, &r.ReportTime,
		&r.SourceType, &r.Status,
	)
	if err != nil {
		return model.EventReport{}, err
	}

	if r.SourceEventID, err = parseStoredUint64(sourceEventID); err != nil {
		return model.EventReport{}, err
	}
	if r.TriggerData, err = parseStoredUint64(triggerData); err != nil {
		return model.EventReport{}, err
	}
	if r.TriggerDedupKey, err = parseOptionalUint64(dedupKey); err != nil {
		return model.EventReport{}, err
	}
	return r, nil
}

func scanAggregateReport(rows *sql.Rows) (model.AggregateReport, error) {
	var r model.AggregateReport
	var contributions string
	var dedupKey sql.NullString

	err := rows.Scan(
		&r.ID, &r.SourceID, &r.TriggerID, &r.EnrollmentID,
		&r.Publisher, &r.AttributionDestination, &r.DestinationType,
		&r.SourceRegistrationTime, &r.ScheduledReportTime, &contributions,
		&dedupKey, &r.APIVersion, &r.Status,
	)
	if err != nil {
		return model.AggregateReport{}, err
	}

	if err := json.Unmarshal([]byte(contributions), &r.Contributions); err != nil {
		return model.AggregateReport{}, fmt.Errorf("contributions: %w", err)
	}
	if r.DedupKey, err = parseOptionalUint64(dedupKey); err != nil {
		return model.AggregateReport{}, err
	}
	return r, nil
}
