package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atrius/attribution/internal/model"
)

// InsertSource stores a registered source. Registration validation happens
// upstream; the row is stored as given. Duplicate ids are rejected.
func (d *DAO) InsertSource(s model.Source) error {
	if s.IsDerived() {
		return fmt.Errorf("insert source: derived sources are never persisted")
	}
	eventDedup, err := marshalDedupKeys(s.EventDedupKeys)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	aggDedup, err := marshalDedupKeys(s.AggregateDedupKeys)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	_, err = d.tx.ExecContext(d.ctx, `
		INSERT INTO sources
		(id, event_id, publisher, publisher_type, app_destination,
		 web_destination, enrollment_id, registrant, source_type, event_time,
		 expiry_time, event_report_window, aggregatable_report_window,
		 priority, status, attribution_mode, install_attributed,
		 install_cooldown_window, install_time, filter_data,
		 aggregation_keys, shared_aggregation_keys, aggregate_contributions,
		 event_dedup_keys, aggregate_dedup_keys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, formatUint64(s.EventID), s.Publisher, s.PublisherType,
		nullableString(s.AppDestination), nullableString(s.WebDestination),
		s.EnrollmentID, s.Registrant, s.Type, s.EventTime,
		s.ExpiryTime, s.EventReportWindow, s.AggregatableReportWindow,
		s.Priority, s.Status, s.AttributionMode, s.InstallAttributed,
		s.InstallCooldownWindow, nullableInt64(s.InstallTime),
		nullableString(s.FilterData), nullableString(s.AggregationKeys),
		nullableString(s.SharedAggregationKeys), s.AggregateContributions,
		eventDedup, aggDedup,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// InsertTrigger stores a registered trigger in pending state.
func (d *DAO) InsertTrigger(t model.Trigger) error {
	_, err := d.tx.ExecContext(d.ctx, `
		INSERT INTO triggers
		(id, enrollment_id, registrant, attribution_destination,
		 destination_type, trigger_time, status, event_triggers, filters,
		 not_filters, aggregate_trigger_data, aggregate_values,
		 aggregate_dedup_keys, attribution_config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.EnrollmentID, t.Registrant, t.AttributionDestination,
		t.DestinationType, t.TriggerTime, t.Status,
		nullableString(t.EventTriggers), nullableString(t.Filters),
		nullableString(t.NotFilters), nullableString(t.AggregateTriggerData),
		nullableString(t.AggregateValues), nullableString(t.AggregateDedupKeys),
		nullableString(t.AttributionConfig),
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// UpdateTriggerStatus sets the status of the given triggers.
func (d *DAO) UpdateTriggerStatus(ids []string, status model.TriggerStatus) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.tx.ExecContext(d.ctx, `
		UPDATE triggers SET status = ?
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("update trigger status: %w", err)
	}
	return nil
}

// UpdateSourceStatus sets the status of the given sources in bulk.
func (d *DAO) UpdateSourceStatus(ids []string, status model.SourceStatus) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.tx.ExecContext(d.ctx, `
		UPDATE sources SET status = ?
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	return nil
}

// UpdateSourceEventDedupKeys persists a source's event dedup-key set.
func (d *DAO) UpdateSourceEventDedupKeys(s model.Source) error {
	keys, err := marshalDedupKeys(s.EventDedupKeys)
	if err != nil {
		return fmt.Errorf("update source event dedup keys: %w", err)
	}
	if _, err := d.tx.ExecContext(d.ctx,
		`UPDATE sources SET event_dedup_keys = ? WHERE id = ?`, keys, s.ID); err != nil {
		return fmt.Errorf("update source event dedup keys: %w", err)
	}
	return nil
}

// UpdateSourceAggregateDedupKeys persists a source's aggregate dedup-key set.
func (d *DAO) UpdateSourceAggregateDedupKeys(s model.Source) error {
	keys, err := marshalDedupKeys(s.AggregateDedupKeys)
	if err != nil {
		return fmt.Errorf("update source aggregate dedup keys: %w", err)
	}
	if _, err := d.tx.ExecContext(d.ctx,
		`UPDATE sources SET aggregate_dedup_keys = ? WHERE id = ?`, keys, s.ID); err != nil {
		return fmt.Errorf("update source aggregate dedup keys: %w", err)
	}
	return nil
}

// UpdateSourceAggregateContributions persists a source's running
// contribution sum.
func (d *DAO) UpdateSourceAggregateContributions(s model.Source) error {
	if _, err := d.tx.ExecContext(d.ctx,
		`UPDATE sources SET aggregate_contributions = ? WHERE id = ?`,
		s.AggregateContributions, s.ID); err != nil {
		return fmt.Errorf("update source aggregate contributions: %w", err)
	}
	return nil
}

// InsertEventReport stores a new event-level report.
func (d *DAO) InsertEventReport(r model.EventReport) error {
	_, err := d.tx.ExecContext(d.ctx, `
		INSERT INTO event_reports
		(`+eventReportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SourceID, r.TriggerID, formatUint64(r.SourceEventID),
		r.EnrollmentID, r.AttributionDestination, r.DestinationType,
		formatUint64(r.TriggerData), r.TriggerPriority,
		formatOptionalUint64(r.TriggerDedupKey), r.TriggerTime, r.ReportTime,
		r.SourceType, r.Status,
	)
	if err != nil {
		return fmt.Errorf("insert event report: %w", err)
	}
	return nil
}

// DeleteEventReport removes an evicted event report.
func (d *DAO) DeleteEventReport(id string) error {
	if _, err := d.tx.ExecContext(d.ctx,
		`DELETE FROM event_reports WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event report: %w", err)
	}
	return nil
}

// InsertAggregateReport stores a new aggregate report. Contributions are
// serialized as the JSON histogram payload.
func (d *DAO) InsertAggregateReport(r model.AggregateReport) error {
	contributions, err := json.Marshal(r.Contributions)
	if err != nil {
		return fmt.Errorf("insert aggregate report: %w", err)
	}
	_, err = d.tx.ExecContext(d.ctx, `
		INSERT INTO aggregate_reports
		(id, source_id, trigger_id, enrollment_id, publisher,
		 attribution_destination, destination_type, source_registration_time,
		 scheduled_report_time, contributions, dedup_key, api_version, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SourceID, r.TriggerID, r.EnrollmentID, r.Publisher,
		r.AttributionDestination, r.DestinationType, r.SourceRegistrationTime,
		r.ScheduledReportTime, string(contributions),
		formatOptionalUint64(r.DedupKey), r.APIVersion, r.Status,
	)
	if err != nil {
		return fmt.Errorf("insert aggregate report: %w", err)
	}
	return nil
}

// InsertAttribution appends one rate-limit ledger row.
func (d *DAO) InsertAttribution(a model.Attribution) error {
	_, err := d.tx.ExecContext(d.ctx, `
		INSERT INTO attributions
		(id, source_site, source_origin, destination_site,
		 destination_origin, enrollment_id, registrant, source_time,
		 trigger_time, source_id, trigger_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.SourceSite, a.SourceOrigin, a.DestinationSite,
		a.DestinationOrigin, a.EnrollmentID, a.Registrant, a.SourceTime,
		a.TriggerTime, a.SourceID, a.TriggerID,
	)
	if err != nil {
		return fmt.Errorf("insert attribution: %w", err)
	}
	return nil
}

// InsertIgnoredXNASource records that a derived source of the given parent
// lost attribution for an enrollment. Idempotent.
func (d *DAO) InsertIgnoredXNASource(parentID, enrollmentID string) error {
	_, err := d.tx.ExecContext(d.ctx, `
		INSERT INTO xna_ignored_sources (source_id, enrollment_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, parentID, enrollmentID)
	if err != nil {
		return fmt.Errorf("insert ignored xna source: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
