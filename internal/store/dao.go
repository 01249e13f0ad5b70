package store

import (
	"context"
	"database/sql"
)

// DAO exposes the datastore operations the attribution engine needs, bound
// to a single transaction. A DAO is only valid inside the
// Store.RunInTransaction callback that produced it.
type DAO struct {
	ctx context.Context
	tx  *sql.Tx
}

// sourceColumns is the scan order shared by every source query.
const sourceColumns = `id, event_id, publisher, publisher_type,
	app_destination, web_destination, enrollment_id, registrant,
	source_type, event_time, expiry_time, event_report_window,
	aggregatable_report_window, priority, status, attribution_mode,
	install_attributed, install_cooldown_window, install_time,
	filter_data, aggregation_keys, shared_aggregation_keys,
	aggregate_contributions, event_dedup_keys, aggregate_dedup_keys`

// eventReportColumns is the scan order shared by every event report query.
const eventReportColumns = `id, source_id, trigger_id, source_event_id,
	enrollment_id, attribution_destination, destination_type, trigger_data,
	trigger_priority, trigger_dedup_key, trigger_time, report_time,
	source_type, status`

// aggregateReportColumns is the scan order for aggregate report queries.
const aggregateReportColumns = `id, source_id, trigger_id, enrollment_id,
	publisher, attribution_destination, destination_type,
	source_registration_time, scheduled_report_time, contributions,
	dedup_key, api_version, status`
