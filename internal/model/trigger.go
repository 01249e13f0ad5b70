package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/atrius/attribution/internal/filter"
)

// TriggerStatus is the processing state of a trigger. Transitions out of
// pending are monotonic and final for a given trigger id.
type TriggerStatus string

const (
	TriggerPending        TriggerStatus = "pending"
	TriggerIgnored        TriggerStatus = "ignored"
	TriggerAttributed     TriggerStatus = "attributed"
	TriggerMarkedToDelete TriggerStatus = "marked_to_delete"
)

// Trigger is a conversion event seeking attribution to a source.
type Trigger struct {
	ID           string `json:"id"`
	EnrollmentID string `json:"enrollment_id"`
	Registrant   string `json:"registrant"`

	AttributionDestination string  `json:"attribution_destination"`
	DestinationType        Surface `json:"destination_type"`

	TriggerTime int64         `json:"trigger_time"`
	Status      TriggerStatus `json:"status"`

	// EventTriggers is the registered event-trigger list, raw JSON array.
	EventTriggers string `json:"event_triggers,omitempty"`

	// Top-level filter sets, raw JSON arrays of filter maps.
	Filters    string `json:"filters,omitempty"`
	NotFilters string `json:"not_filters,omitempty"`

	// Aggregate trigger payload, raw JSON.
	AggregateTriggerData string `json:"aggregate_trigger_data,omitempty"`
	AggregateValues      string `json:"aggregate_values,omitempty"`
	AggregateDedupKeys   string `json:"aggregate_dedup_keys,omitempty"`

	// AttributionConfig is the ordered cross-network delegation config,
	// raw JSON array; nil/empty disables derived-source generation.
	AttributionConfig string `json:"attribution_config,omitempty"`
}

// EventTrigger is one entry of a trigger's event-trigger list. The first
// entry whose filter sets match the source's filter data supplies the
// event report's data, priority, and dedup key.
type EventTrigger struct {
	Data       uint64
	Priority   int64
	DedupKey   *uint64
	Filters    filter.Set
	NotFilters filter.Set
}

// eventTriggerWire is the registered JSON shape of an event trigger.
// trigger_data and deduplication_key are decimal strings since they carry
// full unsigned 64-bit values.
type eventTriggerWire struct {
	TriggerData      string          `json:"trigger_data"`
	Priority         int64           `json:"priority"`
	DeduplicationKey *string         `json:"deduplication_key"`
	Filters          json.RawMessage `json:"filters"`
	NotFilters       json.RawMessage `json:"not_filters"`
}

// ParseEventTriggers decodes the trigger's event-trigger list in
// registration order.
func (t Trigger) ParseEventTriggers() ([]EventTrigger, error) {
	if t.EventTriggers == "" {
		return nil, nil
	}
	var wire []eventTriggerWire
	if err := json.Unmarshal([]byte(t.EventTriggers), &wire); err != nil {
		return nil, fmt.Errorf("parse event triggers: %w", err)
	}

	out := make([]EventTrigger, 0, len(wire))
	for i, w := range wire {
		data, err := parseUint64(w.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("parse event triggers [%d]: trigger_data: %w", i, err)
		}
		et := EventTrigger{Data: data, Priority: w.Priority}

		if w.DeduplicationKey != nil {
			key, err := parseUint64(*w.DeduplicationKey)
			if err != nil {
				return nil, fmt.Errorf("parse event triggers [%d]: deduplication_key: %w", i, err)
			}
			et.DedupKey = &key
		}
		if et.Filters, err = filter.ParseSet(string(w.Filters)); err != nil {
			return nil, fmt.Errorf("parse event triggers [%d]: %w", i, err)
		}
		if et.NotFilters, err = filter.ParseSet(string(w.NotFilters)); err != nil {
			return nil, fmt.Errorf("parse event triggers [%d]: %w", i, err)
		}
		out = append(out, et)
	}
	return out, nil
}

// CanonicalDestination reduces the trigger's destination URI to the value
// sources register and reports carry: the base URI for app surfaces, the
// site for web surfaces.
func (t Trigger) CanonicalDestination() (string, error) {
	if t.DestinationType == SurfaceApp {
		return BaseURI(t.AttributionDestination)
	}
	return TopPrivateDomain(t.AttributionDestination, SurfaceWeb)
}

// TopLevelFilters parses the trigger's top-level positive filter set.
func (t Trigger) TopLevelFilters() (filter.Set, error) {
	return filter.ParseSet(t.Filters)
}

// TopLevelNotFilters parses the trigger's top-level negated filter set.
func (t Trigger) TopLevelNotFilters() (filter.Set, error) {
	return filter.ParseSet(t.NotFilters)
}

// MatchesSource applies an event trigger's own filter sets to a source
// filter map.
func (et EventTrigger) MatchesSource(source filter.Map) bool {
	return filter.Match(source, et.Filters, true) &&
		filter.Match(source, et.NotFilters, false)
}

func parseUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid unsigned value %q: %w", s, err)
	}
	return v, nil
}
