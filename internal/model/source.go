package model

import (
	"encoding/json"
	"fmt"

	"github.com/atrius/attribution/internal/filter"
)

// SourceStatus is the lifecycle state of a registered source.
type SourceStatus string

const (
	SourceActive         SourceStatus = "active"
	SourceIgnored        SourceStatus = "ignored"
	SourceMarkedToDelete SourceStatus = "marked_to_delete"
)

// SourceType distinguishes view-through (event) from click-through
// (navigation) sources. Navigation sources attribute from a larger
// event-report quota.
type SourceType string

const (
	SourceTypeEvent      SourceType = "event"
	SourceTypeNavigation SourceType = "navigation"
)

// AttributionMode records the noising decision made at registration.
// Only truthful sources may produce event-level reports.
type AttributionMode string

const (
	AttributionModeTruthful AttributionMode = "truthful"
	AttributionModeFalsely  AttributionMode = "falsely"
	AttributionModeNever    AttributionMode = "never"
)

// Surface identifies the conversion surface of a destination or publisher.
type Surface string

const (
	SurfaceApp Surface = "app"
	SurfaceWeb Surface = "web"
)

// Source is a registered ad exposure eligible to receive attribution
// credit. A source with a non-nil ParentID is a derived (cross-network)
// source: it is never persisted, never produces event reports, and all of
// its dedup and contribution bookkeeping lands on the parent.
type Source struct {
	ID            string  `json:"id"`
	EventID       uint64  `json:"event_id"`
	Publisher     string  `json:"publisher"`
	PublisherType Surface `json:"publisher_type"`

	AppDestination string `json:"app_destination,omitempty"`
	WebDestination string `json:"web_destination,omitempty"`

	EnrollmentID string `json:"enrollment_id"`
	Registrant   string `json:"registrant"`

	Type SourceType `json:"source_type"`

	// Times are unix milliseconds.
	EventTime                int64 `json:"event_time"`
	ExpiryTime               int64 `json:"expiry_time"`
	EventReportWindow        int64 `json:"event_report_window"`
	AggregatableReportWindow int64 `json:"aggregatable_report_window"`

	Priority int64        `json:"priority"`
	Status   SourceStatus `json:"status"`

	AttributionMode AttributionMode `json:"attribution_mode"`

	InstallAttributed     bool   `json:"install_attributed"`
	InstallCooldownWindow int64  `json:"install_cooldown_window"`
	InstallTime           *int64 `json:"install_time,omitempty"`

	// FilterData is the registered attribute map, raw JSON object of
	// key -> value list.
	FilterData string `json:"filter_data,omitempty"`

	// AggregationKeys maps named histogram keys to 128-bit bucket prefixes
	// (raw JSON object of key -> "0x..." hex string).
	AggregationKeys string `json:"aggregation_keys,omitempty"`

	// SharedAggregationKeys is the subset of aggregation key names this
	// source exposes to derived sources (raw JSON array of strings).
	SharedAggregationKeys string `json:"shared_aggregation_keys,omitempty"`

	// AggregateContributions is the running sum of histogram values
	// attributed so far; bounded by the per-source aggregate budget.
	AggregateContributions int64 `json:"aggregate_contributions"`

	EventDedupKeys     []uint64 `json:"event_dedup_keys,omitempty"`
	AggregateDedupKeys []uint64 `json:"aggregate_dedup_keys,omitempty"`

	// ParentID is set on derived sources only and names the original
	// source the derivation was taken from.
	ParentID *string `json:"parent_id,omitempty"`
}

// IsDerived reports whether this is a synthetic cross-network source.
func (s Source) IsDerived() bool {
	return s.ParentID != nil
}

// FilterMap parses the source's registered filter data.
func (s Source) FilterMap() (filter.Map, error) {
	return filter.ParseMap(s.FilterData)
}

// ParseSharedAggregationKeys decodes the shared aggregation key name list.
func (s Source) ParseSharedAggregationKeys() ([]string, error) {
	if s.SharedAggregationKeys == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(s.SharedAggregationKeys), &names); err != nil {
		return nil, fmt.Errorf("parse shared aggregation keys: %w", err)
	}
	return names, nil
}

// Destination returns the source's registered destination for a surface.
func (s Source) Destination(surface Surface) string {
	if surface == SurfaceApp {
		return s.AppDestination
	}
	return s.WebDestination
}

// HasEventDedupKey reports whether key is already recorded on the source.
func (s Source) HasEventDedupKey(key uint64) bool {
	return containsKey(s.EventDedupKeys, key)
}

// HasAggregateDedupKey reports whether key is already recorded on the source.
func (s Source) HasAggregateDedupKey(key uint64) bool {
	return containsKey(s.AggregateDedupKeys, key)
}

// WithStatus derives a copy with the given status.
func (s Source) WithStatus(status SourceStatus) Source {
	s.Status = status
	return s
}

// WithEventDedupKey derives a copy with key appended to the event dedup set.
func (s Source) WithEventDedupKey(key uint64) Source {
	s.EventDedupKeys = appendKey(s.EventDedupKeys, key)
	return s
}

// WithoutEventDedupKey derives a copy with key removed from the event dedup
// set. Used when an evicted report releases its key back onto the source.
func (s Source) WithoutEventDedupKey(key uint64) Source {
	keys := make([]uint64, 0, len(s.EventDedupKeys))
	for _, k := range s.EventDedupKeys {
		if k != key {
			keys = append(keys, k)
		}
	}
	s.EventDedupKeys = keys
	return s
}

// WithAggregateDedupKey derives a copy with key appended to the aggregate
// dedup set.
func (s Source) WithAggregateDedupKey(key uint64) Source {
	s.AggregateDedupKeys = appendKey(s.AggregateDedupKeys, key)
	return s
}

// WithAggregateContributions derives a copy with the running contribution
// sum replaced.
func (s Source) WithAggregateContributions(sum int64) Source {
	s.AggregateContributions = sum
	return s
}

func containsKey(keys []uint64, key uint64) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func appendKey(keys []uint64, key uint64) []uint64 {
	out := make([]uint64, len(keys), len(keys)+1)
	copy(out, keys)
	return append(out, key)
}
