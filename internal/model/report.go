package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ReportStatus is the delivery state of a generated report. This engine
// only creates pending reports; delivery is owned elsewhere.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportDelivered ReportStatus = "delivered"
)

// EventReport is an event-level attribution report for one
// (source, trigger) pair.
type EventReport struct {
	ID            string `json:"id"`
	SourceID      string `json:"source_id"`
	TriggerID     string `json:"trigger_id"`
	SourceEventID uint64 `json:"source_event_id"`
	EnrollmentID  string `json:"enrollment_id"`

	AttributionDestination string  `json:"attribution_destination"`
	DestinationType        Surface `json:"destination_type"`

	TriggerData     uint64  `json:"trigger_data"`
	TriggerPriority int64   `json:"trigger_priority"`
	TriggerDedupKey *uint64 `json:"trigger_dedup_key,omitempty"`
	TriggerTime     int64   `json:"trigger_time"`

	ReportTime int64        `json:"report_time"`
	SourceType SourceType   `json:"source_type"`
	Status     ReportStatus `json:"status"`
}

// Contribution is one (bucket, value) pair of an aggregate histogram.
// Buckets are 128-bit unsigned integers serialized as "0x..." hex strings.
type Contribution struct {
	Key   *big.Int
	Value int64
}

type contributionWire struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// MarshalJSON serializes the bucket key as a 0x-prefixed hex string.
func (c Contribution) MarshalJSON() ([]byte, error) {
	if c.Key == nil {
		return nil, fmt.Errorf("marshal contribution: nil key")
	}
	return json.Marshal(contributionWire{
		Key:   "0x" + c.Key.Text(16),
		Value: c.Value,
	})
}

// UnmarshalJSON parses the bucket key from a 0x-prefixed hex string.
func (c *Contribution) UnmarshalJSON(data []byte) error {
	var w contributionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal contribution: %w", err)
	}
	key, err := ParseBucketKey(w.Key)
	if err != nil {
		return fmt.Errorf("unmarshal contribution: %w", err)
	}
	c.Key = key
	c.Value = w.Value
	return nil
}

// ParseBucketKey parses a "0x..." hex string into a 128-bit bucket key.
func ParseBucketKey(s string) (*big.Int, error) {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return nil, fmt.Errorf("bucket key %q missing 0x prefix", s)
	}
	key, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return nil, fmt.Errorf("bucket key %q is not hexadecimal", s)
	}
	if key.BitLen() > 128 {
		return nil, fmt.Errorf("bucket key %q exceeds 128 bits", s)
	}
	return key, nil
}

// AggregateReport is a privacy-budgeted histogram report for one
// (source, trigger) pair.
type AggregateReport struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	TriggerID    string `json:"trigger_id"`
	EnrollmentID string `json:"enrollment_id"`

	Publisher              string  `json:"publisher"`
	AttributionDestination string  `json:"attribution_destination"`
	DestinationType        Surface `json:"destination_type"`

	// SourceRegistrationTime is the source event time rounded down to a
	// whole day, limiting the timing signal the report carries.
	SourceRegistrationTime int64 `json:"source_registration_time"`

	// ScheduledReportTime is the trigger time plus a uniformly random
	// delay within the configured bounds.
	ScheduledReportTime int64 `json:"scheduled_report_time"`

	Contributions []Contribution `json:"contributions"`

	DedupKey   *uint64      `json:"dedup_key,omitempty"`
	APIVersion string       `json:"api_version"`
	Status     ReportStatus `json:"status"`
}
