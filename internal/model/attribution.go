package model

// Attribution is one append-only rate-limit ledger row, recorded once per
// successful attribution. Ledger rows are never mutated; the quota guard
// counts them inside a sliding window keyed on the site pair and the
// attributing enrollment.
type Attribution struct {
	ID string `json:"id"`

	SourceSite   string `json:"source_site"`
	SourceOrigin string `json:"source_origin"`

	DestinationSite   string `json:"destination_site"`
	DestinationOrigin string `json:"destination_origin"`

	EnrollmentID string `json:"enrollment_id"`
	Registrant   string `json:"registrant"`

	// SourceTime is the attributed source's event time. The rate-limit
	// window ending at the current trigger's time filters ledger rows on
	// this value, so only attributions to recently registered sources
	// count against the limits.
	SourceTime  int64 `json:"source_time"`
	TriggerTime int64 `json:"trigger_time"`

	SourceID  string `json:"source_id"`
	TriggerID string `json:"trigger_id"`
}
