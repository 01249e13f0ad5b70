package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atrius/attribution/internal/config"
	"github.com/atrius/attribution/internal/model"
)

// Scenario is one end-to-end attribution case: records to seed, limits to
// run under, and the outcomes to expect.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Limits overrides individual engine limits. Fields absent from the
	// scenario keep their config.DefaultLimits values.
	Limits config.Limits `yaml:"limits,omitempty"`

	// Sources are seeded before the run, in order.
	Sources []SourceRecord `yaml:"sources,omitempty"`

	// Triggers are seeded pending, in order. The engine processes them
	// in (trigger_time, id) order.
	Triggers []TriggerRecord `yaml:"triggers"`

	// Expect lists declarative per-trigger outcome checks, applied by
	// CheckExpectations after the run.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// SourceRecord is the YAML shape of a seeded source. JSON payload fields
// (filter_data, aggregation_keys, event trigger lists) are carried as raw
// JSON strings, exactly as a registration would persist them.
type SourceRecord struct {
	ID            string `yaml:"id"`
	EventID       uint64 `yaml:"event_id"`
	Publisher     string `yaml:"publisher"`
	PublisherType string `yaml:"publisher_type,omitempty"`

	AppDestination string `yaml:"app_destination,omitempty"`
	WebDestination string `yaml:"web_destination,omitempty"`

	EnrollmentID string `yaml:"enrollment_id"`
	Registrant   string `yaml:"registrant,omitempty"`

	SourceType string `yaml:"source_type,omitempty"`

	EventTime                int64 `yaml:"event_time"`
	ExpiryTime               int64 `yaml:"expiry_time"`
	EventReportWindow        int64 `yaml:"event_report_window"`
	AggregatableReportWindow int64 `yaml:"aggregatable_report_window"`

	Priority        int64  `yaml:"priority,omitempty"`
	Status          string `yaml:"status,omitempty"`
	AttributionMode string `yaml:"attribution_mode,omitempty"`

	InstallAttributed     bool  `yaml:"install_attributed,omitempty"`
	InstallCooldownWindow int64 `yaml:"install_cooldown_window,omitempty"`

	FilterData            string `yaml:"filter_data,omitempty"`
	AggregationKeys       string `yaml:"aggregation_keys,omitempty"`
	SharedAggregationKeys string `yaml:"shared_aggregation_keys,omitempty"`

	AggregateContributions int64 `yaml:"aggregate_contributions,omitempty"`
}

// TriggerRecord is the YAML shape of a seeded trigger.
type TriggerRecord struct {
	ID           string `yaml:"id"`
	EnrollmentID string `yaml:"enrollment_id"`
	Registrant   string `yaml:"registrant,omitempty"`

	AttributionDestination string `yaml:"attribution_destination"`
	DestinationType        string `yaml:"destination_type,omitempty"`

	TriggerTime int64 `yaml:"trigger_time"`

	EventTriggers string `yaml:"event_triggers,omitempty"`
	Filters       string `yaml:"filters,omitempty"`
	NotFilters    string `yaml:"not_filters,omitempty"`

	AggregateTriggerData string `yaml:"aggregate_trigger_data,omitempty"`
	AggregateValues      string `yaml:"aggregate_values,omitempty"`
	AggregateDedupKeys   string `yaml:"aggregate_dedup_keys,omitempty"`

	AttributionConfig string `yaml:"attribution_config,omitempty"`
}

// Expectation is one declarative check against a trigger's final state.
// Report counts are optional; nil means "don't check".
type Expectation struct {
	// Trigger names a seeded trigger id.
	Trigger string `yaml:"trigger"`

	// Status is the expected final trigger status.
	Status string `yaml:"status"`

	// EventReports is the expected number of event reports carrying this
	// trigger id.
	EventReports *int `yaml:"event_reports,omitempty"`

	// AggregateReports is the expected number of aggregate reports
	// carrying this trigger id.
	AggregateReports *int `yaml:"aggregate_reports,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are an
// error, so field-name typos fail loudly instead of silently weakening a
// scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	scenario := Scenario{Limits: config.DefaultLimits()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// Validate checks structural requirements before a run: a name, at least
// one trigger, unique record ids, and expectations that reference seeded
// triggers.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Triggers) == 0 {
		return fmt.Errorf("no triggers")
	}

	sourceIDs := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: missing id", i)
		}
		if sourceIDs[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		sourceIDs[src.ID] = true
	}

	triggerIDs := make(map[string]bool, len(s.Triggers))
	for i, trg := range s.Triggers {
		if trg.ID == "" {
			return fmt.Errorf("triggers[%d]: missing id", i)
		}
		if triggerIDs[trg.ID] {
			return fmt.Errorf("duplicate trigger id %q", trg.ID)
		}
		triggerIDs[trg.ID] = true
	}

	for i, exp := range s.Expect {
		if !triggerIDs[exp.Trigger] {
			return fmt.Errorf("expect[%d]: unknown trigger %q", i, exp.Trigger)
		}
		if exp.Status == "" {
			return fmt.Errorf("expect[%d]: missing status", i)
		}
	}
	return nil
}

// limits resolves the effective engine limits. Scenarios built in code
// with a zero Limits struct get the defaults, matching what LoadScenario
// pre-populates for file-based scenarios.
func (s *Scenario) limits() config.Limits {
	if s.Limits == (config.Limits{}) {
		return config.DefaultLimits()
	}
	return s.Limits
}

// toModel converts the YAML record to a store row, filling per-field
// defaults the way a registration would.
func (r SourceRecord) toModel() model.Source {
	s := model.Source{
		ID:                       r.ID,
		EventID:                  r.EventID,
		Publisher:                r.Publisher,
		PublisherType:            model.Surface(r.PublisherType),
		AppDestination:           r.AppDestination,
		WebDestination:           r.WebDestination,
		EnrollmentID:             r.EnrollmentID,
		Registrant:               r.Registrant,
		Type:                     model.SourceType(r.SourceType),
		EventTime:                r.EventTime,
		ExpiryTime:               r.ExpiryTime,
		EventReportWindow:        r.EventReportWindow,
		AggregatableReportWindow: r.AggregatableReportWindow,
		Priority:                 r.Priority,
		Status:                   model.SourceStatus(r.Status),
		AttributionMode:          model.AttributionMode(r.AttributionMode),
		InstallAttributed:        r.InstallAttributed,
		InstallCooldownWindow:    r.InstallCooldownWindow,
		FilterData:               r.FilterData,
		AggregationKeys:          r.AggregationKeys,
		SharedAggregationKeys:    r.SharedAggregationKeys,
		AggregateContributions:   r.AggregateContributions,
	}
	if s.PublisherType == "" {
		s.PublisherType = model.SurfaceWeb
	}
	if s.Type == "" {
		s.Type = model.SourceTypeNavigation
	}
	if s.Status == "" {
		s.Status = model.SourceActive
	}
	if s.AttributionMode == "" {
		s.AttributionMode = model.AttributionModeTruthful
	}
	return s
}

func (r TriggerRecord) toModel() model.Trigger {
	t := model.Trigger{
		ID:                     r.ID,
		EnrollmentID:           r.EnrollmentID,
		Registrant:             r.Registrant,
		AttributionDestination: r.AttributionDestination,
		DestinationType:        model.Surface(r.DestinationType),
		TriggerTime:            r.TriggerTime,
		Status:                 model.TriggerPending,
		EventTriggers:          r.EventTriggers,
		Filters:                r.Filters,
		NotFilters:             r.NotFilters,
		AggregateTriggerData:   r.AggregateTriggerData,
		AggregateValues:        r.AggregateValues,
		AggregateDedupKeys:     r.AggregateDedupKeys,
		AttributionConfig:      r.AttributionConfig,
	}
	if t.DestinationType == "" {
		t.DestinationType = model.SurfaceApp
	}
	return t
}
