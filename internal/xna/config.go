package xna

import (
	"encoding/json"
	"fmt"

	"github.com/atrius/attribution/internal/filter"
)

// Config is one entry of a trigger's attribution config: the constraints
// and overrides for deriving sources from one delegating network.
type Config struct {
	// SourceNetwork is the enrollment id whose sources this entry draws on.
	SourceNetwork string

	// PriorityRange, when present, bounds the parent source priority
	// (inclusive on both ends).
	PriorityRange *PriorityRange

	// SourceFilters and SourceNotFilters gate parent sources by their
	// registered filter data.
	SourceFilters    filter.Set
	SourceNotFilters filter.Set

	// SourceExpiryOverrideSeconds, when present, requires the trigger to
	// fire within that many seconds of the parent's event time.
	SourceExpiryOverrideSeconds *int64

	// Priority, when present, replaces the parent's priority on the
	// derived source.
	Priority *int64

	// ExpirySeconds, when present, caps the derived source's expiry at
	// parent event time plus this many seconds.
	ExpirySeconds *int64

	// FilterData, when present, replaces the parent's filter data on the
	// derived source (raw JSON object).
	FilterData string

	// PostInstallExclusivityWindow, when present, replaces the parent's
	// install cooldown window on the derived source.
	PostInstallExclusivityWindow *int64
}

// PriorityRange is an inclusive priority interval.
type PriorityRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type configWire struct {
	SourceNetwork                string          `json:"source_network"`
	SourcePriorityRange          *PriorityRange  `json:"source_priority_range"`
	SourceFilters                json.RawMessage `json:"source_filters"`
	SourceNotFilters             json.RawMessage `json:"source_not_filters"`
	SourceExpiryOverride         *int64          `json:"source_expiry_override"`
	Priority                     *int64          `json:"priority"`
	Expiry                       *int64          `json:"expiry"`
	FilterData                   json.RawMessage `json:"filter_data"`
	PostInstallExclusivityWindow *int64          `json:"post_install_exclusivity_window"`
}

// ParseConfigs decodes a trigger's attribution config list in order.
func ParseConfigs(raw string) ([]Config, error) {
	if raw == "" {
		return nil, nil
	}
	var wire []configWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse attribution config: %w", err)
	}
	out := make([]Config, 0, len(wire))
	for i, w := range wire {
		if w.SourceNetwork == "" {
			return nil, fmt.Errorf("parse attribution config [%d]: missing source_network", i)
		}
		cfg := Config{
			SourceNetwork:                w.SourceNetwork,
			PriorityRange:                w.SourcePriorityRange,
			SourceExpiryOverrideSeconds:  w.SourceExpiryOverride,
			Priority:                     w.Priority,
			ExpirySeconds:                w.Expiry,
			PostInstallExclusivityWindow: w.PostInstallExclusivityWindow,
		}
		var err error
		if cfg.SourceFilters, err = filter.ParseSet(string(w.SourceFilters)); err != nil {
			return nil, fmt.Errorf("parse attribution config [%d]: %w", i, err)
		}
		if cfg.SourceNotFilters, err = filter.ParseSet(string(w.SourceNotFilters)); err != nil {
			return nil, fmt.Errorf("parse attribution config [%d]: %w", i, err)
		}
		if len(w.FilterData) > 0 {
			if _, err := filter.ParseMap(string(w.FilterData)); err != nil {
				return nil, fmt.Errorf("parse attribution config [%d]: %w", i, err)
			}
			cfg.FilterData = string(w.FilterData)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// EnrollmentIDs extracts the distinct delegating networks named by an
// attribution config. Used to scope the candidate-source query.
func EnrollmentIDs(raw string) ([]string, error) {
	configs, err := ParseConfigs(raw)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(configs))
	var ids []string
	for _, cfg := range configs {
		if _, ok := seen[cfg.SourceNetwork]; ok {
			continue
		}
		seen[cfg.SourceNetwork] = struct{}{}
		ids = append(ids, cfg.SourceNetwork)
	}
	return ids, nil
}
