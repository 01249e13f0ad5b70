package xna

import (
	"fmt"
	"math/big"

	"github.com/atrius/attribution/internal/aggregate"
	"github.com/atrius/attribution/internal/filter"
	"github.com/atrius/attribution/internal/model"
)

// DeriveSources produces the derived sources a trigger's attribution config
// yields from the given foreign (other-network) sources.
//
// Configs are processed in list order and a parent source consumed by an
// earlier config is excluded from later ones, so the first matching config
// wins for any given parent. Output order follows config order, then the
// input order of the parents.
func DeriveSources(trigger model.Trigger, foreign []model.Source) ([]model.Source, error) {
	configs, err := ParseConfigs(trigger.AttributionConfig)
	if err != nil {
		return nil, err
	}

	consumed := make(map[string]struct{})
	var derived []model.Source
	for _, cfg := range configs {
		for _, parent := range foreign {
			if parent.EnrollmentID != cfg.SourceNetwork {
				continue
			}
			if _, ok := consumed[parent.ID]; ok {
				continue
			}
			ok, err := configAccepts(cfg, parent, trigger)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			d, err := derive(cfg, parent, trigger)
			if err != nil {
				return nil, err
			}
			consumed[parent.ID] = struct{}{}
			derived = append(derived, d)
		}
	}
	return derived, nil
}

// configAccepts applies the config's parent-source constraints (steps that
// never look at the derived copy): priority range, expiry override window,
// and filter sets.
func configAccepts(cfg Config, parent model.Source, trigger model.Trigger) (bool, error) {
	if r := cfg.PriorityRange; r != nil {
		if parent.Priority < r.Start || parent.Priority > r.End {
			return false, nil
		}
	}
	if cfg.SourceExpiryOverrideSeconds != nil {
		cutoff := parent.EventTime + *cfg.SourceExpiryOverrideSeconds*1000
		if trigger.TriggerTime > cutoff {
			return false, nil
		}
	}
	if len(cfg.SourceFilters) > 0 || len(cfg.SourceNotFilters) > 0 {
		parentFilter, err := parent.FilterMap()
		if err != nil {
			return false, fmt.Errorf("derive sources: parent %s: %w", parent.ID, err)
		}
		if !filter.Match(parentFilter, cfg.SourceFilters, true) ||
			!filter.Match(parentFilter, cfg.SourceNotFilters, false) {
			return false, nil
		}
	}
	return true, nil
}

// derive synthesizes the non-persisted derived copy of parent under cfg.
func derive(cfg Config, parent model.Source, trigger model.Trigger) (model.Source, error) {
	parentID := parent.ID
	d := parent
	d.ID = ""
	d.ParentID = &parentID
	d.Status = model.SourceActive
	d.EnrollmentID = trigger.EnrollmentID

	// Derived sources never accumulate their own dedup state; only the
	// parent's sets grow.
	d.EventDedupKeys = nil
	d.AggregateDedupKeys = nil

	if cfg.Priority != nil {
		d.Priority = *cfg.Priority
	}
	if cfg.PostInstallExclusivityWindow != nil {
		d.InstallCooldownWindow = *cfg.PostInstallExclusivityWindow
	}
	if cfg.FilterData != "" {
		d.FilterData = cfg.FilterData
	}
	if cfg.ExpirySeconds != nil {
		d.ExpiryTime = min(parent.ExpiryTime, parent.EventTime+*cfg.ExpirySeconds*1000)
	}

	d.InstallAttributed = parent.InstallTime != nil && *parent.InstallTime < trigger.TriggerTime

	narrowed, err := narrowAggregationKeys(parent)
	if err != nil {
		return model.Source{}, fmt.Errorf("derive sources: parent %s: %w", parentID, err)
	}
	d.AggregationKeys = narrowed
	d.SharedAggregationKeys = ""

	return d, nil
}

// narrowAggregationKeys reduces the parent's aggregation keys to the names
// it shares across networks. A parent sharing nothing derives a source with
// no aggregatable surface at all.
func narrowAggregationKeys(parent model.Source) (string, error) {
	shared, err := parent.ParseSharedAggregationKeys()
	if err != nil {
		return "", err
	}
	if len(shared) == 0 {
		return "", nil
	}
	keys, err := aggregate.ParseSourceKeys(parent.AggregationKeys)
	if err != nil {
		return "", err
	}
	narrowed := make(map[string]*big.Int, len(shared))
	for _, name := range shared {
		if bucket, ok := keys[name]; ok {
			narrowed[name] = bucket
		}
	}
	return aggregate.MarshalSourceKeys(narrowed)
}
