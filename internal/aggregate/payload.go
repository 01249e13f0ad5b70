package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/atrius/attribution/internal/filter"
	"github.com/atrius/attribution/internal/model"
)

// TriggerData is one trigger-side histogram key piece with its gating
// filter sets.
type TriggerData struct {
	KeyPiece   *big.Int
	SourceKeys []string
	Filters    filter.Set
	NotFilters filter.Set
}

// DedupKeyRule is one entry of a trigger's aggregate dedup-key list. The
// first rule whose filter sets match the source supplies the dedup key.
type DedupKeyRule struct {
	Key        *uint64
	Filters    filter.Set
	NotFilters filter.Set
}

// ParseSourceKeys decodes a source's registered aggregation keys:
// a JSON object of key name -> "0x..." bucket prefix.
func ParseSourceKeys(raw string) (map[string]*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	var wire map[string]string
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse aggregation keys: %w", err)
	}
	keys := make(map[string]*big.Int, len(wire))
	for name, hex := range wire {
		bucket, err := model.ParseBucketKey(hex)
		if err != nil {
			return nil, fmt.Errorf("parse aggregation keys: %q: %w", name, err)
		}
		keys[name] = bucket
	}
	return keys, nil
}

// MarshalSourceKeys is the inverse of ParseSourceKeys. Used when deriving a
// cross-network source narrowed to its parent's shared aggregation keys.
func MarshalSourceKeys(keys map[string]*big.Int) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	wire := make(map[string]string, len(keys))
	for name, bucket := range keys {
		wire[name] = "0x" + bucket.Text(16)
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal aggregation keys: %w", err)
	}
	return string(out), nil
}

type triggerDataWire struct {
	KeyPiece   string          `json:"key_piece"`
	SourceKeys []string        `json:"source_keys"`
	Filters    json.RawMessage `json:"filters"`
	NotFilters json.RawMessage `json:"not_filters"`
}

// ParseTriggerData decodes a trigger's aggregatable trigger data list.
func ParseTriggerData(raw string) ([]TriggerData, error) {
	if raw == "" {
		return nil, nil
	}
	var wire []triggerDataWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse aggregate trigger data: %w", err)
	}
	out := make([]TriggerData, 0, len(wire))
	for i, w := range wire {
		piece, err := model.ParseBucketKey(w.KeyPiece)
		if err != nil {
			return nil, fmt.Errorf("parse aggregate trigger data [%d]: %w", i, err)
		}
		td := TriggerData{KeyPiece: piece, SourceKeys: w.SourceKeys}
		if td.Filters, err = filter.ParseSet(string(w.Filters)); err != nil {
			return nil, fmt.Errorf("parse aggregate trigger data [%d]: %w", i, err)
		}
		if td.NotFilters, err = filter.ParseSet(string(w.NotFilters)); err != nil {
			return nil, fmt.Errorf("parse aggregate trigger data [%d]: %w", i, err)
		}
		out = append(out, td)
	}
	return out, nil
}

// ParseValues decodes a trigger's aggregatable values: key name -> value.
func ParseValues(raw string) (map[string]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var values map[string]int64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("parse aggregate values: %w", err)
	}
	return values, nil
}

type dedupKeyWire struct {
	DeduplicationKey *string         `json:"deduplication_key"`
	Filters          json.RawMessage `json:"filters"`
	NotFilters       json.RawMessage `json:"not_filters"`
}

// ParseDedupKeys decodes a trigger's aggregate dedup-key rule list in
// registration order.
func ParseDedupKeys(raw string) ([]DedupKeyRule, error) {
	if raw == "" {
		return nil, nil
	}
	var wire []dedupKeyWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse aggregate dedup keys: %w", err)
	}
	out := make([]DedupKeyRule, 0, len(wire))
	for i, w := range wire {
		var rule DedupKeyRule
		var err error
		if w.DeduplicationKey != nil {
			key, err := strconv.ParseUint(*w.DeduplicationKey, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse aggregate dedup keys [%d]: %w", i, err)
			}
			rule.Key = &key
		}
		if rule.Filters, err = filter.ParseSet(string(w.Filters)); err != nil {
			return nil, fmt.Errorf("parse aggregate dedup keys [%d]: %w", i, err)
		}
		if rule.NotFilters, err = filter.ParseSet(string(w.NotFilters)); err != nil {
			return nil, fmt.Errorf("parse aggregate dedup keys [%d]: %w", i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// ExtractDedupKey returns the dedup key of the first rule whose filter sets
// match the source filter data, or nil when no rule matches or the matching
// rule carries no key.
func ExtractDedupKey(rules []DedupKeyRule, source filter.Map) *uint64 {
	for _, rule := range rules {
		if filter.Match(source, rule.Filters, true) &&
			filter.Match(source, rule.NotFilters, false) {
			return rule.Key
		}
	}
	return nil
}

// Contributions computes the histogram contributions for one attribution.
//
// For every source aggregation key that also appears in the trigger's value
// map, the bucket is the source prefix OR-ed with the key piece of every
// trigger data entry that names the key and whose filters match the source.
// Key names are walked in sorted order so the payload is deterministic.
func Contributions(
	sourceKeys map[string]*big.Int,
	sourceFilter filter.Map,
	data []TriggerData,
	values map[string]int64,
) []model.Contribution {
	names := make([]string, 0, len(sourceKeys))
	for name := range sourceKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Contribution
	for _, name := range names {
		value, ok := values[name]
		if !ok {
			continue
		}
		bucket := new(big.Int).Set(sourceKeys[name])
		for _, td := range data {
			if !nameListed(td.SourceKeys, name) {
				continue
			}
			if !filter.Match(sourceFilter, td.Filters, true) ||
				!filter.Match(sourceFilter, td.NotFilters, false) {
				continue
			}
			bucket.Or(bucket, td.KeyPiece)
		}
		out = append(out, model.Contribution{Key: bucket, Value: value})
	}
	return out
}

func nameListed(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
