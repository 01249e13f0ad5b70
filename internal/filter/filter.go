package filter

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Map is a source-side filter data map: attribute key to allowed values.
type Map map[string][]string

// Set is a trigger-side filter set: a disjunction of filter maps.
type Set []Map

// ParseMap decodes a single filter map from JSON.
// Keys and values are NFC-normalized so that equal attribute strings
// compare equal regardless of the registration's Unicode form.
//
// An empty or absent payload decodes to an empty map (no restriction).
func ParseMap(raw string) (Map, error) {
	if raw == "" {
		return Map{}, nil
	}
	var decoded map[string][]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse filter map: %w", err)
	}
	return normalizeMap(decoded), nil
}

// ParseSet decodes a filter set (JSON array of filter maps).
//
// An empty or absent payload decodes to an empty set (no restriction).
func ParseSet(raw string) (Set, error) {
	if raw == "" {
		return Set{}, nil
	}
	var decoded []map[string][]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse filter set: %w", err)
	}
	set := make(Set, len(decoded))
	for i, m := range decoded {
		set[i] = normalizeMap(m)
	}
	return set, nil
}

// Match reports whether the source filter data satisfies the trigger's
// filter set.
//
// An empty set or empty source map is an unconditional match. Otherwise the
// set matches if at least one of its maps matches. A single map matches
// when every key shared with the source passes the key-level test:
// intersecting values for positive mode, disjoint values for negated mode.
func Match(source Map, set Set, positive bool) bool {
	if len(set) == 0 || len(source) == 0 {
		return true
	}
	for _, m := range set {
		if matchMap(source, m, positive) {
			return true
		}
	}
	return false
}

// matchMap applies the AND-across-keys test for one filter map.
func matchMap(source Map, m Map, positive bool) bool {
	for key, wanted := range m {
		have, ok := source[key]
		if !ok {
			// Key absent from the source: no restriction on this key.
			continue
		}
		if intersects(have, wanted) != positive {
			return false
		}
	}
	return true
}

// intersects reports whether the two value lists share at least one value.
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			return true
		}
	}
	return false
}

func normalizeMap(m map[string][]string) Map {
	out := make(Map, len(m))
	for key, values := range m {
		nv := make([]string, len(values))
		for i, v := range values {
			nv[i] = norm.NFC.String(v)
		}
		out[norm.NFC.String(key)] = nv
	}
	return out
}
