package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// Unsigned 64-bit fields are stored as decimal TEXT (SQLite INTEGER is
// signed) and dedup-key sets as JSON arrays of decimal strings.

func formatUint64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseStoredUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stored unsigned value %q: %w", s, err)
	}
	return v, nil
}

func formatOptionalUint64(v *uint64) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatUint64(*v), Valid: true}
}

func parseOptionalUint64(s sql.NullString) (*uint64, error) {
	if !s.Valid {
		return nil, nil
	}
	v, err := parseStoredUint64(s.String)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func marshalDedupKeys(keys []uint64) (sql.NullString, error) {
	if len(keys) == 0 {
		return sql.NullString{}, nil
	}
	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = formatUint64(k)
	}
	out, err := json.Marshal(strs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal dedup keys: %w", err)
	}
	return sql.NullString{String: string(out), Valid: true}, nil
}

func unmarshalDedupKeys(raw sql.NullString) ([]uint64, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(raw.String), &strs); err != nil {
		return nil, fmt.Errorf("unmarshal dedup keys: %w", err)
	}
	keys := make([]uint64, len(strs))
	for i, s := range strs {
		k, err := parseStoredUint64(s)
		if err != nil {
			return nil, fmt.Errorf("unmarshal dedup keys: %w", err)
		}
		keys[i] = k
	}
	return keys, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringOrEmpty(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64OrNil(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
