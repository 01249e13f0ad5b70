package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMap_Empty(t *testing.T) {
	m, err := ParseMap("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestParseMap_Malformed(t *testing.T) {
	_, err := ParseMap(`{"product": "not-a-list"}`)
	assert.Error(t, err)
}

func TestParseSet_Malformed(t *testing.T) {
	_, err := ParseSet(`{"not": "an array"}`)
	assert.Error(t, err)
}

func TestParseMap_NormalizesUnicode(t *testing.T) {
	// "é" as combining sequence (U+0065 U+0301) vs precomposed (U+00E9).
	m, err := ParseMap(`{"catégory": ["café"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"café"}, m["catégory"])
}

// TestMatch_KeyPresenceMatrix pins the semantics for keys present on only
// one side: such keys never constrain the match, in either mode.
func TestMatch_KeyPresenceMatrix(t *testing.T) {
	tests := []struct {
		name     string
		source   Map
		set      Set
		positive bool
		want     bool
	}{
		{"empty set matches", Map{"k": {"v"}}, Set{}, true, true},
		{"empty source matches", Map{}, Set{{"k": {"v"}}}, true, true},
		{"empty set matches negated", Map{"k": {"v"}}, Set{}, false, true},
		{"empty source matches negated", Map{}, Set{{"k": {"v"}}}, false, true},
		{
			"trigger-only key passes",
			Map{"product": {"1234"}},
			Set{{"geo": {"US"}}},
			true, true,
		},
		{
			"trigger-only key passes negated",
			Map{"product": {"1234"}},
			Set{{"geo": {"US"}}},
			false, true,
		},
		{
			"source-only key passes",
			Map{"product": {"1234"}, "geo": {"US"}},
			Set{{"product": {"1234"}}},
			true, true,
		},
		{
			"common key intersecting",
			Map{"product": {"1234", "234"}},
			Set{{"product": {"234"}}},
			true, true,
		},
		{
			"common key disjoint",
			Map{"product": {"1234"}},
			Set{{"product": {"9999"}}},
			true, false,
		},
		{
			"negated common key intersecting fails",
			Map{"product": {"1234"}},
			Set{{"product": {"1234"}}},
			false, false,
		},
		{
			"negated common key disjoint passes",
			Map{"product": {"1234"}},
			Set{{"product": {"9999"}}},
			false, true,
		},
		{
			"AND across keys: one key fails",
			Map{"product": {"1234"}, "geo": {"US"}},
			Set{{"product": {"1234"}, "geo": {"DE"}}},
			true, false,
		},
		{
			"OR across maps: second map matches",
			Map{"product": {"1234"}},
			Set{{"product": {"9999"}}, {"product": {"1234"}}},
			true, true,
		},
		{
			"empty value list never intersects",
			Map{"product": {}},
			Set{{"product": {"1234"}}},
			true, false,
		},
		{
			"empty value list passes negated",
			Map{"product": {}},
			Set{{"product": {"1234"}}},
			false, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.source, tt.set, tt.positive)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Deterministic(t *testing.T) {
	source := Map{"a": {"1"}, "b": {"2"}, "c": {"3"}}
	set := Set{{"a": {"1"}, "b": {"2"}}, {"c": {"9"}}}
	first := Match(source, set, true)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Match(source, set, true))
	}
}
