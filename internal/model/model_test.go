package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventTriggers_Order(t *testing.T) {
	trigger := Trigger{
		EventTriggers: `[
			{"trigger_data": "2", "priority": 5, "deduplication_key": "11",
			 "filters": [{"product": ["1234"]}]},
			{"trigger_data": "3", "priority": 1}
		]`,
	}

	ets, err := trigger.ParseEventTriggers()
	require.NoError(t, err)
	require.Len(t, ets, 2)

	assert.Equal(t, uint64(2), ets[0].Data)
	assert.Equal(t, int64(5), ets[0].Priority)
	require.NotNil(t, ets[0].DedupKey)
	assert.Equal(t, uint64(11), *ets[0].DedupKey)
	require.Len(t, ets[0].Filters, 1)

	assert.Equal(t, uint64(3), ets[1].Data)
	assert.Nil(t, ets[1].DedupKey)
	assert.Empty(t, ets[1].Filters)
}

func TestParseEventTriggers_Malformed(t *testing.T) {
	trigger := Trigger{EventTriggers: `[{"trigger_data": "not-a-number"}]`}
	_, err := trigger.ParseEventTriggers()
	assert.Error(t, err)
}

func TestParseEventTriggers_Empty(t *testing.T) {
	ets, err := Trigger{}.ParseEventTriggers()
	require.NoError(t, err)
	assert.Empty(t, ets)
}

func TestSource_DedupKeyHelpers(t *testing.T) {
	s := Source{EventDedupKeys: []uint64{1, 2}}

	with := s.WithEventDedupKey(3)
	assert.Equal(t, []uint64{1, 2}, s.EventDedupKeys, "original untouched")
	assert.Equal(t, []uint64{1, 2, 3}, with.EventDedupKeys)
	assert.True(t, with.HasEventDedupKey(3))

	without := with.WithoutEventDedupKey(2)
	assert.Equal(t, []uint64{1, 3}, without.EventDedupKeys)
	assert.False(t, without.HasEventDedupKey(2))
}

func TestSource_IsDerived(t *testing.T) {
	parent := "src-1"
	assert.False(t, Source{}.IsDerived())
	assert.True(t, Source{ParentID: &parent}.IsDerived())
}

func TestContribution_JSONRoundTrip(t *testing.T) {
	key, err := ParseBucketKey("0x559")
	require.NoError(t, err)

	data, err := json.Marshal(Contribution{Key: key, Value: 1664})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key": "0x559", "value": 1664}`, string(data))

	var back Contribution
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Zero(t, back.Key.Cmp(key))
	assert.Equal(t, int64(1664), back.Value)
}

func TestParseBucketKey_Invalid(t *testing.T) {
	// Missing prefix, non-hex digits, and a 132-bit value.
	for _, raw := range []string{"559", "0xzz", "0xffffffffffffffffffffffffffffffff0"} {
		_, err := ParseBucketKey(raw)
		assert.Error(t, err, raw)
	}
}

func TestBaseURI(t *testing.T) {
	got, err := BaseURI("android-app://com.example.shop/landing?x=1")
	require.NoError(t, err)
	assert.Equal(t, "android-app://com.example.shop", got)

	_, err = BaseURI("not a uri at all ://")
	assert.Error(t, err)
}

func TestTopPrivateDomain(t *testing.T) {
	got, err := TopPrivateDomain("https://shop.ads.example.co.uk/checkout", SurfaceWeb)
	require.NoError(t, err)
	assert.Equal(t, "https://example.co.uk", got)

	got, err = TopPrivateDomain("android-app://com.example.shop", SurfaceApp)
	require.NoError(t, err)
	assert.Equal(t, "android-app://com.example.shop", got)
}
