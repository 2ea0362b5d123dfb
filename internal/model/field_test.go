package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlightFieldsDistinguishAbsentNullAndValue(t *testing.T) {
	t.Parallel()

	var f FlightFields
	err := json.Unmarshal([]byte(`{"status": null, "seats_available": 95, "departure_time": "2026-10-15T08:30:00Z"}`), &f)
	require.NoError(t, err)

	require.False(t, f.Origin.Set)
	require.True(t, f.Status.Set)
	require.True(t, f.Status.Null)
	require.True(t, f.SeatsAvailable.Has())
	require.Equal(t, int64(95), f.SeatsAvailable.Value)
	require.Equal(t, time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC), f.DepartureTime.Value)

	require.Equal(t, []FieldValue{
		{Column: "departure_time", Value: time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)},
		{Column: "seats_available", Value: int64(95)},
		{Column: "status"},
	}, f.Provided())
	require.False(t, f.Empty())
	require.True(t, FlightFields{}.Empty())
}

func TestFieldRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	var f FlightFields
	require.Error(t, json.Unmarshal([]byte(`{"seats_total": "many"}`), &f))
	require.Error(t, json.Unmarshal([]byte(`{"arrival_time": 12}`), &f))
	require.Error(t, json.Unmarshal([]byte(`{"arrival_time": "tomorrow"}`), &f))
}

func TestFieldHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "x", *Some("x").Ptr())
	require.Nil(t, Nil[string]().Ptr())
	require.Nil(t, Field[string]{}.Ptr())

	b, err := json.Marshal(struct {
		A Field[int64] `json:"a"`
		B Field[int64] `json:"b"`
	}{A: Some[int64](3), B: Nil[int64]()})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":3,"b":null}`, string(b))
}

func TestParseTimestampLayouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-10-15T08:30:00Z",
		"2026-10-15T10:30:00+02:00",
		"2026-10-15T08:30:00",
		"2026-10-15 08:30:00",
		"2026-10-15 08:30:00+00:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), in)
		require.Equal(t, time.UTC, got.Location(), in)
	}
	require.Equal(t, "2026-10-15 08:30:00", FormatDBTime(want.In(time.FixedZone("x", 3600))))
}
