// Package model holds the flight and change log shapes shared by the
// repository, service and HTTP layers.
package model

import (
	"encoding/json"
	"time"
)

// Flight is one row of the flights table. Identity and timestamps are always
// present; business fields other than number, origin and destination are
// optional and surface as null in JSON.
type Flight struct {
	ID              int64      `json:"flight_id"`
	FlightNumber    string     `json:"flight_number"`
	Origin          string     `json:"origin"`
	Destination     string     `json:"destination"`
	DepartureTime   *time.Time `json:"departure_time"`
	ArrivalTime     *time.Time `json:"arrival_time"`
	DurationMinutes *int64     `json:"duration_minutes"`
	AircraftType    *string    `json:"aircraft_type"`
	SeatsTotal      *int64     `json:"seats_total"`
	SeatsAvailable  *int64     `json:"seats_available"`
	Status          *string    `json:"status"`
	ProcessID       *string    `json:"process_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FlightFields is a set of business fields to write. Absent fields are left
// untouched by updates; explicit nulls clear the column.
type FlightFields struct {
	FlightNumber    Field[string]    `json:"flight_number"`
	Origin          Field[string]    `json:"origin"`
	Destination     Field[string]    `json:"destination"`
	DepartureTime   Field[time.Time] `json:"departure_time"`
	ArrivalTime     Field[time.Time] `json:"arrival_time"`
	DurationMinutes Field[int64]     `json:"duration_minutes"`
	AircraftType    Field[string]    `json:"aircraft_type"`
	SeatsTotal      Field[int64]     `json:"seats_total"`
	SeatsAvailable  Field[int64]     `json:"seats_available"`
	Status          Field[string]    `json:"status"`
	ProcessID       Field[string]    `json:"process_id"`
}

// FieldValue is one supplied field keyed by its column name. Value is nil for
// an explicit null.
type FieldValue struct {
	Column string
	Value  any
}

func appendField[T any](out []FieldValue, column string, f Field[T]) []FieldValue {
	if !f.Set {
		return out
	}
	if f.Null {
		return append(out, FieldValue{Column: column})
	}
	return append(out, FieldValue{Column: column, Value: f.Value})
}

// Provided lists the supplied fields in column order.
func (f FlightFields) Provided() []FieldValue {
	out := make([]FieldValue, 0, 11)
	out = appendField(out, "flight_number", f.FlightNumber)
	out = appendField(out, "origin", f.Origin)
	out = appendField(out, "destination", f.Destination)
	out = appendField(out, "departure_time", f.DepartureTime)
	out = appendField(out, "arrival_time", f.ArrivalTime)
	out = appendField(out, "duration_minutes", f.DurationMinutes)
	out = appendField(out, "aircraft_type", f.AircraftType)
	out = appendField(out, "seats_total", f.SeatsTotal)
	out = appendField(out, "seats_available", f.SeatsAvailable)
	out = appendField(out, "status", f.Status)
	out = appendField(out, "process_id", f.ProcessID)
	return out
}

// Empty reports whether no field was supplied.
func (f FlightFields) Empty() bool {
	return len(f.Provided()) == 0
}

// NulledRequired lists the NOT NULL columns that carry an explicit null.
func (f FlightFields) NulledRequired() []string {
	var out []string
	if f.FlightNumber.Set && f.FlightNumber.Null {
		out = append(out, "flight_number")
	}
	if f.Origin.Set && f.Origin.Null {
		out = append(out, "origin")
	}
	if f.Destination.Set && f.Destination.Null {
		out = append(out, "destination")
	}
	return out
}

// FlightLog is one append-only change log entry. Snapshots are the JSON the
// recorder stored; nil means no snapshot was recorded.
type FlightLog struct {
	ID            int64           `json:"id"`
	FlightID      int64           `json:"flight_id"`
	ChangedAt     time.Time       `json:"changed_at"`
	ChangedBy     string          `json:"changed_by"`
	ChangeSummary string          `json:"change_summary"`
	OldData       json.RawMessage `json:"old_data"`
	NewData       json.RawMessage `json:"new_data"`
}
