// Package queue defines the flight change event and the background consumer
// that records those events on disk.
package queue

import "time"

// FlightChangedEvent is published after a compound change to a flight has
// been written and audited. It carries enough for downstream consumers to
// log or notify without querying the store.
type FlightChangedEvent struct {
	EventID        string  `json:"event_id"`
	FlightID       int64   `json:"flight_id"`
	LogID          int64   `json:"log_id"`
	Action         string  `json:"action"` // replace, patch or register
	ChangedBy      string  `json:"changed_by"`
	Summary        string  `json:"summary"`
	FlightNumber   string  `json:"flight_number,omitempty"`
	Status         *string `json:"status,omitempty"`
	SeatsAvailable *int64  `json:"seats_available,omitempty"`
	OccurredAt     string  `json:"occurred_at"` // RFC 3339, UTC
}

// Stamp formats t the way OccurredAt expects.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
