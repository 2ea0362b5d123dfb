// Package service orchestrates the flight repository and the change log.
// It holds no state of its own beyond its collaborators.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/queue"
	"github.com/iliyamo/flights-api/internal/repository"
)

// DefaultActor is recorded as changed_by when a caller does not name one.
const DefaultActor = "system"

const publishTimeout = 3 * time.Second

// FlightStore is the flight repository as seen by the service.
type FlightStore interface {
	Create(ctx context.Context, fields model.FlightFields) (*model.Flight, error)
	Get(ctx context.Context, id int64) (*model.Flight, error)
	Update(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, q repository.ListQuery) ([]repository.Row, int64, error)
}

// ChangeLog records and reads audit entries.
type ChangeLog interface {
	Record(ctx context.Context, flightID int64, changedBy, summary string, before, after *model.Flight) (int64, error)
	ListByFlight(ctx context.Context, flightID int64, limit int) ([]model.FlightLog, error)
}

// Publisher delivers flight change events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev queue.FlightChangedEvent) error
}

// RegisterRequest describes an operational action on a flight.
type RegisterRequest struct {
	ChangedBy  string
	NewStatus  *string
	SeatsDelta *int64
	Note       string
}

// FlightService exposes CRUD plus the audited compound operations.
type FlightService struct {
	flights FlightStore
	logs    ChangeLog
	pub     Publisher
	log     logger.Logger
	now     func() time.Time
}

// NewFlightService wires the service. pub may be nil, in which case no
// events are published.
func NewFlightService(flights FlightStore, logs ChangeLog, pub Publisher, log logger.Logger) *FlightService {
	if log == nil {
		log = logger.NewNop()
	}
	return &FlightService{flights: flights, logs: logs, pub: pub, log: log, now: time.Now}
}

func (s *FlightService) Create(ctx context.Context, fields model.FlightFields) (*model.Flight, error) {
	return s.flights.Create(ctx, fields)
}

func (s *FlightService) Get(ctx context.Context, id int64) (*model.Flight, error) {
	return s.flights.Get(ctx, id)
}

func (s *FlightService) Update(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error) {
	return s.flights.Update(ctx, id, fields)
}

func (s *FlightService) Delete(ctx context.Context, id int64) (bool, error) {
	return s.flights.Delete(ctx, id)
}

func (s *FlightService) List(ctx context.Context, q repository.ListQuery) ([]repository.Row, int64, error) {
	return s.flights.List(ctx, q)
}

// Logs returns the newest change log entries of an existing flight.
func (s *FlightService) Logs(ctx context.Context, id int64, limit int) ([]model.FlightLog, error) {
	if _, err := s.flights.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.ListByFlight(ctx, id, limit)
}

// Replace overwrites a flight's business fields. flight_number, origin and
// destination must carry values.
func (s *FlightService) Replace(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error) {
	var missing []string
	for _, req := range []struct {
		name  string
		field model.Field[string]
	}{
		{"flight_number", fields.FlightNumber},
		{"origin", fields.Origin},
		{"destination", fields.Destination},
	} {
		if !req.field.Has() {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, &repository.ValidationError{Msg: "replace requires " + strings.Join(missing, ", ")}
	}
	return s.audited(ctx, id, "replace", DefaultActor, func(*model.Flight) (model.FlightFields, string, error) {
		return fields, "replace", nil
	})
}

// Patch writes only the supplied fields of a flight.
func (s *FlightService) Patch(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error) {
	if nulled := fields.NulledRequired(); len(nulled) > 0 {
		return nil, &repository.ValidationError{Msg: strings.Join(nulled, ", ") + " cannot be null"}
	}
	return s.audited(ctx, id, "patch", DefaultActor, func(*model.Flight) (model.FlightFields, string, error) {
		return fields, "patch", nil
	})
}

// RegisterAction sets the status and/or shifts seats_available by a signed
// delta. An empty status counts as not supplied. The resulting seat count is
// not clamped.
func (s *FlightService) RegisterAction(ctx context.Context, id int64, req RegisterRequest) (*model.Flight, error) {
	actor := strings.TrimSpace(req.ChangedBy)
	if actor == "" {
		actor = DefaultActor
	}
	return s.audited(ctx, id, "register", actor, func(existing *model.Flight) (model.FlightFields, string, error) {
		var (
			fields model.FlightFields
			parts  []string
		)
		if req.NewStatus != nil && *req.NewStatus != "" {
			fields.Status = model.Some(*req.NewStatus)
			parts = append(parts, "status -> "+*req.NewStatus)
		}
		if req.SeatsDelta != nil {
			var current int64
			if existing.SeatsAvailable != nil {
				current = *existing.SeatsAvailable
			}
			seats := current + *req.SeatsDelta
			fields.SeatsAvailable = model.Some(seats)
			parts = append(parts, "seats_available -> "+strconv.FormatInt(seats, 10))
		}
		if len(parts) == 0 {
			return fields, "", &repository.ValidationError{Msg: "nothing to update in register"}
		}
		summary := "register: " + strings.Join(parts, "; ")
		if note := strings.TrimSpace(req.Note); note != "" {
			summary += " | note: " + note
		}
		return fields, summary, nil
	})
}

// audited runs fetch, update and record for one compound operation. The
// update and the log write are separate commits: a failed log write is
// returned to the caller but the update stays.
func (s *FlightService) audited(
	ctx context.Context,
	id int64,
	action, actor string,
	derive func(existing *model.Flight) (model.FlightFields, string, error),
) (*model.Flight, error) {
	existing, err := s.flights.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, summary, err := derive(existing)
	if err != nil {
		return nil, err
	}
	updated, err := s.flights.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	logID, err := s.logs.Record(ctx, id, actor, summary, existing, updated)
	if err != nil {
		s.log.Error("change log write failed after update", "flight_id", id, "action", action, "error", err)
		return nil, fmt.Errorf("record %s: %w", action, err)
	}
	s.publish(ctx, action, actor, summary, logID, updated)
	return updated, nil
}

func (s *FlightService) publish(ctx context.Context, action, actor, summary string, logID int64, f *model.Flight) {
	if s.pub == nil {
		return
	}
	ev := queue.FlightChangedEvent{
		EventID:        uuid.NewString(),
		FlightID:       f.ID,
		LogID:          logID,
		Action:         action,
		ChangedBy:      actor,
		Summary:        summary,
		FlightNumber:   f.FlightNumber,
		Status:         f.Status,
		SeatsAvailable: f.SeatsAvailable,
		OccurredAt:     queue.Stamp(s.now()),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, ev); err != nil {
		s.log.Warn("publish flight change failed", "flight_id", f.ID, "event_id", ev.EventID, "error", err)
	}
}
