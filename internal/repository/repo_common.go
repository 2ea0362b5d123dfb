package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/flights-api/internal/database"
	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/query"
)

// flightsTable is the column allow-list for sorting, projection and writes.
var flightsTable = query.NewTable("flights",
	query.Def{Name: "flight_id", Kind: query.KindInt},
	query.Def{Name: "flight_number", Kind: query.KindText},
	query.Def{Name: "origin", Kind: query.KindText},
	query.Def{Name: "destination", Kind: query.KindText},
	query.Def{Name: "departure_time", Kind: query.KindTime},
	query.Def{Name: "arrival_time", Kind: query.KindTime},
	query.Def{Name: "duration_minutes", Kind: query.KindInt},
	query.Def{Name: "aircraft_type", Kind: query.KindText},
	query.Def{Name: "seats_total", Kind: query.KindInt},
	query.Def{Name: "seats_available", Kind: query.KindInt},
	query.Def{Name: "status", Kind: query.KindText},
	query.Def{Name: "created_at", Kind: query.KindTime},
	query.Def{Name: "updated_at", Kind: query.KindTime},
	query.Def{Name: "process_id", Kind: query.KindText},
)

var flightLogsTable = query.NewTable("flight_logs",
	query.Def{Name: "id", Kind: query.KindInt},
	query.Def{Name: "flight_id", Kind: query.KindInt},
	query.Def{Name: "changed_at", Kind: query.KindTime},
	query.Def{Name: "changed_by", Kind: query.KindText},
	query.Def{Name: "change_summary", Kind: query.KindText},
	query.Def{Name: "old_data", Kind: query.KindText},
	query.Def{Name: "new_data", Kind: query.KindText},
)

var (
	colFlightID  = flightsTable.MustColumn("flight_id")
	colUpdatedAt = flightsTable.MustColumn("updated_at")
	colLogID     = flightLogsTable.MustColumn("id")
	colLogFlight = flightLogsTable.MustColumn("flight_id")
)

// filterColumns is the narrower set usable as equality filters. Other
// filter keys are dropped without error.
var filterColumns = []query.Column{
	flightsTable.MustColumn("origin"),
	flightsTable.MustColumn("destination"),
	flightsTable.MustColumn("status"),
	flightsTable.MustColumn("flight_number"),
}

// AllowedColumns returns the column names accepted for sort_by and fields.
func AllowedColumns() []string {
	cols := flightsTable.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name()
	}
	return out
}

// store is embedded by every repository: gateway access, error logging and
// metrics in one place.
type store struct {
	gw      *database.Gateway
	log     logger.Logger
	metrics *metrics.Metrics
}

func newStore(gw *database.Gateway, log logger.Logger, m *metrics.Metrics) store {
	if log == nil {
		log = logger.NewNop()
	}
	return store{gw: gw, log: log, metrics: m}
}

// fail logs a store failure with the attempted statement and wraps it.
func (s *store) fail(op string, st query.Statement, err error) error {
	s.log.Error("store operation failed",
		"op", op,
		"statement", st.SQL,
		"args", st.Args,
		"error", err,
	)
	return &DataError{Op: op, Statement: st.SQL, Args: st.Args, Err: err}
}

// observe records the outcome of an operation; use with defer and a named
// error result.
func (s *store) observe(op string, started time.Time, err *error) {
	outcome := "ok"
	switch e := *err; {
	case e == nil:
	case errors.Is(e, ErrFlightNotFound):
		outcome = "not_found"
	case IsValidation(e):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.ObserveStore(op, outcome, started)
}

// bindValue converts a Go value into what both drivers accept for column c.
func bindValue(c query.Column, v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok && c.Kind() == query.KindTime {
		return model.FormatDBTime(t)
	}
	return v
}

func assignments(fields model.FlightFields) []query.Assignment {
	provided := fields.Provided()
	out := make([]query.Assignment, 0, len(provided))
	for _, fv := range provided {
		c := flightsTable.MustColumn(fv.Column)
		out = append(out, query.Set(c, bindValue(c, fv.Value)))
	}
	return out
}

// nullTime scans DATETIME values from either driver: MySQL returns
// time.Time with parseTime=true, SQLite may return text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp type %T", value)
}

func (n *nullTime) parse(s string) error {
	t, err := model.ParseTimestamp(s)
	if err != nil {
		return err
	}
	n.Time, n.Valid = t, true
	return nil
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// normalize converts a raw driver value for column c into int64, string,
// time.Time or nil so list rows have the same shape on every store.
func normalize(c query.Column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch c.Kind() {
	case query.KindInt:
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case uint64:
			return int64(n)
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case query.KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case string:
			if parsed, err := model.ParseTimestamp(t); err == nil {
				return parsed
			}
		}
	case query.KindText:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}
