package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/flights-api/internal/database"
	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/query"
)

// FlightLogRepo appends and reads change log entries. Entries are never
// updated; they disappear only when their flight is deleted.
type FlightLogRepo struct {
	store
}

// NewFlightLogRepo constructs a FlightLogRepo. log and m may be nil.
func NewFlightLogRepo(gw *database.Gateway, log logger.Logger, m *metrics.Metrics) *FlightLogRepo {
	return &FlightLogRepo{store: newStore(gw, log, m)}
}

// Record stores one change log entry for flightID and returns its id. A nil
// snapshot is stored as NULL rather than an empty object.
func (r *FlightLogRepo) Record(ctx context.Context, flightID int64, changedBy, summary string, before, after *model.Flight) (id int64, err error) {
	defer r.observe("record_log", time.Now(), &err)

	oldData, err := snapshot(before)
	if err != nil {
		return 0, r.fail("record_log", query.Statement{}, err)
	}
	newData, err := snapshot(after)
	if err != nil {
		return 0, r.fail("record_log", query.Statement{}, err)
	}

	st, err := flightLogsTable.Insert(
		query.Set(colLogFlight, flightID),
		query.Set(flightLogsTable.MustColumn("changed_by"), changedBy),
		query.Set(flightLogsTable.MustColumn("change_summary"), summary),
		query.Set(flightLogsTable.MustColumn("old_data"), oldData),
		query.Set(flightLogsTable.MustColumn("new_data"), newData),
	).Build(r.gw.Dialect())
	if err != nil {
		return 0, r.fail("record_log", st, err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return 0, r.fail("record_log", st, err)
	}
	defer h.Release()

	res, err := h.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, r.fail("record_log", st, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, r.fail("record_log", st, err)
	}
	r.metrics.AuditWritten()
	return id, nil
}

// snapshot serializes a flight; nil becomes SQL NULL.
func snapshot(f *model.Flight) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ListByFlight returns up to limit entries for a flight, newest first.
func (r *FlightLogRepo) ListByFlight(ctx context.Context, flightID int64, limit int) (out []model.FlightLog, err error) {
	defer r.observe("list_logs", time.Now(), &err)

	if limit < 1 {
		return nil, invalid("limit must be >= 1")
	}
	st, err := flightLogsTable.Select().
		Where(colLogFlight, flightID).
		OrderBy(colLogID, query.Desc).
		Page(limit, 0).
		Build()
	if err != nil {
		return nil, r.fail("list_logs", st, err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return nil, r.fail("list_logs", st, err)
	}
	defer h.Release()

	rows, err := h.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, r.fail("list_logs", st, err)
	}
	defer rows.Close()

	out = []model.FlightLog{}
	for rows.Next() {
		var (
			e                model.FlightLog
			changedAt        nullTime
			by, summary      sql.NullString
			oldData, newData sql.NullString
			logFlight        sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &logFlight, &changedAt, &by, &summary, &oldData, &newData); err != nil {
			return nil, r.fail("list_logs", st, err)
		}
		e.FlightID = logFlight.Int64
		e.ChangedAt = changedAt.Time
		e.ChangedBy = by.String
		e.ChangeSummary = summary.String
		if oldData.Valid {
			e.OldData = json.RawMessage(oldData.String)
		}
		if newData.Valid {
			e.NewData = json.RawMessage(newData.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail("list_logs", st, err)
	}
	return out, nil
}
