package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/iliyamo/flights-api/internal/database"
	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/query"
)

// ListQuery carries the list parameters exactly as the caller supplied them.
// Every identifier is validated by List before a statement is built.
type ListQuery struct {
	Page      int               // 1-based page number
	Size      int               // rows per page
	Filters   map[string]string // equality filters; unknown keys are ignored
	SortBy    string            // column name, defaults to flight_id
	SortOrder string            // asc or desc, any case; defaults to asc
	Fields    string            // comma separated projection; empty selects every column
}

// Row is one list result keyed by column name.
type Row map[string]any

// FlightRepo builds and runs the SQL for flights.
type FlightRepo struct {
	store
}

// NewFlightRepo constructs a FlightRepo. log and m may be nil.
func NewFlightRepo(gw *database.Gateway, log logger.Logger, m *metrics.Metrics) *FlightRepo {
	return &FlightRepo{store: newStore(gw, log, m)}
}

// Create inserts only the supplied fields and returns the row as stored, so
// server defaults (id, created_at, updated_at) are reflected.
func (r *FlightRepo) Create(ctx context.Context, fields model.FlightFields) (f *model.Flight, err error) {
	defer r.observe("create", time.Now(), &err)

	assigns := assignments(fields)
	if len(assigns) == 0 {
		return nil, invalid("no fields to insert")
	}
	if err := checkRequired(fields); err != nil {
		return nil, err
	}
	st, err := flightsTable.Insert(assigns...).Build(r.gw.Dialect())
	if err != nil {
		return nil, invalid("%v", err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return nil, r.fail("create", st, err)
	}
	defer h.Release()

	res, err := h.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, r.fail("create", st, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, r.fail("create", st, err)
	}

	f, err = r.getWith(ctx, h, id)
	if errors.Is(err, ErrFlightNotFound) {
		// the row vanished between insert and re-read
		return nil, r.fail("create", st, err)
	}
	return f, err
}

// Get returns the flight or ErrFlightNotFound.
func (r *FlightRepo) Get(ctx context.Context, id int64) (f *model.Flight, err error) {
	defer r.observe("get", time.Now(), &err)

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return nil, r.fail("get", query.Statement{}, err)
	}
	defer h.Release()
	return r.getWith(ctx, h, id)
}

func (r *FlightRepo) getWith(ctx context.Context, h *database.Handle, id int64) (*model.Flight, error) {
	st, err := flightsTable.Select().Where(colFlightID, id).Build()
	if err != nil {
		return nil, r.fail("get", st, err)
	}
	f, err := scanFlight(h.QueryRowContext(ctx, st.SQL, st.Args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlightNotFound
		}
		return nil, r.fail("get", st, err)
	}
	return f, nil
}

// Update writes the supplied fields, always refreshes updated_at on the
// server and returns the row as stored afterwards. A flight that does not
// exist yields ErrFlightNotFound.
func (r *FlightRepo) Update(ctx context.Context, id int64, fields model.FlightFields) (f *model.Flight, err error) {
	defer r.observe("update", time.Now(), &err)

	assigns := assignments(fields)
	if len(assigns) == 0 {
		return nil, invalid("no fields to update")
	}
	if err := checkRequired(fields); err != nil {
		return nil, err
	}
	st, err := flightsTable.Update(assigns...).Touch(colUpdatedAt).Where(colFlightID, id).Build()
	if err != nil {
		return nil, invalid("%v", err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return nil, r.fail("update", st, err)
	}
	defer h.Release()

	if _, err := h.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return nil, r.fail("update", st, err)
	}
	// MySQL reports only changed rows as affected, so existence is decided
	// by the re-read rather than RowsAffected.
	return r.getWith(ctx, h, id)
}

// Delete removes the flight; its change log rows go with it through the
// cascading foreign key. It reports whether a row was removed.
func (r *FlightRepo) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	defer r.observe("delete", time.Now(), &err)

	st, err := flightsTable.Delete().Where(colFlightID, id).Build()
	if err != nil {
		return false, r.fail("delete", st, err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return false, r.fail("delete", st, err)
	}
	defer h.Release()

	res, err := h.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return false, r.fail("delete", st, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail("delete", st, err)
	}
	return n > 0, nil
}

// List validates projection, sort and paging, applies the allowed filters
// and returns one page of rows together with the total number of rows that
// match the filters. Invalid input is rejected before a connection is taken.
func (r *FlightRepo) List(ctx context.Context, q ListQuery) (rows []Row, total int64, err error) {
	defer r.observe("list", time.Now(), &err)

	sel, err := buildListSelect(q)
	if err != nil {
		return nil, 0, err
	}
	countSt, err := sel.Count()
	if err != nil {
		return nil, 0, r.fail("list", countSt, err)
	}
	pageSt, err := sel.Build()
	if err != nil {
		return nil, 0, r.fail("list", pageSt, err)
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return nil, 0, r.fail("list", countSt, err)
	}
	defer h.Release()

	r.log.Debug("list flights", "count_sql", countSt.SQL, "sql", pageSt.SQL, "args", pageSt.Args)

	if err := h.QueryRowContext(ctx, countSt.SQL, countSt.Args...).Scan(&total); err != nil {
		return nil, 0, r.fail("list", countSt, err)
	}

	res, err := h.QueryContext(ctx, pageSt.SQL, pageSt.Args...)
	if err != nil {
		return nil, 0, r.fail("list", pageSt, err)
	}
	defer res.Close()

	cols := sel.Projection()
	rows = make([]Row, 0, min(q.Size, 256))
	for res.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := res.Scan(dest...); err != nil {
			return nil, 0, r.fail("list", pageSt, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c.Name()] = normalize(c, raw[i])
		}
		rows = append(rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, 0, r.fail("list", pageSt, err)
	}
	return rows, total, nil
}

// checkRequired rejects explicit nulls for NOT NULL columns.
func checkRequired(fields model.FlightFields) error {
	if nulled := fields.NulledRequired(); len(nulled) > 0 {
		return invalid("%s cannot be null", strings.Join(nulled, ", "))
	}
	return nil
}

// buildListSelect performs every check on caller supplied identifiers.
func buildListSelect(q ListQuery) (*query.SelectBuilder, error) {
	cols, err := flightsTable.ParseFieldList(q.Fields)
	if err != nil {
		return nil, invalid("%v", err)
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = colFlightID.Name()
	}
	sortCol, ok := flightsTable.Column(sortBy)
	if !ok {
		return nil, invalid("invalid sort column: %s", sortBy)
	}
	order := q.SortOrder
	if strings.TrimSpace(order) == "" {
		order = "asc"
	}
	dir, err := query.ParseDirection(order)
	if err != nil {
		return nil, invalid("invalid sort order: %s", q.SortOrder)
	}

	if q.Page < 1 {
		return nil, invalid("page must be >= 1")
	}
	if q.Size < 1 {
		return nil, invalid("size must be >= 1")
	}
	if q.Page > math.MaxInt/q.Size {
		return nil, invalid("page out of range")
	}

	sel := flightsTable.Select(cols...)
	for _, c := range filterColumns {
		if v, ok := q.Filters[c.Name()]; ok {
			sel.Where(c, v)
		}
	}
	offset := (q.Page - 1) * q.Size
	sel.OrderBy(sortCol, dir).Page(q.Size, offset)
	return sel, nil
}

// Count returns the number of stored flights.
func (r *FlightRepo) Count(ctx context.Context) (n int64, err error) {
	defer r.observe("count", time.Now(), &err)

	st, err := flightsTable.Select().Count()
	if err != nil {
		return 0, r.fail("count", st, err)
	}
	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return 0, r.fail("count", st, err)
	}
	defer h.Release()
	if err := h.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, r.fail("count", st, err)
	}
	return n, nil
}

// scanFlight reads a full row in flightsTable column order.
func scanFlight(row interface{ Scan(...any) error }) (*model.Flight, error) {
	var (
		f                           model.Flight
		departure, arrival          nullTime
		created, updated            nullTime
		duration, total, available  sql.NullInt64
		aircraft, status, processID sql.NullString
	)
	if err := row.Scan(
		&f.ID,
		&f.FlightNumber,
		&f.Origin,
		&f.Destination,
		&departure,
		&arrival,
		&duration,
		&aircraft,
		&total,
		&available,
		&status,
		&created,
		&updated,
		&processID,
	); err != nil {
		return nil, err
	}
	f.DepartureTime = departure.ptr()
	f.ArrivalTime = arrival.ptr()
	f.DurationMinutes = int64Ptr(duration)
	f.AircraftType = stringPtr(aircraft)
	f.SeatsTotal = int64Ptr(total)
	f.SeatsAvailable = int64Ptr(available)
	f.Status = stringPtr(status)
	f.ProcessID = stringPtr(processID)
	f.CreatedAt = created.Time
	f.UpdatedAt = updated.Time
	return &f, nil
}
