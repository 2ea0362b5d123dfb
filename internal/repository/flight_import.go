package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/query"
)

// Import insert-or-replaces raw records, keyed by flight_id when present.
// Every key must be an allow-listed column; all records are validated before
// a connection is taken. It returns the number of records written.
func (r *FlightRepo) Import(ctx context.Context, records []map[string]any) (n int, err error) {
	defer r.observe("import", time.Now(), &err)

	stmts := make([]query.Statement, 0, len(records))
	for i, rec := range records {
		st, err := importStatement(rec, r.gw.Dialect())
		if err != nil {
			return 0, invalid("record %d: %v", i, err)
		}
		stmts = append(stmts, st)
	}
	if len(stmts) == 0 {
		return 0, nil
	}

	h, err := r.gw.Acquire(ctx)
	if err != nil {
		return 0, r.fail("import", stmts[0], err)
	}
	defer h.Release()

	for _, st := range stmts {
		if _, err := h.ExecContext(ctx, st.SQL, st.Args...); err != nil {
			return n, r.fail("import", st, err)
		}
		n++
	}
	return n, nil
}

func importStatement(rec map[string]any, d query.Dialect) (query.Statement, error) {
	for k := range rec {
		if _, ok := flightsTable.Column(k); !ok {
			return query.Statement{}, fmt.Errorf("invalid field name: %s", k)
		}
	}
	var assigns []query.Assignment
	for _, c := range flightsTable.Columns() {
		v, ok := rec[c.Name()]
		if !ok {
			continue
		}
		bound, err := importValue(c, v)
		if err != nil {
			return query.Statement{}, fmt.Errorf("%s: %w", c.Name(), err)
		}
		assigns = append(assigns, query.Set(c, bound))
	}
	return flightsTable.Insert(assigns...).OrReplace().Build(d)
}

// importValue converts a decoded JSON value to a bindable value for c.
func importValue(c query.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind() {
	case query.KindInt:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case query.KindTime:
		switch t := v.(type) {
		case string:
			parsed, err := model.ParseTimestamp(t)
			if err != nil {
				return nil, err
			}
			return model.FormatDBTime(parsed), nil
		case time.Time:
			return model.FormatDBTime(t), nil
		}
	case query.KindText:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, json.Number, int, int64:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}
