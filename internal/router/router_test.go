package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flights-api/internal/database"
	"github.com/iliyamo/flights-api/internal/handler"
	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/repository"
	"github.com/iliyamo/flights-api/internal/service"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	ctx := context.Background()
	gw, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "api.db"), 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, gw.InitSchema(ctx))
	t.Cleanup(func() { _ = gw.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New("flights", reg)
	svc := service.NewFlightService(
		repository.NewFlightRepo(gw, nil, m),
		repository.NewFlightLogRepo(gw, nil, m),
		nil, nil,
	)
	return New(Deps{
		Flights:  handler.NewFlightHandler(svc, nil),
		Store:    gw,
		Gatherer: reg,
	})
}

func do(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateGetScenario(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec := do(t, e, http.MethodPost, "/v1/flights",
		`{"flight_number":"TST100","origin":"AAA","destination":"BBB","seats_total":100,"seats_available":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Flight](t, rec)
	require.Equal(t, "AAA", created.Origin)
	require.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(t, e, http.MethodGet, fmt.Sprintf("/v1/flights/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "AAA", decode[model.Flight](t, rec).Origin)
}

func TestRegisterAndLogs(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec := do(t, e, http.MethodPost, "/v1/flights",
		`{"flight_number":"TST200","origin":"AAA","destination":"BBB","seats_total":100,"seats_available":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[model.Flight](t, rec).ID
	base := fmt.Sprintf("/v1/flights/%d", id)

	rec = do(t, e, http.MethodPost, base+"/register", `{"changed_by":"gate","seats_available_delta":-5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, int64(95), *decode[model.Flight](t, rec).SeatsAvailable)

	rec = do(t, e, http.MethodPost, base+"/register", `{"changed_by":"gate"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodGet, base+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[struct {
		Items []model.FlightLog `json:"items"`
	}](t, rec)
	require.Len(t, logs.Items, 1)
	require.Contains(t, logs.Items[0].ChangeSummary, "seats_available -> 95")
	require.Equal(t, "gate", logs.Items[0].ChangedBy)
}

func TestReplacePatchDelete(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec := do(t, e, http.MethodPatch, "/v1/flights/999", `{"status":"delayed"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/flights", `{"flight_number":"TST300","origin":"AAA","destination":"BBB"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := fmt.Sprintf("/v1/flights/%d", decode[model.Flight](t, rec).ID)

	rec = do(t, e, http.MethodPut, base, `{"flight_number":"TST301"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPut, base, `{"flight_number":"TST301","origin":"CCC","destination":"DDD","status":"scheduled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "CCC", decode[model.Flight](t, rec).Origin)

	rec = do(t, e, http.MethodPatch, base, `{"status":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, decode[model.Flight](t, rec).Status)

	rec = do(t, e, http.MethodPatch, base, `{"origin":null}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = do(t, e, http.MethodPut, base, `{"flight_number":"TST302","origin":null,"destination":"DDD"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = do(t, e, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	kept := decode[model.Flight](t, rec)
	require.Equal(t, "CCC", kept.Origin)
	require.Equal(t, "TST301", kept.FlightNumber)

	rec = do(t, e, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, e, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, e, http.MethodGet, base+"/logs", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	for i := 0; i < 7; i++ {
		origin := "AAA"
		if i%2 == 1 {
			origin = "BBB"
		}
		body := fmt.Sprintf(`{"flight_number":"L%02d","origin":%q,"destination":"ZZZ","seats_total":%d}`, i, origin, 10+i)
		require.Equal(t, http.StatusCreated, do(t, e, http.MethodPost, "/v1/flights", body).Code)
	}

	type page struct {
		Page  int              `json:"page"`
		Size  int              `json:"size"`
		Total int64            `json:"total"`
		Items []map[string]any `json:"items"`
	}

	rec := do(t, e, http.MethodGet, "/v1/flights/paginated?origin=AAA&size=3&page=2&sort_by=seats_total&sort_order=desc&fields=flight_number,seats_total", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[page](t, rec)
	require.Equal(t, int64(4), p.Total)
	require.Len(t, p.Items, 1)
	require.Equal(t, "L00", p.Items[0]["flight_number"])
	require.Len(t, p.Items[0], 2)

	rec = do(t, e, http.MethodGet, "/v1/flights?sort_by=password", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, e, http.MethodGet, "/v1/flights?fields=origin,secret", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, e, http.MethodGet, "/v1/flights?sort_order=up", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, e, http.MethodGet, "/v1/flights?page=4611686018427387904&size=20", "")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/v1/flights?origin=&destination=", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), decode[page](t, rec).Total)

	rec = do(t, e, http.MethodGet, "/v1/flights", "")
	p = decode[page](t, rec)
	require.Equal(t, 20, p.Size)
	require.Equal(t, int64(7), p.Total)
	require.Len(t, p.Items, 7)
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec := do(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	do(t, e, http.MethodGet, "/v1/flights/1", "")
	rec = do(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `flights_store_operations_total{operation="get",outcome="not_found"} 1`)
}
