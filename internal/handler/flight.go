// Package handler exposes the flight API over HTTP. Errors map to status
// codes in one place: validation problems become 400, missing flights 404
// and store failures an opaque 500.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/model"
	"github.com/iliyamo/flights-api/internal/repository"
	"github.com/iliyamo/flights-api/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// reserved list parameters; every other query parameter is a filter candidate
var listParams = map[string]bool{
	"page": true, "size": true, "sort_by": true, "sort_order": true, "fields": true,
}

// Flights is the service surface the handlers call.
type Flights interface {
	Create(ctx context.Context, fields model.FlightFields) (*model.Flight, error)
	Get(ctx context.Context, id int64) (*model.Flight, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, q repository.ListQuery) ([]repository.Row, int64, error)
	Replace(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error)
	Patch(ctx context.Context, id int64, fields model.FlightFields) (*model.Flight, error)
	RegisterAction(ctx context.Context, id int64, req service.RegisterRequest) (*model.Flight, error)
	Logs(ctx context.Context, id int64, limit int) ([]model.FlightLog, error)
}

// FlightHandler serves /v1/flights.
type FlightHandler struct {
	svc Flights
	log logger.Logger
}

// NewFlightHandler panics on a nil service.
func NewFlightHandler(svc Flights, log logger.Logger) *FlightHandler {
	if svc == nil {
		panic("nil service passed to NewFlightHandler")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FlightHandler{svc: svc, log: log}
}

// ListResponse is one page of flights.
type ListResponse struct {
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Total int64            `json:"total"`
	Items []repository.Row `json:"items"`
}

type registerRequest struct {
	ChangedBy  string  `json:"changed_by"`
	NewStatus  *string `json:"new_status"`
	SeatsDelta *int64  `json:"seats_available_delta"`
	Note       string  `json:"note"`
}

// Create handles POST /v1/flights.
func (h *FlightHandler) Create(c echo.Context) error {
	fields, err := bindFields(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if missing := missingCore(fields); missing != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": missing + " required"})
	}
	f, err := h.svc.Create(c.Request().Context(), fields)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, f)
}

// List handles GET /v1/flights and GET /v1/flights/paginated.
func (h *FlightHandler) List(c echo.Context) error {
	page, err := intParam(c, "page", 1)
	if err != nil || page < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "page must be an integer >= 1"})
	}
	size, err := intParam(c, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "size must be an integer between 1 and 200"})
	}

	filters := map[string]string{}
	for k, vals := range c.QueryParams() {
		if listParams[k] || len(vals) == 0 {
			continue
		}
		if strings.TrimSpace(vals[0]) == "" {
			continue
		}
		filters[k] = vals[0]
	}

	rows, total, err := h.svc.List(c.Request().Context(), repository.ListQuery{
		Page:      page,
		Size:      size,
		Filters:   filters,
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: c.QueryParam("sort_order"),
		Fields:    c.QueryParam("fields"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse{Page: page, Size: size, Total: total, Items: rows})
}

// Get handles GET /v1/flights/:id.
func (h *FlightHandler) Get(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	f, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Replace handles PUT /v1/flights/:id.
func (h *FlightHandler) Replace(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	fields, err := bindFields(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	f, err := h.svc.Replace(c.Request().Context(), id, fields)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Patch handles PATCH /v1/flights/:id.
func (h *FlightHandler) Patch(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	fields, err := bindFields(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if fields.Empty() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no fields to update"})
	}
	f, err := h.svc.Patch(c.Request().Context(), id, fields)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Delete handles DELETE /v1/flights/:id.
func (h *FlightHandler) Delete(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	deleted, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flight not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Register handles POST /v1/flights/:id/register.
func (h *FlightHandler) Register(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	f, err := h.svc.RegisterAction(c.Request().Context(), id, service.RegisterRequest{
		ChangedBy:  req.ChangedBy,
		NewStatus:  req.NewStatus,
		SeatsDelta: req.SeatsDelta,
		Note:       req.Note,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Logs handles GET /v1/flights/:id/logs.
func (h *FlightHandler) Logs(c echo.Context) error {
	id, ok := flightID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	limit, err := intParam(c, "limit", defaultLogLimit)
	if err != nil || limit < 1 || limit > maxLogLimit {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be an integer between 1 and 500"})
	}
	entries, err := h.svc.Logs(c.Request().Context(), id, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries})
}

// fail maps service errors to responses. Store details were already logged
// by the repository and are never echoed back.
func (h *FlightHandler) fail(c echo.Context, err error) error {
	var ve *repository.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Msg})
	case errors.Is(err, repository.ErrFlightNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flight not found"})
	case repository.IsDataError(err):
	default:
		h.log.Error("request failed", "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func bindFields(c echo.Context) (model.FlightFields, error) {
	var fields model.FlightFields
	err := c.Bind(&fields)
	return fields, err
}

func missingCore(f model.FlightFields) string {
	var missing []string
	if !f.FlightNumber.Has() {
		missing = append(missing, "flight_number")
	}
	if !f.Origin.Has() {
		missing = append(missing, "origin")
	}
	if !f.Destination.Has() {
		missing = append(missing, "destination")
	}
	return strings.Join(missing, ", ")
}

func flightID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
