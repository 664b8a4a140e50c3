package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/broadcast"
	"github.com/nagaralert/nagaralert/internal/report"
)

// BroadcastsHandler exposes manual broadcasts and the broadcast history.
type BroadcastsHandler struct {
	logger     *slog.Logger
	reports    *report.Service
	dispatcher *broadcast.Service
}

func NewBroadcastsHandler(log *slog.Logger, reports *report.Service, dispatcher *broadcast.Service) *BroadcastsHandler {
	return &BroadcastsHandler{
		logger:     log.With(slog.String("handler", "broadcasts")),
		reports:    reports,
		dispatcher: dispatcher,
	}
}

func (h *BroadcastsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/broadcasts")
	group.POST("", h.Send)
	group.GET("", h.History)
}

type sendBroadcastRequest struct {
	Area    string `json:"area" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// Send runs a manual broadcast for an area. The call blocks until the
// fan-out finishes so the caller gets the real reach count back.
func (h *BroadcastsHandler) Send(c echo.Context) error {
	var req sendBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Area = strings.TrimSpace(req.Area)
	req.Message = strings.TrimSpace(req.Message)
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "area and message are required")
	}
	reach, err := h.dispatcher.Dispatch(c.Request().Context(), req.Area, req.Message, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"area":  req.Area,
		"reach": reach,
	})
}

func (h *BroadcastsHandler) History(c echo.Context) error {
	records, err := h.reports.Broadcasts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}
