package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/broadcast"
	"github.com/nagaralert/nagaralert/internal/intake"
	"github.com/nagaralert/nagaralert/internal/notify"
	"github.com/nagaralert/nagaralert/internal/report"
	"github.com/nagaralert/nagaralert/internal/store"
)

var validate = validator.New()

// ReportsHandler is the administrative reports API used by the dashboard.
type ReportsHandler struct {
	logger     *slog.Logger
	reports    *report.Service
	notifier   *notify.Service
	dispatcher *broadcast.Service
}

func NewReportsHandler(log *slog.Logger, reports *report.Service, notifier *notify.Service, dispatcher *broadcast.Service) *ReportsHandler {
	return &ReportsHandler{
		logger:     log.With(slog.String("handler", "reports")),
		reports:    reports,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

func (h *ReportsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/reports")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/nearby", h.Nearby)
	group.GET("/department/:department", h.ByDepartment)
	group.GET("/:id", h.Get)
	group.PATCH("/:id/status", h.UpdateStatus)
}

type createReportRequest struct {
	Type        string  `json:"type" validate:"required"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	Department  string  `json:"department"`
	ImageURL    string  `json:"imageUrl"`
	UserPhone   string  `json:"userPhone"`
	UserName    string  `json:"userName"`
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Create stores a report submitted through the dashboard or citizen app.
// Critical departments are escalated the same way bot-verified reports are.
func (h *ReportsHandler) Create(c echo.Context) error {
	var req createReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := report.Report{
		ID:          report.NewID(),
		SenderID:    req.UserPhone,
		UserName:    req.UserName,
		IssueType:   req.Type,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Department:  req.Department,
		MediaURL:    req.ImageURL,
		Status:      report.StatusPendingReview,
		Source:      "api",
	}
	if req.Address != "" || req.Lat != 0 || req.Lng != 0 {
		r.Location = &report.Location{Lat: req.Lat, Lng: req.Lng, Address: req.Address}
	}
	ctx := c.Request().Context()
	if err := h.reports.CreateDraft(ctx, r); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	saved, err := h.reports.Finalize(ctx, r.ID, report.StatusPendingReview, map[string]any{
		"location": r.Location,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if r.SenderID != "" {
		if _, err := h.reports.AwardPoints(ctx, r.SenderID, intake.ReportPoints, true); err != nil {
			h.logger.Warn("award points failed", slog.Any("error", err))
		}
	}
	if h.notifier != nil {
		go h.notifier.EscalateCritical(context.WithoutCancel(ctx), saved)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *ReportsHandler) List(c echo.Context) error {
	reports, err := h.reports.All(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *ReportsHandler) Get(c echo.Context) error {
	r, err := h.reports.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *ReportsHandler) ByDepartment(c echo.Context) error {
	reports, err := h.reports.ByDepartment(c.Request().Context(), c.Param("department"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reports)
}

// Nearby returns reports within radius_km (default 5) of lat/lng.
func (h *ReportsHandler) Nearby(c echo.Context) error {
	lat, err := strconv.ParseFloat(c.QueryParam("lat"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lat is required")
	}
	lng, err := strconv.ParseFloat(c.QueryParam("lng"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lng is required")
	}
	radius := 5.0
	if raw := c.QueryParam("radius_km"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "radius_km must be a positive number")
		}
	}
	reports, err := h.reports.Nearby(c.Request().Context(), lat, lng, radius)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reports)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Points awarded to the reporter when the review desk confirms their report.
const (
	acceptedPoints = 50
	resolvedPoints = 100
)

// reviewPoints returns the gamification award for a status transition, zero
// for statuses that earn nothing.
func reviewPoints(status report.Status) int {
	switch status {
	case report.StatusVerified, report.StatusAccepted:
		return acceptedPoints
	case report.StatusResolved:
		return resolvedPoints
	default:
		return 0
	}
}

var reviewStatuses = map[report.Status]bool{
	report.StatusVerified:      true,
	report.StatusAccepted:      true,
	report.StatusRejected:      true,
	report.StatusResolved:      true,
	report.StatusPendingReview: true,
}

// UpdateStatus moves a report through the review flow. Moving to Verified or
// Accepted re-enters the broadcast dispatcher; the reporter is notified over
// chat for every transition.
func (h *ReportsHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status := report.Status(req.Status)
	if !reviewStatuses[status] {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+req.Status)
	}
	ctx := c.Request().Context()
	if _, err := h.reports.Get(ctx, c.Param("id")); errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	saved, err := h.reports.Finalize(ctx, c.Param("id"), status, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	bg := context.WithoutCancel(ctx)
	if pts := reviewPoints(status); pts > 0 && saved.SenderID != "" {
		if _, err := h.reports.AwardPoints(ctx, saved.SenderID, pts, false); err != nil {
			h.logger.Warn("award points failed", slog.Any("error", err))
		}
	}
	if h.notifier != nil && saved.SenderID != "" {
		go h.notifier.NotifyReporter(bg, saved, status)
	}
	if h.dispatcher != nil && saved.Location != nil &&
		(status == report.StatusVerified || status == report.StatusAccepted) {
		go func() {
			if _, err := h.dispatcher.Dispatch(bg, saved.Location.Address, intake.FormatAlert(saved), ""); err != nil {
				h.logger.Error("review broadcast failed",
					slog.String("report_id", saved.ID), slog.Any("error", err))
			}
		}()
	}
	return c.JSON(http.StatusOK, saved)
}
