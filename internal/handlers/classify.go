package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/intake"
	"github.com/nagaralert/nagaralert/internal/media"
)

// ClassifyHandler lets the dashboard run the text classifier directly, for
// manual triage of reports that arrived without usable media.
type ClassifyHandler struct {
	logger     *slog.Logger
	classifier intake.Classifier
}

func NewClassifyHandler(log *slog.Logger, cls intake.Classifier) *ClassifyHandler {
	return &ClassifyHandler{
		logger:     log.With(slog.String("handler", "classify")),
		classifier: cls,
	}
}

func (h *ClassifyHandler) Register(e *echo.Echo) {
	e.POST("/api/classify/text", h.Text)
	e.POST("/api/classify/media", h.Media)
}

type classifyTextRequest struct {
	Text string `json:"text"`
}

func (h *ClassifyHandler) Text(c echo.Context) error {
	var req classifyTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	verdict := h.classifier.ClassifyText(c.Request().Context(), req.Text)
	return c.JSON(http.StatusOK, verdict)
}

// Media accepts a multipart upload under "file" and runs the media classifier.
func (h *ClassifyHandler) Media(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer func() {
		_ = src.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(src, media.MaxMediaBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	verdict := h.classifier.ClassifyMedia(c.Request().Context(), data, mime)
	return c.JSON(http.StatusOK, verdict)
}
