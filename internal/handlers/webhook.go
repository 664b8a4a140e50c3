package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/intake"
)

// maxWebhookBody bounds a single webhook delivery.
const maxWebhookBody = 4 << 20

// WebhookHandler receives chat-gateway deliveries. The endpoint always
// acknowledges with 200 "OK" no matter what happens internally; a non-2xx
// answer makes the gateway redeliver the same batch in a storm.
type WebhookHandler struct {
	logger      *slog.Logger
	registry    *channel.Registry
	intake      *intake.Service
	verifyToken string
}

func NewWebhookHandler(log *slog.Logger, registry *channel.Registry, svc *intake.Service, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		logger:      log.With(slog.String("handler", "webhook")),
		registry:    registry,
		intake:      svc,
		verifyToken: verifyToken,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
	e.GET("/webhook", h.Verify)
}

// Receive acknowledges the delivery immediately and processes the batch off
// the request path.
func (h *WebhookHandler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", slog.Any("error", err))
		return c.String(http.StatusOK, "OK")
	}
	provider, ok := h.registry.Resolve(payload)
	if !ok {
		h.logger.Warn("webhook payload matched no provider", slog.Int("bytes", len(payload)))
		return c.String(http.StatusOK, "OK")
	}
	msgs, err := provider.Normalize(payload)
	if err != nil {
		h.logger.Warn("webhook normalization failed",
			slog.String("channel", provider.Tag().String()), slog.Any("error", err))
		return c.String(http.StatusOK, "OK")
	}
	if len(msgs) > 0 {
		ctx := context.WithoutCancel(c.Request().Context())
		go h.intake.HandleBatch(ctx, msgs)
	}
	return c.String(http.StatusOK, "OK")
}

// Verify answers the gateway's subscription handshake: echo the challenge
// when the token matches, 403 otherwise.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode == "subscribe" && token != "" && token == h.verifyToken {
		return c.String(http.StatusOK, challenge)
	}
	return c.NoContent(http.StatusForbidden)
}
