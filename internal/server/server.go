// Package server assembles the echo HTTP surface: the chat webhook, the
// administrative API, and static serving of archived report media.
package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nagaralert/nagaralert/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(
	addr string,
	mediaRoot string,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	reportsHandler *handlers.ReportsHandler,
	broadcastsHandler *handlers.BroadcastsHandler,
	classifyHandler *handlers.ClassifyHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if reportsHandler != nil {
		reportsHandler.Register(e)
	}
	if broadcastsHandler != nil {
		broadcastsHandler.Register(e)
	}
	if classifyHandler != nil {
		classifyHandler.Register(e)
	}
	if mediaRoot != "" {
		e.Static("/media", mediaRoot)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
