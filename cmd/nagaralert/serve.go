package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/nagaralert/nagaralert/internal/broadcast"
	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/channel/adapters/metacloud"
	"github.com/nagaralert/nagaralert/internal/channel/adapters/whapi"
	"github.com/nagaralert/nagaralert/internal/classifier"
	"github.com/nagaralert/nagaralert/internal/composer"
	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/email"
	emailgeneric "github.com/nagaralert/nagaralert/internal/email/adapters/generic"
	emailmailgun "github.com/nagaralert/nagaralert/internal/email/adapters/mailgun"
	"github.com/nagaralert/nagaralert/internal/handlers"
	"github.com/nagaralert/nagaralert/internal/intake"
	"github.com/nagaralert/nagaralert/internal/logger"
	"github.com/nagaralert/nagaralert/internal/media"
	"github.com/nagaralert/nagaralert/internal/media/providers/localfs"
	"github.com/nagaralert/nagaralert/internal/notify"
	"github.com/nagaralert/nagaralert/internal/report"
	"github.com/nagaralert/nagaralert/internal/server"
	"github.com/nagaralert/nagaralert/internal/store"
	"github.com/nagaralert/nagaralert/internal/store/pgstore"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideBlobs,
			provideChannelRegistry,
			provideFetcher,
			provideClassifier,
			provideComposer,
			provideEmailRegistry,
			provideEmailService,
			provideReportService,
			provideSweeper,
			provideBroadcast,
			provideNotifier,
			provideIntake,
			handlers.NewPingHandler,
			provideWebhookHandler,
			provideReportsHandler,
			handlers.NewBroadcastsHandler,
			provideClassifyHandler,
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (store.Client, error) {
	st, err := pgstore.Open(context.Background(), log, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("store connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { st.Close(); return nil }})
	return st, nil
}

func provideBlobs(cfg config.Config) (*localfs.Provider, error) {
	return localfs.New(cfg.Media.BlobRoot, cfg.Media.PublicBaseURL)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channel.Registry {
	registry := channel.NewRegistry()
	registry.Register(whapi.New(log, cfg.Whapi))
	registry.Register(metacloud.New(log, cfg.Meta))
	return registry
}

func provideFetcher(log *slog.Logger, cfg config.Config) *media.Fetcher {
	return media.NewFetcher(log, cfg.Whapi, cfg.Meta, cfg.Media)
}

func provideClassifier(log *slog.Logger, cfg config.Config) *classifier.Client {
	return classifier.NewClient(log, cfg.Classifier)
}

func provideComposer(log *slog.Logger, cfg config.Config) *composer.Composer {
	return composer.New(log, cfg.Composer)
}

func provideEmailRegistry(log *slog.Logger, cfg config.Config) *email.Registry {
	registry := email.NewRegistry()
	registry.Register(emailgeneric.New(log, cfg.Email))
	registry.Register(emailmailgun.New(log, cfg.Email))
	return registry
}

func provideEmailService(log *slog.Logger, registry *email.Registry, cfg config.Config) *email.Service {
	return email.NewService(log, registry, cfg.Email)
}

func provideReportService(log *slog.Logger, st store.Client, cfg config.Config) *report.Service {
	window, err := time.ParseDuration(cfg.Intake.PendingWindow)
	if err != nil {
		window = report.PendingWindow
	}
	return report.NewService(log, st, window)
}

func provideSweeper(log *slog.Logger, reports *report.Service, cfg config.Config) *report.Sweeper {
	return report.NewSweeper(log, reports, cfg.Intake.SweepSpec)
}

func provideBroadcast(log *slog.Logger, reports *report.Service, registry *channel.Registry, mailer *email.Service, cfg config.Config) *broadcast.Service {
	tag := channel.ProviderTag(cfg.Intake.BroadcastChannel)
	return broadcast.NewService(log, reports, registry, mailer, tag, cfg.Email.DashboardURL)
}

func provideNotifier(log *slog.Logger, registry *channel.Registry, mailer *email.Service, cfg config.Config) *notify.Service {
	return notify.NewService(log, registry, mailer, cfg.Email.EscalationTo, cfg.Email.DashboardURL)
}

func provideIntake(log *slog.Logger, cfg config.Config, reports *report.Service, registry *channel.Registry, fetcher *media.Fetcher, blobs *localfs.Provider, cls *classifier.Client, comp *composer.Composer, dispatcher *broadcast.Service, notifier *notify.Service) *intake.Service {
	return intake.NewService(log, cfg.Intake, reports, registry, fetcher, blobs, cls, comp, dispatcher, notifier)
}

func provideWebhookHandler(log *slog.Logger, registry *channel.Registry, svc *intake.Service, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, registry, svc, cfg.Meta.VerifyToken)
}

func provideReportsHandler(log *slog.Logger, reports *report.Service, notifier *notify.Service, dispatcher *broadcast.Service) *handlers.ReportsHandler {
	return handlers.NewReportsHandler(log, reports, notifier, dispatcher)
}

func provideClassifyHandler(log *slog.Logger, cls *classifier.Client) *handlers.ClassifyHandler {
	return handlers.NewClassifyHandler(log, cls)
}

func provideServer(cfg config.Config, blobs *localfs.Provider, pingHandler *handlers.PingHandler, webhookHandler *handlers.WebhookHandler, reportsHandler *handlers.ReportsHandler, broadcastsHandler *handlers.BroadcastsHandler, classifyHandler *handlers.ClassifyHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, blobs.Root(), pingHandler, webhookHandler, reportsHandler, broadcastsHandler, classifyHandler)
}

func startSweeper(lc fx.Lifecycle, sweeper *report.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return sweeper.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
