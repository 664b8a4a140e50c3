package report

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires abandoned drafts so senders are not stuck
// behind a conversation they walked away from.
type Sweeper struct {
	log     *slog.Logger
	reports *Service
	spec    string
	cron    *cron.Cron
}

// NewSweeper builds a sweeper running on the given cron spec
// (for example "*/10 * * * *").
func NewSweeper(log *slog.Logger, reports *Service, spec string) *Sweeper {
	return &Sweeper{
		log:     log.With(slog.String("service", "sweep")),
		reports: reports,
		spec:    spec,
		cron:    cron.New(),
	}
}

// Start schedules the sweep and runs one pass immediately so a restart does
// not leave stale drafts waiting for the next tick.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	go s.run(ctx)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	expired, err := s.reports.ExpireStale(ctx)
	if err != nil {
		s.log.Error("draft expiry sweep failed", slog.Any("error", err))
		return
	}
	if expired > 0 {
		s.log.Info("expired stale drafts", slog.Int("count", expired))
	}
}
