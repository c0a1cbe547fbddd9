package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"albumbot/internal/album"
	"albumbot/internal/config"
	"albumbot/internal/delivery"
	"albumbot/internal/runtime/supervisor"
	kit "albumbot/internal/transport"
	tgadapter "albumbot/internal/transport/telegram/adapter"
	"albumbot/internal/transport/telegram/router"
	logx "albumbot/pkg/logx"
)

const updateQueueSize = 256

// App wires config, logging, the Telegram adapter, the conversation
// controller and background maintenance into one lifecycle.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter *tgadapter.Adapter
	ctrl    *album.Service
	router  *router.Router
	cron    *cron.Cron

	pruneSchedule  string
	pruneIdleAfter time.Duration

	sup     *supervisor.Supervisor
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg), nil)
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	quiet, err := config.ParseDurationOrDefault("album.quiet_period", cfg.Album.QuietPeriod, 2*time.Second)
	if err != nil {
		return nil, err
	}
	retryBase, err := config.ParseDurationOrDefault("delivery.archive_retry_base", cfg.Delivery.ArchiveRetryBase, 2*time.Second)
	if err != nil {
		return nil, err
	}
	pruneIdle, err := config.ParseDurationOrDefault("maintenance.prune_idle_after", cfg.Maintenance.PruneIdleAfter, time.Hour)
	if err != nil {
		return nil, err
	}
	pruneSchedule := cfg.Maintenance.PruneSchedule
	if pruneSchedule == "" {
		pruneSchedule = "*/30 * * * *"
	}

	ad, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	logSvc.SetSender(ad)

	primary := delivery.PrimaryPolicy()
	archivePol := delivery.ArchivePolicy(retryBase)
	if cfg.Delivery.RetryMax > 0 {
		primary.MaxAttempts = cfg.Delivery.RetryMax
		archivePol.MaxAttempts = cfg.Delivery.RetryMax
	}

	pipe := delivery.New(ad, log.With(logx.String("comp", "delivery")))
	ctrl := album.NewService(album.Config{
		QuietPeriod:   quiet,
		MaxGroupSize:  cfg.Album.MaxGroupSize,
		Archive:       kit.ChatTarget{ChatID: cfg.Telegram.ArchiveChatID},
		Primary:       primary,
		ArchivePolicy: archivePol,
	}, ad, pipe, log.With(logx.String("comp", "album")))

	rt := router.New(ad, ctrl, log.With(logx.String("comp", "router")))

	return &App{
		cfgMgr:         mgr,
		logSvc:         logSvc,
		log:            log,
		adapter:        ad,
		ctrl:           ctrl,
		router:         rt,
		cron:           cron.New(),
		pruneSchedule:  pruneSchedule,
		pruneIdleAfter: pruneIdle,
	}, nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "app"))))
	a.updates = make(chan kit.Update, updateQueueSize)

	a.ctrl.Start(a.sup.Context())
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	a.sup.Go0("router", func(c context.Context) {
		a.router.Run(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	a.sup.Go0("config.reload", func(c context.Context) {
		a.reloadLoop(c)
	})

	if a.pruneSchedule != "" {
		_, err := a.cron.AddFunc(a.pruneSchedule, func() {
			if n := a.ctrl.PruneIdle(a.pruneIdleAfter); n > 0 {
				a.log.Debug("idle chat state pruned", logx.Int("entries", n))
			}
		})
		if err != nil {
			return fmt.Errorf("maintenance.prune_schedule: %w", err)
		}
		a.cron.Start()
	}

	a.log.Info("albumbot started")
	return nil
}

// reloadLoop reapplies the live-tunable config on file changes. Only the
// logging block takes effect without a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logxConfig(cfg))
			a.log.Info("logging config reapplied")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	// Let confirmed deliveries run to completion, bounded by ctx.
	if err := a.ctrl.Stop(ctx); err != nil {
		a.log.Warn("deliveries still in flight at shutdown", logx.Err(err))
	}

	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}

	a.log.Info("albumbot stopped")
	return a.logSvc.Close()
}
