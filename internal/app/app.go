package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/alerting"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/config"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/engine"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/scheduler"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/service"
	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newEngine() *engine.Engine {
	return engine.New(a.Config.Engine, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	if a.Config.Database.AutoMigrate {
		if err := storage.RunMigrations(a.Config.Database.DSN); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running batch service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the batch service needs storage")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, sched, store, store, a.newEngine(), a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting batch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("batch service stopped")
	return nil
}

// OnceOptions configure a single immediate batch run.
type OnceOptions struct {
	AsOf *time.Time
}

// RunOnce executes one batch immediately, outside the scheduler.
func (a *App) RunOnce(ctx context.Context, opts OnceOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot run a batch")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runAt := time.Now().UTC()
	if opts.AsOf != nil {
		runAt = opts.AsOf.UTC()
	}

	svc := service.New(a.Config, nil, store, store, a.newEngine(), a.newNotifier(), a.Logger)
	return svc.ProcessRun(ctx, runAt)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// FlagsOptions configure the flags command.
type FlagsOptions struct {
	Kind string
}

// ExportOptions hold parameters for exporting revenue totals.
type ExportOptions struct {
	FromYear int
	ToYear   int
	CSVPath  string
	PNGPath  string
}
