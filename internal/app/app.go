package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/alerting"
	"svfe-monitor/internal/api"
	"svfe-monitor/internal/auth"
	"svfe-monitor/internal/catalog"
	"svfe-monitor/internal/config"
	"svfe-monitor/internal/hub"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/rules"
	"svfe-monitor/internal/scheduler"
	"svfe-monitor/internal/service"
	"svfe-monitor/internal/storage"
	"svfe-monitor/internal/telemetry"
	"svfe-monitor/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output meant for the operator.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn not configured: %w", storage.ErrNotConfigured)
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	store := storage.NewStore(pool, storage.TablesFromConfig(a.Config.Database.Tables), a.Config.Database.QueryTimeout)
	loc, err := a.Config.Location()
	if err != nil {
		store.Close()
		return nil, err
	}
	store.SetLocation(loc)
	return store, nil
}

func (a *App) migrate() error {
	applied, err := storage.Migrate(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	a.Logger.Info().Uint("version", applied).Msg("schema up to date")
	return nil
}

func (a *App) catalog() (*catalog.Catalog, error) {
	names, err := a.Config.IssuerNames()
	if err != nil {
		return nil, err
	}
	return catalog.New(names), nil
}

func (a *App) thresholds() rules.Thresholds {
	rc := a.Config.Rules
	th := rules.Thresholds{
		MinSuccessRate:        rc.MinSuccessRate,
		MaxRefusalRate:        rc.MaxRefusalRate,
		MaxIssuerRefusalRate:  rc.MaxIssuerRefusalRate,
		MaxChannelRefusalRate: rc.MaxChannelRefusalRate,
		CriticalCodes:         rc.CriticalCodes,
	}
	for _, ch := range rc.ExpectedChannels {
		th.ExpectedChannels = append(th.ExpectedChannels, model.Channel(ch))
	}
	return th
}

func (a *App) newNotifiers(recipients alerting.RecipientSource) []alerting.Notifier {
	var notifiers []alerting.Notifier
	if cfg := a.Config.Alerting.Email; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(cfg, recipients, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

// newDispatcher builds the alert sink. The returned closer releases the
// suppression backend.
func (a *App) newDispatcher(ctx context.Context, store *storage.Store, broadcaster alerting.Broadcaster) (*alerting.Dispatcher, func(), error) {
	var alertStore alerting.AlertStore
	var recipients alerting.RecipientSource
	if store != nil {
		alertStore = store
		recipients = store
	}
	opts := []alerting.Option{alerting.WithNotifiers(a.newNotifiers(recipients)...)}
	closer := func() {}

	if sc := a.Config.Alerting.Suppression; sc.Enabled {
		suppressor, err := alerting.DialRedisSuppressor(ctx, sc.RedisURL, sc.Window)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, alerting.WithSuppressor(suppressor))
		closer = func() { _ = suppressor.Close() }
		a.Logger.Info().Dur("window", sc.Window).Msg("alert suppression enabled")
	}

	return alerting.NewDispatcher(alertStore, broadcaster, a.Logger, opts...), closer, nil
}

func (a *App) newService(store service.TransactionStore, alerts service.AlertReader, dispatcher service.Dispatcher) (*service.Service, error) {
	names, err := a.catalog()
	if err != nil {
		return nil, err
	}
	evaluator := rules.NewEvaluator(a.thresholds(), a.Config.Rules.Locale, names)
	mc := a.Config.Metrics
	return service.New(store, alerts, evaluator, dispatcher, names, service.Options{
		FreshnessThreshold:  mc.FreshnessThreshold,
		RefusalExcludesZero: mc.RefusalExcludesZero,
		WatchedCodes:        mc.WatchedCodes,
		CurrentBucket:       mc.CurrentBucket,
		HistoricalBucket:    mc.HistoricalBucket,
		Locale:              a.Config.Rules.Locale,
	}, a.Logger), nil
}

func (a *App) newVerifier() api.TokenVerifier {
	if a.Config.Auth.Disabled {
		a.Logger.Warn().Msg("authentication disabled; API is open")
		return nil
	}
	return auth.NewVerifier(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().Str("build", version.String()).Msg("starting monitoring service")
	telemetry.BuildInfo.WithLabelValues(version.Version, version.Commit).Set(1)

	if a.Config.Database.AutoMigrate && a.Config.Database.DSN != "" {
		if err := a.migrate(); err != nil {
			return err
		}
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	notifications := hub.New(a.Logger)
	defer notifications.Close()

	dispatcher, closeDispatcher, err := a.newDispatcher(ctx, store, notifications)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	svc, err := a.newService(store, store, dispatcher)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if a.Config.Scheduler.Enabled {
		if err := sched.Start(ctx, svc.RunCycle); err != nil {
			return err
		}
	} else {
		a.Logger.Warn().Msg("scheduler disabled; alerts are only raised by the evaluate command")
	}

	sc := a.Config.Server
	srv := &http.Server{
		Addr: sc.Addr,
		Handler: api.NewRouter(api.Deps{
			Service:        svc,
			Hub:            notifications,
			Verifier:       a.newVerifier(),
			Pinger:         store,
			AllowedOrigins: sc.AllowedOrigins,
			Logger:         a.Logger,
		}),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", sc.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info().Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			a.Logger.Error().Err(err).Msg("http server failed")
			runErr = err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancelShutdown()

	if err := sched.Stop(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("http server did not stop cleanly")
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return runErr
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate() error {
	if a.Config.Database.DSN == "" {
		return fmt.Errorf("database.dsn not configured: %w", storage.ErrNotConfigured)
	}
	return a.migrate()
}

// EvaluateOptions configure the evaluate command.
type EvaluateOptions struct {
	Source model.Source
	DryRun bool
}

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting trend series.
type ExportOptions struct {
	Source              model.Source
	PNGPath             string
	CSVPath             string
	DistributionPNGPath string
	Bucket              time.Duration
	LatestDayOnly       bool
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Count        int
	SuccessRatio float64
	Dispatch     bool
	Seed         int64
}
