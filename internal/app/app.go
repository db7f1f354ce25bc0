// Package app wires config into the services shared by the api and callsync binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"shopcalls/internal/audit"
	"shopcalls/internal/calls"
	"shopcalls/internal/config"
	"shopcalls/internal/ingest"
	"shopcalls/internal/jobs"
	"shopcalls/internal/reporting"
	"shopcalls/internal/settings"
	"shopcalls/internal/telephony"
	"shopcalls/internal/transcription"
	"shopcalls/pkg/utils"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config config.Config
	Log    *slog.Logger

	DB    *sql.DB
	Redis *redis.Client

	Audit       *audit.Service
	Calls       *calls.PostgresRepo
	Settings    *settings.PostgresSource
	RingCentral *telephony.RingCentral
	Providers   *transcription.Factory
	Ingest      *ingest.Service
	Transcriber *jobs.Transcriber
	Reports     *reporting.Service
	// Locker is nil when Redis is not configured.
	Locker jobs.Locker
}

// New opens storage, ensures the schema and builds the service graph.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}
	a := &App{Config: cfg, Log: log, DB: db}

	if err := calls.EnsureSchema(ctx, db); err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis init: %w", err)
		}
		a.Redis = rdb
		a.Locker = jobs.NewRedisLocker(rdb, jobs.DefaultLockKey, 0)
	}

	hc := &http.Client{Timeout: 2 * time.Minute}
	rc, err := telephony.NewRingCentral(telephony.RingCentralOptions{
		ClientID:     cfg.RingCentral.ClientID,
		ClientSecret: cfg.RingCentral.ClientSecret,
		JWT:          cfg.RingCentral.JWT,
		ServerURL:    cfg.RingCentral.ServerURL,
		HTTPClient:   hc,
		Logger:       log,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("ringcentral init: %w", err)
	}
	a.RingCentral = rc

	a.Calls = calls.NewPostgresRepo(db)
	a.Settings = settings.NewPostgresSource(db)

	a.Providers = transcription.NewFactory(settings.NewResolver(a.Settings), cfg.Transcription.DefaultProvider, log)
	a.Providers.RegisterDefaults(cfg.Transcription, rc, hc)

	policy := transcription.Policy{
		MinDuration:  cfg.Transcription.MinDuration,
		SampleOver:   cfg.Transcription.SampleOver,
		SampleLength: cfg.Transcription.SampleLength,
	}
	engine := transcription.NewEngine(rc, a.Providers, policy, transcription.NewClassifier(cfg.Transcription.SalesKeywords), log)

	a.Ingest = ingest.NewService(rc, a.Calls, log)
	a.Transcriber = jobs.NewTranscriber(a.Calls, engine, log)
	a.Reports = reporting.NewService(a.Calls)
	a.Audit = audit.NewService(audit.NewPostgresRepo(db))
	return a, nil
}

// NewScheduler builds the periodic sync and transcribe loop from config.
func (a *App) NewScheduler() *jobs.Scheduler {
	return jobs.NewScheduler(a.Ingest, a.Transcriber, a.Locker, jobs.SchedulerOptions{
		Interval:  a.Config.Scheduler.Interval,
		BatchSize: a.Config.Scheduler.BatchSize,
		CallDelay: a.Config.Scheduler.CallDelay,
	}, a.Log)
}

// Health pings Postgres and, when configured, Redis.
func (a *App) Health(ctx context.Context) error {
	if err := utils.HealthCheck(ctx, a.DB, 2*time.Second); err != nil {
		return err
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	return nil
}

// Audited records an operator action. Failures are logged, never returned.
func (a *App) Audited(ctx context.Context, record func(ctx context.Context, s *audit.Service) error) {
	if a.Audit == nil {
		return
	}
	if err := record(ctx, a.Audit); err != nil {
		a.Log.Warn("audit append failed", "err", err)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
