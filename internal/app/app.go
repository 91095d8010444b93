// Package app wires the service from configuration. The API server, the
// reconcile CLI and the seeder share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"

	"roombooking/internal/config"
	"roombooking/internal/database"
	"roombooking/internal/modules/availability"
	"roombooking/internal/modules/booking"
	"roombooking/internal/modules/bookingcache"
	"roombooking/internal/modules/history"
	"roombooking/internal/modules/reconcile"
	"roombooking/internal/pkg/calendar"
	"roombooking/internal/pkg/clock"
	"roombooking/internal/pkg/notify"
	"roombooking/internal/pkg/obs"
	"roombooking/internal/pkg/tasks"
	"roombooking/internal/repository"
)

const serviceName = "roombooking"

type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Tenants *config.Tenants

	Bookings   *repository.BookingRepository
	Audit      *repository.AuditRepository
	Mismatches *repository.MismatchRepository

	Calendar    calendar.Service
	Pool        *tasks.Pool
	Coordinator *booking.Coordinator
	Cache       *bookingcache.Cache
	History     *history.Service
	Runner      *reconcile.Runner

	closers []func(context.Context) error
}

// SetupLogger installs the process-wide slog handler: JSON in prod-like
// environments, text otherwise.
func SetupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProdLike() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h).With("service", serviceName, "env", cfg.AppEnv))
}

// New wires the service. When a step fails, whatever was already opened is
// closed again before the error is returned.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err == nil {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if closeErr := a.Close(cleanupCtx); closeErr != nil {
			slog.Error("startup_cleanup_failed", "error", closeErr)
		}
	}()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	a.Tenants, err = config.LoadTenants(cfg.TenantsFile)
	if err != nil {
		return nil, err
	}

	a.DB, err = database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := database.Migrate(a.DB); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	a.Bookings = repository.NewBookingRepository(a.DB)
	a.Audit = repository.NewAuditRepository(a.DB)
	a.Mismatches = repository.NewMismatchRepository(a.DB)
	counters := repository.NewCounterRepository(a.DB)

	var notifier booking.Notifier = notify.NewConsole()
	if cfg.RabbitURL != "" {
		amqp, dialErr := notify.NewAMQP(cfg.RabbitURL, cfg.NotifyExchange)
		if dialErr != nil {
			return nil, fmt.Errorf("connect notification broker: %w", dialErr)
		}
		notifier = amqp
		a.closers = append(a.closers, func(context.Context) error { return amqp.Close() })
	}

	a.Pool = tasks.NewPool(tasks.Config{
		Workers:     cfg.SideEffectWorkers,
		QueueSize:   cfg.SideEffectQueue,
		MaxAttempts: cfg.SideEffectMaxAttempts,
	})
	a.Pool.OnFailure = func(t tasks.Task, err error) {
		slog.Error("side_effect_abandoned", "kind", t.Kind, "attrs", t.Attrs, "error", err)
	}
	// the pool drains before the broker and tracer close
	a.closers = append([]func(context.Context) error{a.Pool.Shutdown}, a.closers...)

	clk := clock.Real()
	a.Calendar = calendar.NewMemory()
	a.Coordinator = booking.NewCoordinator(booking.Deps{
		Store:      a.Bookings,
		Audit:      a.Audit,
		Counters:   counters,
		Overlap:    availability.NewChecker(a.Bookings),
		Calendar:   availability.NewSyncer(a.Calendar, a.Mismatches, a.Bookings, clk),
		Notifier:   notifier,
		Dispatcher: a.Pool,
		Policies:   a.Tenants,
		Clock:      clk,
	})
	a.Cache = bookingcache.New(a.Bookings, cfg.CacheTTL, clk)
	a.History = history.NewService(a.Bookings, a.Audit)
	a.Runner = reconcile.NewRunner(a.Bookings, a.Coordinator, a.Tenants, clk, reconcile.Config{
		DeclineGrace:  cfg.DeclineGrace,
		CheckoutGrace: cfg.CheckoutGrace,
	})

	slog.Info("app_ready", "tenants", a.Tenants.Names())
	return a, nil
}

// Close drains pending side effects and releases external connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
