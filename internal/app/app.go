// Package app wires together every component of a HookFreight process:
// config, logging, migrations, storage, the scheduler, the delivery worker
// pool, and the HTTP server, then runs them under a worker.WorkerSupervisor
// until SIGINT/SIGTERM. Grounded on the teacher's internal/app/app.go
// PreRun/run/PostRun lifecycle and signal-driven graceful shutdown, with the
// telemetry/OpenTelemetry-SDK/message-queue-infrastructure steps it also
// performs dropped as out of this system's scope (see DESIGN.md).
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookfreight/hookfreight/internal/apirouter"
	"github.com/hookfreight/hookfreight/internal/backoff"
	"github.com/hookfreight/hookfreight/internal/config"
	"github.com/hookfreight/hookfreight/internal/dbx"
	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/eventstore"
	"github.com/hookfreight/hookfreight/internal/forwarder"
	"github.com/hookfreight/hookfreight/internal/idempotence"
	"github.com/hookfreight/hookfreight/internal/ingest"
	"github.com/hookfreight/hookfreight/internal/logging"
	"github.com/hookfreight/hookfreight/internal/redisx"
	"github.com/hookfreight/hookfreight/internal/registry"
	"github.com/hookfreight/hookfreight/internal/scheduler"
	"github.com/hookfreight/hookfreight/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	config *config.Config
	logger *logging.Logger

	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	supervisor  *worker.WorkerSupervisor
}

func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

func (a *App) Run(ctx context.Context) error {
	if err := a.PreRun(ctx); err != nil {
		return err
	}
	defer a.PostRun(ctx)

	return a.run(ctx)
}

// PreRun initializes every dependency before any worker starts.
func (a *App) PreRun(ctx context.Context) (err error) {
	if err := a.setupLogger(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic during PreRun", zap.Any("panic", r))
			err = fmt.Errorf("panic during PreRun: %v", r)
		}
	}()

	zapLogger := a.zap()
	zapLogger.Info("starting hookfreight", a.config.LogConfigurationSummary()...)

	if err := runMigration(ctx, a.config.PostgresURL, zapLogger); err != nil {
		zapLogger.Error("migration failed", zap.Error(err))
		return err
	}

	if err := a.initializePostgres(ctx); err != nil {
		return err
	}

	if err := a.initializeRedis(ctx); err != nil {
		return err
	}

	if err := a.buildServices(); err != nil {
		return err
	}

	return nil
}

// PostRun releases long-lived connections after every worker has exited.
func (a *App) PostRun(ctx context.Context) {
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.zap().Error("error closing redis client", zap.Error(err))
		}
	}
	if a.logger != nil {
		a.zap().Info("hookfreight shutdown complete")
		a.logger.Sync()
	}
}

func (a *App) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.supervisor.Run(ctx)
	}()

	var exitErr error
	select {
	case <-termChan:
		a.zap().Info("shutdown signal received")
		cancel()
		err := <-errChan
		if err != nil && !errors.Is(err, context.Canceled) {
			a.zap().Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	case err := <-errChan:
		if err != nil {
			a.zap().Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
	}

	return exitErr
}

func (a *App) setupLogger() error {
	logger, err := logging.NewLogger(logging.WithLogLevel(a.config.LogLevel))
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *App) zap() *zap.Logger { return a.logger.Logger.Logger }

func (a *App) initializePostgres(ctx context.Context) error {
	a.zap().Debug("connecting to postgres")
	pool, err := dbx.NewPool(ctx, a.config.PostgresURL)
	if err != nil {
		a.zap().Error("postgres connection failed", zap.Error(err))
		return err
	}
	a.pgPool = pool
	return nil
}

func (a *App) initializeRedis(ctx context.Context) error {
	a.zap().Debug("connecting to redis")
	client, err := redisx.New(ctx, redisx.Config{
		Host:     a.config.RedisHost,
		Port:     a.config.RedisPort,
		Password: a.config.RedisPassword,
		Database: a.config.RedisDatabase,
	})
	if err != nil {
		a.zap().Error("redis connection failed", zap.Error(err))
		return err
	}
	a.redisClient = client
	return nil
}

// buildServices constructs every component and wires them into the HTTP
// server and delivery worker pool, then registers both with a
// WorkerSupervisor, mirroring the teacher's ServiceBuilder.BuildWorkers.
func (a *App) buildServices() error {
	zapLogger := a.zap()
	var supervisorOpts []worker.SupervisorOption
	if a.config.ShutdownTimeoutMs > 0 {
		supervisorOpts = append(supervisorOpts, worker.WithShutdownTimeout(time.Duration(a.config.ShutdownTimeoutMs)*time.Millisecond))
	}
	supervisor := worker.NewWorkerSupervisor(zapLogger, supervisorOpts...)

	reg := registry.New(a.pgPool)
	events := eventstore.NewPostgresStore(a.pgPool)
	deliveries := deliverystore.NewPostgresStore(a.pgPool)
	sched := scheduler.New(a.redisClient, &backoff.ExponentialBackoff{Interval: time.Second, Base: 2})
	idem := idempotence.New(a.redisClient)
	fwd := forwarder.New()

	pool := worker.NewDeliveryWorkerPool(
		reg, events, deliveries, sched, fwd, idem, zapLogger,
		a.config.QueueConcurrency, a.config.QueueMaxRetries, a.config.BaseURL,
	)
	supervisor.Register(pool)

	rt, err := apirouter.New(apirouter.RouterDeps{
		Events:     events,
		Deliveries: deliveries,
		Scheduler:  sched,
		Logger:     zapLogger,
	}, supervisor.GetHealthTracker(), a.config.GinMode)
	if err != nil {
		return err
	}

	ingestHandler := ingest.NewHandler(reg, events, sched, int64(a.config.MaxBodyBytes), zapLogger)
	engine := rt.Handler()
	engine.Any("/:hookToken", ingestHandler.Capture)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.config.Host, a.config.Port),
		Handler: engine,
	}
	supervisor.Register(worker.NewHTTPServerWorker(httpServer, zapLogger))

	a.supervisor = supervisor
	return nil
}
