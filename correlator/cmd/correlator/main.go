package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/common/messaging"
	natsclient "github.com/telhawk-systems/threatlens/common/messaging/nats"
	"github.com/telhawk-systems/threatlens/correlator/internal/aggregator"
	"github.com/telhawk-systems/threatlens/correlator/internal/config"
	"github.com/telhawk-systems/threatlens/correlator/internal/correlation"
	"github.com/telhawk-systems/threatlens/correlator/internal/handlers"
	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
	correlatornats "github.com/telhawk-systems/threatlens/correlator/internal/nats"
	"github.com/telhawk-systems/threatlens/correlator/internal/notify"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
	"github.com/telhawk-systems/threatlens/correlator/internal/repository"
	"github.com/telhawk-systems/threatlens/correlator/internal/server"
	"github.com/telhawk-systems/threatlens/correlator/internal/simulator"
	"github.com/telhawk-systems/threatlens/correlator/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("correlator"))
	logging.SetDefault(logger)

	fatal := func(msg string, err error) {
		logger.Error(msg, logging.Error(err))
		os.Exit(1)
	}

	// Root context for background loops; cancelled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := openEventStore(ctx, cfg, logger)
	if err != nil {
		fatal("failed to open event store", err)
	}
	defer repo.Close()

	engine := correlation.NewEngine(correlation.DefaultTuning())
	refr := refresher.New(repo, engine, cfg.Correlation.Config, logger)

	// Simulator is optional; keep the interfaces nil when it is off.
	var (
		sim     *simulator.Simulator
		defense aggregator.DefenseSource
	)
	handlerOpts := []handlers.Option{
		handlers.WithLogger(logger),
		handlers.WithEventWriter(repo),
		handlers.WithReadinessChecks(handlers.ReadinessCheck{Name: cfg.Correlation.Source, Check: repo.Ping}),
	}
	if cfg.Simulation.Enabled {
		sim, err = simulator.New(cfg.Simulation.Config,
			simulator.WithLogger(logger),
			simulator.WithHooks(simulator.Hooks{
				OnSpawn: func(a models.SimulatedAttack) {
					metrics.AttacksSpawned.WithLabelValues(a.AttackType).Inc()
				},
				OnResolve: func(a models.SimulatedAttack) {
					metrics.AttacksResolved.WithLabelValues(string(a.Status)).Inc()
				},
			}),
		)
		if err != nil {
			fatal("failed to create simulator", err)
		}
		defense = sim
		handlerOpts = append(handlerOpts, handlers.WithSimulator(ctx, sim))
	}

	agg := aggregator.New(refr, defense)

	// NATS is optional: without it the refresher falls back to polling.
	var publisher *correlatornats.Publisher
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = "threatlens-correlator"
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Logger = logger.Logger
		natsCfg.OnDisconnect = func() { refr.SetSubscribed(false) }
		natsCfg.OnReconnect = func() {
			refr.SetSubscribed(true)
			// Inserts may have been missed while disconnected.
			refr.Trigger(refresher.SourceNotification)
		}

		natsClient, err := natsclient.NewClient(natsCfg)
		if err != nil {
			logger.Warn("NATS unavailable, falling back to polling", logging.Error(err))
		} else {
			defer func() {
				if err := natsClient.Drain(); err != nil {
					logger.Warn("failed to drain NATS connection", logging.Error(err))
				}
			}()

			// Replicas share the insert subject; the instance source lets each
			// skip its own notifications after refreshing directly.
			instance := "correlator-" + uuid.NewString()[:8]
			publisher = correlatornats.NewPublisher(natsClient, instance)
			natsHandler := correlatornats.NewHandler(natsClient, refr, instance, logger)
			if err := natsHandler.Start(ctx); err != nil {
				fatal("failed to start NATS handler", err)
			}
			defer func() {
				if err := natsHandler.Stop(); err != nil {
					logger.Warn("failed to stop NATS handler", logging.Error(err))
				}
			}()

			handlerOpts = append(handlerOpts,
				handlers.WithNotifier(publisher),
				handlers.WithReadinessChecks(handlers.ReadinessCheck{
					Name: "nats",
					Check: func(ctx context.Context) error {
						status := messaging.CheckClientHealth(ctx, natsClient)
						if !status.Healthy() {
							return errors.New(status.Error)
						}
						return nil
					},
				}),
			)
			logger.Info("connected to NATS", "url", cfg.NATS.URL)
		}
	}

	// Redis backs alert suppression; alerts still fire when it is unavailable.
	var state *notify.StateManager
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fatal("failed to parse Redis URL", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, alert suppression degraded", logging.Error(err))
		}
		pingCancel()
		state = notify.NewStateManager(redisClient, true)
	}

	if cfg.Alerts.Enabled {
		var (
			alertPublisher notify.AlertPublisher
			recorder       notify.DetectionRecorder
		)
		if publisher != nil {
			alertPublisher = publisher
		}
		if cfg.Alerts.RecordDetections {
			recorder = repo
		}
		alerter := notify.NewAlerter(alertPublisher, recorder, state, cfg.Alerts.SuppressionWindow, logger)
		refr.OnResult(alerter.HandleResult)
	}
	if publisher != nil {
		refr.OnResult(func(ctx context.Context, _ *refresher.Result) {
			if err := publisher.PublishSummary(ctx, agg.Summary()); err != nil {
				logger.WarnContext(ctx, "failed to publish summary", logging.Error(err))
			}
		})
	}

	handler := handlers.NewHandler(refr, agg, handlerOpts...)
	router := server.NewRouter(handler, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		refr.Run(ctx)
	}()

	if sim != nil && cfg.Simulation.Autostart {
		if err := sim.Start(ctx); err != nil {
			fatal("failed to start simulation", err)
		}
		logger.Info("simulation started")
	}

	// Start server in goroutine
	go func() {
		logger.Info("correlator listening", "addr", srv.Addr, "source", cfg.Correlation.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Error(err))
	}

	if sim != nil && sim.Running() {
		if err := sim.Stop(); err != nil {
			logger.Warn("failed to stop simulation", logging.Error(err))
		}
	}
	cancel()
	<-refresherDone

	logger.Info("server stopped gracefully")
}

// openEventStore connects the configured event store, migrating PostgreSQL
// first.
func openEventStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, error) {
	switch cfg.Correlation.Source {
	case config.SourcePostgres:
		connString := cfg.Database.Postgres.ConnString()

		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		m, err := migrate.New(cfg.Database.MigrationsPath, connString)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize migrations: %w", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}

		return repository.NewPostgresRepository(ctx, connString)
	case config.SourceOpenSearch:
		return storage.NewOpenSearchStore(cfg.OpenSearch)
	case config.SourceMemory:
		logger.Warn("using in-memory event store; events are lost on restart")
		return repository.NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported correlation source %q", cfg.Correlation.Source)
	}
}
