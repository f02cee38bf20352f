package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/edda-engine/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/edda-engine/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/edda-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/edda-engine/pkg/config"
	"github.com/ekaya-inc/edda-engine/pkg/crypto"
	"github.com/ekaya-inc/edda-engine/pkg/database"
	"github.com/ekaya-inc/edda-engine/pkg/handlers"
	"github.com/ekaya-inc/edda-engine/pkg/logging"
	"github.com/ekaya-inc/edda-engine/pkg/middleware"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.Int("scan_workers", cfg.EffectiveWorkers()),
		zap.Bool("schedule_enabled", cfg.Scan.ScheduleEnabled))

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		return fmt.Errorf("invalid credentials key: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	scopes := database.NewScopeProvider(db)
	repos := services.ScanRepositories{
		Runs:          repositories.NewScanRunRepository(),
		Tables:        repositories.NewScanTableRepository(),
		Relationships: repositories.NewRelationshipRepository(),
		Quality:       repositories.NewQualityRepository(),
		Docs:          repositories.NewDocRepository(),
	}

	// Runs left active by a previous process have no workers behind them.
	if err := failInterruptedRuns(ctx, scopes, repos.Runs, logger); err != nil {
		return err
	}

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Datasource.ConnectionTTLMinutes,
		MaxPools:     datasource.DefaultMaxPools,
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
	}, logger)
	defer connMgr.Close()
	adapterFactory := datasource.NewDatasourceAdapterFactory(connMgr)

	lock, events, closeBrokers, err := connectBrokers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBrokers()

	datasourceService := services.NewDatasourceService(
		repositories.NewDatasourceRepository(), encryptor, adapterFactory, connMgr, cfg.Scan.ConnectTimeout, logger)
	scanService := services.NewScanService(
		services.NewScanServiceConfig(cfg), datasourceService, repos, adapterFactory, lock, events, scopes, logger)
	metadataService := services.NewMetadataService(repos, logger)
	chatService := services.NewChatService(repos, logger)

	var scheduler *services.ScanScheduler
	var schedules services.ScheduleRegistrar
	if cfg.Scan.ScheduleEnabled {
		scheduler = services.NewScanScheduler(datasourceService, scanService, scopes, logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scan scheduler: %w", err)
		}
		schedules = scheduler
	}

	api := http.NewServeMux()
	handlers.NewDatasourcesHandler(datasourceService, schedules, logger).RegisterRoutes(api)
	handlers.NewScansHandler(scanService, logger).RegisterRoutes(api)
	handlers.NewTablesHandler(metadataService, logger).RegisterRoutes(api)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(api)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, connMgr, logger).RegisterRoutes(mux)
	mux.Handle("/api/", database.WithScope(db, logger)(api.ServeHTTP))

	var handler http.Handler = mux
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.CORS(cfg.CORS.AllowedOrigins)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting edda-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := scanService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Scan shutdown incomplete", zap.Error(err))
	}
	return nil
}

// migrate applies pending schema migrations over a database/sql handle.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func failInterruptedRuns(ctx context.Context, scopes *database.ScopeProvider, runs repositories.ScanRunRepository, logger *zap.Logger) error {
	scopedCtx, cleanup, err := scopes.WithScope(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := runs.FailActive(scopedCtx, "interrupted by engine restart")
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("Failed scan runs interrupted by restart", zap.Int64("count", n))
	}
	return nil
}

// connectBrokers wires the optional Redis scan lock and NATS event publisher.
// Either falls back to its in-process form when not configured.
func connectBrokers(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.ScanLock, services.ScanEventPublisher, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	lock := services.NewMemoryScanLock()
	if cfg.Redis.Host != "" {
		client, err := database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		// A crashed holder frees the slot once the run budget has passed.
		lock = services.NewRedisScanLock(client, cfg.Scan.RunTimeout, logger)
		logger.Info("Using Redis scan lock", zap.String("host", cfg.Redis.Host))
	}

	events := services.NewNoopScanEventPublisher()
	if cfg.NATS.URL != "" {
		conn, err := database.NewNATSConn(&cfg.NATS)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Drain() })
		events = services.NewNATSScanEventPublisher(conn, cfg.NATS.SubjectPrefix, logger)
		logger.Info("Publishing scan events to NATS", zap.String("prefix", cfg.NATS.SubjectPrefix))
	}

	return lock, events, closeAll, nil
}
