package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/audit"
	"github.com/ekaya-inc/estimate-engine/pkg/auth"
	"github.com/ekaya-inc/estimate-engine/pkg/cache"
	"github.com/ekaya-inc/estimate-engine/pkg/config"
	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/handlers"
	"github.com/ekaya-inc/estimate-engine/pkg/logging"
	"github.com/ekaya-inc/estimate-engine/pkg/middleware"
	"github.com/ekaya-inc/estimate-engine/pkg/repositories"
	"github.com/ekaya-inc/estimate-engine/pkg/retry"
	"github.com/ekaya-inc/estimate-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", logging.SafeError(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("listen_addr", cfg.ListenAddr()),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host))

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}()
	}
	permCache := cache.NewPermissionCache(redisClient, cfg.Redis.PermissionCacheTTL, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, cfg.Auth.CookieName, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	// Repositories
	workspaceRepo := repositories.NewWorkspaceRepository()
	estimateRepo := repositories.NewEstimateRepository()
	columnRepo := repositories.NewColumnRepository()
	permissionRepo := repositories.NewPermissionRepository()
	historyRepo := repositories.NewHistoryRepository()
	rowRepo := repositories.NewRowRepository()
	cellRepo := repositories.NewCellRepository()
	userRepo := repositories.NewUserRepository()

	// Services
	tx := database.NewTxRunner()
	auditor := audit.NewSecurityAuditor(logger)
	userService := services.NewUserService(userRepo, logger)
	guard := services.NewAccessGuard(workspaceRepo, estimateRepo, logger)
	estimateService := services.NewEstimateService(guard, estimateRepo, columnRepo, rowRepo, auditor, logger)
	columnService := services.NewColumnService(guard, tx, columnRepo, permissionRepo, cellRepo,
		historyRepo, userService, permCache, auditor, logger)
	permissionService := services.NewPermissionService(guard, tx, columnRepo, permissionRepo, historyRepo,
		permCache, auditor, logger)
	rowService := services.NewRowService(guard, tx, columnRepo, rowRepo, cellRepo, permissionRepo, historyRepo,
		userService, permCache, auditor, logger)
	tableService := services.NewTableService(guard, columnRepo, permissionRepo, rowRepo, cellRepo,
		cfg.Export.SheetName, logger)

	// Every API route authenticates, then acquires a connection, then records the caller.
	withScope := database.WithScope(db, logger)
	syncUser := middleware.SyncUser(userService, logger)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuth(withScope(syncUser(h)))
	}

	mux := http.NewServeMux()
	health := handlers.NewHealthHandler(cfg, logger).WithCheck("postgres", db.Ping)
	if redisClient != nil {
		health = health.WithCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	health.RegisterRoutes(mux)
	handlers.NewEstimateHandler(estimateService, logger).RegisterRoutes(mux, protect)
	handlers.NewColumnHandler(columnService, permissionService, logger).RegisterRoutes(mux, protect)
	handlers.NewRowHandler(rowService, logger).RegisterRoutes(mux, protect)
	handlers.NewTableHandler(tableService, logger).RegisterRoutes(mux, protect)

	var handler http.Handler = mux
	handler = middleware.Recover(logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting estimate-engine", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// migrate applies pending migrations on a dedicated database/sql handle,
// which golang-migrate closes when done.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	err = retry.Do(context.Background(), startupRetry(logger, "postgres"), sqlDB.Ping)
	if err == nil {
		err = database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
	} else {
		_ = sqlDB.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	dbCfg := database.ConfigFromSettings(&cfg.Database)
	db, err := retry.DoWithResult(ctx, startupRetry(logger, "postgres"), func() (*database.DB, error) {
		return database.NewConnection(ctx, dbCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// connectRedis returns nil when no redis host is configured.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Redis.Host == "" {
		logger.Info("Redis not configured, permission cache disabled")
		return nil, nil
	}

	client, err := retry.DoWithResult(ctx, startupRetry(logger, "redis"), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func startupRetry(logger *zap.Logger, dependency string) *retry.Config {
	cfg := retry.StartupConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Dependency not ready, retrying",
			zap.String("dependency", dependency),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			logging.SafeError(err))
	}
	return cfg
}
