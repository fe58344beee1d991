// Package main provides the main entry point for the boost scheduling engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirphl/booster/app/adapters"
	"github.com/amirphl/booster/app/handlers"
	"github.com/amirphl/booster/app/middleware"
	"github.com/amirphl/booster/app/router"
	"github.com/amirphl/booster/app/scheduler"
	"github.com/amirphl/booster/app/services"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/amirphl/booster/config"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// booster token <service> <scope,scope> prints a service token and exits
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg.Auth, os.Args[2:]); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	if err := config.ValidateProductionConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logWriter := utils.NewLogWriter(utils.LogOptions{
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	log.SetOutput(logWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	log.Println("Starting booster application...")

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers after the last request has drained
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Println("Database schema migrated")
	}

	return db, nil
}

// initializeCache connects to Redis when enabled; a nil client means no cache
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity
// issues. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	if client == nil {
		return func() {}
	}
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return func() {
		cancel()
		_ = client.Close()
	}
}

// initializeProvider returns the upstream order provider selected by PROVIDER_MODE
func initializeProvider(cfg config.ProviderConfig) (services.ProviderClient, error) {
	if cfg.Mode == "mock" {
		log.Println("Using in-memory mock provider")
		return services.NewMockProviderClient(), nil
	}
	if cfg.APIKey == "" {
		log.Println("ERROR: provider api key is not configured; selections will use default services")
	}
	return services.NewProviderClient(cfg)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval))

	provider, err := initializeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	tariffRepo := repository.NewTariffRepository(db)
	stateRepo := repository.NewRotationStateRepository(db)
	orderRepo := repository.NewBoostOrderRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	distRepo := repository.NewDistributionRepository(db)
	demandRepo := repository.NewBoostDemandRepository(db)

	baseLogger := log.New(log.Writer(), "", log.Flags())
	clock := utils.SystemClock{}

	var locker businessflow.RotationLocker
	if rc != nil {
		locker = services.NewRedisLocker(rc, cfg.Cache.RedisPrefix)
	} else if cfg.Rotation.PointerMode == config.PointerModeRedis {
		log.Println("WARN: rotation pointer mode is redis but the cache is disabled; pointer writes are best effort")
	}

	// Initialize business flows
	rotationFlow := businessflow.NewRotationFlow(tariffRepo, stateRepo, orderRepo, provider, locker, cfg.Rotation, clock, utils.ComponentLogger(baseLogger, "[rotation]"))
	orderFlow := businessflow.NewOrderFlow(db, orderRepo, expenseRepo, provider, cfg.Pacing.PriceSettleDelay, utils.ComponentLogger(baseLogger, "[orders]"))
	tariffFlow := businessflow.NewTariffFlow(tariffRepo)
	expenseFlow := businessflow.NewExpenseReportFlow(expenseRepo, clock)

	engine := scheduler.NewBoostEngine(
		demandRepo,
		distRepo,
		tariffRepo,
		orderRepo,
		rotationFlow,
		orderFlow,
		cfg.Pacing,
		cfg.Rotation,
		clock,
		utils.ComponentLogger(baseLogger, "[pacing]"),
	)
	stopFuncs = append(stopFuncs, engine.Start(context.Background()))

	tokenService, err := services.NewTokenService(cfg.Auth.ServiceJWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	// Initialize handlers
	boostHandler := handlers.NewBoostHandler(adapters.NewHandlerBoostFlowAdapter(engine))
	tariffHandler := handlers.NewTariffAdminHandler(tariffFlow)
	expenseHandler := handlers.NewExpenseAdminHandler(expenseFlow)

	r := router.NewFiberRouter(cfg, middleware.NewAuthMiddleware(tokenService), boostHandler, tariffHandler, expenseHandler)

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}

// issueToken prints a service token for args[0] granting the comma separated scopes of args[1]
func issueToken(cfg config.AuthConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: booster token <service-name> <scope[,scope]>")
	}
	tokenService, err := services.NewTokenService(cfg.ServiceJWTSecret, cfg.Issuer, cfg.Audience, cfg.TokenTTL)
	if err != nil {
		return err
	}
	token, err := tokenService.GenerateServiceToken(args[0], strings.Split(args[1], ","))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
