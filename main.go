package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/handlers"
	"dogpark-economy/metrics"
	"dogpark-economy/middleware"
	"dogpark-economy/services"
	"dogpark-economy/store"
	"dogpark-economy/store/memstore"
	"dogpark-economy/utils"
	"dogpark-economy/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if !dotenv {
		log.Info("⚠️  No .env file found, reading environment variables directly")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("❌ server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("🧪 using in-memory store, data is lost on restart")
		return memstore.New(), nil
	}
	db, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db, cfg.MigrateActivityTables); err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	economy, err := config.LoadEconomy(cfg.EconomyConfigPath)
	if err != nil {
		return err
	}
	log.Info("📒 economy tables loaded",
		zap.Int("version", economy.Version),
		zap.Int("levels", len(economy.Levels)),
		zap.Int("achievements", len(economy.Achievements.Definitions)))

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	rnd, err := services.NewRandom()
	if err != nil {
		return err
	}

	ledger := services.NewLedgerService(st, clock, log.Named("ledger"))
	notifications := services.NewNotificationService(st, clock, log.Named("notifications"))
	progression := services.NewProgressionService(st, ledger, notifications, economy, clock, log.Named("progression"))
	achievements := services.NewAchievementService(st, ledger, progression, notifications, economy, clock, log.Named("achievements"))
	spawns := services.NewSpawnService(st, economy, rnd, clock, log.Named("spawns"))
	svc := handlers.Services{
		Spawns:        spawns,
		Claims:        services.NewClaimService(st, ledger, achievements, clock, log.Named("claims")),
		Ledger:        ledger,
		Progression:   progression,
		Achievements:  achievements,
		Referrals:     services.NewReferralService(st, ledger, progression, achievements, notifications, rnd, economy, clock, log.Named("referrals")),
		Notifications: notifications,
	}

	sched, err := services.NewScheduler(clock, log.Named("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.ScheduleSpawns(ctx, spawns, cfg.SpawnInterval, cfg.SweepInterval); err != nil {
		return err
	}
	if cfg.R2.Enabled() {
		bucket, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			return err
		}
		if err := sched.ScheduleLedgerArchive(ctx, services.NewLedgerArchiver(st, bucket, log.Named("archive"))); err != nil {
			return err
		}
	} else {
		log.Info("📦 R2 not configured, ledger archive disabled")
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Warn("⚠️ scheduler shutdown", zap.Error(err))
		}
	}()
	// populate the map right away instead of waiting a full interval
	if err := sched.RunNow(services.JobSpawnGeneration); err != nil {
		log.Warn("⚠️ initial spawn generation not triggered", zap.Error(err))
	}

	if cfg.ProfileSyncEnabled() {
		workers.NewUserSyncWorker(st, cfg.ProfileSyncURL, cfg.ProfileSyncToken, cfg.ProfileSyncInterval, clock, log.Named("user-sync")).Start(ctx)
	} else {
		log.Info("👤 profile sync not configured, users table is not mirrored")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(metrics.Middleware())

	// probes bypass gateway auth
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// 🔐❗ everything else must come through the gateway
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, log.Named("gateway")))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, Cache-Control",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, svc, handlers.Options{
		ClaimLimiter: middleware.NewRateLimiter(cfg.ClaimRatePerSecond, cfg.ClaimBurst, log.Named("ratelimit")),
		Clock:        clock,
		Log:          log.Named("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()
	log.Info("✅ economy engine running", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}
