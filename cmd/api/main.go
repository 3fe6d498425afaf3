package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MunnymanCommunications/gemdesign/internal/cache"
	"github.com/MunnymanCommunications/gemdesign/internal/client"
	"github.com/MunnymanCommunications/gemdesign/internal/config"
	"github.com/MunnymanCommunications/gemdesign/internal/db"
	httpserver "github.com/MunnymanCommunications/gemdesign/internal/http"
	"github.com/MunnymanCommunications/gemdesign/internal/repository"
	"github.com/MunnymanCommunications/gemdesign/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	log := newLogger(cfg.Server.LogLevel)
	log.Info().Str("port", cfg.Server.Port).Msg("starting entitlement service")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Repositories
	rolesRepo := repository.NewRolesRepository(pool)
	grantsRepo := repository.NewGrantsRepository(pool)
	subsRepo := repository.NewSubscriptionRepository(pool)
	docsRepo := repository.NewDocumentsRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// Clients
	billingClient := client.NewBillingClient(cfg.Billing.ServiceURL, cfg.InternalSecret)

	// Cache: redis when configured, in-process otherwise
	var entCache cache.EntitlementCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		entCache = cache.NewRedisCache(rdb, "", cfg.Cache.RetainFor)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis entitlement cache")
	} else {
		entCache = cache.NewMemoryCache(cfg.Cache.RetainFor)
		log.Info().Msg("using in-memory entitlement cache")
	}

	// Services
	entitlementService := service.NewEntitlementService(
		cfg, rolesRepo, grantsRepo, subsRepo, docsRepo, settingsRepo, auditRepo,
		billingClient, entCache, log,
	)
	adminService := service.NewAdminService(
		grantsRepo, settingsRepo, auditRepo, billingClient, entCache, log,
	)

	// Periodic sync trigger: reconcile stale subscriptions, with jitter so
	// multiple instances do not stampede the billing collaborator.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Sync.Interval), func() {
		if cfg.Sync.Jitter > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(cfg.Sync.Jitter))))
		}
		syncCtx, cancel := context.WithTimeout(ctx, cfg.Sync.Interval)
		defer cancel()
		refreshed, err := entitlementService.ReconcileStale(syncCtx)
		if err != nil {
			log.Warn().Err(err).Msg("periodic entitlement sync failed")
			return
		}
		if refreshed > 0 {
			log.Info().Int("refreshed", refreshed).Msg("periodic entitlement sync completed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule entitlement sync")
	}
	scheduler.Start()

	// HTTP server
	server := httpserver.NewServer(cfg, pool, entitlementService, adminService)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("server listening")
		if err := server.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("server exited")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
