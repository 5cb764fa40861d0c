package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"olive-agenda/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	gin.SetMode(gin.ReleaseMode)

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := core.Migrate(ctx, db); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	// redis is only needed for server-side sessions
	var sessionRedis redis.UniversalClient
	ready := []func(context.Context) error{db.Ping}
	if cfg.SessionBackend == core.SessionBackendRedis {
		redisClient, err := core.NewRedisClient(ctx, cfg.RedisURL, cfg.StoreTimeout)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		sessionRedis = redisClient
	}

	store, err := core.NewSessionStore(cfg, sessionRedis)
	if err != nil {
		log.Fatalf("failed to create session store: %v", err)
	}
	if rs, ok := store.(*core.RedisStore); ok {
		ready = append(ready, rs.Ping)
	}

	userRepo := core.NewPgUserRepository(db)
	authService := core.NewRepositoryAuthService(userRepo, cfg.BcryptCost, cfg.StoreTimeout)

	if err := core.BootstrapAdmin(ctx, userRepo, cfg, logger); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, core.Deps{
		Logger:   logger,
		Sessions: store,
		Auth:     authService,
		Agenda:   core.NewPgAgendaRepository(db),
		Metrics:  core.NewMetrics(),
		Ready:    core.ReadyCheck(ready...),
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	if err := core.Serve(ctx, addr, router, logger); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
