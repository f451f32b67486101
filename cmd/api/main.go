package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/sessions"

	"staff-registry/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	users, err := core.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open credential store: %v", err)
	}
	defer users.Close()

	var (
		feed    *core.AccessFeed
		metrics *core.AuthMetrics
		redisP  core.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		feed = core.NewAccessFeed(redisClient, cfg.AccessFeedLimit)
		metrics = core.NewAuthMetrics(redisClient)
		redisP = core.RedisPinger{Client: redisClient}
	} else {
		log.Printf("REDIS_URL not set; access feed and auth metrics disabled")
	}

	hasher := core.NewBcryptHasher(cfg.BcryptCost)
	lockout := core.NewMemoryLockout(
		core.WithThreshold(cfg.LockoutThreshold),
		core.WithWindow(cfg.LockoutWindow),
	)
	authService := core.NewRepositoryAuthService(users, hasher, lockout,
		core.WithAccessFeed(feed),
		core.WithMetrics(metrics),
		core.WithStoreTimeout(cfg.StoreTimeout),
	)

	if err := core.BootstrapAdmin(ctx, users, hasher, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}
	if err := core.SeedDemoUser(ctx, users, hasher, cfg); err != nil {
		log.Fatalf("seed demo user failed: %v", err)
	}

	// Gorilla cookie store for session management.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	router := core.NewRouter(cfg, store, core.RouterDeps{
		Auth:     authService,
		Sessions: core.NewSessionManager(),
		Users:    users,
		Hasher:   hasher,
		Lockout:  lockout,
		Feed:     feed,
		Metrics:  metrics,
		Redis:    redisP,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting registry api on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
