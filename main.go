package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg := loadConfig()

	store, err := newRecordStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	srv := &server{
		cfg:     cfg,
		store:   store,
		cache:   newLookupCache(cfg.CacheTTL),
		limiter: newRateLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst, cfg.RateLimitBlockSeconds),
		rng:     newRNG(time.Now().UnixNano()),
		start:   time.Now().UTC(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	evictStop := make(chan struct{})
	go srv.limiter.runEvictionLoop(evictStop)
	defer close(evictStop)

	checker := newHealthChecker(srv.store, srv.cache, cfg.HealthCheckTimeout, cfg.HealthCheckInterval)
	go checker.run(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.runDNS(ctx) }()
	go func() { errCh <- srv.runHTTP(ctx) }()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("fatal server error: %v", err)
		}
	}
}
