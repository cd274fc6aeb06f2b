package main

import (
	"context"
	"log"
	"net/http"
	"time"
)

// healthChecker periodically probes every record carrying a healthcheck
// URL and writes the result back to the store. It is disabled entirely
// when the configured interval is zero.
type healthChecker struct {
	store    *recordStore
	cache    *lookupCache
	client   *http.Client
	interval time.Duration
}

func newHealthChecker(store *recordStore, cache *lookupCache, timeout, interval time.Duration) *healthChecker {
	return &healthChecker{
		store:    store,
		cache:    cache,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
	}
}

func (h *healthChecker) run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runOnce(ctx)
		}
	}
}

func (h *healthChecker) runOnce(ctx context.Context) {
	targets, err := h.store.healthTargets()
	if err != nil {
		log.Printf("health check: list targets: %v", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	for _, target := range targets {
		healthy, checkErr := h.probe(ctx, target.HealthcheckURL)
		errMsg := ""
		if checkErr != nil {
			errMsg = checkErr.Error()
		}
		if err := h.store.updateHealth(target.ID, healthy, errMsg, time.Now()); err != nil {
			log.Printf("health check: update %s: %v", target.FQDN, err)
		}
	}

	h.cache.clear()
}

// probe reports a target healthy iff the HTTP status is below 500.
// Timeouts, transport errors, and 5xx responses all count as unhealthy.
func (h *healthChecker) probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500, nil
}
