package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// loadConfig reads the DNS_* environment variables once at startup.
func loadConfig() config {
	healthTimeout := time.Duration(envOrDefaultUint32("DNS_HEALTH_CHECK_TIMEOUT_MS", 3000)) * time.Millisecond
	if healthTimeout < 250*time.Millisecond {
		healthTimeout = 250 * time.Millisecond
	}

	return config{
		Host:                  envOrDefault("DNS_HOST", "0.0.0.0"),
		Port:                  envOrDefault("DNS_PORT", "5353"),
		HTTPPort:              envOrDefault("DNS_HTTP_PORT", "8080"),
		DBPath:                envOrDefault("DNS_DB_PATH", "./data/dns.sqlite"),
		CacheTTL:              time.Duration(envOrDefaultUint32("DNS_CACHE_TTL_SECONDS", 5)) * time.Second,
		HealthCheckInterval:   time.Duration(envOrDefaultUint32("DNS_HEALTH_CHECK_INTERVAL_SECONDS", 10)) * time.Second,
		HealthCheckTimeout:    healthTimeout,
		RateLimitQPS:          envOrDefaultFloat("DNS_RATE_LIMIT_QPS", 200),
		RateLimitBurst:        envOrDefaultFloat("DNS_RATE_LIMIT_BURST", 400),
		RateLimitBlockSeconds: time.Duration(envOrDefaultUint32("DNS_RATE_LIMIT_BLOCK_SECONDS", 10)) * time.Second,
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envOrDefaultUint32(key string, fallback uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}

	return uint32(n)
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return fallback
	}

	return n
}
