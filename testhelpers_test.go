package main

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *server {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "dns-test.db")
	store, err := newRecordStore(dbPath)
	if err != nil {
		t.Fatalf("newRecordStore: %v", err)
	}

	return &server{
		cfg: config{
			CacheTTL:              0,
			RateLimitQPS:          1000,
			RateLimitBurst:        1000,
			RateLimitBlockSeconds: time.Second,
		},
		store:   store,
		cache:   newLookupCache(0),
		limiter: newRateLimiter(1000, 1000, time.Second),
		rng:     newRNG(1),
		start:   time.Now().Add(-time.Second),
	}
}

// seedZone inserts a zone with a SOA and NS row, the minimum an
// authoritative answer needs, and returns the zone row.
func seedZone(t *testing.T, s *server, name string) ZoneModel {
	t.Helper()

	zone := ZoneModel{Name: name}
	if err := s.store.db.Create(&zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	fqdn := normalizeName(name)
	soa := RecordModel{
		ZoneID:  zone.ID,
		FQDN:    fqdn,
		Type:    "SOA",
		TTL:     3600,
		Value:   "ns1." + fqdn + " hostmaster." + fqdn + " 1 3600 600 604800 60",
		Weight:  100,
		Enabled: true,
		Healthy: true,
	}
	ns := RecordModel{
		ZoneID:  zone.ID,
		FQDN:    fqdn,
		Type:    "NS",
		TTL:     3600,
		Value:   "ns1." + fqdn,
		Weight:  100,
		Enabled: true,
		Healthy: true,
	}
	if err := s.store.db.Create(&soa).Error; err != nil {
		t.Fatalf("create soa: %v", err)
	}
	if err := s.store.db.Create(&ns).Error; err != nil {
		t.Fatalf("create ns: %v", err)
	}

	return zone
}

func seedRecord(t *testing.T, s *server, rec RecordModel) RecordModel {
	t.Helper()

	if rec.Weight == 0 {
		rec.Weight = 100
	}
	rec.FQDN = normalizeName(rec.FQDN)

	saved, err := s.store.insertRecord(rec)
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}
	return saved
}
