package main

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *recordStore {
	t.Helper()
	store, err := newRecordStore(filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("newRecordStore: %v", err)
	}
	return store
}

func TestResolveZoneLongestMatch(t *testing.T) {
	store := newTestStore(t)
	if err := store.db.Create(&ZoneModel{Name: "example.com"}).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}
	if err := store.db.Create(&ZoneModel{Name: "svc.example.com"}).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	zone, ok, err := store.resolveZone("api.svc.example.com")
	if err != nil {
		t.Fatalf("resolveZone: %v", err)
	}
	if !ok {
		t.Fatal("expected zone match")
	}
	if zone.Name != "svc.example.com" {
		t.Fatalf("unexpected zone match: %s", zone.Name)
	}
}

func TestResolveZoneRespectsLabelBoundary(t *testing.T) {
	store := newTestStore(t)
	if err := store.db.Create(&ZoneModel{Name: "example.com"}).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	_, ok, err := store.resolveZone("notexample.com")
	if err != nil {
		t.Fatalf("resolveZone: %v", err)
	}
	if ok {
		t.Fatal("expected no match across a label boundary")
	}
}

func TestInsertRecordRejectsCNAMEAndAConflict(t *testing.T) {
	store := newTestStore(t)
	zone := ZoneModel{Name: "example.com"}
	if err := store.db.Create(&zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	_, err := store.insertRecord(RecordModel{ZoneID: zone.ID, FQDN: "app.example.com.", Type: "A", TTL: 30, Value: "198.51.100.1", Weight: 100, Enabled: true, Healthy: true})
	if err != nil {
		t.Fatalf("insert A: %v", err)
	}

	_, err = store.insertRecord(RecordModel{ZoneID: zone.ID, FQDN: "app.example.com.", Type: "CNAME", TTL: 30, Value: "other.example.com.", Weight: 100, Enabled: true, Healthy: true})
	if err != errCNAMEConflict {
		t.Fatalf("expected coexistence conflict, got %v", err)
	}
}

func TestReplaceARecordReportsChanged(t *testing.T) {
	store := newTestStore(t)
	zone := ZoneModel{Name: "example.com"}
	if err := store.db.Create(&zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	changed, err := store.replaceARecord(zone, "home.example.com.", "203.0.113.5", 60)
	if err != nil {
		t.Fatalf("replaceARecord: %v", err)
	}
	if !changed {
		t.Fatal("expected first write to report changed")
	}

	changed, err = store.replaceARecord(zone, "home.example.com.", "203.0.113.5", 60)
	if err != nil {
		t.Fatalf("replaceARecord: %v", err)
	}
	if changed {
		t.Fatal("expected identical ip to report unchanged")
	}

	changed, err = store.replaceARecord(zone, "home.example.com.", "203.0.113.6", 60)
	if err != nil {
		t.Fatalf("replaceARecord: %v", err)
	}
	if !changed {
		t.Fatal("expected new ip to report changed")
	}

	rows, err := store.candidates("home.example.com.")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(rows) != 1 || rows[0].Value != "203.0.113.6" {
		t.Fatalf("expected exactly one current A row, got %#v", rows)
	}
}

func TestBumpSerialIncrements(t *testing.T) {
	store := newTestStore(t)
	zone := ZoneModel{Name: "example.com"}
	if err := store.db.Create(&zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}
	if err := store.db.Create(&RecordModel{
		ZoneID: zone.ID, FQDN: "example.com.", Type: "SOA", TTL: 3600,
		Value: "ns1.example.com. hostmaster.example.com. 5 3600 600 604800 60",
		Weight: 100, Enabled: true, Healthy: true,
	}).Error; err != nil {
		t.Fatalf("create soa: %v", err)
	}

	if err := store.bumpSerial(zone); err != nil {
		t.Fatalf("bumpSerial: %v", err)
	}

	authority, err := store.authority(zone)
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	soaRows := filterByType(authority, "SOA")
	if len(soaRows) != 1 {
		t.Fatalf("expected one soa row, got %d", len(soaRows))
	}
	if soaRows[0].Value == "ns1.example.com. hostmaster.example.com. 5 3600 600 604800 60" {
		t.Fatal("expected serial to change")
	}
}

func TestCredentialAndAuditTrail(t *testing.T) {
	store := newTestStore(t)
	zone := ZoneModel{Name: "example.com"}
	if err := store.db.Create(&zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}

	cred := DDNSCredentialModel{UserID: 1, ZoneID: zone.ID, FQDN: "home.example.com.", TokenHash: hashToken("secret-token"), TTL: 60, Enabled: true}
	if err := store.db.Create(&cred).Error; err != nil {
		t.Fatalf("create credential: %v", err)
	}

	found, ok, err := store.credentialByTokenHash(hashToken("secret-token"))
	if err != nil {
		t.Fatalf("credentialByTokenHash: %v", err)
	}
	if !ok || found.FQDN != "home.example.com." {
		t.Fatalf("unexpected credential lookup result: %#v ok=%v", found, ok)
	}

	if err := store.appendAudit(DDNSAuditModel{CredentialID: cred.ID, IP: "203.0.113.9", NewValue: "203.0.113.9"}); err != nil {
		t.Fatalf("appendAudit: %v", err)
	}

	entries, err := store.auditTrail("home.example.com.")
	if err != nil {
		t.Fatalf("auditTrail: %v", err)
	}
	if len(entries) != 1 || entries[0].NewValue != "203.0.113.9" {
		t.Fatalf("unexpected audit trail: %#v", entries)
	}
}
