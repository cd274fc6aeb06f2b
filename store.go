package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/miekg/dns"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordStore is the durable backend: one sqlite file accessed through
// gorm, with prepared statements kept alive on the handle so repeated
// lookups don't re-plan the same query per request.
type recordStore struct {
	db *gorm.DB
}

func newRecordStore(dbPath string) (*recordStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &recordStore{db: db}, nil
}

var errCNAMEConflict = errors.New("cannot coexist with an existing CNAME/A record for this name")

// candidates returns every row for fqdn regardless of type, ordered by ID
// ascending so downstream weighted selection has a fixed, reproducible
// starting order.
func (s *recordStore) candidates(fqdn string) ([]RecordModel, error) {
	var rows []RecordModel
	err := s.db.Where("fqdn = ?", normalizeName(fqdn)).Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return rows, nil
}

// resolveZone finds the zone this server is authoritative for that owns
// name, walking from the full name upward one label at a time so a zone
// boundary is never crossed by accident (a naive suffix LIKE match would
// match "notexample.com" against a zone named "example.com").
func (s *recordStore) resolveZone(name string) (ZoneModel, bool, error) {
	candidate := bareName(name)
	for {
		var zone ZoneModel
		err := s.db.Where("name = ?", candidate).First(&zone).Error
		if err == nil {
			return zone, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ZoneModel{}, false, fmt.Errorf("query zone: %w", err)
		}

		labels := dns.SplitDomainName(candidate)
		if len(labels) <= 1 {
			return ZoneModel{}, false, nil
		}
		candidate = strings.Join(labels[1:], ".")
	}
}

// authority returns the SOA row followed by the NS rows for a zone's apex,
// the order the DNS loop places records in a response's authority section.
func (s *recordStore) authority(zone ZoneModel) ([]RecordModel, error) {
	var rows []RecordModel
	err := s.db.Where("zone_id = ? AND fqdn = ? AND type IN ?", zone.ID, zone.fqdn(), []string{"SOA", "NS"}).
		Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query authority: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Type == "SOA" && rows[j].Type != "SOA"
	})
	return rows, nil
}

// healthTargets returns every enabled record carrying a healthcheck URL.
func (s *recordStore) healthTargets() ([]RecordModel, error) {
	var rows []RecordModel
	err := s.db.Where("enabled = ? AND healthcheck_url <> ''", true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query health targets: %w", err)
	}
	return rows, nil
}

func (s *recordStore) updateHealth(id uint64, healthy bool, checkErr string, checkedAt time.Time) error {
	err := s.db.Model(&RecordModel{}).Where("id = ?", id).Updates(map[string]any{
		"healthy":              healthy,
		"last_health_error":    checkErr,
		"last_health_check_at": checkedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("update health: %w", err)
	}
	return nil
}

// insertRecord validates the CNAME/A coexistence constraint and inserts
// one row. It does not touch the lookup cache; callers are responsible
// for clearing it.
func (s *recordStore) insertRecord(rec RecordModel) (RecordModel, error) {
	rec.FQDN = normalizeName(rec.FQDN)
	rec.Type = strings.ToUpper(strings.TrimSpace(rec.Type))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		conflict, err := hasCoexistenceConflict(tx, rec.FQDN, rec.Type, 0)
		if err != nil {
			return err
		}
		if conflict {
			return errCNAMEConflict
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return RecordModel{}, err
	}
	return rec, nil
}

func hasCoexistenceConflict(tx *gorm.DB, fqdn, newType string, excludeID uint64) (bool, error) {
	if newType != "CNAME" && newType != "A" && newType != "AAAA" {
		return false, nil
	}

	other := "CNAME"
	if newType == "CNAME" {
		other = "A"
	}
	types := []string{other}
	if newType == "CNAME" {
		types = []string{"A", "AAAA"}
	}

	var count int64
	q := tx.Model(&RecordModel{}).Where("fqdn = ? AND enabled = ? AND type IN ?", fqdn, true, types)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check coexistence: %w", err)
	}
	return count > 0, nil
}

// replaceARecord implements the DDNS write path: it deletes every A row
// for zone+fqdn and inserts a single new one, atomically, returning
// whether the value actually changed.
func (s *recordStore) replaceARecord(zone ZoneModel, fqdn, ip string, ttl uint32) (changed bool, err error) {
	fqdn = normalizeName(fqdn)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing []RecordModel
		if err := tx.Where("zone_id = ? AND fqdn = ? AND type = ?", zone.ID, fqdn, "A").Find(&existing).Error; err != nil {
			return fmt.Errorf("query existing A records: %w", err)
		}

		if len(existing) == 1 && existing[0].Value == ip {
			changed = false
			return nil
		}

		if err := tx.Where("zone_id = ? AND fqdn = ? AND type = ?", zone.ID, fqdn, "A").Delete(&RecordModel{}).Error; err != nil {
			return fmt.Errorf("delete existing A records: %w", err)
		}

		rec := RecordModel{
			ZoneID:  zone.ID,
			FQDN:    fqdn,
			Type:    "A",
			TTL:     ttl,
			Value:   ip,
			Weight:  100,
			Enabled: true,
			Healthy: true,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert A record: %w", err)
		}

		changed = true
		return nil
	})
	return changed, err
}

// bumpSerial sets a zone's SOA serial to max(serial+1, unix now), per the
// redesigned DDNS-mutation behavior.
func (s *recordStore) bumpSerial(zone ZoneModel) error {
	var soa RecordModel
	err := s.db.Where("zone_id = ? AND fqdn = ? AND type = ?", zone.ID, zone.fqdn(), "SOA").First(&soa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query soa: %w", err)
	}

	fields := strings.Fields(soa.Value)
	if len(fields) != 7 {
		return fmt.Errorf("malformed soa value for zone %s", zone.Name)
	}

	var serial uint64
	if _, err := fmt.Sscanf(fields[2], "%d", &serial); err != nil {
		return fmt.Errorf("parse soa serial: %w", err)
	}

	next := serial + 1
	if now := uint64(time.Now().Unix()); now > next {
		next = now
	}
	fields[2] = fmt.Sprintf("%d", next)

	return s.db.Model(&RecordModel{}).Where("id = ?", soa.ID).Update("value", strings.Join(fields, " ")).Error
}

func (s *recordStore) credentialByTokenHash(hash string) (DDNSCredentialModel, bool, error) {
	var cred DDNSCredentialModel
	err := s.db.Where("token_hash = ? AND enabled = ?", hash, true).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DDNSCredentialModel{}, false, nil
	}
	if err != nil {
		return DDNSCredentialModel{}, false, fmt.Errorf("query credential: %w", err)
	}
	return cred, true, nil
}

func (s *recordStore) appendAudit(entry DDNSAuditModel) error {
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *recordStore) auditTrail(fqdn string) ([]DDNSAuditModel, error) {
	var creds []DDNSCredentialModel
	if err := s.db.Where("fqdn = ?", normalizeName(fqdn)).Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("query credentials for audit: %w", err)
	}
	if len(creds) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(creds))
	for i, c := range creds {
		ids[i] = c.ID
	}

	var entries []DDNSAuditModel
	err := s.db.Where("credential_id IN ?", ids).Order("created_at desc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	return entries, nil
}

func (s *recordStore) zoneByID(id uint64) (ZoneModel, error) {
	var zone ZoneModel
	if err := s.db.First(&zone, id).Error; err != nil {
		return ZoneModel{}, fmt.Errorf("query zone: %w", err)
	}
	return zone, nil
}
