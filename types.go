package main

import "time"

// RR type codes used on the wire, per RFC 1035 plus the CAA/SRV extensions
// this service supports.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeMX    uint16 = 15
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeCAA   uint16 = 257
	TypeANY   uint16 = 255

	ClassINET uint16 = 1
)

// rrTypeNames maps the supported type codes to their store-facing string
// form, and back, so the HTTP/DDNS surface and the record store can share
// a single vocabulary with the wire codec.
var rrTypeNames = map[uint16]string{
	TypeA:     "A",
	TypeNS:    "NS",
	TypeCNAME: "CNAME",
	TypeSOA:   "SOA",
	TypePTR:   "PTR",
	TypeMX:    "MX",
	TypeTXT:   "TXT",
	TypeAAAA:  "AAAA",
	TypeSRV:   "SRV",
	TypeCAA:   "CAA",
	TypeANY:   "ANY",
}

var rrTypeCodes = func() map[string]uint16 {
	out := make(map[string]uint16, len(rrTypeNames))
	for code, name := range rrTypeNames {
		out[name] = code
	}
	return out
}()

func rrTypeName(code uint16) (string, bool) {
	name, ok := rrTypeNames[code]
	return name, ok
}

func rrTypeCode(name string) (uint16, bool) {
	code, ok := rrTypeCodes[name]
	return code, ok
}

// multiValuedTypes are the RR types for which the selection engine returns
// every enabled, matching row rather than picking a single winner.
var multiValuedTypes = map[string]bool{
	"NS":  true,
	"MX":  true,
	"TXT": true,
	"CAA": true,
	"SRV": true,
	"PTR": true,
	"SOA": true,
}

// ZoneModel is the durable row for a zone this server is authoritative for.
// Name is stored bare (no trailing dot); comparisons against query names use
// the canonical trailing-dot form via fqdn.
type ZoneModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    *uint64
	Name      string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
}

func (ZoneModel) TableName() string { return "zones" }

func (z ZoneModel) fqdn() string { return normalizeName(z.Name) }

// RecordModel is the durable row backing a single answer candidate.
type RecordModel struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	ZoneID            uint64 `gorm:"not null;index:idx_zone_fqdn_type"`
	FQDN              string `gorm:"size:255;not null;index:idx_fqdn_type;index:idx_zone_fqdn_type"`
	Type              string `gorm:"size:10;not null;index:idx_fqdn_type;index:idx_zone_fqdn_type"`
	TTL               uint32 `gorm:"not null"`
	Value             string `gorm:"size:1024;not null"`
	Weight            int    `gorm:"not null;default:100"`
	GeoCIDRs          string `gorm:"column:geo_cidrs;type:text;not null;default:''"`
	Enabled           bool   `gorm:"not null;default:true;index:idx_enabled_healthcheck"`
	HealthcheckURL    string `gorm:"size:512;index:idx_enabled_healthcheck"`
	Healthy           bool   `gorm:"not null;default:true"`
	LastHealthCheckAt *time.Time
	LastHealthError   string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (RecordModel) TableName() string { return "records" }

// geoCIDRList splits the stored comma-separated CIDR list.
func (r RecordModel) geoCIDRList() []string {
	return splitCSV(r.GeoCIDRs)
}

// DDNSCredentialModel binds an opaque token (stored only as its SHA-256
// hash) to a single fqdn within a zone.
type DDNSCredentialModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"not null"`
	ZoneID    uint64 `gorm:"not null"`
	FQDN      string `gorm:"size:255;not null"`
	TokenHash string `gorm:"size:64;uniqueIndex"`
	TTL       uint32 `gorm:"not null;default:60"`
	Enabled   bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

func (DDNSCredentialModel) TableName() string { return "ddns_credentials" }

// DDNSAuditModel records one DDNS mutation for later inspection.
type DDNSAuditModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	CredentialID  uint64 `gorm:"not null;index"`
	IP            string `gorm:"size:64;not null"`
	PreviousValue string `gorm:"size:64"`
	NewValue      string `gorm:"size:64;not null"`
	UserAgent     string `gorm:"size:512"`
	CreatedAt     time.Time
}

func (DDNSAuditModel) TableName() string { return "ddns_audit" }

// config is the process-wide configuration, read once at startup from the
// DNS_* environment variables in spec section 6.
type config struct {
	Host                  string
	Port                  string
	HTTPPort              string
	DBPath                string
	CacheTTL              time.Duration
	HealthCheckInterval   time.Duration
	HealthCheckTimeout    time.Duration
	RateLimitQPS          float64
	RateLimitBurst        float64
	RateLimitBlockSeconds time.Duration
}

// server bundles the wired-up components the DNS loop, health checker, and
// DDNS HTTP surface all share.
type server struct {
	cfg     config
	store   *recordStore
	cache   *lookupCache
	limiter *rateLimiter
	rng     rngSource
	start   time.Time
}
