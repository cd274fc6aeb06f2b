package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// hashToken returns the SHA-256 hex digest of a token. DDNS credentials
// are looked up by this hash so the plaintext token is never stored;
// the lookup only needs equality, not a slow, salted comparison, since
// the token itself carries all the entropy.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// resolveClientIP picks the address a DDNS update should apply, in
// priority order: an explicit argument, the first hop in
// X-Forwarded-For, then X-Real-IP. Only IPv4 addresses are accepted, per
// the credential's A-record write path.
func resolveClientIP(r *http.Request, explicit string) (string, bool) {
	if explicit != "" {
		return validIPv4(explicit)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip, ok := validIPv4(first); ok {
			return ip, true
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if ip, ok := validIPv4(xri); ok {
			return ip, true
		}
	}

	return "", false
}

func validIPv4(s string) (string, bool) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "", false
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", false
	}
	return v4.String(), true
}

// ddnsResult is what a successful update reports back to the caller.
type ddnsResult struct {
	FQDN    string
	IP      string
	Changed bool
}

// applyDDNSUpdate is the full update path: hash the token, look up its
// credential, resolve the target IP, replace the A record for that
// fqdn atomically, log an audit row, bump the zone serial if the value
// actually changed, and clear the cache.
func (s *server) applyDDNSUpdate(token, explicitIP, userAgent string, r *http.Request) (ddnsResult, error) {
	cred, ok, err := s.store.credentialByTokenHash(hashToken(token))
	if err != nil {
		return ddnsResult{}, fmt.Errorf("lookup credential: %w", err)
	}
	if !ok {
		return ddnsResult{}, errInvalidToken
	}

	ip, ok := resolveClientIP(r, explicitIP)
	if !ok {
		return ddnsResult{}, errInvalidIP
	}

	zone, err := s.store.zoneByID(cred.ZoneID)
	if err != nil {
		return ddnsResult{}, fmt.Errorf("load zone: %w", err)
	}

	previous, _ := s.currentARecord(zone, cred.FQDN)

	changed, err := s.store.replaceARecord(zone, cred.FQDN, ip, cred.TTL)
	if err != nil {
		return ddnsResult{}, fmt.Errorf("replace a record: %w", err)
	}

	if err := s.store.appendAudit(DDNSAuditModel{
		CredentialID:  cred.ID,
		IP:            ip,
		PreviousValue: previous,
		NewValue:      ip,
		UserAgent:     userAgent,
	}); err != nil {
		return ddnsResult{}, fmt.Errorf("append audit: %w", err)
	}

	if changed {
		if err := s.store.bumpSerial(zone); err != nil {
			return ddnsResult{}, fmt.Errorf("bump serial: %w", err)
		}
		s.cache.clear()
	}

	return ddnsResult{FQDN: cred.FQDN, IP: ip, Changed: changed}, nil
}

func (s *server) currentARecord(zone ZoneModel, fqdn string) (string, bool) {
	rows, err := s.store.candidates(fqdn)
	if err != nil {
		return "", false
	}
	for _, r := range rows {
		if r.ZoneID == zone.ID && r.Type == "A" {
			return r.Value, true
		}
	}
	return "", false
}

var (
	errInvalidToken = errors.New("invalid or disabled ddns token")
	errInvalidIP    = errors.New("no valid ipv4 address supplied")
)
