package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxDoHMessageSize = 65535

func (s *server) runHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, s.cfg.HTTPPort),
		Handler:           s.newRouter(),
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("http listening on %s", httpServer.Addr)
	return httpServer.ListenAndServe()
}

func (s *server) newRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/dns-query", s.handleDoH)
	r.Post("/dns-query", s.handleDoH)
	r.Post("/v1/ddns/update", s.handleDDNSUpdate)
	r.Get("/v1/ddns/audit/{fqdn}", s.handleDDNSAudit)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"uptime_sec": int(time.Since(s.start).Seconds()),
	})
}

// handleDoH answers a wire-format DNS query carried over HTTP, through
// the same resolve() the UDP loop uses, per RFC 8484's GET/POST forms.
func (s *server) handleDoH(w http.ResponseWriter, r *http.Request) {
	var payload []byte

	switch r.Method {
	case http.MethodGet:
		q := strings.TrimSpace(r.URL.Query().Get("dns"))
		if q == "" {
			http.Error(w, "missing dns query parameter", http.StatusBadRequest)
			return
		}
		decoded, err := base64.RawURLEncoding.DecodeString(q)
		if err != nil {
			http.Error(w, "invalid base64url dns parameter", http.StatusBadRequest)
			return
		}
		payload = decoded
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDoHMessageSize))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		payload = body
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(payload) > maxDoHMessageSize {
		http.Error(w, "dns message too large", http.StatusRequestEntityTooLarge)
		return
	}

	query, ok := parseQuery(payload)
	if !ok {
		http.Error(w, "invalid dns message", http.StatusBadRequest)
		return
	}

	answers, authority, rcode := s.resolve(query, clientHost(r.RemoteAddr))

	resp, err := buildResponse(query, answers, authority, rcode)
	if err != nil {
		http.Error(w, "failed to encode dns response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/dns-message")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

type ddnsUpdateRequest struct {
	Token string `json:"token"`
	IP    string `json:"ip"`
}

func (s *server) handleDDNSUpdate(w http.ResponseWriter, r *http.Request) {
	var req ddnsUpdateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	result, err := s.applyDDNSUpdate(token, strings.TrimSpace(req.IP), r.UserAgent(), r)
	switch {
	case errors.Is(err, errInvalidToken):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, errInvalidIP):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		log.Printf("ddns update failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fqdn":    result.FQDN,
		"ip":      result.IP,
		"changed": result.Changed,
	})
}

// handleDDNSAudit lists past updates for a name. There is no separate
// admin API token surface (per scope, token issuance is external); the
// caller proves it owns the name the same way an update does, with the
// per-name DDNS token.
func (s *server) handleDDNSAudit(w http.ResponseWriter, r *http.Request) {
	fqdn := normalizeName(chi.URLParam(r, "fqdn"))
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token is required"})
		return
	}

	cred, ok, err := s.store.credentialByTokenHash(hashToken(token))
	if err != nil {
		log.Printf("ddns audit lookup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if !ok || cred.FQDN != fqdn {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token for this name"})
		return
	}

	entries, err := s.store.auditTrail(fqdn)
	if err != nil {
		log.Printf("ddns audit trail failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"fqdn": fqdn, "audit": entries})
}
