package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

const maxUDPMessageSize = 512

// runDNS serves UDP queries until ctx is cancelled. Each datagram is
// handled in its own goroutine so a slow store lookup or health probe
// never blocks the read loop from picking up the next packet.
func (s *server) runDNS(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve udp addr: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Printf("dns/udp listening on %s", addr)

	buf := make([]byte, 65535)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("dns/udp read: %w", err)
			}
		}

		payload := append([]byte(nil), buf[:n]...)
		go s.handleDatagram(conn, remote, payload)
	}
}

func (s *server) handleDatagram(conn *net.UDPConn, remote *net.UDPAddr, payload []byte) {
	query, ok := parseQuery(payload)
	if !ok {
		return
	}

	if !s.limiter.allow(remote.IP.String(), time.Now()) {
		resp, err := buildResponse(query, nil, nil, RcodeRefused)
		if err != nil {
			return
		}
		_, _ = conn.WriteToUDP(resp, remote)
		return
	}

	answers, authority, rcode := s.resolve(query, remote.IP.String())

	resp, err := buildResponse(query, answers, authority, rcode)
	if err != nil {
		log.Printf("dns/udp build response for %s: %v", query.QName, err)
		return
	}

	if len(resp) > maxUDPMessageSize {
		resp, err = buildResponse(query, nil, nil, RcodeServFail)
		if err != nil {
			return
		}
	}

	_, _ = conn.WriteToUDP(resp, remote)
}
