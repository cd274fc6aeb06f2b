package main

import (
	"net"
	"testing"
	"time"
)

func newUDPPipe(t *testing.T) (server, client *net.UDPConn) {
	t.Helper()

	loopback := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}

	server, err := net.ListenUDP("udp", loopback)
	if err != nil {
		t.Fatalf("listen server udp: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client, err = net.ListenUDP("udp", loopback)
	if err != nil {
		t.Fatalf("listen client udp: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return server, client
}

func TestHandleDatagramAnswersQuery(t *testing.T) {
	s := newTestServer(t)
	zone := seedZone(t, s, "example.com")
	seedRecord(t, s, RecordModel{ZoneID: zone.ID, FQDN: "app.example.com.", Type: "A", TTL: 25, Value: "198.51.100.10", Enabled: true, Healthy: true})

	server, client := newUDPPipe(t)
	remote := client.LocalAddr().(*net.UDPAddr)

	packet := buildQueryPacket(5, "app.example.com.", TypeA)
	s.handleDatagram(server, remote, packet)

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 512)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	resp := buf[:n]
	if rcode := resp[3] & 0x0F; rcode != RcodeNoError {
		t.Fatalf("expected NOERROR, got rcode %d", rcode)
	}
}

func TestHandleDatagramRateLimitedRepliesRefused(t *testing.T) {
	s := newTestServer(t)
	seedZone(t, s, "example.com")
	s.limiter = newRateLimiter(0, 0, time.Minute)

	server, client := newUDPPipe(t)
	remote := client.LocalAddr().(*net.UDPAddr)

	packet := buildQueryPacket(6, "app.example.com.", TypeA)
	s.handleDatagram(server, remote, packet)

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 512)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	resp := buf[:n]
	if id := uint16(resp[0])<<8 | uint16(resp[1]); id != 6 {
		t.Fatalf("expected echoed query id, got %d", id)
	}
	if rcode := resp[3] & 0x0F; rcode != RcodeRefused {
		t.Fatalf("expected REFUSED for a rate-limited datagram, got rcode %d", rcode)
	}
}
