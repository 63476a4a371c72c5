package sweep

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/agent462/sshdoctor/internal/classify"
)

func TestEnumerateHosts(t *testing.T) {
	tests := []struct {
		name     string
		cidr     string
		expected int
	}{
		{"single host /32", "192.168.1.1/32", 1},
		{"point to point /31", "192.168.1.0/31", 2},
		{"small subnet /30", "192.168.1.0/30", 2},
		{"class C /24", "10.0.0.0/24", 254},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, network, err := net.ParseCIDR(tt.cidr)
			if err != nil {
				t.Fatalf("parse CIDR %q: %v", tt.cidr, err)
			}
			hosts := EnumerateHosts(network)
			if len(hosts) != tt.expected {
				t.Errorf("expected %d hosts, got %d", tt.expected, len(hosts))
			}
		})
	}
}

func TestEnumerateHosts_SkipsNetworkAndBroadcast(t *testing.T) {
	_, network, err := net.ParseCIDR("192.168.1.0/30")
	if err != nil {
		t.Fatalf("parse CIDR: %v", err)
	}

	for _, h := range EnumerateHosts(network) {
		switch h.String() {
		case "192.168.1.0":
			t.Error("network address 192.168.1.0 must be skipped")
		case "192.168.1.3":
			t.Error("broadcast address 192.168.1.3 must be skipped")
		}
	}
}

func TestScan_OpenPortWithBanner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			fmt.Fprintf(conn, "SSH-2.0-OpenSSH_9.7\r\n")
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s := &Scanner{Concurrency: 1, Timeout: 2 * time.Second}

	hosts, err := s.Scan(context.Background(), "127.0.0.1/32", port)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("hosts = %d, want 1", len(hosts))
	}
	if !hosts[0].Open {
		t.Error("port should be reported open")
	}
	if hosts[0].Banner != "SSH-2.0-OpenSSH_9.7" {
		t.Errorf("banner = %q, want SSH-2.0-OpenSSH_9.7", hosts[0].Banner)
	}
}

func TestScan_ClosedPortClassified(t *testing.T) {
	// Grab an ephemeral port, then free it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := &Scanner{Concurrency: 1, Timeout: 500 * time.Millisecond}
	hosts, err := s.Scan(context.Background(), "127.0.0.1/32", port)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("hosts = %d, want 1", len(hosts))
	}
	if hosts[0].Open {
		t.Error("port should be reported closed")
	}
	if hosts[0].Detail == nil || hosts[0].Detail.Category != classify.CategoryPort {
		t.Errorf("detail = %+v, want a port classification", hosts[0].Detail)
	}
}

func TestScan_OpenOnlyDropsClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := &Scanner{Concurrency: 1, Timeout: 500 * time.Millisecond, OpenOnly: true}
	hosts, err := s.Scan(context.Background(), "127.0.0.1/32", port)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hosts) != 0 {
		t.Errorf("hosts = %d, want 0 with OpenOnly", len(hosts))
	}
}

func TestScan_InvalidCIDR(t *testing.T) {
	s := &Scanner{}
	if _, err := s.Scan(context.Background(), "not-a-cidr", 22); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestScan_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scanner{Concurrency: 4, Timeout: 2 * time.Second}
	hosts, err := s.Scan(ctx, "192.0.2.0/24", 22)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hosts) != 0 {
		t.Errorf("hosts = %d, want 0 after cancellation", len(hosts))
	}
}
