// Package probe implements single-shot connection probes: DNS and TCP
// reachability checks, and SSH authentication-method detection.
package probe

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/agent462/sshdoctor/internal/classify"
)

// DefaultProbeTimeout bounds each connectivity sub-step.
const DefaultProbeTimeout = 5 * time.Second

// bannerReadTimeout bounds the optional SSH banner grab after a
// successful TCP connect.
const bannerReadTimeout = time.Second

// Resolver resolves hostnames to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ConnectivityResult is the outcome of one connectivity probe.
// Detail is nil when both sub-steps pass.
type ConnectivityResult struct {
	DNSOK    bool
	PortOK   bool
	Addrs    []string
	Banner   string
	Detail   *classify.Detail
	Duration time.Duration
}

// Prober performs DNS and TCP reachability checks. The zero value is
// usable: it resolves with net.DefaultResolver and uses
// DefaultProbeTimeout per sub-step.
type Prober struct {
	Resolver Resolver
	Timeout  time.Duration
}

// Connectivity checks DNS resolution, then TCP reachability of
// (host, port). The TCP sub-step runs only if DNS succeeds: a DNS
// failure must never be reported as a port failure. The probe never
// retries internally.
func (p *Prober) Connectivity(ctx context.Context, host string, port int) (res ConnectivityResult) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	// Step 1: DNS. Loopback targets skip the real lookup.
	if isLoopback(host) {
		res.DNSOK = true
		res.Addrs = []string{host}
	} else {
		dnsCtx, cancel := context.WithTimeout(ctx, p.timeout())
		addrs, err := p.resolver().LookupHost(dnsCtx, host)
		cancel()
		if err != nil {
			d := classify.Classify(err)
			res.Detail = &d
			return res
		}
		res.DNSOK = true
		res.Addrs = addrs
	}

	// Step 2: TCP connect, only after DNS passed. The dial uses the
	// resolved address so the OS resolver is not consulted twice.
	dialAddr := host
	if len(res.Addrs) > 0 {
		dialAddr = res.Addrs[0]
	}
	dialer := net.Dialer{Timeout: p.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(dialAddr, strconv.Itoa(port)))
	if err != nil {
		d := classify.Classify(err)
		res.Detail = &d
		return res
	}
	defer conn.Close()
	res.PortOK = true
	res.Banner = readBanner(conn)
	return res
}

// readBanner grabs the SSH identification line if the server sends one
// promptly. The banner is advisory; failures are ignored.
func readBanner(conn net.Conn) string {
	if err := conn.SetReadDeadline(time.Now().Add(bannerReadTimeout)); err != nil {
		return ""
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "SSH-") {
		return ""
	}
	return line
}

func (p *Prober) resolver() Resolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return net.DefaultResolver
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProbeTimeout
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
