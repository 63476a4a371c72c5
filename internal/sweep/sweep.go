// Package sweep probes a CIDR range for reachable SSH daemons.
package sweep

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agent462/sshdoctor/internal/classify"
)

// DefaultConcurrency bounds parallel dials during a sweep.
const DefaultConcurrency = 64

// Host is one address probed during a sweep.
type Host struct {
	Address string
	Port    int
	Open    bool
	// Banner is the SSH identification string, when one was read.
	Banner string
	// Detail classifies the failure for closed or unreachable hosts.
	Detail *classify.Detail
}

// Scanner sweeps address ranges. The zero value is usable.
type Scanner struct {
	// Concurrency bounds parallel dials; zero uses DefaultConcurrency.
	Concurrency int
	// Timeout bounds each dial; zero uses one second.
	Timeout time.Duration
	// OpenOnly drops unreachable hosts from the results.
	OpenOnly bool
}

// Scan probes every usable address in the CIDR range on the given
// port. Results come back sorted by address.
func (s *Scanner) Scan(ctx context.Context, cidr string, port int) ([]Host, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}

	ips := EnumerateHosts(network)
	if len(ips) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results []Host
		wg      sync.WaitGroup
		sem     = semaphore.NewWeighted(int64(s.concurrency()))
	)

	for _, ip := range ips {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(addr net.IP) {
			defer wg.Done()
			defer sem.Release(1)

			host := s.probe(addr.String(), port)
			if s.OpenOnly && !host.Open {
				return
			}
			mu.Lock()
			results = append(results, host)
			mu.Unlock()
		}(ip)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		ipA := net.ParseIP(results[i].Address).To4()
		ipB := net.ParseIP(results[j].Address).To4()
		if ipA != nil && ipB != nil {
			return binary.BigEndian.Uint32(ipA) < binary.BigEndian.Uint32(ipB)
		}
		return results[i].Address < results[j].Address
	})

	return results, nil
}

// probe dials one address and grabs the SSH banner when the daemon
// offers one.
func (s *Scanner) probe(addr string, port int) Host {
	host := Host{Address: addr, Port: port}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, fmt.Sprintf("%d", port)), s.timeout())
	if err != nil {
		d := classify.Classify(err)
		host.Detail = &d
		return host
	}
	defer conn.Close()

	host.Open = true
	host.Banner = readBanner(conn)
	return host
}

// readBanner reads the server's identification line. A server that
// stays silent or speaks something other than SSH yields an empty
// banner; the port still counts as open.
func readBanner(conn net.Conn) string {
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return ""
	}
	line := strings.TrimRight(strings.SplitN(string(buf[:n]), "\n", 2)[0], "\r")
	if !strings.HasPrefix(line, "SSH-") {
		return ""
	}
	return line
}

func (s *Scanner) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultConcurrency
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return time.Second
}

// EnumerateHosts returns all usable host IPs in the network. IPv4
// ranges larger than /31 skip the network and broadcast addresses;
// /31 point-to-point links use both addresses (RFC 3021).
func EnumerateHosts(network *net.IPNet) []net.IP {
	ip := network.IP.To4()
	if ip == nil {
		// IPv6 sweeps are not supported.
		return nil
	}

	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil
	}

	if ones == 32 {
		result := make(net.IP, 4)
		copy(result, ip)
		return []net.IP{result}
	}

	start := binary.BigEndian.Uint32(ip)
	size := uint32(1) << uint(bits-ones)

	var hosts []net.IP
	if ones == 31 {
		for i := uint32(0); i < size; i++ {
			addr := make(net.IP, 4)
			binary.BigEndian.PutUint32(addr, start+i)
			hosts = append(hosts, addr)
		}
		return hosts
	}

	for i := uint32(1); i < size-1; i++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, start+i)
		hosts = append(hosts, addr)
	}
	return hosts
}
