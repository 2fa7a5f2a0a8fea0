package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// Scan bounds.
const (
	defaultScanConcurrency = 16

	// maxScanHosts caps a sweep so a fat-fingered CIDR cannot turn into
	// a day-long probe of half the internet.
	maxScanHosts = 4096
)

// Found is one device that answered an active probe.
type Found struct {
	// Addr is the probed host address.
	Addr string

	// Info is the device's /api/device-info payload.
	Info map[string]any
}

// ProbeFunc asks one address whether a tally device lives there. The
// gateway's device-info query satisfies this.
type ProbeFunc func(ctx context.Context, addr string) (json.RawMessage, error)

// Scanner sweeps a CIDR for devices with bounded concurrency.
type Scanner struct {
	cidr        string
	concurrency int
	probe       ProbeFunc
	logger      Logger
}

// NewScanner creates a scanner over the given CIDR. concurrency <= 0
// uses the default.
func NewScanner(cidr string, concurrency int, probe ProbeFunc) *Scanner {
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}
	return &Scanner{
		cidr:        cidr,
		concurrency: concurrency,
		probe:       probe,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the scanner.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// Scan probes every host in the CIDR and returns the devices that
// answered. Individual probe failures are expected (most addresses are
// not tally devices) and silently skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Found, error) {
	hosts, err := expandCIDR(s.cidr)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}

	work := make(chan string)
	results := make(chan Found, len(hosts))

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for host := range work {
				s.probeHost(ctx, host, results)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, host := range hosts {
			select {
			case <-ctx.Done():
				return
			case work <- host:
			}
		}
	}()

	wg.Wait()
	close(results)

	var found []Found
	for f := range results {
		found = append(found, f)
	}
	s.logger.Info("discovery scan finished", "probed", len(hosts), "found", len(found))
	return found, ctx.Err()
}

func (s *Scanner) probeHost(ctx context.Context, host string, results chan<- Found) {
	raw, err := s.probe(ctx, host)
	if err != nil {
		return
	}
	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		s.logger.Debug("probe answered with invalid JSON", "host", host)
		return
	}
	results <- Found{Addr: host, Info: info}
}

// expandCIDR lists the usable host addresses in a CIDR, excluding the
// network and broadcast addresses for IPv4 subnets.
func expandCIDR(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parsing scan CIDR %q: %w", cidr, err)
	}

	var hosts []string
	for addr := ip.Mask(ipnet.Mask); ipnet.Contains(addr); incrementIP(addr) {
		hosts = append(hosts, addr.String())
		if len(hosts) > maxScanHosts {
			return nil, fmt.Errorf("scan CIDR %q spans more than %d hosts", cidr, maxScanHosts)
		}
	}

	// Drop network and broadcast addresses on IPv4 subnets with room
	// for them.
	if len(hosts) > 2 && ip.To4() != nil {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
