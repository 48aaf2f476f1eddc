// Package diag contains connectivity probes for troubleshooting an active
// tunnel session.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DNSResult is the outcome of one DNS probe.
type DNSResult struct {
	Server    string        `json:"server"`
	Name      string        `json:"name"`
	RTT       time.Duration `json:"rtt"`
	Rcode     string        `json:"rcode"`
	Addresses []string      `json:"addresses,omitempty"`
}

// DNSProbe resolves names against a specific DNS server, bypassing the
// system resolver so a tunnel-provided server can be tested directly.
type DNSProbe struct {
	client *dns.Client
	log    *slog.Logger
}

// NewDNSProbe creates a probe. Timeout bounds each query.
func NewDNSProbe(timeout time.Duration, log *slog.Logger) *DNSProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &DNSProbe{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		log:    log,
	}
}

// Lookup queries the given server for A records of name.
func (p *DNSProbe) Lookup(ctx context.Context, server, name string) (*DNSResult, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	resp, rtt, err := p.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("query %s via %s: %w", name, server, err)
	}

	result := &DNSResult{
		Server: server,
		Name:   name,
		RTT:    rtt,
		Rcode:  dns.RcodeToString[resp.Rcode],
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			result.Addresses = append(result.Addresses, a.A.String())
		}
	}
	p.log.Debug("dns probe complete", "server", server, "name", name,
		"rcode", result.Rcode, "rtt", rtt, "answers", len(result.Addresses))
	return result, nil
}
