// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver performs reverse DNS lookups for display purposes only
// (component M): a failed or slow lookup never blocks a connection, it
// just leaves the session's host as its raw IP address.
type Resolver struct {
	client  *dns.Client
	servers []string
}

// NewResolver builds a Resolver from the system's /etc/resolv.conf,
// bounding every query by timeout.
func NewResolver(timeout time.Duration) (*Resolver, error) {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	servers := make([]string, len(cfg.Servers))
	for i, s := range cfg.Servers {
		servers[i] = net.JoinHostPort(s, cfg.Port)
	}

	return &Resolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
	}, nil
}

// PTR resolves ip to a hostname, trying each configured nameserver in
// turn until one answers. The trailing dot FQDN form is stripped
// before returning, since every other display surface expects a bare
// hostname.
func (r *Resolver) PTR(ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		reply, _, err := r.client.Exchange(msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ans := range reply.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", fmt.Errorf("no PTR record for %s", ip)
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("no nameservers reachable")
}
