// Package netsettings models the versioned network configuration snapshots
// published by the native tunnel backend.
package netsettings

import (
	"encoding/json"
	"fmt"
)

// Settings is an immutable snapshot of the tunnel interface configuration.
// Field names follow the backend's JSON document exactly; absent optional
// fields are omitted, not null.
type Settings struct {
	TunnelRemoteAddress string      `json:"tunnel_remote_address,omitempty"`
	MTU                 *int        `json:"mtu,omitempty"`
	DNSServers          []string    `json:"dns_servers,omitempty"`
	IPv4Addresses       []string    `json:"ipv4_addresses,omitempty"`
	IPv4SubnetMasks     []string    `json:"ipv4_subnet_masks,omitempty"`
	IPv4IncludedRoutes  []IPv4Route `json:"ipv4_included_routes,omitempty"`
	IPv4ExcludedRoutes  []IPv4Route `json:"ipv4_excluded_routes,omitempty"`
	IPv6Addresses       []string    `json:"ipv6_addresses,omitempty"`
	IPv6NetworkPrefixes []string    `json:"ipv6_network_prefixes,omitempty"`
	IPv6IncludedRoutes  []IPv6Route `json:"ipv6_included_routes,omitempty"`
	IPv6ExcludedRoutes  []IPv6Route `json:"ipv6_excluded_routes,omitempty"`
}

// Parse decodes a settings document from the backend.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse network settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// validate enforces the fields the backend is required to populate. Routes
// without a destination are malformed documents, not empty values.
func (s *Settings) validate() error {
	for _, routes := range [][]IPv4Route{s.IPv4IncludedRoutes, s.IPv4ExcludedRoutes} {
		for i, r := range routes {
			if r.DestinationAddress == "" {
				return fmt.Errorf("ipv4 route %d: missing destination_address", i)
			}
		}
	}
	for _, routes := range [][]IPv6Route{s.IPv6IncludedRoutes, s.IPv6ExcludedRoutes} {
		for i, r := range routes {
			if r.DestinationAddress == "" {
				return fmt.Errorf("ipv6 route %d: missing destination_address", i)
			}
		}
	}
	return nil
}

// EffectiveMTU returns the MTU to apply, defaulting to 1280 when the snapshot
// carries no positive value.
func (s *Settings) EffectiveMTU() int {
	if s.MTU != nil && *s.MTU > 0 {
		return *s.MTU
	}
	return 1280
}

// IPv4MaskAt returns the subnet mask paired with the IPv4 address at index i.
// The mask list is index-aligned with the address list; missing entries
// default to a host mask.
func (s *Settings) IPv4MaskAt(i int) string {
	if i < len(s.IPv4SubnetMasks) {
		return s.IPv4SubnetMasks[i]
	}
	return "255.255.255.255"
}

// IPv6PrefixAt returns the network prefix length paired with the IPv6 address
// at index i, defaulting to 128 when the prefix list is shorter or the entry
// is unparseable.
func (s *Settings) IPv6PrefixAt(i int) int {
	if i < len(s.IPv6NetworkPrefixes) {
		return parsePrefix(s.IPv6NetworkPrefixes[i])
	}
	return 128
}

// HasDefaultRoute reports whether any included route is a default route.
func (s *Settings) HasDefaultRoute() bool {
	for _, r := range s.IPv4IncludedRoutes {
		if r.IsDefaultRoute() {
			return true
		}
	}
	for _, r := range s.IPv6IncludedRoutes {
		if r.IsDefaultRoute() {
			return true
		}
	}
	return false
}

// Summary returns a compact description for logging.
func (s *Settings) Summary() string {
	return fmt.Sprintf("mtu=%d dns=%d v4addrs=%d v4routes=%d v6addrs=%d v6routes=%d default=%t",
		s.EffectiveMTU(), len(s.DNSServers),
		len(s.IPv4Addresses), len(s.IPv4IncludedRoutes),
		len(s.IPv6Addresses), len(s.IPv6IncludedRoutes),
		s.HasDefaultRoute())
}
