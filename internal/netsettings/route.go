package netsettings

import (
	"math/bits"
	"net"
	"strconv"
)

// IPv4Route describes a single IPv4 route entry in a settings snapshot.
type IPv4Route struct {
	DestinationAddress string `json:"destination_address"`
	SubnetMask         string `json:"subnet_mask,omitempty"`
	GatewayAddress     string `json:"gateway_address,omitempty"`
	IsDefault          bool   `json:"is_default,omitempty"`
}

// PrefixLength converts the route's subnet mask to a prefix length via
// population count. A missing or invalid mask yields 32 (host route).
func (r IPv4Route) PrefixLength() int {
	return SubnetMaskToPrefixLength(r.SubnetMask)
}

// IsDefaultRoute reports whether the route should be treated as a default
// route: either the explicit flag is set or the mask resolves to /0.
func (r IPv4Route) IsDefaultRoute() bool {
	if r.IsDefault {
		return true
	}
	return r.SubnetMask != "" && r.PrefixLength() == 0
}

// IPv6Route describes a single IPv6 route entry in a settings snapshot.
type IPv6Route struct {
	DestinationAddress  string `json:"destination_address"`
	NetworkPrefixLength int    `json:"network_prefix_length,omitempty"`
	GatewayAddress      string `json:"gateway_address,omitempty"`
	IsDefault           bool   `json:"is_default,omitempty"`
}

// EffectivePrefixLength returns the prefix length to apply when installing
// the route. A zero or negative prefix is applied as /128; the zero value is
// still significant for default-route detection.
func (r IPv6Route) EffectivePrefixLength() int {
	if r.NetworkPrefixLength > 0 {
		return r.NetworkPrefixLength
	}
	return 128
}

// IsDefaultRoute reports whether the route should be treated as a default
// route.
func (r IPv6Route) IsDefaultRoute() bool {
	return r.IsDefault || r.NetworkPrefixLength == 0
}

// SubnetMaskToPrefixLength converts a dotted-quad subnet mask to a prefix
// length ("255.255.255.0" -> 24). Empty or unparseable masks yield 32.
func SubnetMaskToPrefixLength(mask string) int {
	if mask == "" {
		return 32
	}
	ip := net.ParseIP(mask)
	if ip == nil {
		return 32
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	prefix := 0
	for _, b := range ip {
		prefix += bits.OnesCount8(b)
	}
	return prefix
}

// parsePrefix parses a prefix-length string, falling back to 128 when the
// value is absent or malformed.
func parsePrefix(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 128
	}
	return n
}
