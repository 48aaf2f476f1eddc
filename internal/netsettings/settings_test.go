package netsettings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullDocument(t *testing.T) {
	doc := `{
		"tunnel_remote_address": "203.0.113.10",
		"mtu": 1420,
		"dns_servers": ["10.0.0.53", "10.0.0.54"],
		"ipv4_addresses": ["10.1.0.2", "10.2.0.2"],
		"ipv4_subnet_masks": ["255.255.255.0"],
		"ipv4_included_routes": [
			{"destination_address": "0.0.0.0", "subnet_mask": "0.0.0.0"},
			{"destination_address": "10.5.0.0", "subnet_mask": "255.255.0.0", "gateway_address": "10.1.0.1"}
		],
		"ipv6_addresses": ["fd00::2"],
		"ipv6_included_routes": [
			{"destination_address": "fd00::", "network_prefix_length": 64}
		]
	}`

	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.10", s.TunnelRemoteAddress)
	assert.Equal(t, 1420, s.EffectiveMTU())
	assert.Len(t, s.DNSServers, 2)
	assert.Len(t, s.IPv4Addresses, 2)
	assert.Len(t, s.IPv4IncludedRoutes, 2)
	assert.True(t, s.HasDefaultRoute())
}

func TestParseRejectsRouteWithoutDestination(t *testing.T) {
	_, err := Parse([]byte(`{"ipv4_included_routes": [{"subnet_mask": "255.255.255.0"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination_address")

	_, err = Parse([]byte(`{"ipv6_included_routes": [{"network_prefix_length": 64}]}`))
	require.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"mtu": `))
	require.Error(t, err)
}

func TestEffectiveMTUDefault(t *testing.T) {
	s, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1280, s.EffectiveMTU())

	zero := 0
	s = &Settings{MTU: &zero}
	assert.Equal(t, 1280, s.EffectiveMTU())
}

func TestPositionalDefaults(t *testing.T) {
	s := &Settings{
		IPv4Addresses:   []string{"10.0.0.2", "10.0.1.2", "10.0.2.2"},
		IPv4SubnetMasks: []string{"255.255.255.0"},
		IPv6Addresses:   []string{"fd00::2", "fd01::2"},
	}

	// Masks align positionally with addresses; the tail defaults to /32.
	assert.Equal(t, "255.255.255.0", s.IPv4MaskAt(0))
	assert.Equal(t, "255.255.255.255", s.IPv4MaskAt(1))
	assert.Equal(t, "255.255.255.255", s.IPv4MaskAt(2))

	// IPv6 prefixes default to /128.
	assert.Equal(t, 128, s.IPv6PrefixAt(0))
	assert.Equal(t, 128, s.IPv6PrefixAt(1))

	s.IPv6NetworkPrefixes = []string{"64"}
	assert.Equal(t, 64, s.IPv6PrefixAt(0))
	assert.Equal(t, 128, s.IPv6PrefixAt(1))
}

func TestSummary(t *testing.T) {
	s := &Settings{
		DNSServers:    []string{"10.0.0.53"},
		IPv4Addresses: []string{"10.0.0.2"},
		IPv4IncludedRoutes: []IPv4Route{
			{DestinationAddress: "0.0.0.0", IsDefault: true},
		},
	}
	sum := s.Summary()
	assert.Contains(t, sum, "mtu=1280")
	assert.Contains(t, sum, "default=true")
}
