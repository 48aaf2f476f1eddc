package tunnel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigJSONContract(t *testing.T) {
	cfg := &Config{
		Endpoint:            "https://pangolin.example.com",
		ID:                  "tun-1",
		Secret:              "s3cret",
		MTU:                 1280,
		Holepunch:           true,
		PingIntervalSeconds: 10,
		PingTimeoutSeconds:  30,
	}

	out, err := cfg.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	// Optional identity fields are omitted when empty.
	assert.NotContains(t, doc, "userToken")
	assert.NotContains(t, doc, "orgId")

	// upstreamDNS is always present, as an empty array when unset.
	dns, ok := doc["upstreamDNS"].([]any)
	require.True(t, ok, "upstreamDNS must serialize as an array")
	assert.Empty(t, dns)

	assert.Equal(t, "https://pangolin.example.com", doc["endpoint"])
	assert.Equal(t, float64(10), doc["pingIntervalSeconds"])
	assert.Equal(t, true, doc["holepunch"])
}

func TestConfigJSONWithIdentity(t *testing.T) {
	cfg := &Config{
		Endpoint:    "https://pangolin.example.com",
		ID:          "tun-1",
		Secret:      "s3cret",
		UserToken:   "tok",
		OrgID:       "org-7",
		UpstreamDNS: []string{"1.1.1.1"},
	}

	out, err := cfg.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "tok", doc["userToken"])
	assert.Equal(t, "org-7", doc["orgId"])
	assert.Equal(t, []any{"1.1.1.1"}, doc["upstreamDNS"])
}

func TestConfigLogValueRedactsSecrets(t *testing.T) {
	cfg := &Config{Secret: "s3cret", UserToken: "tok"}
	v := cfg.LogValue()

	for _, attr := range v.Group() {
		switch attr.Key {
		case "secret", "userToken":
			assert.Equal(t, "[REDACTED]", attr.Value.String())
		}
		assert.NotContains(t, attr.Value.String(), "s3cret")
		assert.NotContains(t, attr.Value.String(), "tok")
	}
}

func TestInitConfigJSONDefaultsLogLevel(t *testing.T) {
	cfg := &InitConfig{EnableAPI: true, SocketPath: "/tmp/olm.sock", Agent: "android"}
	out, err := cfg.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "info", doc["logLevel"])
	assert.Equal(t, true, doc["enableAPI"])
	assert.Equal(t, "/tmp/olm.sock", doc["socketPath"])
}

func TestResultError(t *testing.T) {
	assert.NoError(t, ResultError("startTunnel", "OK"))
	assert.NoError(t, ResultError("startTunnel", ""))

	err := ResultError("startTunnel", "Error: handshake failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake failed")
	assert.True(t, IsBackendError(err))
}
