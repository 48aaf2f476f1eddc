package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fosrl/pangolin-client/internal/config"
	"github.com/fosrl/pangolin-client/internal/manager"
	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/status"
	"github.com/fosrl/pangolin-client/internal/tunnel"
)

type okBackend struct{}

func (okBackend) InitOlm(string) (string, error)           { return "OK", nil }
func (okBackend) StartTunnel(int, string) (string, error)  { return "OK", nil }
func (okBackend) StopTunnel() (string, error)              { return "OK", nil }
func (okBackend) AddDevice(int) (string, error)            { return "OK", nil }
func (okBackend) NetworkSettingsVersion() (int64, error)   { return 0, nil }
func (okBackend) NetworkSettings() (string, error)         { return "{}", nil }
func (okBackend) SetPowerMode(string) (string, error)      { return "OK", nil }

type okService struct{}

func (okService) Authorized() bool                                 { return true }
func (okService) Start(time.Duration) (tunnel.Device, error)       { return okDevice{}, nil }
func (okService) Stop(time.Duration) error                         { return nil }

type okDevice struct{}

func (okDevice) Builder() tunnel.InterfaceBuilder { return &okBuilder{} }

type okBuilder struct{}

func (*okBuilder) SetSession(string)                 {}
func (*okBuilder) SetMTU(int)                        {}
func (*okBuilder) AllowFamily(tunnel.Family)         {}
func (*okBuilder) AddAddress(string, int) error      { return nil }
func (*okBuilder) AddDNSServer(string) error         { return nil }
func (*okBuilder) AddSearchDomain(string)            {}
func (*okBuilder) AddRoute(string, int) error        { return nil }
func (*okBuilder) SetMetered(bool)                   {}
func (*okBuilder) SetBlocking(bool)                  {}
func (*okBuilder) Establish() (tunnel.RawTun, error) { return okTun{}, nil }

type okTun struct{}

func (okTun) DetachFd() int { return 7 }
func (okTun) Close() error  { return nil }

func newTestAPI(t *testing.T) (*API, *manager.Manager) {
	t.Helper()
	cfg := config.DefaultClientConfig()
	cfg.Endpoint = "https://pangolin.example.com"
	cfg.Socket.Path = filepath.Join(t.TempDir(), "missing.sock")

	creds := manager.CredentialFunc(func(ctx context.Context) (manager.Credentials, error) {
		return manager.Credentials{ID: "tun-1", Secret: "s3cret"}, nil
	})
	controller := tunnel.NewController(okBackend{}, okService{}, tunnel.PollerConfig{Interval: time.Hour}, nil, nil)
	client := status.NewClient(cfg.Socket.Path, time.Second, nil)
	mgr := manager.New(cfg, creds, controller, client, nil, nil, nil)
	return New(mgr, metrics.New()), mgr
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["state"])
}

func TestVersionEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnectAndStatusFlow(t *testing.T) {
	api, mgr := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()
	defer mgr.Disconnect(context.Background())

	resp, err := http.Post(srv.URL+"/api/v1/connect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mgr.Connected())

	resp, err = http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["connected"])

	resp, err = http.Post(srv.URL+"/api/v1/disconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, mgr.Connected())
}

func TestSwitchOrgRequiresBody(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/switch-org", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSwitchOrgWhenDisconnected(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/switch-org", "application/json",
		strings.NewReader(`{"orgId": "org-9"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
