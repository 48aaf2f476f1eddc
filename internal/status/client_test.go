package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startSocketServer serves the given handler on a unix socket in a temp dir.
func startSocketServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "olm.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return socketPath
}

func TestClientStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(Status{
			Connected:  true,
			Registered: true,
			TunnelIP:   "10.0.0.2",
			OrgID:      "org-1",
			Peers: map[string]Peer{
				"4": {SiteID: 4, Name: "hq", Connected: true, RTT: 12.5},
			},
		})
	})
	socketPath := startSocketServer(t, mux)

	client := NewClient(socketPath, time.Second, nil)
	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "10.0.0.2", st.TunnelIP)
	assert.Equal(t, 1, st.ConnectedPeers())
}

func TestClientExitAndSwitchOrg(t *testing.T) {
	var gotOrg string
	mux := http.NewServeMux()
	mux.HandleFunc("/exit", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/switch-org", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotOrg = body["orgId"]
		w.WriteHeader(http.StatusOK)
	})
	socketPath := startSocketServer(t, mux)

	client := NewClient(socketPath, time.Second, nil)
	require.NoError(t, client.Exit(context.Background()))
	require.NoError(t, client.SwitchOrg(context.Background(), "org-9"))
	assert.Equal(t, "org-9", gotOrg)
}

func TestClientMissingSocket(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"), time.Second, nil)

	_, err := client.Status(context.Background())
	require.Error(t, err)

	var serr *SocketError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindSocketMissing, serr.Kind)
	assert.False(t, client.SocketExists())
}

func TestClientHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend busy", http.StatusServiceUnavailable)
	})
	socketPath := startSocketServer(t, mux)

	client := NewClient(socketPath, time.Second, nil)
	_, err := client.Status(context.Background())
	require.Error(t, err)

	var serr *SocketError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindHTTP, serr.Kind)
}

func TestClientBadPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	socketPath := startSocketServer(t, mux)

	client := NewClient(socketPath, time.Second, nil)
	_, err := client.Status(context.Background())
	require.Error(t, err)

	var serr *SocketError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindDecode, serr.Kind)
}
