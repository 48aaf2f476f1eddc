package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Socket error kinds, used as metric labels and for targeted handling.
const (
	KindSocketMissing = "socket_missing"
	KindDial          = "dial"
	KindHTTP          = "http"
	KindDecode        = "decode"
)

// SocketError describes a control socket failure.
type SocketError struct {
	Kind string
	Path string
	Err  error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("control socket %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *SocketError) Unwrap() error { return e.Err }

// Client talks HTTP to the backend's unix control socket.
type Client struct {
	socketPath string
	http       *http.Client
	log        *slog.Logger
}

// NewClient creates a control socket client. All requests dial the given
// socket path regardless of the request URL's host.
func NewClient(socketPath string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		socketPath: socketPath,
		log:        log,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// SocketPath returns the configured socket path.
func (c *Client) SocketPath() string { return c.socketPath }

// SocketExists reports whether the socket file is present. Absence means the
// backend is not running, which the poller treats as unavailable rather than
// an error.
func (c *Client) SocketExists() bool {
	_, err := os.Stat(c.socketPath)
	return err == nil
}

// Status fetches the current status document.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Exit asks the backend to terminate its session.
func (c *Client) Exit(ctx context.Context) error {
	return c.post(ctx, "/exit", nil)
}

// SwitchOrg asks the backend to re-register under a different organization.
func (c *Client) SwitchOrg(ctx context.Context, orgID string) error {
	return c.post(ctx, "/switch-org", map[string]string{"orgId": orgID})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if !c.SocketExists() {
		return &SocketError{Kind: KindSocketMissing, Path: c.socketPath, Err: os.ErrNotExist}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &SocketError{Kind: KindDial, Path: c.socketPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SocketError{Kind: KindHTTP, Path: c.socketPath,
			Err: fmt.Errorf("GET %s: %s: %s", path, resp.Status, bytes.TrimSpace(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &SocketError{Kind: KindDecode, Path: c.socketPath, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if !c.SocketExists() {
		return &SocketError{Kind: KindSocketMissing, Path: c.socketPath, Err: os.ErrNotExist}
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &SocketError{Kind: KindDial, Path: c.socketPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		out, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SocketError{Kind: KindHTTP, Path: c.socketPath,
			Err: fmt.Errorf("POST %s: %s: %s", path, resp.Status, bytes.TrimSpace(out))}
	}
	return nil
}
