// Package tunnel implements the tunnel lifecycle: the native backend facade,
// the lifecycle controller, the network-settings poller and the interface
// applier that hot-swaps tunnel descriptors.
package tunnel

// Backend is the call surface of the native pangolin-go library. Result
// strings beginning with "Error:" signal a backend-reported failure; the
// error return covers transport problems (library not loaded, call failed).
type Backend interface {
	// InitOlm initializes the tunnel identity subsystem.
	InitOlm(configJSON string) (string, error)

	// StartTunnel starts the tunnel on the given descriptor. The backend
	// takes ownership of fd.
	StartTunnel(fd int, configJSON string) (string, error)

	// StopTunnel stops the currently running tunnel.
	StopTunnel() (string, error)

	// AddDevice hot-swaps a new tunnel descriptor into the running tunnel.
	// The backend takes ownership of fd, including on error.
	AddDevice(fd int) (string, error)

	// NetworkSettingsVersion returns the monotonic settings version counter.
	NetworkSettingsVersion() (int64, error)

	// NetworkSettings returns the current settings JSON document.
	NetworkSettings() (string, error)

	// SetPowerMode sets the backend power mode ("normal" or "low").
	SetPowerMode(mode string) (string, error)
}

// State is the lifecycle state of a tunnel.
type State string

const (
	StateDown   State = "down"
	StateUp     State = "up"
	StateToggle State = "toggle"
)

// Tunnel is a named logical VPN session instance.
type Tunnel interface {
	// Name returns the tunnel's display name, used as the interface session.
	Name() string

	// OnStateChange is invoked after the tunnel's state has changed. It must
	// not call back into the controller.
	OnStateChange(state State)
}
