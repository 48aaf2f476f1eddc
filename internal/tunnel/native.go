package tunnel

import (
	"fmt"
	"sync"
)

// Funcs is the table of entry points exported by the native pangolin-go
// library. The embedding layer (JNI glue on Android, the shared-library
// loader on desktop) registers it once at process start.
type Funcs struct {
	InitOlm                   func(configJSON string) string
	StartTunnel               func(fd int, configJSON string) string
	StopTunnel                func() string
	AddDevice                 func(fd int) string
	GetNetworkSettingsVersion func() int64
	GetNetworkSettings        func() string
	SetPowerMode              func(mode string) string
}

// NativeBackend is the production Backend implementation, dispatching to the
// registered native entry points.
type NativeBackend struct {
	funcs Funcs
}

// NewNativeBackend wraps a registered function table. All entry points must
// be present.
func NewNativeBackend(funcs Funcs) (*NativeBackend, error) {
	switch {
	case funcs.InitOlm == nil:
		return nil, fmt.Errorf("initOlm: %w", ErrNotLoaded)
	case funcs.StartTunnel == nil:
		return nil, fmt.Errorf("startTunnel: %w", ErrNotLoaded)
	case funcs.StopTunnel == nil:
		return nil, fmt.Errorf("stopTunnel: %w", ErrNotLoaded)
	case funcs.AddDevice == nil:
		return nil, fmt.Errorf("addDevice: %w", ErrNotLoaded)
	case funcs.GetNetworkSettingsVersion == nil:
		return nil, fmt.Errorf("getNetworkSettingsVersion: %w", ErrNotLoaded)
	case funcs.GetNetworkSettings == nil:
		return nil, fmt.Errorf("getNetworkSettings: %w", ErrNotLoaded)
	case funcs.SetPowerMode == nil:
		return nil, fmt.Errorf("setPowerMode: %w", ErrNotLoaded)
	}
	return &NativeBackend{funcs: funcs}, nil
}

func (b *NativeBackend) InitOlm(configJSON string) (string, error) {
	return b.funcs.InitOlm(configJSON), nil
}

func (b *NativeBackend) StartTunnel(fd int, configJSON string) (string, error) {
	return b.funcs.StartTunnel(fd, configJSON), nil
}

func (b *NativeBackend) StopTunnel() (string, error) {
	return b.funcs.StopTunnel(), nil
}

func (b *NativeBackend) AddDevice(fd int) (string, error) {
	return b.funcs.AddDevice(fd), nil
}

func (b *NativeBackend) NetworkSettingsVersion() (int64, error) {
	return b.funcs.GetNetworkSettingsVersion(), nil
}

func (b *NativeBackend) NetworkSettings() (string, error) {
	return b.funcs.GetNetworkSettings(), nil
}

func (b *NativeBackend) SetPowerMode(mode string) (string, error) {
	return b.funcs.SetPowerMode(mode), nil
}

var (
	registerMu sync.Mutex
	registered *NativeBackend
)

// RegisterFuncs installs the native function table for the process. Called
// once by the embedding layer before anything connects.
func RegisterFuncs(funcs Funcs) error {
	b, err := NewNativeBackend(funcs)
	if err != nil {
		return err
	}
	registerMu.Lock()
	defer registerMu.Unlock()
	registered = b
	return nil
}

// RegisteredBackend returns the backend installed by RegisterFuncs, or
// ErrNotLoaded when the native library has not been registered.
func RegisteredBackend() (Backend, error) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if registered == nil {
		return nil, ErrNotLoaded
	}
	return registered, nil
}
