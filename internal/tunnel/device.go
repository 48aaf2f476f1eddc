package tunnel

import "time"

// Family is an interface address family.
type Family int

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

// Service abstracts the OS-level VPN service that hosts tunnel interfaces.
type Service interface {
	// Authorized reports whether VPN consent has been granted. Consent
	// acquisition is an external, UI-driven precondition.
	Authorized() bool

	// Start ensures the service is running and returns its device,
	// waiting up to timeout for the service to come up.
	Start(timeout time.Duration) (Device, error)

	// Stop asks the service to shut down, waiting up to timeout.
	// Best effort; a stop failure never blocks a tunnel transition.
	Stop(timeout time.Duration) error
}

// Device can materialize tunnel interfaces.
type Device interface {
	Builder() InterfaceBuilder
}

// InterfaceBuilder accumulates interface configuration and materializes it
// into a tunnel descriptor. Per-entry add errors are reported so malformed
// entries can be skipped without aborting the build.
type InterfaceBuilder interface {
	SetSession(name string)
	SetMTU(mtu int)
	AllowFamily(family Family)
	AddAddress(address string, prefixLength int) error
	AddDNSServer(address string) error
	AddSearchDomain(domain string)
	AddRoute(destination string, prefixLength int) error
	SetMetered(metered bool)
	SetBlocking(blocking bool)

	// Establish materializes the configured interface.
	Establish() (RawTun, error)
}

// RawTun is an established tunnel interface descriptor with single-owner
// semantics: before DetachFd the caller owns it and must Close it; DetachFd
// transfers ownership of the descriptor out, after which Close is a no-op.
// The transfer is one-directional and not reversible.
type RawTun interface {
	DetachFd() int
	Close() error
}
