package tunnel

import (
	"fmt"
	"log/slog"

	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/netsettings"
)

// Applier translates a network settings snapshot into interface
// configuration and hot-swaps the resulting descriptor into the backend.
type Applier struct {
	backend Backend
	device  Device
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewApplier creates an applier for the given backend and device. Metrics
// may be nil.
func NewApplier(backend Backend, device Device, m *metrics.Metrics, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{backend: backend, device: device, metrics: m, log: log}
}

// Apply builds a new interface from the snapshot, establishes it and hands
// the detached descriptor to the backend. After a successful AddDevice call
// the backend owns the descriptor; on an AddDevice failure the descriptor's
// fate is also the backend's responsibility, so no local cleanup happens
// either way. Failures are surfaced without retry; the next settings version
// change triggers another attempt.
func (a *Applier) Apply(settings *netsettings.Settings, tunnelName string) error {
	builder := a.device.Builder()
	ApplyToBuilder(builder, settings, tunnelName, a.log)

	tun, err := builder.Establish()
	if err != nil {
		a.countSwapFailure()
		a.log.Error("failed to establish tunnel interface", "error", err)
		return fmt.Errorf("%w: %v", ErrTunCreation, err)
	}

	fd := tun.DetachFd()

	result, err := a.backend.AddDevice(fd)
	if err != nil {
		a.countSwapFailure()
		a.log.Error("addDevice call failed", "fd", fd, "error", err)
		return &BackendError{Op: "addDevice", Err: err}
	}
	if rerr := ResultError("addDevice", result); rerr != nil {
		a.countSwapFailure()
		a.log.Error("backend rejected new device", "fd", fd, "result", result)
		return rerr
	}

	if a.metrics != nil {
		a.metrics.HotSwaps.Inc()
	}
	a.log.Info("hot-swapped tunnel interface", "tunnel", tunnelName, "fd", fd,
		"settings", settings.Summary())
	return nil
}

func (a *Applier) countSwapFailure() {
	if a.metrics != nil {
		a.metrics.HotSwapFails.Inc()
	}
}

// ApplyToBuilder writes a settings snapshot into an interface builder in the
// order the OS expects: session, MTU, families, addresses, DNS, routes, then
// interface flags. Malformed entries are logged and skipped so one bad entry
// cannot block the rest of the configuration.
func ApplyToBuilder(b InterfaceBuilder, s *netsettings.Settings, tunnelName string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	b.SetSession(tunnelName)
	b.SetMTU(s.EffectiveMTU())
	b.AllowFamily(FamilyIPv4)
	b.AllowFamily(FamilyIPv6)

	for i, addr := range s.IPv4Addresses {
		prefix := netsettings.SubnetMaskToPrefixLength(s.IPv4MaskAt(i))
		if err := b.AddAddress(addr, prefix); err != nil {
			log.Error("failed to add IPv4 address", "address", addr, "error", err)
			continue
		}
		log.Debug("added IPv4 address", "address", addr, "prefix", prefix)
	}

	for i, addr := range s.IPv6Addresses {
		prefix := s.IPv6PrefixAt(i)
		if err := b.AddAddress(addr, prefix); err != nil {
			log.Error("failed to add IPv6 address", "address", addr, "error", err)
			continue
		}
		log.Debug("added IPv6 address", "address", addr, "prefix", prefix)
	}

	hasValidDNS := false
	for _, dns := range s.DNSServers {
		if err := b.AddDNSServer(dns); err != nil {
			log.Error("failed to add DNS server", "server", dns, "error", err)
			continue
		}
		hasValidDNS = true
		log.Debug("added DNS server", "server", dns)
	}
	if hasValidDNS {
		// Catch-all search domain so every lookup routes through the tunnel.
		b.AddSearchDomain(".")
	}

	sawDefaultRoute := false
	for _, route := range s.IPv4IncludedRoutes {
		prefix := route.PrefixLength()
		if route.IsDefaultRoute() {
			sawDefaultRoute = true
		}
		if err := b.AddRoute(route.DestinationAddress, prefix); err != nil {
			log.Error("failed to add IPv4 route", "destination", route.DestinationAddress, "error", err)
			continue
		}
		log.Debug("added IPv4 route", "destination", route.DestinationAddress, "prefix", prefix)
	}

	for _, route := range s.IPv6IncludedRoutes {
		prefix := route.EffectivePrefixLength()
		if route.IsDefaultRoute() {
			sawDefaultRoute = true
		}
		if err := b.AddRoute(route.DestinationAddress, prefix); err != nil {
			log.Error("failed to add IPv6 route", "destination", route.DestinationAddress, "error", err)
			continue
		}
		log.Debug("added IPv6 route", "destination", route.DestinationAddress, "prefix", prefix)
	}

	if sawDefaultRoute {
		log.Debug("settings include a default route", "tunnel", tunnelName)
	}

	b.SetMetered(false)
	b.SetBlocking(true)
}
