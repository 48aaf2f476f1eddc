//go:build linux

package tunnel

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	tunCloneDevice = "/dev/net/tun"
	ifnamsiz       = 16
	tunSetIff      = 0x400454ca
	iffTun         = 0x0001
	iffNoPi        = 0x1000

	defaultIfaceName = "pangolin%d"
)

// NewOSService returns the Linux VPN service. ifaceName may contain a %d
// template the kernel expands to the first free index; empty selects
// "pangolin%d".
func NewOSService(ifaceName string, log *slog.Logger) Service {
	if ifaceName == "" {
		ifaceName = defaultIfaceName
	}
	if log == nil {
		log = slog.Default()
	}
	return &linuxService{ifaceName: ifaceName, log: log}
}

type linuxService struct {
	ifaceName string
	log       *slog.Logger
}

// Authorized reports whether the process can open the TUN clone device.
func (s *linuxService) Authorized() bool {
	return unix.Access(tunCloneDevice, unix.R_OK|unix.W_OK) == nil
}

// Start verifies the clone device is reachable and hands out a Device. There
// is no long-lived service process on Linux, so the timeout only bounds the
// access check.
func (s *linuxService) Start(timeout time.Duration) (Device, error) {
	deadline := time.Now().Add(timeout)
	for {
		if s.Authorized() {
			return &linuxDevice{ifaceName: s.ifaceName, log: s.log}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s not accessible", tunCloneDevice)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Stop is a no-op: interfaces die with their descriptors.
func (s *linuxService) Stop(timeout time.Duration) error {
	return nil
}

type linuxDevice struct {
	ifaceName string
	log       *slog.Logger
}

func (d *linuxDevice) Builder() InterfaceBuilder {
	return &linuxBuilder{
		ifaceName: d.ifaceName,
		log:       d.log,
		blocking:  true,
	}
}

type ifaceAddr struct {
	addr   string
	prefix int
	v6     bool
}

type ifaceRoute struct {
	dest   string
	prefix int
	v6     bool
}

// linuxBuilder accumulates interface configuration and realizes it in
// Establish. Validation happens at Add time so callers can skip bad entries
// individually.
type linuxBuilder struct {
	ifaceName string
	log       *slog.Logger

	session  string
	mtu      int
	addrs    []ifaceAddr
	dns      []string
	domains  []string
	routes   []ifaceRoute
	metered  bool
	blocking bool
}

func (b *linuxBuilder) SetSession(name string)   { b.session = name }
func (b *linuxBuilder) SetMTU(mtu int)           { b.mtu = mtu }
func (b *linuxBuilder) AllowFamily(f Family)     {}
func (b *linuxBuilder) SetMetered(metered bool)  { b.metered = metered }
func (b *linuxBuilder) SetBlocking(blocking bool) { b.blocking = blocking }

func (b *linuxBuilder) AddAddress(addr string, prefix int) error {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	max := 32
	if ip.Is6() {
		max = 128
	}
	if prefix < 0 || prefix > max {
		return fmt.Errorf("invalid prefix length %d for %s", prefix, addr)
	}
	b.addrs = append(b.addrs, ifaceAddr{addr: addr, prefix: prefix, v6: ip.Is6()})
	return nil
}

func (b *linuxBuilder) AddDNSServer(server string) error {
	if _, err := netip.ParseAddr(server); err != nil {
		return fmt.Errorf("invalid DNS server %q: %w", server, err)
	}
	b.dns = append(b.dns, server)
	return nil
}

func (b *linuxBuilder) AddSearchDomain(domain string) {
	b.domains = append(b.domains, domain)
}

func (b *linuxBuilder) AddRoute(dest string, prefix int) error {
	ip, err := netip.ParseAddr(dest)
	if err != nil {
		return fmt.Errorf("invalid route destination %q: %w", dest, err)
	}
	max := 32
	if ip.Is6() {
		max = 128
	}
	if prefix < 0 || prefix > max {
		return fmt.Errorf("invalid route prefix %d for %s", prefix, dest)
	}
	b.routes = append(b.routes, ifaceRoute{dest: dest, prefix: prefix, v6: ip.Is6()})
	return nil
}

// Establish creates the TUN interface and applies the accumulated
// configuration. The returned RawTun owns the descriptor until DetachFd.
func (b *linuxBuilder) Establish() (RawTun, error) {
	fd, err := unix.Open(tunCloneDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return nil, fmt.Errorf("%w: open %s: %v", ErrNotAuthorized, tunCloneDevice, err)
		}
		return nil, fmt.Errorf("open %s: %w", tunCloneDevice, err)
	}

	var ifr [ifnamsiz + 64]byte
	copy(ifr[:ifnamsiz-1], b.ifaceName)
	flags := uint16(iffTun | iffNoPi)
	*(*uint16)(unsafe.Pointer(&ifr[ifnamsiz])) = flags

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), tunSetIff, uintptr(unsafe.Pointer(&ifr[0]))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("ioctl TUNSETIFF: %w", errno)
	}

	// Kernel may have expanded a %d template in the name.
	name := string(ifr[:ifnamsiz])
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	if !b.blocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("set nonblocking: %w", err)
		}
	}

	if err := b.configure(name); err != nil {
		unix.Close(fd)
		return nil, err
	}

	b.log.Debug("established tunnel interface", "name", name, "mtu", b.mtu,
		"addresses", len(b.addrs), "routes", len(b.routes), "session", b.session)
	return &linuxTun{name: name, fd: fd, log: b.log}, nil
}

func (b *linuxBuilder) configure(name string) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("create config socket: %w", err)
	}
	defer unix.Close(sock)

	if b.mtu > 0 {
		if err := setMTU(sock, name, b.mtu); err != nil {
			return err
		}
	}

	// First IPv4 address goes through the classic ioctl path; everything
	// else through ip(8), which handles multiple addresses and IPv6.
	setPrimary := false
	for _, a := range b.addrs {
		if !a.v6 && !setPrimary {
			if err := setIPv4Address(sock, name, a.addr, a.prefix); err != nil {
				return err
			}
			setPrimary = true
			continue
		}
		if err := runIP(a.v6, "addr", "add", fmt.Sprintf("%s/%d", a.addr, a.prefix), "dev", name); err != nil {
			return err
		}
	}

	if err := setInterfaceUp(sock, name); err != nil {
		return err
	}

	for _, r := range b.routes {
		dest := fmt.Sprintf("%s/%d", r.dest, r.prefix)
		if err := runIP(r.v6, "route", "add", dest, "dev", name); err != nil {
			// A conflicting route is not fatal for the rest of the table.
			b.log.Warn("failed to add route", "destination", dest, "error", err)
		}
	}

	b.configureDNS(name)
	return nil
}

// configureDNS pushes DNS servers to systemd-resolved. Best effort: hosts
// without resolvectl keep their existing resolver setup.
func (b *linuxBuilder) configureDNS(name string) {
	if len(b.dns) == 0 {
		return
	}
	if _, err := exec.LookPath("resolvectl"); err != nil {
		b.log.Debug("resolvectl not found, skipping DNS configuration")
		return
	}

	args := append([]string{"dns", name}, b.dns...)
	if out, err := exec.Command("resolvectl", args...).CombinedOutput(); err != nil {
		b.log.Warn("resolvectl dns failed", "error", err, "output", string(out))
		return
	}
	if len(b.domains) > 0 {
		args = append([]string{"domain", name}, b.domains...)
		if out, err := exec.Command("resolvectl", args...).CombinedOutput(); err != nil {
			b.log.Warn("resolvectl domain failed", "error", err, "output", string(out))
		}
	}
	_ = exec.Command("resolvectl", "default-route", name, "true").Run()
}

func runIP(v6 bool, args ...string) error {
	if v6 {
		args = append([]string{"-6"}, args...)
	}
	out, err := exec.Command("ip", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func setMTU(sock int, name string, mtu int) error {
	var ifr [40]byte
	copy(ifr[:ifnamsiz-1], name)
	*(*int32)(unsafe.Pointer(&ifr[ifnamsiz])) = int32(mtu)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFMTU, uintptr(unsafe.Pointer(&ifr[0]))); errno != 0 {
		return fmt.Errorf("set MTU %d: %w", mtu, errno)
	}
	return nil
}

func setIPv4Address(sock int, name, addr string, prefix int) error {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return fmt.Errorf("not an IPv4 address: %s", addr)
	}

	var ifrAddr [40]byte
	copy(ifrAddr[:ifnamsiz-1], name)
	ifrAddr[ifnamsiz] = unix.AF_INET
	copy(ifrAddr[ifnamsiz+4:ifnamsiz+8], ip)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFADDR, uintptr(unsafe.Pointer(&ifrAddr[0]))); errno != 0 {
		return fmt.Errorf("set address %s: %w", addr, errno)
	}

	var ifrMask [40]byte
	copy(ifrMask[:ifnamsiz-1], name)
	ifrMask[ifnamsiz] = unix.AF_INET
	mask := net.CIDRMask(prefix, 32)
	copy(ifrMask[ifnamsiz+4:ifnamsiz+8], mask)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFNETMASK, uintptr(unsafe.Pointer(&ifrMask[0]))); errno != 0 {
		return fmt.Errorf("set netmask /%d: %w", prefix, errno)
	}
	return nil
}

func setInterfaceUp(sock int, name string) error {
	var ifr [40]byte
	copy(ifr[:ifnamsiz-1], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCGIFFLAGS, uintptr(unsafe.Pointer(&ifr[0]))); errno != 0 {
		return fmt.Errorf("get interface flags: %w", errno)
	}
	flags := *(*uint16)(unsafe.Pointer(&ifr[ifnamsiz]))
	flags |= unix.IFF_UP | unix.IFF_RUNNING
	*(*uint16)(unsafe.Pointer(&ifr[ifnamsiz])) = flags
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&ifr[0]))); errno != 0 {
		return fmt.Errorf("set interface up: %w", errno)
	}
	return nil
}

// linuxTun holds an established TUN descriptor until ownership transfers to
// the backend via DetachFd.
type linuxTun struct {
	name string
	fd   int
	log  *slog.Logger

	mu       sync.Mutex
	detached bool
	closed   bool
}

func (t *linuxTun) Name() string { return t.name }

// DetachFd transfers descriptor ownership to the caller. After detaching,
// Close becomes a no-op: closing a single-queue TUN descriptor destroys the
// interface, which would pull the device out from under the backend.
func (t *linuxTun) DetachFd() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
	return t.fd
}

func (t *linuxTun) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached || t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("close tun %s: %w", t.name, err)
	}
	return nil
}
