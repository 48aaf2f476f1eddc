package tunnel

import (
	"sync"
	"time"
)

// fakeBackend scripts backend responses for tests. Result strings follow the
// "Error:" convention; call errors simulate dispatch failures.
type fakeBackend struct {
	mu sync.Mutex

	initResults  []string
	startResults []string
	addResults   []string
	versions     []int64
	settingsDocs []string
	versionErr   error

	initCalls  []string
	startCalls []startCall
	stopCalls  int
	addCalls   []int
	powerModes []string

	versionIdx  int
	settingsIdx int
}

type startCall struct {
	fd     int
	config string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) InitOlm(configJSON string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls = append(b.initCalls, configJSON)
	return popResult(b.initResults, len(b.initCalls)-1), nil
}

func (b *fakeBackend) StartTunnel(fd int, configJSON string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls = append(b.startCalls, startCall{fd: fd, config: configJSON})
	return popResult(b.startResults, len(b.startCalls)-1), nil
}

func (b *fakeBackend) StopTunnel() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls++
	return "OK", nil
}

func (b *fakeBackend) AddDevice(fd int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCalls = append(b.addCalls, fd)
	return popResult(b.addResults, len(b.addCalls)-1), nil
}

func (b *fakeBackend) NetworkSettingsVersion() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.versionErr != nil {
		return 0, b.versionErr
	}
	if len(b.versions) == 0 {
		return 0, nil
	}
	v := b.versions[b.versionIdx]
	if b.versionIdx < len(b.versions)-1 {
		b.versionIdx++
	}
	return v, nil
}

func (b *fakeBackend) NetworkSettings() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.settingsDocs) == 0 {
		return "{}", nil
	}
	doc := b.settingsDocs[b.settingsIdx]
	if b.settingsIdx < len(b.settingsDocs)-1 {
		b.settingsIdx++
	}
	return doc, nil
}

func (b *fakeBackend) SetPowerMode(mode string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.powerModes = append(b.powerModes, mode)
	return "OK", nil
}

func (b *fakeBackend) numStartCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.startCalls)
}

func (b *fakeBackend) numStopCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopCalls
}

func (b *fakeBackend) versionsExhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.versionIdx >= len(b.versions)-1
}

// popResult returns the scripted result at i, repeating the last entry, or
// "OK" when nothing is scripted.
func popResult(results []string, i int) string {
	if len(results) == 0 {
		return "OK"
	}
	if i >= len(results) {
		return results[len(results)-1]
	}
	return results[i]
}

// fakeTunnel records state change notifications.
type fakeTunnel struct {
	mu     sync.Mutex
	name   string
	states []State
}

func (t *fakeTunnel) Name() string { return t.name }

func (t *fakeTunnel) OnStateChange(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = append(t.states, state)
}

func (t *fakeTunnel) observedStates() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}

// fakeService hands out a fakeDevice and tracks stop calls.
type fakeService struct {
	mu         sync.Mutex
	authorized bool
	device     *fakeDevice
	startErr   error
	stopCalls  int
}

func newFakeService() *fakeService {
	return &fakeService{authorized: true, device: &fakeDevice{}}
}

func (s *fakeService) Authorized() bool { return s.authorized }

func (s *fakeService) Start(timeout time.Duration) (Device, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.device, nil
}

func (s *fakeService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return nil
}

func (s *fakeService) numStopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// fakeDevice vends fakeBuilders and remembers the tuns they establish.
type fakeDevice struct {
	mu           sync.Mutex
	establishErr error
	builders     []*fakeBuilder
	nextFd       int
}

func (d *fakeDevice) Builder() InterfaceBuilder {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextFd++
	b := &fakeBuilder{device: d, fd: 100 + d.nextFd}
	d.builders = append(d.builders, b)
	return b
}

func (d *fakeDevice) lastTun() *fakeTun {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.builders) - 1; i >= 0; i-- {
		if d.builders[i].tun != nil {
			return d.builders[i].tun
		}
	}
	return nil
}

// fakeBuilder records configuration calls in order.
type fakeBuilder struct {
	device *fakeDevice
	fd     int

	session   string
	mtu       int
	metered   bool
	blocking  bool
	addresses []addrEntry
	dns       []string
	domains   []string
	routes    []addrEntry
	families  []Family

	tun *fakeTun
}

type addrEntry struct {
	addr   string
	prefix int
}

func (b *fakeBuilder) SetSession(name string)    { b.session = name }
func (b *fakeBuilder) SetMTU(mtu int)            { b.mtu = mtu }
func (b *fakeBuilder) AllowFamily(family Family) { b.families = append(b.families, family) }
func (b *fakeBuilder) SetMetered(metered bool)   { b.metered = metered }
func (b *fakeBuilder) SetBlocking(blocking bool) { b.blocking = blocking }

func (b *fakeBuilder) AddAddress(address string, prefixLength int) error {
	b.addresses = append(b.addresses, addrEntry{addr: address, prefix: prefixLength})
	return nil
}

func (b *fakeBuilder) AddDNSServer(address string) error {
	b.dns = append(b.dns, address)
	return nil
}

func (b *fakeBuilder) AddSearchDomain(domain string) {
	b.domains = append(b.domains, domain)
}

func (b *fakeBuilder) AddRoute(destination string, prefixLength int) error {
	b.routes = append(b.routes, addrEntry{addr: destination, prefix: prefixLength})
	return nil
}

func (b *fakeBuilder) Establish() (RawTun, error) {
	if b.device != nil && b.device.establishErr != nil {
		return nil, b.device.establishErr
	}
	b.tun = &fakeTun{fd: b.fd}
	return b.tun, nil
}

// fakeTun enforces the detach-transfers-ownership contract: destroying the
// descriptor after detach is the defect the tests watch for.
type fakeTun struct {
	mu        sync.Mutex
	fd        int
	detached  bool
	closed    bool
	destroyed bool
}

func (t *fakeTun) DetachFd() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
	return t.fd
}

func (t *fakeTun) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached {
		// No-op after transfer, but record an attempted double release.
		return nil
	}
	t.closed = true
	t.destroyed = true
	return nil
}

func (t *fakeTun) wasDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}
