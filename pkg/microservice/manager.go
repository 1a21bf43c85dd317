package microservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/discovery"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateDevice is returned by Add for a serial already managed.
var ErrDuplicateDevice = errors.New("device already managed")

// AddressResolver is the part of the discovery resolver the manager uses.
type AddressResolver interface {
	Lookup(ctx context.Context, serial string) (types.DiscoveryRecord, bool)
	Register(serial string, onFound func(address string)) *discovery.Registration
	Remember(serial, address string)
	Records() []types.DiscoveryRecord
}

// DeviceStatus is a summary of one managed device.
type DeviceStatus struct {
	Serial       string   `json:"serial"`
	Name         string   `json:"name,omitempty"`
	DeviceType   string   `json:"device_type"`
	Family       string   `json:"family"`
	State        string   `json:"state"`
	Host         string   `json:"host,omitempty"`
	Capabilities []string `json:"capabilities"`
	Discovered   bool     `json:"discovered"`
	LastError    string   `json:"last_error,omitempty"`
}

type managedDevice struct {
	session    *device.Session
	name       string
	staticHost string
	logger     zerolog.Logger

	// connMu serialises connection attempts made by the manager.
	connMu sync.Mutex

	mu    sync.Mutex
	reg   *discovery.Registration
	watch *device.Subscription
}

// DeviceManager keeps sessions connected. Devices with a configured host are
// connected to it directly and fall back to discovery when it fails; the
// others use their last known address, then wait for an announcement.
// Failed sessions are retried with exponential backoff and connected fans
// are polled for sensor data.
type DeviceManager struct {
	cfg      ManagerConfig
	resolver AddressResolver
	learn    func(*device.Session, zerolog.Logger) *device.Subscription
	logger   zerolog.Logger

	mu      sync.RWMutex
	devices map[string]*managedDevice
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerOption configures a DeviceManager.
type ManagerOption func(*DeviceManager)

// WithCapabilityWatcher installs fn on every session once it connects, for
// example factory.WatchCapabilities.
func WithCapabilityWatcher(fn func(*device.Session, zerolog.Logger) *device.Subscription) ManagerOption {
	return func(m *DeviceManager) { m.learn = fn }
}

// NewDeviceManager creates a manager. resolver may be nil when every device
// has a configured host.
func NewDeviceManager(cfg ManagerConfig, resolver AddressResolver, logger zerolog.Logger, opts ...ManagerOption) *DeviceManager {
	if cfg.ConnectConcurrency <= 0 {
		cfg.ConnectConcurrency = 1
	}
	if cfg.ReconnectInitialBackoff <= 0 {
		cfg.ReconnectInitialBackoff = time.Second
	}
	m := &DeviceManager{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With().Str("component", "DeviceManager").Logger(),
		devices:  make(map[string]*managedDevice),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a session. host may be empty to rely on discovery. When the
// manager is running the device is connected in the background.
func (m *DeviceManager) Add(s *device.Session, name, host string) error {
	m.mu.Lock()
	if _, ok := m.devices[s.Serial()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, s.Serial())
	}
	d := &managedDevice{
		session:    s,
		name:       name,
		staticHost: host,
		logger:     m.logger.With().Str("serial", s.Serial()).Logger(),
	}
	m.devices[s.Serial()] = d
	running, ctx := m.running, m.ctx
	if running {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if running {
		go func() {
			defer m.wg.Done()
			m.connectDevice(ctx, d)
		}()
	}
	return nil
}

// Session returns the managed session for serial.
func (m *DeviceManager) Session(serial string) (*device.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[serial]
	if !ok {
		return nil, false
	}
	return d.session, true
}

// Devices summarises every managed device, sorted by serial.
func (m *DeviceManager) Devices() []DeviceStatus {
	devices := m.snapshot()
	out := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.status())
	}
	return out
}

// Addresses lists the addresses known to the resolver, including devices
// this manager does not own.
func (m *DeviceManager) Addresses() []types.DiscoveryRecord {
	if m.resolver == nil {
		return []types.DiscoveryRecord{}
	}
	return m.resolver.Records()
}

// Status summarises one device.
func (m *DeviceManager) Status(serial string) (DeviceStatus, bool) {
	m.mu.RLock()
	d, ok := m.devices[serial]
	m.mu.RUnlock()
	if !ok {
		return DeviceStatus{}, false
	}
	return d.status(), true
}

func (d *managedDevice) status() DeviceStatus {
	s := d.session
	profile := s.Profile()
	st := DeviceStatus{
		Serial:       s.Serial(),
		Name:         d.name,
		DeviceType:   profile.DeviceType,
		Family:       profile.Family.String(),
		State:        s.State().String(),
		Host:         s.Host(),
		Capabilities: profile.Capabilities.List(),
		Discovered:   profile.Discovered,
	}
	if err := s.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

func (m *DeviceManager) snapshot() []*managedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*managedDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].session.Serial() < out[j].session.Serial() })
	return out
}

// Start connects every device and begins polling and reconnecting. It
// returns once each device has had one connection attempt.
func (m *DeviceManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("device manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.ctx, m.cancel, m.running = runCtx, cancel, true
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(m.cfg.ConnectConcurrency)
	for _, d := range m.snapshot() {
		g.Go(func() error {
			m.connectDevice(gctx, d)
			return nil
		})
	}
	_ = g.Wait()

	m.wg.Add(1)
	go m.maintain(runCtx)

	devices := m.snapshot()
	connected := 0
	for _, d := range devices {
		if d.session.IsConnected() {
			connected++
		}
	}
	m.logger.Info().Int("devices", len(devices)).Int("connected", connected).Msg("Device manager started.")
	return nil
}

// Stop ends background work and disconnects every session.
func (m *DeviceManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	for _, d := range m.snapshot() {
		d.mu.Lock()
		reg, watch := d.reg, d.watch
		d.reg, d.watch = nil, nil
		d.mu.Unlock()
		if reg != nil {
			reg.Unregister()
		}
		if watch != nil {
			watch.Close()
		}
		// Aborts an attempt in flight so the goroutines below can finish.
		d.session.Disconnect()
	}
	m.wg.Wait()
	for _, d := range m.snapshot() {
		d.session.Disconnect()
	}
	m.logger.Info().Msg("Device manager stopped.")
}

// connectDevice makes the first connection attempt for d.
func (m *DeviceManager) connectDevice(ctx context.Context, d *managedDevice) {
	if d.staticHost != "" {
		err := m.connect(ctx, d, d.staticHost)
		if err == nil || errors.Is(err, device.ErrInvalidCredential) {
			return
		}
		d.logger.Warn().Err(err).Str("host", d.staticHost).Msg("Configured host unreachable, falling back to discovery.")
	} else if m.resolver != nil {
		if rec, ok := m.resolver.Lookup(ctx, d.session.Serial()); ok {
			err := m.connect(ctx, d, rec.Address)
			if errors.Is(err, device.ErrInvalidCredential) {
				return
			}
			if err != nil {
				d.logger.Info().Err(err).Str("host", rec.Address).Msg("Last known address unreachable, waiting for discovery.")
			}
		}
	}
	m.watchAddress(d)
}

// connect makes one attempt and records the address on success.
func (m *DeviceManager) connect(ctx context.Context, d *managedDevice, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.session.Connect(host)
	if err != nil {
		if errors.Is(err, device.ErrInvalidCredential) {
			d.logger.Error().Err(err).Msg("Device rejected its credential, not retrying.")
		}
		return err
	}
	if m.resolver != nil {
		m.resolver.Remember(d.session.Serial(), host)
	}
	m.installWatcher(d)
	return nil
}

// connectWithBackoff retries connect until it succeeds, the credential is
// rejected or ReconnectMaxElapsed passes.
func (m *DeviceManager) connectWithBackoff(ctx context.Context, d *managedDevice, host string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectInitialBackoff
	bo.MaxInterval = 30 * time.Second

	operation := func() (struct{}, error) {
		err := m.connect(ctx, d, host)
		if errors.Is(err, device.ErrInvalidCredential) || errors.Is(err, context.Canceled) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(m.cfg.ReconnectMaxElapsed))
	return err
}

func (m *DeviceManager) installWatcher(d *managedDevice) {
	if m.learn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watch == nil {
		d.watch = m.learn(d.session, d.logger)
	}
}

// watchAddress registers for announcements of d. Every new address triggers
// a reconnect unless the session is already connected there.
func (m *DeviceManager) watchAddress(d *managedDevice) {
	if m.resolver == nil {
		d.logger.Warn().Msg("No address known and discovery is disabled.")
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reg != nil {
		return
	}
	d.logger.Info().Msg("Waiting for device to be discovered.")
	d.reg = m.resolver.Register(d.session.Serial(), func(address string) {
		m.mu.RLock()
		running, ctx := m.running, m.ctx
		if running {
			m.wg.Add(1)
		}
		m.mu.RUnlock()
		if !running {
			return
		}
		go func() {
			defer m.wg.Done()
			m.onAddress(ctx, d, address)
		}()
	})
}

func (m *DeviceManager) onAddress(ctx context.Context, d *managedDevice, address string) {
	s := d.session
	if s.IsConnected() && s.Host() == address {
		return
	}
	d.logger.Info().Str("host", address).Msg("Device discovered, connecting.")
	if err := m.connectWithBackoff(ctx, d, address); err != nil && ctx.Err() == nil {
		d.logger.Warn().Err(err).Str("host", address).Msg("Failed to connect to discovered device.")
	}
}

// maintain runs the polling and reconnect loops until ctx is done.
func (m *DeviceManager) maintain(ctx context.Context) {
	defer m.wg.Done()

	var pollC <-chan time.Time
	if m.cfg.PollInterval > 0 {
		poll := time.NewTicker(m.cfg.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}
	var reconnectC <-chan time.Time
	if m.cfg.ReconnectInterval > 0 {
		reconnect := time.NewTicker(m.cfg.ReconnectInterval)
		defer reconnect.Stop()
		reconnectC = reconnect.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollC:
			m.PollEnvironmental()
		case <-reconnectC:
			m.ReconnectFailed(ctx)
		}
	}
}

// PollEnvironmental asks every connected fan-family device for sensor data.
func (m *DeviceManager) PollEnvironmental() {
	for _, d := range m.snapshot() {
		s := d.session
		if !s.IsConnected() || !s.Profile().Has(types.CapEnvironmental) {
			continue
		}
		if err := s.RequestEnvironmentalData(); err != nil {
			d.logger.Debug().Err(err).Msg("Environmental poll failed.")
		}
	}
}

// ReconnectFailed retries every Failed session whose credential was not
// rejected, at its last address or the one discovery knows.
func (m *DeviceManager) ReconnectFailed(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ConnectConcurrency)
	for _, d := range m.snapshot() {
		s := d.session
		if s.State() != types.Failed || errors.Is(s.LastError(), device.ErrInvalidCredential) {
			continue
		}
		host := s.Host()
		if m.resolver != nil {
			if rec, ok := m.resolver.Lookup(gctx, s.Serial()); ok {
				host = rec.Address
			}
		}
		if host == "" {
			continue
		}
		g.Go(func() error {
			d.logger.Info().Str("host", host).Msg("Reconnecting failed device.")
			if err := m.connectWithBackoff(gctx, d, host); err != nil && gctx.Err() == nil {
				d.logger.Warn().Err(err).Msg("Reconnect gave up.")
			}
			return nil
		})
	}
	_ = g.Wait()
}
