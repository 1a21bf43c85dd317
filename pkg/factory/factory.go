// Package factory builds device sessions, choosing each device's capability
// profile by probing it and falling back to a static table.
package factory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-dysonlocal/pkg/cache"
	"github.com/illmade-knight/go-dysonlocal/pkg/cloud"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownDeviceType is returned when a device type is not in the static
// table and could not be probed.
var ErrUnknownDeviceType = errors.New("unknown device type")

// Locator finds a device's current address, typically the discovery resolver.
type Locator interface {
	Resolve(ctx context.Context, serial string) (string, error)
}

// DeviceLister lists the devices of a cloud account.
type DeviceLister interface {
	Devices(ctx context.Context) ([]cloud.DeviceInfo, error)
}

// cloudCreateLimit bounds concurrent creates during a cloud import.
const cloudCreateLimit = 4

type probeHostKey struct{}

// Factory creates sessions. Learned profiles are cached per identity and
// concurrent probes of one device share a single connection.
type Factory struct {
	cfg         *Config
	sessionCfg  *device.Config
	sessionOpts []device.Option
	prober      Prober
	locator     Locator
	profiles    *cache.InMemoryLRUCache[types.Identity, types.Profile]
	logger      zerolog.Logger
}

// NewFactory creates a factory. A nil prober uses a SessionProber with the
// same session options; a nil locator only probes devices given a host.
func NewFactory(cfg *Config, sessionCfg *device.Config, prober Prober, locator Locator, logger zerolog.Logger, sessionOpts ...device.Option) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if sessionCfg == nil {
		sessionCfg = device.DefaultConfig()
	}
	f := &Factory{
		cfg:         cfg,
		sessionCfg:  sessionCfg,
		sessionOpts: sessionOpts,
		prober:      prober,
		locator:     locator,
		logger:      logger.With().Str("component", "DeviceFactory").Logger(),
	}
	if f.prober == nil {
		f.prober = NewSessionProber(cfg, sessionCfg, logger, sessionOpts...)
	}
	profiles, err := cache.NewInMemoryLRUCache[types.Identity, types.Profile](cfg.ProfileCacheSize, cache.FetcherFunc[types.Identity, types.Profile](f.probe))
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	f.profiles = profiles
	return f, nil
}

// Create builds a disconnected session for id.
func (f *Factory) Create(ctx context.Context, id types.Identity) (*device.Session, error) {
	return f.CreateWithHost(ctx, id, "")
}

// CreateWithHost builds a disconnected session for id, probing host when
// one is given instead of locating the device.
func (f *Factory) CreateWithHost(ctx context.Context, id types.Identity, host string) (*device.Session, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrInvalidArgument, err)
	}
	profile, err := f.Profile(ctx, id, host)
	if err != nil {
		return nil, err
	}
	return device.NewSession(id, profile, f.sessionCfg, f.logger, f.sessionOpts...)
}

// Profile chooses the profile for id. Vacuums and Link models always use
// the static table; other devices are probed when discovery is enabled and
// an address is known.
func (f *Factory) Profile(ctx context.Context, id types.Identity, host string) (types.Profile, error) {
	static, known := StaticProfile(id.DeviceType)
	logger := f.logger.With().Str("serial", id.Serial).Str("device_type", id.DeviceType).Logger()

	if types.IsVacuum(types.BaseDeviceType(id.DeviceType)) {
		return static, nil
	}
	if known && static.Has(types.CapLinkProtocol) {
		return static, nil
	}
	if !f.cfg.CapabilityDiscovery {
		return f.fallback(id, static, known, errors.New("capability discovery disabled"))
	}

	if profile, ok := f.profiles.Peek(id); ok {
		return profile, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()
	if host == "" {
		if f.locator == nil {
			return f.fallback(id, static, known, errors.New("no address known"))
		}
		resolved, err := f.locator.Resolve(probeCtx, id.Serial)
		if err != nil {
			logger.Debug().Err(err).Msg("Device not located for probing.")
			return f.fallback(id, static, known, err)
		}
		host = resolved
	}

	profile, err := f.profiles.Fetch(context.WithValue(probeCtx, probeHostKey{}, host), id)
	if err != nil {
		logger.Warn().Err(err).Str("host", host).Msg("Capability probe failed, using static profile.")
		return f.fallback(id, static, known, err)
	}
	return profile, nil
}

func (f *Factory) fallback(id types.Identity, static types.Profile, known bool, cause error) (types.Profile, error) {
	if known {
		return static, nil
	}
	return types.Profile{}, fmt.Errorf("%w: %q (%v)", ErrUnknownDeviceType, id.DeviceType, cause)
}

// probe is the profile cache's fallback fetcher.
func (f *Factory) probe(ctx context.Context, id types.Identity) (types.Profile, error) {
	host, _ := ctx.Value(probeHostKey{}).(string)
	if host == "" {
		return types.Profile{}, errors.New("probe needs a host")
	}
	profile, err := f.prober.Probe(ctx, id, host)
	if err != nil {
		return types.Profile{}, err
	}
	profile.DeviceType = id.DeviceType
	return profile, nil
}

// Forget drops a learned profile so the next Create probes again.
func (f *Factory) Forget(ctx context.Context, id types.Identity) error {
	return f.profiles.Invalidate(ctx, id)
}

// FromCloud creates a session for every device of the account. Devices
// with unknown types or undecryptable credentials are skipped and logged.
func (f *Factory) FromCloud(ctx context.Context, lister DeviceLister) ([]*device.Session, error) {
	infos, err := lister.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cloud devices: %w", err)
	}

	var (
		mu       sync.Mutex
		sessions = make([]*device.Session, 0, len(infos))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudCreateLimit)
	for _, info := range infos {
		g.Go(func() error {
			logger := f.logger.With().Str("serial", info.Serial).Str("name", info.Name).Logger()
			id, err := info.Identity()
			if err != nil {
				logger.Warn().Err(err).Msg("Skipping cloud device with unreadable credential.")
				return nil
			}
			s, err := f.Create(gctx, id)
			if err != nil {
				logger.Warn().Err(err).Msg("Skipping cloud device.")
				return nil
			}
			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Serial() < sessions[j].Serial() })
	f.logger.Info().Int("devices", len(infos)).Int("sessions", len(sessions)).Msg("Imported devices from cloud account.")
	return sessions, nil
}

// Close releases the profile cache.
func (f *Factory) Close() error {
	return f.profiles.Close()
}
