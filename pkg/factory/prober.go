package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNothingInferred is returned when a probe saw no recognisable field.
var ErrNothingInferred = errors.New("no capabilities inferred from device state")

// Prober learns a device's profile by talking to it.
type Prober interface {
	Probe(ctx context.Context, id types.Identity, host string) (types.Profile, error)
}

// SessionProber probes with a short-lived device session.
type SessionProber struct {
	envWait    time.Duration
	sessionCfg device.Config
	opts       []device.Option
	logger     zerolog.Logger
}

// NewSessionProber creates a prober. sessionCfg supplies the initial state
// timeout; opts are passed to every probe session.
func NewSessionProber(cfg *Config, sessionCfg *device.Config, logger zerolog.Logger, opts ...device.Option) *SessionProber {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if sessionCfg == nil {
		sessionCfg = device.DefaultConfig()
	}
	probeCfg := *sessionCfg
	probeCfg.AwaitInitialState = true
	probeCfg.OptimisticTTL = 0
	return &SessionProber{
		envWait:    cfg.ProbeEnvWait,
		sessionCfg: probeCfg,
		opts:       opts,
		logger:     logger.With().Str("component", "SessionProber").Logger(),
	}
}

// Probe connects, waits for the device state and a sensor report, infers
// the capabilities and disconnects.
func (p *SessionProber) Probe(ctx context.Context, id types.Identity, host string) (types.Profile, error) {
	probeProfile := types.Profile{DeviceType: id.DeviceType, Family: types.FamilyFan, Capabilities: types.CapFan}
	s, err := device.NewSession(id, probeProfile, &p.sessionCfg, p.logger, p.opts...)
	if err != nil {
		return types.Profile{}, err
	}
	sub := s.Subscribe(8)
	defer sub.Close()
	defer s.Disconnect()

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(host) }()
	select {
	case err := <-connected:
		if err != nil {
			return types.Profile{}, fmt.Errorf("probe connect: %w", err)
		}
	case <-ctx.Done():
		s.Disconnect()
		<-connected
		return types.Profile{}, ctx.Err()
	}

	if _, ok := s.Environmental(); !ok {
		p.awaitEnvironmental(ctx, sub)
	}

	state, _ := s.CurrentState()
	var envPtr *types.EnvironmentalSnapshot
	if env, ok := s.Environmental(); ok {
		envPtr = &env
	}
	caps := InferCapabilities(state, envPtr)
	if caps == 0 {
		return types.Profile{}, ErrNothingInferred
	}
	profile := types.Profile{DeviceType: id.DeviceType, Family: familyOf(caps), Capabilities: caps, Discovered: true}
	p.logger.Info().Str("serial", id.Serial).Str("capabilities", caps.String()).Msg("Device capabilities discovered.")
	return profile, nil
}

func (p *SessionProber) awaitEnvironmental(ctx context.Context, sub *device.Subscription) {
	timer := time.NewTimer(p.envWait)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok || ev.Kind == types.MessageEnvironmental {
				return
			}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
