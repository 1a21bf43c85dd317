// Package device implements the persistent local session with one Dyson
// device: connection lifecycle, message dispatch, typed attributes and
// commands with optimistic state.
package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// Session is one device's MQTT session and the latest state it reported.
// All methods are safe for concurrent use.
type Session struct {
	id        types.Identity
	cfg       *Config
	mqttCfg   *mqttconverter.MQTTClientConfig
	newClient mqttconverter.ClientFactory
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
	topics    codec.Topics

	profileMu sync.RWMutex
	profile   types.Profile

	// connMu serializes Connect and Disconnect.
	connMu     sync.Mutex
	state      atomic.Int32
	dispatchWG sync.WaitGroup

	mu       sync.Mutex
	consumer *mqttconverter.DeviceConsumer
	host     string
	lastErr  error
	initial  chan struct{}
	reported *types.StateSnapshot
	pending  map[string]*pendingEntry
	seq      uint64

	subsMu  sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64

	visible atomic.Pointer[types.StateSnapshot]
	env     atomic.Pointer[types.EnvironmentalSnapshot]
	faults  atomic.Pointer[types.FaultSnapshot]
}

// Option customises a Session.
type Option func(*Session)

// WithMQTTConfig overrides the transport configuration.
func WithMQTTConfig(cfg *mqttconverter.MQTTClientConfig) Option {
	return func(s *Session) { s.mqttCfg = cfg }
}

// WithClientFactory replaces the paho client constructor.
func WithClientFactory(f mqttconverter.ClientFactory) Option {
	return func(s *Session) { s.newClient = f }
}

// WithMetrics records session activity.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces time.Now for message and command timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a disconnected session.
func NewSession(id types.Identity, profile types.Profile, cfg *Config, logger zerolog.Logger, opts ...Option) (*Session, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Session{
		id:        id,
		cfg:       cfg,
		mqttCfg:   mqttconverter.DefaultMQTTClientConfig(),
		newClient: mqttconverter.DefaultClientFactory,
		profile:   profile,
		logger:    logger.With().Str("component", "DeviceSession").Str("serial", id.Serial).Logger(),
		now:       time.Now,
		topics:    codec.TopicsFor(id.DeviceType, id.Serial),
		pending:   make(map[string]*pendingEntry),
		subs:      make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mqttCfg == nil {
		return nil, fmt.Errorf("mqtt client config cannot be nil")
	}
	return s, nil
}

// Identity returns the device identity.
func (s *Session) Identity() types.Identity { return s.id }

// Serial returns the device serial.
func (s *Session) Serial() string { return s.id.Serial }

// Profile returns the capability profile in use.
func (s *Session) Profile() types.Profile {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	return s.profile
}

// ExtendCapabilities widens the profile with capabilities learned while the
// session runs.
func (s *Session) ExtendCapabilities(c types.Capability) types.Profile {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	if s.profile.Capabilities.Has(c) {
		return s.profile
	}
	s.profile = s.profile.With(c)
	s.profile.Discovered = true
	s.logger.Info().Str("capabilities", s.profile.Capabilities.String()).Msg("Device profile extended.")
	return s.profile
}

// State returns the connection state.
func (s *Session) State() types.ConnectionState {
	return types.ConnectionState(s.state.Load())
}

// IsConnected reports whether the session is Connected.
func (s *Session) IsConnected() bool {
	return s.State() == types.Connected
}

// Host returns the address of the current or last connection.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// LastError returns the failure that moved the session to Failed, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// setConnState must be called with mu held, or before dispatch starts.
func (s *Session) setConnState(state types.ConnectionState) {
	prev := types.ConnectionState(s.state.Swap(int32(state)))
	s.metrics.setConnectionState(s.id.Serial, state)
	if prev != state {
		s.logger.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("Connection state changed.")
	}
}

// Connect opens the session to host. It is a no-op when already connected
// to the same host; a different host closes the current connection first.
func (s *Session) Connect(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidArgument)
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.IsConnected() && s.Host() == host {
		return nil
	}
	s.teardown()

	consumer, err := mqttconverter.NewDeviceConsumer(
		s.mqttCfg,
		mqttconverter.Credentials{Username: s.id.Serial, Password: s.id.Credential},
		s.topics.Subscriptions(),
		s.newClient,
		s.logger,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	initial := make(chan struct{})

	s.mu.Lock()
	s.consumer = consumer
	s.host = host
	s.lastErr = nil
	s.initial = initial
	s.setConnState(types.Connecting)
	s.mu.Unlock()

	s.logger.Info().Str("host", host).Msg("Connecting to device.")
	if err := consumer.Connect(host); err != nil {
		return s.fail(consumer, classifyConnectError(err))
	}

	s.dispatchWG.Add(1)
	go s.dispatch(consumer)

	if err := s.requestInitial(consumer); err != nil {
		return s.fail(consumer, err)
	}

	if s.cfg.AwaitInitialState {
		select {
		case <-initial:
		case <-time.After(s.cfg.InitialStateTimeout):
			return s.fail(consumer, fmt.Errorf("%w: no state received within %s", ErrConnectTimeout, s.cfg.InitialStateTimeout))
		case <-consumer.Done():
			return s.connectInterrupted()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumer != consumer {
		return fmt.Errorf("%w: connect aborted", ErrNotConnected)
	}
	select {
	case <-consumer.Done():
		if s.lastErr != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, s.lastErr)
		}
		return fmt.Errorf("%w: connect aborted", ErrNotConnected)
	default:
	}
	s.setConnState(types.Connected)
	s.logger.Info().Str("host", host).Msg("Connected to device.")
	return nil
}

func (s *Session) connectInterrupted() error {
	if err := s.LastError(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return fmt.Errorf("%w: connect aborted", ErrNotConnected)
}

// fail stops consumer and records err if consumer is still current.
func (s *Session) fail(consumer *mqttconverter.DeviceConsumer, err error) error {
	consumer.Stop()
	s.mu.Lock()
	if s.consumer == consumer {
		s.lastErr = err
		s.setConnState(types.Failed)
	}
	s.mu.Unlock()
	s.logger.Warn().Err(err).Msg("Failed to connect to device.")
	return err
}

func (s *Session) requestInitial(consumer *mqttconverter.DeviceConsumer) error {
	msgs := []string{codec.MsgRequestCurrentState}
	if s.Profile().Family == types.FamilyFan {
		msgs = append(msgs, codec.MsgRequestEnvironmental, codec.MsgRequestCurrentFaults)
	}
	for _, msg := range msgs {
		if err := s.publishRequest(consumer, msg); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect closes the session. It aborts a Connect in progress, never
// fails and may be called repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	inFlight := s.consumer
	s.mu.Unlock()
	if inFlight != nil {
		inFlight.Stop()
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.teardown()

	s.mu.Lock()
	wasActive := s.State() != types.Disconnected
	s.lastErr = nil
	s.setConnState(types.Disconnected)
	s.mu.Unlock()
	if wasActive {
		s.logger.Info().Msg("Disconnected from device.")
	}
}

// teardown stops the current consumer, waits for dispatch to exit and drops
// pending optimistic values. connMu must be held.
func (s *Session) teardown() {
	s.mu.Lock()
	consumer := s.consumer
	s.consumer = nil
	s.initial = nil
	s.clearPendingLocked()
	s.mu.Unlock()

	if consumer != nil {
		consumer.Stop()
	}
	s.dispatchWG.Wait()
}

// handleLost marks the session Failed after the transport drops.
func (s *Session) handleLost(consumer *mqttconverter.DeviceConsumer, cause error) {
	s.mu.Lock()
	current := s.consumer == consumer
	if current {
		s.lastErr = fmt.Errorf("%w: connection lost: %w", ErrTransport, cause)
		s.setConnState(types.Failed)
	}
	s.mu.Unlock()
	consumer.Stop()
	if current {
		s.logger.Warn().Err(cause).Msg("Lost connection to device.")
	}
}

// activeConsumer returns the consumer of a Connected session.
func (s *Session) activeConsumer() (*mqttconverter.DeviceConsumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != types.Connected || s.consumer == nil {
		if s.lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, s.lastErr)
		}
		return nil, ErrNotConnected
	}
	return s.consumer, nil
}

func (s *Session) publishRequest(consumer *mqttconverter.DeviceConsumer, msg string) error {
	payload, err := codec.EncodeRequest(msg, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg, err)
	}
	err = consumer.Publish(s.topics.Command, payload)
	s.metrics.commandPublished(err)
	if err != nil {
		return classifyPublishError(err)
	}
	s.logger.Debug().Str("msg", msg).Msg("Request published.")
	return nil
}

// RequestCurrentStatus asks the device to publish its full state.
func (s *Session) RequestCurrentStatus() error {
	consumer, err := s.activeConsumer()
	if err != nil {
		return err
	}
	return s.publishRequest(consumer, codec.MsgRequestCurrentState)
}

// RequestEnvironmentalData asks a fan-family device for sensor readings.
func (s *Session) RequestEnvironmentalData() error {
	if s.Profile().Family != types.FamilyFan {
		return fmt.Errorf("%w: environmental data", ErrNotSupported)
	}
	consumer, err := s.activeConsumer()
	if err != nil {
		return err
	}
	return s.publishRequest(consumer, codec.MsgRequestEnvironmental)
}

// RequestCurrentFaults asks the device to publish its fault table.
func (s *Session) RequestCurrentFaults() error {
	consumer, err := s.activeConsumer()
	if err != nil {
		return err
	}
	return s.publishRequest(consumer, codec.MsgRequestCurrentFaults)
}

// CurrentState returns the visible state: the reported state with pending
// optimistic values applied.
func (s *Session) CurrentState() (types.StateSnapshot, bool) {
	v := s.visible.Load()
	if v == nil {
		return types.StateSnapshot{}, false
	}
	return *v, true
}

// Environmental returns the latest sensor snapshot.
func (s *Session) Environmental() (types.EnvironmentalSnapshot, bool) {
	v := s.env.Load()
	if v == nil {
		return types.EnvironmentalSnapshot{}, false
	}
	return *v, true
}

// Faults returns the latest fault snapshot.
func (s *Session) Faults() (types.FaultSnapshot, bool) {
	v := s.faults.Load()
	if v == nil {
		return types.FaultSnapshot{}, false
	}
	return *v, true
}
