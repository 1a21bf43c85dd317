package microservice_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/discovery"
	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countMsgs(fake *mqtttest.Device, msg string) int {
	n := 0
	for _, m := range fake.PublishedMsgs() {
		if m == msg {
			n++
		}
	}
	return n
}

func startManager(t *testing.T, m *microservice.DeviceManager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
}

func TestDeviceManager_StaticHost(t *testing.T) {
	// Arrange
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	resolver := newResolver(t)
	m := microservice.NewDeviceManager(testManagerConfig(), resolver, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "Bedroom", "192.168.1.20"))

	// Act
	startManager(t, m)

	// Assert
	assert.True(t, s.IsConnected())
	rec, ok := resolver.Lookup(context.Background(), fanSerial)
	require.True(t, ok, "a working address is remembered")
	assert.Equal(t, "192.168.1.20", rec.Address)

	status, ok := m.Status(fanSerial)
	require.True(t, ok)
	assert.Equal(t, "Bedroom", status.Name)
	assert.Equal(t, "connected", status.State)
	assert.Equal(t, "fan", status.Family)
	assert.Contains(t, status.Capabilities, "environmental")

	m.Stop()
	assert.Equal(t, types.Disconnected, s.State())
	assert.False(t, fake.IsConnected())
}

func TestDeviceManager_StaticHostFallsBackToDiscovery(t *testing.T) {
	// Arrange
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.30": fake})
	resolver := newResolver(t)
	m := microservice.NewDeviceManager(testManagerConfig(), resolver, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "Bedroom", "192.168.1.99"))
	startManager(t, m)
	require.Equal(t, types.Failed, s.State())

	// Act
	resolver.Observe(discovery.Announcement{Serial: fanSerial, Address: "192.168.1.30"})

	// Assert
	require.Eventually(t, s.IsConnected, time.Second, 10*time.Millisecond)
	assert.Equal(t, "192.168.1.30", s.Host())
}

func TestDeviceManager_LastKnownAddress(t *testing.T) {
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.40": fake})
	resolver := newResolver(t)
	resolver.Remember(fanSerial, "192.168.1.40")
	m := microservice.NewDeviceManager(testManagerConfig(), resolver, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", ""))

	startManager(t, m)

	assert.True(t, s.IsConnected())
	assert.Equal(t, "192.168.1.40", s.Host())
}

func TestDeviceManager_WaitsForDiscovery(t *testing.T) {
	// Arrange
	first, second := newFanDevice(), newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.50": first, "192.168.1.51": second})
	resolver := newResolver(t)
	m := microservice.NewDeviceManager(testManagerConfig(), resolver, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", ""))
	startManager(t, m)
	require.Equal(t, types.Disconnected, s.State())
	assert.Zero(t, router.Builds())

	// Act
	resolver.Observe(discovery.Announcement{Serial: fanSerial, Address: "192.168.1.50"})

	// Assert
	require.Eventually(t, s.IsConnected, time.Second, 10*time.Millisecond)
	assert.Equal(t, "192.168.1.50", s.Host())

	t.Run("address change reconnects", func(t *testing.T) {
		resolver.Observe(discovery.Announcement{Serial: fanSerial, Address: "192.168.1.51"})

		require.Eventually(t, func() bool {
			return s.IsConnected() && s.Host() == "192.168.1.51"
		}, time.Second, 10*time.Millisecond)
		assert.False(t, first.IsConnected())
		assert.True(t, second.IsConnected())
	})
}

func TestDeviceManager_RejectedCredentialIsNotRetried(t *testing.T) {
	// Arrange
	fake := mqtttest.NewDevice(nil)
	fake.ConnectErr = packets.ErrorRefusedBadUsernameOrPassword
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	resolver := newResolver(t)
	m := microservice.NewDeviceManager(testManagerConfig(), resolver, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", "192.168.1.20"))
	startManager(t, m)

	// Act
	m.ReconnectFailed(context.Background())
	resolver.Observe(discovery.Announcement{Serial: fanSerial, Address: "192.168.1.20"})

	// Assert
	assert.Equal(t, types.Failed, s.State())
	assert.ErrorIs(t, s.LastError(), device.ErrInvalidCredential)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, router.Builds())
}

func TestDeviceManager_ReconnectFailed(t *testing.T) {
	// Arrange
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	m := microservice.NewDeviceManager(testManagerConfig(), nil, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", "192.168.1.20"))
	startManager(t, m)
	fake.DropConnection(io.EOF)
	require.Eventually(t, func() bool { return s.State() == types.Failed }, time.Second, 10*time.Millisecond)

	// Act
	m.ReconnectFailed(context.Background())

	// Assert
	assert.True(t, s.IsConnected())
	assert.Equal(t, 2, fake.Connects())
}

func TestDeviceManager_BackgroundReconnect(t *testing.T) {
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	cfg := testManagerConfig()
	cfg.ReconnectInterval = 20 * time.Millisecond
	m := microservice.NewDeviceManager(cfg, nil, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", "192.168.1.20"))
	startManager(t, m)

	fake.DropConnection(io.EOF)

	require.Eventually(t, func() bool { return fake.Connects() == 2 && s.IsConnected() }, 2*time.Second, 10*time.Millisecond)
}

func TestDeviceManager_PollEnvironmental(t *testing.T) {
	// Arrange
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	m := microservice.NewDeviceManager(testManagerConfig(), nil, zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "", "192.168.1.20"))
	startManager(t, m)
	before := countMsgs(fake, codec.MsgRequestEnvironmental)

	// Act
	m.PollEnvironmental()

	// Assert
	assert.Equal(t, before+1, countMsgs(fake, codec.MsgRequestEnvironmental))
}

func TestDeviceManager_Add(t *testing.T) {
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	var watched int
	m := microservice.NewDeviceManager(testManagerConfig(), nil, zerolog.Nop(),
		microservice.WithCapabilityWatcher(func(s *device.Session, _ zerolog.Logger) *device.Subscription {
			watched++
			return s.Subscribe(1)
		}))
	startManager(t, m)
	s := newSession(t, router.Factory())

	require.NoError(t, m.Add(s, "Office", "192.168.1.20"))

	require.Eventually(t, s.IsConnected, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, m.Add(s, "Office", "192.168.1.20"), microservice.ErrDuplicateDevice)
	got, ok := m.Session(fanSerial)
	require.True(t, ok)
	assert.Same(t, s, got)
	_, ok = m.Session("unknown")
	assert.False(t, ok)
	m.Stop()
	assert.Equal(t, 1, watched)
	assert.Len(t, m.Devices(), 1)
}
