package microservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/discovery"
	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	fanSerial = "NK6-EU-MHA0000A"

	fanState = `{"msg":"CURRENT-STATE","time":"2024-01-01T00:00:00Z","product-state":{
		"fpwr":"ON","fnsp":"0004","auto":"OFF","oson":"OFF","nmod":"OFF","rhtm":"ON","sltm":"OFF","hflr":"0080","cflr":"INV"}}`
)

var fanIdentity = types.Identity{Serial: fanSerial, Credential: "c2VjcmV0", DeviceType: types.DeviceTypePureCool}

var fanProfile = types.Profile{
	DeviceType:   types.DeviceTypePureCool,
	Family:       types.FamilyFan,
	Capabilities: types.CapFan | types.CapAutoMode | types.CapNightMode | types.CapEnvironmental | types.CapHEPAFilter,
}

// idleBrowser never announces anything; tests feed the resolver with Observe.
type idleBrowser struct{}

func (idleBrowser) Browse(ctx context.Context, _ string, _ chan<- discovery.Announcement) error {
	<-ctx.Done()
	return nil
}

func newResolver(t *testing.T) *discovery.Resolver {
	t.Helper()
	r, err := discovery.NewResolver(nil, idleBrowser{}, nil, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func newFanDevice() *mqtttest.Device {
	return mqtttest.NewDevice(map[string]string{codec.MsgRequestCurrentState: fanState})
}

func newSession(t *testing.T, clients mqttconverter.ClientFactory) *device.Session {
	t.Helper()
	mqttCfg := mqttconverter.DefaultMQTTClientConfig()
	mqttCfg.ConnectTimeout = 200 * time.Millisecond
	mqttCfg.OperationTimeout = 200 * time.Millisecond
	cfg := device.DefaultConfig()
	cfg.InitialStateTimeout = 300 * time.Millisecond
	s, err := device.NewSession(fanIdentity, fanProfile, cfg, zerolog.Nop(),
		device.WithMQTTConfig(mqttCfg), device.WithClientFactory(clients))
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

// hostRouter hands out clients for the fake registered for the dialled
// host and counts every client built.
type hostRouter struct {
	mu      sync.Mutex
	devices map[string]*mqtttest.Device
	builds  int
}

func newHostRouter(devices map[string]*mqtttest.Device) *hostRouter {
	return &hostRouter{devices: devices}
}

func (h *hostRouter) Factory() mqttconverter.ClientFactory {
	return func(opts *mqtt.ClientOptions) mqtt.Client {
		h.mu.Lock()
		h.builds++
		fake, ok := h.devices[opts.Servers[0].Hostname()]
		h.mu.Unlock()
		if !ok {
			fake = mqtttest.NewDevice(nil)
			fake.ConnectErr = errors.New("connection refused")
		}
		return fake.Factory()(opts)
	}
}

func (h *hostRouter) Builds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.builds
}

func testManagerConfig() microservice.ManagerConfig {
	return microservice.ManagerConfig{
		ReconnectMaxElapsed:     time.Second,
		ReconnectInitialBackoff: 10 * time.Millisecond,
		ConnectConcurrency:      2,
	}
}
