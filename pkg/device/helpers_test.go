package device_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	fanSerial   = "NK6-EU-MHA0000A"
	fanHost     = "192.168.1.20"
	statusTopic = "438/" + fanSerial + "/status/current"

	fanCurrentState = `{"msg":"CURRENT-STATE","time":"2024-01-01T00:00:00Z","product-state":{
		"fpwr":"OFF","fnsp":"0003","auto":"OFF","oson":"OFF","osal":"0045","osau":"0315",
		"nmod":"OFF","rhtm":"ON","sltm":"OFF","fdir":"ON","hflr":"0080","cflr":"INV"}}`

	fanEnvironment = `{"msg":"ENVIRONMENTAL-CURRENT-SENSOR-DATA","time":"2024-01-01T00:00:00Z","data":{
		"tact":"2950","hact":"0045","pm25":"0010","pm10":"0012","va10":"INIT","noxl":"FAIL","sltm":"OFF"}}`
)

var fanIdentity = types.Identity{Serial: fanSerial, Credential: "c2VjcmV0", DeviceType: types.DeviceTypePureCool}

var fanProfile = types.Profile{
	DeviceType: types.DeviceTypePureCool,
	Family:     types.FamilyFan,
	Capabilities: types.CapFan | types.CapAutoMode | types.CapOscillation | types.CapOscillationAngles |
		types.CapNightMode | types.CapContinuousMonitoring | types.CapSleepTimer | types.CapFrontAirflow |
		types.CapHEPAFilter | types.CapCarbonFilter | types.CapEnvironmental | types.CapParticulateMatter |
		types.CapVOC | types.CapNO2,
}

func testMQTTConfig() *mqttconverter.MQTTClientConfig {
	cfg := mqttconverter.DefaultMQTTClientConfig()
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.OperationTimeout = 200 * time.Millisecond
	return cfg
}

func testSessionConfig() *device.Config {
	cfg := device.DefaultConfig()
	cfg.InitialStateTimeout = 500 * time.Millisecond
	cfg.OptimisticTTL = 0
	return cfg
}

// newFanDevice answers a state request with fanCurrentState.
func newFanDevice() *mqtttest.Device {
	return mqtttest.NewDevice(map[string]string{"REQUEST-CURRENT-STATE": fanCurrentState})
}

func newSession(t *testing.T, fake *mqtttest.Device, id types.Identity, profile types.Profile, cfg *device.Config, opts ...device.Option) *device.Session {
	t.Helper()
	if cfg == nil {
		cfg = testSessionConfig()
	}
	opts = append([]device.Option{
		device.WithMQTTConfig(testMQTTConfig()),
		device.WithClientFactory(fake.Factory()),
	}, opts...)
	s, err := device.NewSession(id, profile, cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

// connectedFan returns a connected 438 session and its fake device.
func connectedFan(t *testing.T, cfg *device.Config) (*device.Session, *mqtttest.Device) {
	t.Helper()
	fake := newFanDevice()
	s := newSession(t, fake, fanIdentity, fanProfile, cfg)
	require.NoError(t, s.Connect(fanHost))
	return s, fake
}

func lastPayload(t *testing.T, fake *mqtttest.Device) map[string]any {
	t.Helper()
	published := fake.Published()
	require.NotEmpty(t, published)
	var body map[string]any
	require.NoError(t, json.Unmarshal(published[len(published)-1].Payload, &body))
	return body
}

func receive(t *testing.T, sub *device.Subscription) device.Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return device.Event{}
	}
}

func expectNoEvent(t *testing.T, sub *device.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
