package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/factory"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	heaterState = `{"msg":"CURRENT-STATE","time":"2024-01-01T00:00:00Z","product-state":{
		"fpwr":"ON","fnsp":"0004","auto":"OFF","oson":"ON","osal":"0090","osau":"0270","nmod":"OFF",
		"rhtm":"ON","sltm":"OFF","fdir":"ON","hmod":"OFF","hmax":"2960","hflr":"0090","cflr":"0090"}}`

	heaterEnvironment = `{"msg":"ENVIRONMENTAL-CURRENT-SENSOR-DATA","time":"2024-01-01T00:00:00Z","data":{
		"tact":"2950","hact":"0045","pm25":"0003","pm10":"0004","va10":"0010","noxl":"0005","hchr":"0001","sltm":"OFF"}}`
)

func heaterResponses() map[string]string {
	return map[string]string{
		codec.MsgRequestCurrentState:  heaterState,
		codec.MsgRequestEnvironmental: heaterEnvironment,
	}
}

func probeOptions(fake *mqtttest.Device) []device.Option {
	mqttCfg := mqttconverter.DefaultMQTTClientConfig()
	mqttCfg.ConnectTimeout = 200 * time.Millisecond
	mqttCfg.OperationTimeout = 200 * time.Millisecond
	return []device.Option{device.WithMQTTConfig(mqttCfg), device.WithClientFactory(fake.Factory())}
}

func probeConfigs() (*factory.Config, *device.Config) {
	cfg := factory.DefaultConfig()
	cfg.ProbeEnvWait = 200 * time.Millisecond
	sessionCfg := device.DefaultConfig()
	sessionCfg.InitialStateTimeout = 300 * time.Millisecond
	return cfg, sessionCfg
}

func TestSessionProber_Probe(t *testing.T) {
	id := identity("NK6-EU-MHA0000A", "527K")

	t.Run("infers from state and sensors", func(t *testing.T) {
		// Arrange
		fake := mqtttest.NewDevice(heaterResponses())
		cfg, sessionCfg := probeConfigs()
		prober := factory.NewSessionProber(cfg, sessionCfg, zerolog.Nop(), probeOptions(fake)...)

		// Act
		profile, err := prober.Probe(context.Background(), id, "192.168.1.20")

		// Assert
		require.NoError(t, err)
		assert.True(t, profile.Discovered)
		assert.Equal(t, types.FamilyFan, profile.Family)
		assert.True(t, profile.Has(types.CapHeating|types.CapFormaldehyde|types.CapCarbonFilter|types.CapOscillationAngles))
		assert.False(t, profile.Has(types.CapLinkProtocol))
		assert.False(t, fake.IsConnected(), "probe session must disconnect")
		assert.Equal(t, 1, fake.Connects())
	})

	t.Run("state only", func(t *testing.T) {
		fake := mqtttest.NewDevice(map[string]string{codec.MsgRequestCurrentState: heaterState})
		cfg, sessionCfg := probeConfigs()
		prober := factory.NewSessionProber(cfg, sessionCfg, zerolog.Nop(), probeOptions(fake)...)

		profile, err := prober.Probe(context.Background(), id, "192.168.1.20")

		require.NoError(t, err)
		assert.True(t, profile.Has(types.CapHeating))
		assert.False(t, profile.Has(types.CapEnvironmental))
	})

	t.Run("unreachable device", func(t *testing.T) {
		fake := mqtttest.NewDevice(nil)
		fake.Silent = true
		cfg, sessionCfg := probeConfigs()
		prober := factory.NewSessionProber(cfg, sessionCfg, zerolog.Nop(), probeOptions(fake)...)

		_, err := prober.Probe(context.Background(), id, "192.168.1.20")

		assert.ErrorIs(t, err, device.ErrConnectTimeout)
	})

	t.Run("cancelled", func(t *testing.T) {
		fake := mqtttest.NewDevice(nil)
		fake.ConnectHangs = true
		cfg, sessionCfg := probeConfigs()
		opts := probeOptions(fake)
		mqttCfg := mqttconverter.DefaultMQTTClientConfig()
		mqttCfg.ConnectTimeout = 10 * time.Second
		opts = append(opts, device.WithMQTTConfig(mqttCfg))
		prober := factory.NewSessionProber(cfg, sessionCfg, zerolog.Nop(), opts...)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := prober.Probe(ctx, id, "192.168.1.20")

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestFactory_ProbesWithSessions(t *testing.T) {
	fake := mqtttest.NewDevice(heaterResponses())
	cfg, sessionCfg := probeConfigs()
	f, err := factory.NewFactory(cfg, sessionCfg, nil, nil, zerolog.Nop(), probeOptions(fake)...)
	require.NoError(t, err)
	defer f.Close()

	s, err := f.CreateWithHost(context.Background(), identity("NK6-EU-MHA0000A", "999"), "192.168.1.20")

	require.NoError(t, err)
	assert.True(t, s.Profile().Has(types.CapHeating|types.CapFormaldehyde))
	require.NoError(t, s.Connect("192.168.1.20"))
	on, err := s.IsOn()
	require.NoError(t, err)
	assert.True(t, on)
	s.Disconnect()
}
