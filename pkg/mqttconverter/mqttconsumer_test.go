package mqttconverter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCreds  = mqttconverter.Credentials{Username: "NK6-EU-MHA0000A", Password: "secret"}
	testTopics = []string{"438/NK6-EU-MHA0000A/status/current", "438/NK6-EU-MHA0000A/status/fault"}
)

func testConfig() *mqttconverter.MQTTClientConfig {
	cfg := mqttconverter.DefaultMQTTClientConfig()
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.OperationTimeout = 200 * time.Millisecond
	return cfg
}

func TestNewDeviceConsumer_Validation(t *testing.T) {
	_, err := mqttconverter.NewDeviceConsumer(nil, testCreds, testTopics, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = mqttconverter.NewDeviceConsumer(testConfig(), mqttconverter.Credentials{Username: "x"}, testTopics, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = mqttconverter.NewDeviceConsumer(testConfig(), testCreds, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestDeviceConsumer_ConnectAndReceive(t *testing.T) {
	// Arrange
	device := mqtttest.NewDevice(nil)
	consumer, err := mqttconverter.NewDeviceConsumer(testConfig(), testCreds, testTopics, device.Factory(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(consumer.Stop)

	// Act
	err = consumer.Connect("192.168.1.20")
	require.NoError(t, err)

	// Assert the paho options carry the device credentials and broker address.
	opts := device.LastOptions()
	require.NotNil(t, opts)
	assert.Equal(t, testCreds.Username, opts.Username)
	assert.Equal(t, testCreds.Password, opts.Password)
	assert.Equal(t, uint(3), opts.ProtocolVersion)
	assert.False(t, opts.AutoReconnect)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://192.168.1.20:1883", opts.Servers[0].String())
	assert.ElementsMatch(t, testTopics, device.Subscriptions())
	assert.True(t, consumer.IsConnected())

	// Simulate the device publishing a state message.
	require.True(t, device.Deliver(testTopics[0], `{"msg":"CURRENT-STATE"}`))

	select {
	case msg := <-consumer.Messages():
		assert.Equal(t, testTopics[0], msg.Topic)
		assert.JSONEq(t, `{"msg":"CURRENT-STATE"}`, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message from consumer")
	}
}

func TestDeviceConsumer_ConnectErrors(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(d *mqtttest.Device)
		wantErr error
	}{
		{
			name:    "bad credentials",
			setup:   func(d *mqtttest.Device) { d.ConnectErr = packets.ErrorRefusedBadUsernameOrPassword },
			wantErr: mqttconverter.ErrRefusedCredentials,
		},
		{
			name:    "not authorised",
			setup:   func(d *mqtttest.Device) { d.ConnectErr = packets.ErrorRefusedNotAuthorised },
			wantErr: mqttconverter.ErrRefusedCredentials,
		},
		{
			name:    "network failure",
			setup:   func(d *mqtttest.Device) { d.ConnectErr = errors.New("dial tcp: connection refused") },
			wantErr: mqttconverter.ErrConnectFailed,
		},
		{
			name:    "no connack",
			setup:   func(d *mqtttest.Device) { d.ConnectHangs = true },
			wantErr: mqttconverter.ErrConnectTimeout,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			device := mqtttest.NewDevice(nil)
			tc.setup(device)
			consumer, err := mqttconverter.NewDeviceConsumer(testConfig(), testCreds, testTopics, device.Factory(), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(consumer.Stop)

			err = consumer.Connect("10.0.0.1")
			assert.ErrorIs(t, err, tc.wantErr)
			assert.False(t, consumer.IsConnected())
		})
	}
}

func TestDeviceConsumer_StopAbortsConnect(t *testing.T) {
	device := mqtttest.NewDevice(nil)
	device.ConnectHangs = true
	cfg := testConfig()
	cfg.ConnectTimeout = 10 * time.Second
	consumer, err := mqttconverter.NewDeviceConsumer(cfg, testCreds, testTopics, device.Factory(), zerolog.Nop())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Connect("10.0.0.1") }()
	time.Sleep(20 * time.Millisecond)
	consumer.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, mqttconverter.ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("Connect did not return after Stop")
	}
}

func TestDeviceConsumer_PublishAndStop(t *testing.T) {
	device := mqtttest.NewDevice(nil)
	consumer, err := mqttconverter.NewDeviceConsumer(testConfig(), testCreds, testTopics, device.Factory(), zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, consumer.Publish("438/x/command", []byte(`{}`)), mqttconverter.ErrNotConnected)

	require.NoError(t, consumer.Connect("10.0.0.1"))
	require.NoError(t, consumer.Publish("438/x/command", []byte(`{"msg":"REQUEST-CURRENT-STATE"}`)))
	assert.Equal(t, []string{"REQUEST-CURRENT-STATE"}, device.PublishedMsgs())

	consumer.Stop()
	consumer.Stop()

	assert.Equal(t, 1, device.Disconnects())
	select {
	case <-consumer.Done():
	default:
		t.Fatal("Done() channel should be closed after Stop()")
	}
	assert.ErrorIs(t, consumer.Publish("438/x/command", []byte(`{}`)), mqttconverter.ErrNotConnected)
}

func TestDeviceConsumer_ConnectionLost(t *testing.T) {
	device := mqtttest.NewDevice(nil)
	consumer, err := mqttconverter.NewDeviceConsumer(testConfig(), testCreds, testTopics, device.Factory(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(consumer.Stop)
	require.NoError(t, consumer.Connect("10.0.0.1"))

	device.DropConnection(errors.New("EOF"))

	select {
	case err := <-consumer.Lost():
		assert.EqualError(t, err, "EOF")
	case <-time.After(time.Second):
		t.Fatal("connection loss was not reported")
	}
}
