package mqttconverter

import (
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// InMessage represents a raw message received from a device's broker.
type InMessage struct {
	Payload   []byte    `json:"payload"`
	Topic     string    `json:"topic"`
	MessageID uint16    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Duplicate bool      `json:"duplicate"`
}

// Credentials authenticate one device session. Devices expect the serial as
// the username and the local credential as the password.
type Credentials struct {
	Username string
	Password string
}

// ClientFactory builds a paho client from options. Tests replace it to hand
// back a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// DefaultClientFactory is mqtt.NewClient.
var DefaultClientFactory ClientFactory = mqtt.NewClient

// Connection errors returned by DeviceConsumer.Connect.
var (
	// ErrRefusedCredentials means the device rejected the username or password.
	ErrRefusedCredentials = errors.New("mqtt connection refused: bad credentials")
	// ErrConnectTimeout means no CONNACK arrived within the configured timeout.
	ErrConnectTimeout = errors.New("mqtt connection timed out")
	// ErrConnectFailed covers every other dial or handshake failure.
	ErrConnectFailed = errors.New("mqtt connection failed")
	// ErrStopped is returned when Stop interrupts a blocking call.
	ErrStopped = errors.New("mqtt consumer stopped")
	// ErrNotConnected is returned by Publish before Connect succeeds or after the link drops.
	ErrNotConnected = errors.New("mqtt client not connected")
)
