package mqttconverter

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// MQTTClientConfig holds the connection parameters shared by every device
// session. Credentials and topics are per device and passed separately.
type MQTTClientConfig struct {
	// Port is the device's MQTT port. Every known model listens on 1883.
	Port int
	// ClientIDPrefix is a prefix for the MQTT client ID. A random suffix is
	// added so two sessions never collide on the device's broker.
	ClientIDPrefix string
	// ProtocolVersion is the MQTT protocol level. Device firmware speaks 3.1 (3).
	ProtocolVersion uint
	// KeepAlive is the interval at which the client sends keep-alive pings.
	KeepAlive time.Duration
	// ConnectTimeout bounds the TCP and CONNACK handshake.
	ConnectTimeout time.Duration
	// OperationTimeout bounds subscribe, publish and unsubscribe acknowledgements.
	OperationTimeout time.Duration
	// DisconnectQuiesce is how long Disconnect waits for in-flight work.
	DisconnectQuiesce time.Duration
	// MessageBuffer is the capacity of the inbound message channel.
	MessageBuffer int
}

// Env constants for setting Mqtt settings
const (
	MqttPort                    = "DYSON_MQTT_PORT"
	MqttKeepAliveSeconds        = "DYSON_MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds   = "DYSON_MQTT_CONNECT_TIMEOUT_SECONDS"
	MqttOperationTimeoutSeconds = "DYSON_MQTT_OPERATION_TIMEOUT_SECONDS"
)

// Defaults applied by LoadMQTTClientConfigFromEnv and DefaultMQTTClientConfig.
const (
	DefaultPort            = 1883
	DefaultClientIDPrefix  = "dysonlocal-"
	DefaultProtocolVersion = 3
)

// DefaultMQTTClientConfig returns the configuration used when nothing is set.
func DefaultMQTTClientConfig() *MQTTClientConfig {
	return &MQTTClientConfig{
		Port:              DefaultPort,
		ClientIDPrefix:    DefaultClientIDPrefix,
		ProtocolVersion:   DefaultProtocolVersion,
		KeepAlive:         60 * time.Second,
		ConnectTimeout:    10 * time.Second,
		OperationTimeout:  5 * time.Second,
		DisconnectQuiesce: 250 * time.Millisecond,
		MessageBuffer:     64,
	}
}

// LoadMQTTClientConfigFromEnv loads MQTT operational configuration from
// environment variables, keeping the defaults for anything unset or invalid.
func LoadMQTTClientConfigFromEnv() *MQTTClientConfig {
	cfg := DefaultMQTTClientConfig()

	if p := os.Getenv(MqttPort); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil && port > 0 && port < 65536 {
			cfg.Port = port
		} else {
			log.Printf("mqttconverter: invalid port %q, using default", p)
		}
	}
	cfg.KeepAlive = durationFromEnv(MqttKeepAliveSeconds, cfg.KeepAlive)
	cfg.ConnectTimeout = durationFromEnv(MqttConnectTimeoutSeconds, cfg.ConnectTimeout)
	cfg.OperationTimeout = durationFromEnv(MqttOperationTimeoutSeconds, cfg.OperationTimeout)

	return cfg
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v + "s")
	if err != nil {
		log.Printf("mqttconverter: error parsing %s: %s, using default", key, err)
		return def
	}
	return d
}
