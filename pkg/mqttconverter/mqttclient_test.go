package mqttconverter_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/stretchr/testify/assert"
)

func TestLoadMQTTClientConfigFromEnv(t *testing.T) {
	testCases := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *mqttconverter.MQTTClientConfig)
	}{
		{
			name: "nothing set matches the defaults",
			check: func(t *testing.T, cfg *mqttconverter.MQTTClientConfig) {
				assert.Equal(t, mqttconverter.DefaultMQTTClientConfig(), cfg)
				assert.Equal(t, uint(mqttconverter.DefaultProtocolVersion), cfg.ProtocolVersion)
			},
		},
		{
			name: "device port and timeouts",
			env: map[string]string{
				mqttconverter.MqttPort:                    "11883",
				mqttconverter.MqttKeepAliveSeconds:        "30",
				mqttconverter.MqttConnectTimeoutSeconds:   "5",
				mqttconverter.MqttOperationTimeoutSeconds: "0.5",
			},
			check: func(t *testing.T, cfg *mqttconverter.MQTTClientConfig) {
				assert.Equal(t, 11883, cfg.Port)
				assert.Equal(t, 30*time.Second, cfg.KeepAlive)
				assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
				assert.Equal(t, 500*time.Millisecond, cfg.OperationTimeout)
				assert.Equal(t, mqttconverter.DefaultClientIDPrefix, cfg.ClientIDPrefix)
			},
		},
		{
			name: "out of range port and garbage durations are ignored",
			env: map[string]string{
				mqttconverter.MqttPort:                  "99999",
				mqttconverter.MqttKeepAliveSeconds:      "forever",
				mqttconverter.MqttConnectTimeoutSeconds: "ten",
			},
			check: func(t *testing.T, cfg *mqttconverter.MQTTClientConfig) {
				def := mqttconverter.DefaultMQTTClientConfig()
				assert.Equal(t, mqttconverter.DefaultPort, cfg.Port)
				assert.Equal(t, def.KeepAlive, cfg.KeepAlive)
				assert.Equal(t, def.ConnectTimeout, cfg.ConnectTimeout)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			tc.check(t, mqttconverter.LoadMQTTClientConfigFromEnv())
		})
	}
}
