package microservice_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostYAML = `
log_level: debug
http_port: ":9090"
devices:
  - serial: NK6-EU-MHA0000A
    credential: c2VjcmV0
    device_type: "438"
    name: Bedroom
    host: 192.168.1.20
  - serial: JH1-EU-VAC0000A
    credential: aGFzaA==
    device_type: N223
cloud:
  email: someone@example.com
  token: abc
  country: GB
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dysonlocal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadHostConfig(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		cfg, err := microservice.LoadHostConfig(writeConfig(t, hostYAML))

		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, ":9090", cfg.HTTPPort)
		assert.Equal(t, "dysonlocal", cfg.ServiceName)
		require.Len(t, cfg.Devices, 2)
		assert.Equal(t, "438", cfg.Devices[0].Identity().DeviceType)
		assert.Equal(t, "192.168.1.20", cfg.Devices[0].Host)
		assert.Empty(t, cfg.Devices[1].Host)
		require.NotNil(t, cfg.Cloud)
		assert.Equal(t, "GB", cfg.Cloud.Country)
		assert.Equal(t, 30*time.Second, cfg.Manager.PollInterval)

		records := cfg.ConfiguredAddresses()
		require.Len(t, records, 1)
		assert.Equal(t, cfg.Devices[0].Serial, records[0].Serial)
		assert.Equal(t, "192.168.1.20", records[0].Address)
		assert.True(t, records[0].LastSeen.IsZero())
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv(microservice.HTTPPortEnv, ":7070")
		t.Setenv(microservice.LogLevelEnv, "warn")
		t.Setenv(microservice.PollIntervalSeconds, "5")
		t.Setenv(microservice.ReconnectIntervalSeconds, "bogus")

		cfg, err := microservice.LoadHostConfig(writeConfig(t, hostYAML))

		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.HTTPPort)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 5*time.Second, cfg.Manager.PollInterval)
		assert.Equal(t, time.Minute, cfg.Manager.ReconnectInterval)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := microservice.LoadHostConfig("")

		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.HTTPPort)
		assert.Empty(t, cfg.Devices)
		assert.Nil(t, cfg.Cloud)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := microservice.LoadHostConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)

		_, err = microservice.LoadHostConfig(writeConfig(t, "devices: [oops"))
		assert.Error(t, err)

		_, err = microservice.LoadHostConfig(writeConfig(t, "devices:\n  - serial: NK6-EU-MHA0000A\n"))
		assert.ErrorContains(t, err, "credential")

		dup := "devices:\n" +
			"  - {serial: NK6-EU-MHA0000A, credential: a, device_type: \"438\"}\n" +
			"  - {serial: NK6-EU-MHA0000A, credential: b, device_type: \"438\"}\n"
		_, err = microservice.LoadHostConfig(writeConfig(t, dup))
		assert.ErrorContains(t, err, "listed twice")
	})
}
