package microservice

import (
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Env constants for the host process.
const (
	HTTPPortEnv                = "DYSON_HTTP_PORT"
	LogLevelEnv                = "LOG_LEVEL"
	LogFormatEnv               = "LOG_FORMAT"
	PollIntervalSeconds        = "DYSON_POLL_INTERVAL_SECONDS"
	ReconnectIntervalSeconds   = "DYSON_RECONNECT_INTERVAL_SECONDS"
	ReconnectMaxElapsedSeconds = "DYSON_RECONNECT_MAX_ELAPSED_SECONDS"
	defaultHTTPPort            = ":8080"
	defaultServiceName         = "dysonlocal"
)

// DeviceConfig is one configured device.
type DeviceConfig struct {
	Serial     string `yaml:"serial"`
	Credential string `yaml:"credential"`
	DeviceType string `yaml:"device_type"`
	Name       string `yaml:"name"`
	// Host pins the device to an address; empty uses discovery.
	Host string `yaml:"host"`
}

// Identity returns the session identity for the device.
func (d DeviceConfig) Identity() types.Identity {
	return types.Identity{Serial: d.Serial, Credential: d.Credential, DeviceType: d.DeviceType}
}

// ConfiguredAddresses returns the hosts pinned in the config as discovery
// records. They carry no LastSeen, so any announcement replaces them.
func (c *HostConfig) ConfiguredAddresses() []types.DiscoveryRecord {
	var out []types.DiscoveryRecord
	for _, d := range c.Devices {
		if d.Host != "" {
			out = append(out, types.DiscoveryRecord{Serial: d.Serial, Address: d.Host})
		}
	}
	return out
}

// CloudConfig enables importing devices from a cloud account. The token is
// obtained once with the login flow and stored in the config.
type CloudConfig struct {
	Email   string `yaml:"email"`
	Token   string `yaml:"token"`
	Country string `yaml:"country,omitempty"`
	China   bool   `yaml:"china,omitempty"`
	// BaseURL overrides the regional endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
}

// HostConfig is the host process configuration file.
type HostConfig struct {
	BaseConfig `yaml:",inline"`

	Devices []DeviceConfig `yaml:"devices"`
	Cloud   *CloudConfig   `yaml:"cloud"`
	Manager ManagerConfig  `yaml:"-"`
}

// ManagerConfig tunes the device manager's background work.
type ManagerConfig struct {
	// PollInterval is how often connected fans are asked for sensor data.
	// Zero disables polling.
	PollInterval time.Duration
	// ReconnectInterval is how often failed sessions are retried.
	ReconnectInterval time.Duration
	// ReconnectMaxElapsed bounds one retry sequence.
	ReconnectMaxElapsed time.Duration
	// ReconnectInitialBackoff is the first delay between retries.
	ReconnectInitialBackoff time.Duration
	// ConnectConcurrency bounds simultaneous initial connections.
	ConnectConcurrency int
}

// DefaultManagerConfig returns the manager defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PollInterval:            30 * time.Second,
		ReconnectInterval:       time.Minute,
		ReconnectMaxElapsed:     2 * time.Minute,
		ReconnectInitialBackoff: time.Second,
		ConnectConcurrency:      4,
	}
}

// LoadHostConfig reads the YAML file at path and applies env overrides.
// An empty path yields a configuration without devices.
func LoadHostConfig(path string) (*HostConfig, error) {
	cfg := &HostConfig{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read host config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse host config %s: %w", path, err)
		}
	}
	cfg.Manager = DefaultManagerConfig()
	applyEnv(cfg)

	if cfg.HTTPPort == "" {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if err := d.Identity().Validate(); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		if seen[d.Serial] {
			return nil, fmt.Errorf("device %s is listed twice", d.Serial)
		}
		seen[d.Serial] = true
	}
	return cfg, nil
}

func applyEnv(cfg *HostConfig) {
	if v := os.Getenv(HTTPPortEnv); v != "" {
		cfg.HTTPPort = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(LogFormatEnv); v != "" {
		cfg.LogFormat = v
	}
	cfg.Manager.PollInterval = durationFromEnv(PollIntervalSeconds, cfg.Manager.PollInterval)
	cfg.Manager.ReconnectInterval = durationFromEnv(ReconnectIntervalSeconds, cfg.Manager.ReconnectInterval)
	cfg.Manager.ReconnectMaxElapsed = durationFromEnv(ReconnectMaxElapsedSeconds, cfg.Manager.ReconnectMaxElapsed)
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v + "s")
	if err != nil || d < 0 {
		log.Printf("Invalid %s '%s', using default %v", key, v, def)
		return def
	}
	return d
}
