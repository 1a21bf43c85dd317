package factory

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Env constants for the factory.
const (
	ProbeTimeoutSeconds = "DYSON_PROBE_TIMEOUT_SECONDS"
	ProbeEnvWaitSeconds = "DYSON_PROBE_ENV_WAIT_SECONDS"
	ProfileCacheSize    = "DYSON_PROFILE_CACHE_SIZE"
	CapabilityDiscovery = "DYSON_CAPABILITY_DISCOVERY"
)

// Config controls how profiles are chosen.
type Config struct {
	// CapabilityDiscovery enables probing devices instead of trusting the
	// static table.
	CapabilityDiscovery bool
	// ProbeTimeout bounds locating and probing one device.
	ProbeTimeout time.Duration
	// ProbeEnvWait is how long a probe waits for sensor data after the state.
	ProbeEnvWait     time.Duration
	ProfileCacheSize int
}

// DefaultConfig returns the factory defaults.
func DefaultConfig() *Config {
	return &Config{
		CapabilityDiscovery: true,
		ProbeTimeout:        15 * time.Second,
		ProbeEnvWait:        3 * time.Second,
		ProfileCacheSize:    64,
	}
}

// LoadConfigFromEnv applies environment overrides to the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv(CapabilityDiscovery); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Invalid %s '%s', using default %v", CapabilityDiscovery, v, cfg.CapabilityDiscovery)
		} else {
			cfg.CapabilityDiscovery = b
		}
	}
	cfg.ProbeTimeout = durationFromEnv(ProbeTimeoutSeconds, cfg.ProbeTimeout)
	cfg.ProbeEnvWait = durationFromEnv(ProbeEnvWaitSeconds, cfg.ProbeEnvWait)
	if v := os.Getenv(ProfileCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("Invalid %s '%s', using default %d", ProfileCacheSize, v, cfg.ProfileCacheSize)
		} else {
			cfg.ProfileCacheSize = n
		}
	}
	return cfg
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v + "s")
	if err != nil || d <= 0 {
		log.Printf("Invalid %s '%s', using default %v", key, v, def)
		return def
	}
	return d
}
