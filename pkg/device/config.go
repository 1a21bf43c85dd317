package device

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Env constants for sessions.
const (
	AwaitInitialState          = "DYSON_AWAIT_INITIAL_STATE"
	InitialStateTimeoutSeconds = "DYSON_INITIAL_STATE_TIMEOUT_SECONDS"
	OptimisticTTLSeconds       = "DYSON_OPTIMISTIC_TTL_SECONDS"
	EventBuffer                = "DYSON_EVENT_BUFFER"
)

// Config holds per-session behaviour.
type Config struct {
	// AwaitInitialState makes Connect wait for the first state message.
	AwaitInitialState   bool
	InitialStateTimeout time.Duration
	// OptimisticTTL bounds how long a command's optimistic value is shown
	// without the device confirming it. Zero keeps it until the device
	// reports the field.
	OptimisticTTL time.Duration
	// EventBuffer is the default subscription buffer.
	EventBuffer int
}

// DefaultConfig returns the session defaults.
func DefaultConfig() *Config {
	return &Config{
		AwaitInitialState:   true,
		InitialStateTimeout: 10 * time.Second,
		OptimisticTTL:       30 * time.Second,
		EventBuffer:         16,
	}
}

// LoadConfigFromEnv applies environment overrides to the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv(AwaitInitialState); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Invalid %s '%s', using default %v", AwaitInitialState, v, cfg.AwaitInitialState)
		} else {
			cfg.AwaitInitialState = b
		}
	}
	cfg.InitialStateTimeout = durationFromEnv(InitialStateTimeoutSeconds, cfg.InitialStateTimeout)
	cfg.OptimisticTTL = durationFromEnv(OptimisticTTLSeconds, cfg.OptimisticTTL)
	if v := os.Getenv(EventBuffer); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("Invalid %s '%s', using default %d", EventBuffer, v, cfg.EventBuffer)
		} else {
			cfg.EventBuffer = n
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
	if err != nil || d < 0 {
		log.Printf("Invalid %s '%s', using default %v", key, v, def)
		return def
	}
	return d
}
