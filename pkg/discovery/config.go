package discovery

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Env constants for discovery.
const (
	DiscoveryTimeoutSeconds = "DYSON_DISCOVERY_TIMEOUT_SECONDS"
	DiscoveryDomain         = "DYSON_DISCOVERY_DOMAIN"
	AddressTTLSeconds       = "DYSON_ADDRESS_TTL_SECONDS"
)

// Config holds the resolver settings.
type Config struct {
	// ResolveTimeout bounds Resolve when the caller's context has no deadline.
	ResolveTimeout time.Duration
	Domain         string
	// AnnouncementBuffer sizes the channel between browsers and the resolver.
	AnnouncementBuffer int
	// AddressTTL expires address book entries; zero keeps them until a
	// device is forgotten.
	AddressTTL time.Duration
}

// DefaultConfig returns the resolver defaults.
func DefaultConfig() *Config {
	return &Config{
		ResolveTimeout:     10 * time.Second,
		Domain:             DefaultDomain,
		AnnouncementBuffer: 16,
		AddressTTL:         24 * time.Hour,
	}
}

// LoadConfigFromEnv applies environment overrides to the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv(DiscoveryTimeoutSeconds); v != "" {
		d, err := time.ParseDuration(v + "s")
		if err != nil || d < 0 {
			log.Printf("Invalid %s '%s', using default %v", DiscoveryTimeoutSeconds, v, cfg.ResolveTimeout)
		} else {
			cfg.ResolveTimeout = d
		}
	}
	if v := os.Getenv(AddressTTLSeconds); v != "" {
		d, err := time.ParseDuration(v + "s")
		if err != nil || d < 0 {
			log.Printf("Invalid %s '%s', using default %v", AddressTTLSeconds, v, cfg.AddressTTL)
		} else {
			cfg.AddressTTL = d
		}
	}
	if v := os.Getenv(DiscoveryDomain); v != "" {
		cfg.Domain = v
	}
	return cfg
}
