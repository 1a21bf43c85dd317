package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

// Announcement is one mDNS sighting of a device.
type Announcement struct {
	Serial   string
	Instance string
	Service  string
	Address  string
	Port     int
	At       time.Time
}

// Browser streams announcements for one service type until ctx is cancelled.
// Browse must not close out.
type Browser interface {
	Browse(ctx context.Context, service string, out chan<- Announcement) error
}

// ZeroconfBrowser browses with github.com/grandcat/zeroconf.
type ZeroconfBrowser struct {
	domain string
	logger zerolog.Logger
}

// NewZeroconfBrowser creates a browser for the given mDNS domain.
func NewZeroconfBrowser(domain string, logger zerolog.Logger) *ZeroconfBrowser {
	if domain == "" {
		domain = DefaultDomain
	}
	return &ZeroconfBrowser{
		domain: domain,
		logger: logger.With().Str("component", "ZeroconfBrowser").Logger(),
	}
}

// Browse blocks until ctx is done.
func (b *ZeroconfBrowser) Browse(ctx context.Context, service string, out chan<- Announcement) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	// zeroconf owns and closes the entries channel.
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, b.domain, entries); err != nil {
		return fmt.Errorf("mDNS browse of %s failed: %w", service, err)
	}
	b.logger.Info().Str("service", service).Str("domain", b.domain).Msg("Browsing for devices.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			a, ok := AnnouncementFromEntry(entry, time.Now())
			if !ok {
				b.logger.Debug().Str("instance", entry.Instance).Msg("Ignoring entry without address.")
				continue
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// AnnouncementFromEntry converts a zeroconf entry, preferring IPv4.
// It reports false when the entry carries no usable address or serial.
func AnnouncementFromEntry(entry *zeroconf.ServiceEntry, at time.Time) (Announcement, bool) {
	if entry == nil {
		return Announcement{}, false
	}
	var address string
	switch {
	case len(entry.AddrIPv4) > 0:
		address = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		address = entry.AddrIPv6[0].String()
	default:
		return Announcement{}, false
	}
	serial := SerialFromInstance(entry.Instance)
	if serial == "" {
		return Announcement{}, false
	}
	return Announcement{
		Serial:   serial,
		Instance: entry.Instance,
		Service:  entry.Service,
		Address:  address,
		Port:     entry.Port,
		At:       at,
	}, true
}
