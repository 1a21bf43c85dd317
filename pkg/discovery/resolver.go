// Package discovery correlates device serial numbers with their current
// network addresses from mDNS announcements.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/cache"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// ErrDiscoveryTimeout is returned by Resolve when no announcement arrives in time.
var ErrDiscoveryTimeout = errors.New("device not discovered before timeout")

// Resolver tracks announced addresses and notifies registrations when the
// address of a serial changes. Browsing is reference counted across Start/Stop.
type Resolver struct {
	cfg     *Config
	browser Browser
	book    AddressBook
	logger  zerolog.Logger
	now     func() time.Time

	// notifyMu orders callback delivery; it is taken before mu.
	notifyMu sync.Mutex
	mu       sync.Mutex
	records map[string]types.DiscoveryRecord
	regs    map[string]map[uint64]func(string)
	nextID  uint64
	refs    int
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
}

// Registration is the handle returned by Register.
type Registration struct {
	resolver *Resolver
	serial   string
	id       uint64
	once     sync.Once
}

// Serial is the serial this registration listens for.
func (r *Registration) Serial() string { return r.serial }

// Unregister stops delivery. It is safe to call more than once.
func (r *Registration) Unregister() {
	r.once.Do(func() {
		r.resolver.mu.Lock()
		defer r.resolver.mu.Unlock()
		if set, ok := r.resolver.regs[r.serial]; ok {
			delete(set, r.id)
			if len(set) == 0 {
				delete(r.resolver.regs, r.serial)
			}
		}
	})
}

// NewResolver creates a Resolver. A nil book selects an in-memory address book.
func NewResolver(cfg *Config, browser Browser, book AddressBook, logger zerolog.Logger) (*Resolver, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if book == nil {
		book = cache.NewInMemoryPresenceCache[string, types.DiscoveryRecord](cfg.AddressTTL)
	}
	return &Resolver{
		cfg:     cfg,
		browser: browser,
		book:    book,
		logger:  logger.With().Str("component", "DiscoveryResolver").Logger(),
		now:     time.Now,
		records: make(map[string]types.DiscoveryRecord),
		regs:    make(map[string]map[uint64]func(string)),
	}, nil
}

// Start begins browsing both service types on the first call. Later calls
// only take a reference. Browsing outlives ctx and ends with the last Stop.
func (r *Resolver) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs++
	if r.refs > 1 {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wg := &sync.WaitGroup{}
	r.cancel = cancel
	r.wg = wg

	buffer := r.cfg.AnnouncementBuffer
	if buffer <= 0 {
		buffer = 16
	}
	announcements := make(chan Announcement, buffer)
	for _, service := range Services() {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			if err := r.browser.Browse(runCtx, service, announcements); err != nil {
				r.logger.Error().Err(err).Str("service", service).Msg("Browser stopped with error.")
			}
		}(service)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case a := <-announcements:
				r.Observe(a)
			}
		}
	}()
	r.logger.Info().Msg("Discovery started.")
	return nil
}

// Stop releases a reference; the last one stops browsing and waits for the
// browser goroutines to exit.
func (r *Resolver) Stop() {
	r.mu.Lock()
	if r.refs == 0 {
		r.mu.Unlock()
		return
	}
	r.refs--
	if r.refs > 0 {
		r.mu.Unlock()
		return
	}
	cancel, wg := r.cancel, r.wg
	r.cancel, r.wg = nil, nil
	r.mu.Unlock()

	cancel()
	wg.Wait()
	r.logger.Info().Msg("Discovery stopped.")
}

// Running reports whether browsing is active.
func (r *Resolver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs > 0
}

// Observe records an announcement. Registrations for the serial are notified
// only when the address differs from the last recorded one.
func (r *Resolver) Observe(a Announcement) {
	serial := a.Serial
	if serial == "" {
		serial = SerialFromInstance(a.Instance)
	}
	if serial == "" || a.Address == "" {
		return
	}
	at := a.At
	if at.IsZero() {
		at = r.now()
	}
	r.record(types.DiscoveryRecord{Serial: serial, Address: a.Address, LastSeen: at}, true)
}

// Seed restores preserved records. Newer in-memory records win.
func (r *Resolver) Seed(records []types.DiscoveryRecord) {
	for _, rec := range records {
		if rec.Serial == "" || rec.Address == "" {
			continue
		}
		r.mu.Lock()
		existing, ok := r.records[rec.Serial]
		r.mu.Unlock()
		if ok && !existing.LastSeen.Before(rec.LastSeen) {
			continue
		}
		r.record(rec, true)
	}
}

// Remember stores an address learned outside mDNS, such as a successful
// connection to a cached host, without notifying registrations.
func (r *Resolver) Remember(serial, address string) {
	if serial == "" || address == "" {
		return
	}
	r.record(types.DiscoveryRecord{Serial: serial, Address: address, LastSeen: r.now()}, false)
}

// Forget drops the record for serial.
func (r *Resolver) Forget(ctx context.Context, serial string) {
	r.mu.Lock()
	delete(r.records, serial)
	r.mu.Unlock()
	if err := r.book.Delete(ctx, serial); err != nil {
		r.logger.Warn().Err(err).Str("serial", serial).Msg("Failed to delete address book entry.")
	}
}

func (r *Resolver) record(rec types.DiscoveryRecord, notify bool) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.mu.Lock()
	prev, seen := r.records[rec.Serial]
	r.records[rec.Serial] = rec
	changed := !seen || prev.Address != rec.Address
	var callbacks []func(string)
	if changed && notify {
		callbacks = r.callbacksLocked(rec.Serial)
	}
	r.mu.Unlock()

	if changed {
		r.logger.Info().Str("serial", rec.Serial).Str("address", rec.Address).Msg("Device address updated.")
	}
	if err := r.book.Set(context.Background(), rec.Serial, rec); err != nil {
		r.logger.Warn().Err(err).Str("serial", rec.Serial).Msg("Failed to write address book entry.")
	}
	for _, fn := range callbacks {
		fn(rec.Address)
	}
}

func (r *Resolver) callbacksLocked(serial string) []func(string) {
	set := r.regs[serial]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(string), 0, len(ids))
	for _, id := range ids {
		out = append(out, set[id])
	}
	return out
}

// Register calls onFound with the current address when one is known and
// again on every address change until the registration is removed. Calls
// arrive in the order the addresses were recorded; onFound must not call
// back into the Resolver.
func (r *Resolver) Register(serial string, onFound func(address string)) *Registration {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.mu.Lock()
	r.nextID++
	reg := &Registration{resolver: r, serial: serial, id: r.nextID}
	if r.regs[serial] == nil {
		r.regs[serial] = make(map[uint64]func(string))
	}
	r.regs[serial][reg.id] = onFound
	rec, known := r.records[serial]
	r.mu.Unlock()

	if known {
		onFound(rec.Address)
	}
	return reg
}

// Unregister removes a registration.
func (r *Resolver) Unregister(reg *Registration) {
	if reg != nil {
		reg.Unregister()
	}
}

// Lookup returns the last known record for serial, consulting the address
// book when the serial has not been seen by this resolver.
func (r *Resolver) Lookup(ctx context.Context, serial string) (types.DiscoveryRecord, bool) {
	r.mu.Lock()
	rec, ok := r.records[serial]
	r.mu.Unlock()
	if ok {
		return rec, true
	}
	rec, err := r.book.Fetch(ctx, serial)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			r.logger.Warn().Err(err).Str("serial", serial).Msg("Address book lookup failed.")
		}
		return types.DiscoveryRecord{}, false
	}
	return rec, true
}

// Records returns every in-memory record sorted by serial.
func (r *Resolver) Records() []types.DiscoveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.DiscoveryRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Resolve waits for an address for serial, browsing for the duration of the
// call. The wait is bounded by ctx and by the configured ResolveTimeout.
func (r *Resolver) Resolve(ctx context.Context, serial string) (string, error) {
	if r.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ResolveTimeout)
		defer cancel()
	}

	found := make(chan string, 1)
	reg := r.Register(serial, func(address string) {
		select {
		case found <- address:
		default:
		}
	})
	defer reg.Unregister()

	select {
	case address := <-found:
		return address, nil
	default:
	}

	if err := r.Start(ctx); err != nil {
		return "", err
	}
	defer r.Stop()

	select {
	case address := <-found:
		return address, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s", ErrDiscoveryTimeout, serial)
	}
}
