package device

import (
	"sort"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// Event is raised once per applied device message and when an optimistic
// value expires.
type Event struct {
	Kind   types.MessageKind
	Serial string
	// Seq orders events of one session.
	Seq uint64
	// Changed lists the fields carried by the message.
	Changed []string
	At      time.Time
}

// Subscription delivers events on C until Close is called. Events are
// dropped, not queued, when C's buffer is full.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	id      uint64
	session *Session
	closed  bool
}

// Subscribe registers a new subscription. A buffer of zero or less uses
// the configured default.
func (s *Session) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = s.cfg.EventBuffer
	}
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.nextSub++
	sub := &Subscription{C: ch, ch: ch, id: s.nextSub, session: s}
	s.subs[sub.id] = sub
	return sub
}

// Close unregisters the subscription and closes C. It is idempotent.
func (sub *Subscription) Close() {
	s := sub.session
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(s.subs, sub.id)
	close(sub.ch)
}

// AddMessageListener runs fn for every event on a goroutine owned by the
// returned subscription. Close the subscription to stop it.
func (s *Session) AddMessageListener(fn func(Event)) *Subscription {
	sub := s.Subscribe(0)
	go func() {
		for ev := range sub.C {
			fn(ev)
		}
	}()
	return sub
}

// RemoveMessageListener closes a listener's subscription.
func (s *Session) RemoveMessageListener(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// emitLocked sends ev to every subscriber without blocking. mu must be held
// so events leave in Seq order.
func (s *Session) emitLocked(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			s.metrics.eventDropped()
			s.logger.Warn().Uint64("seq", ev.Seq).Str("kind", ev.Kind.String()).Msg("Subscriber buffer full, dropping event.")
		}
	}
}

func sortStrings(in []string) []string {
	sort.Strings(in)
	return in
}
