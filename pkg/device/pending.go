package device

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

type pendingEntry struct {
	cmd   types.PendingCommand
	timer *time.Timer
}

func (e *pendingEntry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

// applyOptimisticLocked records one pending entry per field, superseding
// older ones, and republishes the visible state. mu must be held.
func (s *Session) applyOptimisticLocked(fields map[string]string) []types.PendingCommand {
	now := s.now()
	created := make([]types.PendingCommand, 0, len(fields))
	for field, value := range fields {
		if old, ok := s.pending[field]; ok {
			old.stop()
		}
		entry := &pendingEntry{cmd: types.PendingCommand{
			ID:       uuid.NewString(),
			IssuedAt: now,
			Field:    field,
			Value:    value,
		}}
		if s.cfg.OptimisticTTL > 0 {
			field, id := field, entry.cmd.ID
			entry.timer = time.AfterFunc(s.cfg.OptimisticTTL, func() { s.expirePending(field, id) })
		}
		s.pending[field] = entry
		created = append(created, entry.cmd)
	}
	s.publishVisibleLocked()
	return created
}

// rollbackLocked removes the entries of a command that failed to publish.
func (s *Session) rollbackLocked(created []types.PendingCommand) {
	for _, cmd := range created {
		if entry, ok := s.pending[cmd.Field]; ok && entry.cmd.ID == cmd.ID {
			entry.stop()
			delete(s.pending, cmd.Field)
		}
	}
	s.publishVisibleLocked()
}

func (s *Session) clearPendingLocked() {
	for field, entry := range s.pending {
		entry.stop()
		delete(s.pending, field)
	}
	s.publishVisibleLocked()
}

// expirePending reverts an unconfirmed optimistic value.
func (s *Session) expirePending(field, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[field]
	if !ok || entry.cmd.ID != id {
		return
	}
	delete(s.pending, field)
	s.seq++
	s.publishVisibleLocked()
	s.logger.Info().Str("field", field).Interface("value", entry.cmd.Value).Msg("Optimistic value expired without confirmation.")
	s.emitLocked(Event{Kind: types.MessageState, Serial: s.id.Serial, Seq: s.seq, Changed: []string{field}, At: s.now()})
}

// Pending returns the unconfirmed commands ordered by field.
func (s *Session) Pending() []types.PendingCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PendingCommand, 0, len(s.pending))
	for _, entry := range s.pending {
		out = append(out, entry.cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
