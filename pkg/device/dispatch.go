package device

import (
	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// dispatch is the single worker applying one connection's messages in order.
func (s *Session) dispatch(consumer *mqttconverter.DeviceConsumer) {
	defer s.dispatchWG.Done()
	for {
		select {
		case <-consumer.Done():
			return
		case err := <-consumer.Lost():
			s.handleLost(consumer, err)
			return
		case in := <-consumer.Messages():
			s.handleMessage(in)
		}
	}
}

// handleMessage classifies by the payload's msg field alone. The topic a
// message arrived on is only logged.
func (s *Session) handleMessage(in mqttconverter.InMessage) {
	msg, err := codec.Decode(in.Payload)
	if err != nil {
		s.metrics.decodeError()
		s.logger.Warn().Err(err).Str("topic", in.Topic).Msg("Dropping undecodable device message.")
		return
	}
	s.metrics.messageReceived(msg.Kind)

	switch msg.Kind {
	case types.MessageState:
		s.applyState(msg)
	case types.MessageEnvironmental:
		s.applyEnvironmental(msg.Environmental)
	case types.MessageFault:
		s.applyFaults(msg)
	default:
		s.logger.Debug().Str("msg", msg.Type).Msg("Ignoring unhandled message type.")
	}
}

func (s *Session) applyState(msg codec.Message) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var next types.StateSnapshot
	if msg.Full || s.reported == nil {
		next = msg.State.Clone()
	} else {
		next = codec.MergeState(*s.reported, msg.State)
	}
	if next.Fields == nil {
		next.Fields = map[string]any{}
	}
	s.seq++
	next.Seq = s.seq
	next.ReceivedAt = now
	s.reported = &next

	changed := msg.State.Keys()
	for _, field := range changed {
		if entry, ok := s.pending[field]; ok {
			entry.stop()
			delete(s.pending, field)
		}
	}
	s.publishVisibleLocked()

	if s.initial != nil {
		close(s.initial)
		s.initial = nil
	}
	s.emitLocked(Event{Kind: types.MessageState, Serial: s.id.Serial, Seq: s.seq, Changed: changed, At: now})
}

func (s *Session) applyEnvironmental(env types.EnvironmentalSnapshot) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	env.Seq = s.seq
	env.ReceivedAt = now
	s.env.Store(&env)
	s.emitLocked(Event{Kind: types.MessageEnvironmental, Serial: s.id.Serial, Seq: s.seq, Changed: env.Keys(), At: now})
}

func (s *Session) applyFaults(msg codec.Message) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	next := types.FaultSnapshot{Faults: make(map[string]any)}
	if prev := s.faults.Load(); prev != nil && !msg.Full {
		for k, v := range prev.Faults {
			next.Faults[k] = v
		}
	}
	changed := make([]string, 0, len(msg.Faults.Faults))
	for k, v := range msg.Faults.Faults {
		next.Faults[k] = v
		changed = append(changed, k)
	}
	s.seq++
	next.Seq = s.seq
	next.ReceivedAt = now
	s.faults.Store(&next)
	s.emitLocked(Event{Kind: types.MessageFault, Serial: s.id.Serial, Seq: s.seq, Changed: sortStrings(changed), At: now})
}

// publishVisibleLocked swaps in reported ⊕ pending. mu must be held.
func (s *Session) publishVisibleLocked() {
	if s.reported == nil && len(s.pending) == 0 {
		s.visible.Store(nil)
		return
	}
	var visible types.StateSnapshot
	if s.reported != nil {
		visible = s.reported.Clone()
	}
	if visible.Fields == nil {
		visible.Fields = make(map[string]any, len(s.pending))
	}
	for field, entry := range s.pending {
		visible.Fields[field] = entry.cmd.Value
	}
	visible.Seq = s.seq
	s.visible.Store(&visible)
}
