package device

import (
	"fmt"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

func (s *Session) require(c types.Capability, what string) error {
	if !s.Profile().Has(c) {
		return fmt.Errorf("%w: %s", ErrNotSupported, what)
	}
	return nil
}

// setFields publishes a STATE-SET, showing the values optimistically until
// the device confirms them. A failed publish rolls the values back.
func (s *Session) setFields(fields map[string]string) error {
	consumer, err := s.activeConsumer()
	if err != nil {
		return err
	}
	payload, err := codec.EncodeStateSet(fields, s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s.mu.Lock()
	created := s.applyOptimisticLocked(fields)
	s.mu.Unlock()

	err = consumer.Publish(s.topics.Command, payload)
	s.metrics.commandPublished(err)
	if err != nil {
		s.mu.Lock()
		s.rollbackLocked(created)
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("Failed to publish command.")
		return classifyPublishError(err)
	}
	s.logger.Debug().Interface("fields", fields).Msg("Command published.")
	return nil
}

// sendVacuum publishes a vacuum control message.
func (s *Session) sendVacuum(msg string, extra map[string]any) error {
	consumer, err := s.activeConsumer()
	if err != nil {
		return err
	}
	payload, err := codec.EncodeVacuumCommand(msg, extra, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg, err)
	}
	err = consumer.Publish(s.topics.Command, payload)
	s.metrics.commandPublished(err)
	if err != nil {
		return classifyPublishError(err)
	}
	s.logger.Debug().Str("msg", msg).Msg("Vacuum command published.")
	return nil
}

func checkRange(name string, value, low, high int) error {
	if value < low || value > high {
		return fmt.Errorf("%w: %s %d outside %d..%d", ErrInvalidArgument, name, value, low, high)
	}
	return nil
}
