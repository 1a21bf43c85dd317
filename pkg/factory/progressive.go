package factory

import (
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// WatchCapabilities widens a session's profile as its reports reveal
// features the profile lacks, such as sensors that were still starting up
// when the device was probed. Close the returned subscription to stop.
func WatchCapabilities(s *device.Session, logger zerolog.Logger) *device.Subscription {
	logger = logger.With().Str("component", "ProgressiveDiscovery").Str("serial", s.Serial()).Logger()
	return s.AddMessageListener(func(ev device.Event) {
		if ev.Kind != types.MessageState && ev.Kind != types.MessageEnvironmental {
			return
		}
		profile := s.Profile()
		if profile.Family == types.FamilyVacuum {
			return
		}
		state, _ := s.CurrentState()
		var envPtr *types.EnvironmentalSnapshot
		if env, ok := s.Environmental(); ok {
			envPtr = &env
		}
		// Link firmware is a property of the model, never learned.
		learned := InferCapabilities(state, envPtr) &^ types.CapLinkProtocol
		missing := learned &^ profile.Capabilities
		if missing == 0 {
			return
		}
		logger.Info().Str("capabilities", missing.String()).Msg("Learned new device capabilities.")
		s.ExtendCapabilities(missing)
	})
}
