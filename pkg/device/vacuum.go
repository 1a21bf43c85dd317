package device

import (
	"fmt"
	"slices"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// VacuumState is the robot's current activity.
func (s *Session) VacuumState() (types.VacuumState, error) {
	return attribute[types.VacuumState](s, AttrVacuumState)
}

// BatteryLevel is the charge in percent.
func (s *Session) BatteryLevel() (int, error) { return attribute[int](s, AttrBatteryLevel) }

// Position is the last reported map position.
func (s *Session) Position() (Position, error) { return attribute[Position](s, AttrPosition) }

// PowerMode is the suction level of the running clean.
func (s *Session) PowerMode() (string, error) { return attribute[string](s, AttrPowerMode) }

// DefaultPowerMode is the suction level used for new cleans.
func (s *Session) DefaultPowerMode() (string, error) {
	return attribute[string](s, AttrDefaultPowerMode)
}

// CleaningType reports how the running clean was started.
func (s *Session) CleaningType() (types.CleaningType, error) {
	return attribute[types.CleaningType](s, AttrCleaningType)
}

// CleaningMode is the zone mode of the running clean.
func (s *Session) CleaningMode() (types.CleaningMode, error) {
	return attribute[types.CleaningMode](s, AttrCleaningMode)
}

// CleanID identifies the running clean.
func (s *Session) CleanID() (string, error) { return attribute[string](s, AttrCleanID) }

// zoned reports whether the vacuum understands cleaningMode.
func (s *Session) zoned() bool {
	switch types.BaseDeviceType(s.id.DeviceType) {
	case types.DeviceType360Heurist, types.DeviceType360VisNav:
		return true
	}
	return false
}

// Start begins an immediate clean.
func (s *Session) Start() error {
	if err := s.require(types.CapVacuum, "vacuum"); err != nil {
		return err
	}
	extra := map[string]any{"fullCleanType": string(types.CleaningTypeImmediate)}
	if s.zoned() {
		extra["cleaningMode"] = string(types.CleaningModeGlobal)
	}
	return s.sendVacuum(codec.MsgVacuumStart, extra)
}

// StartAllZones cleans every zone of the map.
func (s *Session) StartAllZones() error {
	if err := s.require(types.CapVacuum, "vacuum"); err != nil {
		return err
	}
	if !s.zoned() {
		return fmt.Errorf("%w: zone cleaning", ErrNotSupported)
	}
	return s.sendVacuum(codec.MsgVacuumStart, map[string]any{
		"fullCleanType": string(types.CleaningTypeImmediate),
		"cleaningMode":  string(types.CleaningModeGlobal),
	})
}

// Pause halts the running clean.
func (s *Session) Pause() error { return s.vacuumControl(codec.MsgVacuumPause) }

// Resume continues a paused clean.
func (s *Session) Resume() error { return s.vacuumControl(codec.MsgVacuumResume) }

// Abort ends the running clean.
func (s *Session) Abort() error { return s.vacuumControl(codec.MsgVacuumAbort) }

func (s *Session) vacuumControl(msg string) error {
	if err := s.require(types.CapVacuum, "vacuum"); err != nil {
		return err
	}
	return s.sendVacuum(msg, nil)
}

// SetDefaultPowerMode sets the suction used by future cleans. Accepted modes
// depend on the model; see types.VacuumPowerModes.
func (s *Session) SetDefaultPowerMode(mode string) error {
	if err := s.require(types.CapVacuum, "vacuum"); err != nil {
		return err
	}
	if !slices.Contains(types.VacuumPowerModes[types.BaseDeviceType(s.id.DeviceType)], mode) {
		return fmt.Errorf("%w: power mode %q for device type %s", ErrInvalidArgument, mode, s.id.DeviceType)
	}
	return s.setFields(map[string]string{"defaultVacuumPowerMode": mode})
}
