package device

import (
	"fmt"
	"math"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// Firmware limits.
const (
	MinSpeed             = 1
	MaxSpeed             = 10
	MinOscillationAngle  = 5
	MaxOscillationAngle  = 355
	MinOscillationSpan   = 30
	MaxSleepTimerMinutes = 540
	MinHeatTargetKelvin  = 274
	MaxHeatTargetKelvin  = 310
	MinTargetHumidity    = 30
	MaxTargetHumidity    = 70
	filterResetValue     = "0100"
	linkFilterResetValue = "RSTF"
	carbonFilterAbsent   = "INV"
)

// IsOn reports whether the fan is running.
func (s *Session) IsOn() (bool, error) { return attribute[bool](s, AttrIsOn) }

// Speed returns the fan speed, 0 while in auto mode.
func (s *Session) Speed() (int, error) { return attribute[int](s, AttrSpeed) }

// AutoMode reports whether the fan picks its own speed.
func (s *Session) AutoMode() (bool, error) { return attribute[bool](s, AttrAutoMode) }

// Oscillation reports whether the fan is oscillating.
func (s *Session) Oscillation() (bool, error) { return attribute[bool](s, AttrOscillation) }

// OscillationAngles returns the sweep bounds in degrees.
func (s *Session) OscillationAngles() (OscillationAngles, error) {
	return attribute[OscillationAngles](s, AttrOscillationAngles)
}

// OscillationMode is the humidifier oscillation preset.
func (s *Session) OscillationMode() (types.HumidifyOscillationMode, error) {
	return attribute[types.HumidifyOscillationMode](s, AttrOscillationMode)
}

// NightMode reports whether night mode is on.
func (s *Session) NightMode() (bool, error) { return attribute[bool](s, AttrNightMode) }

// ContinuousMonitoring reports whether sensors keep running while the fan is off.
func (s *Session) ContinuousMonitoring() (bool, error) {
	return attribute[bool](s, AttrContinuousMonitoring)
}

// SleepTimer returns the configured sleep timer in minutes, 0 when off.
func (s *Session) SleepTimer() (int, error) { return attribute[int](s, AttrSleepTimer) }

// FrontAirflow reports whether air leaves the front. False means the rear.
func (s *Session) FrontAirflow() (bool, error) { return attribute[bool](s, AttrFrontAirflow) }

// FocusMode reports whether the heater fan is in focused airflow.
func (s *Session) FocusMode() (bool, error) { return attribute[bool](s, AttrFocusMode) }

// AirQualityTarget is the auto mode air quality goal.
func (s *Session) AirQualityTarget() (types.AirQualityTarget, error) {
	return attribute[types.AirQualityTarget](s, AttrAirQualityTarget)
}

// HeatMode reports whether heating is enabled.
func (s *Session) HeatMode() (bool, error) { return attribute[bool](s, AttrHeatMode) }

// HeatStatus reports whether the heater is currently heating.
func (s *Session) HeatStatus() (bool, error) { return attribute[bool](s, AttrHeatStatus) }

// HeatTarget returns the target temperature in Kelvin.
func (s *Session) HeatTarget() (float64, error) { return attribute[float64](s, AttrHeatTarget) }

// Humidification reports whether the humidifier is enabled.
func (s *Session) Humidification() (bool, error) { return attribute[bool](s, AttrHumidification) }

// HumidificationAutoMode reports whether the target humidity is chosen automatically.
func (s *Session) HumidificationAutoMode() (bool, error) {
	return attribute[bool](s, AttrHumidificationAutoMode)
}

// TargetHumidity is the manual humidity target in percent.
func (s *Session) TargetHumidity() (int, error) { return attribute[int](s, AttrTargetHumidity) }

// WaterHardness is the configured water hardness.
func (s *Session) WaterHardness() (types.WaterHardness, error) {
	return attribute[types.WaterHardness](s, AttrWaterHardness)
}

// Tilt is the fan head angle.
func (s *Session) Tilt() (types.Tilt, error) { return attribute[types.Tilt](s, AttrTilt) }

// FilterLife is the Link models' remaining filter life in hours.
func (s *Session) FilterLife() (types.FilterLife, error) {
	return attribute[types.FilterLife](s, AttrFilterLife)
}

// HEPAFilterLife is the remaining HEPA filter life in percent.
func (s *Session) HEPAFilterLife() (types.FilterLife, error) {
	return attribute[types.FilterLife](s, AttrHEPAFilterLife)
}

// CarbonFilterLife returns ErrNotSupported when no carbon filter is fitted.
func (s *Session) CarbonFilterLife() (types.FilterLife, error) {
	return attribute[types.FilterLife](s, AttrCarbonFilterLife)
}

// CleanTimeRemaining is the minutes left in a running deep clean.
func (s *Session) CleanTimeRemaining() (int, error) {
	return attribute[int](s, AttrCleanTimeRemaining)
}

// TimeUntilNextClean is the hours until a deep clean is due.
func (s *Session) TimeUntilNextClean() (int, error) {
	return attribute[int](s, AttrTimeUntilNextClean)
}

// ActiveFaults lists the faults currently reported, as "group/code".
func (s *Session) ActiveFaults() ([]string, error) {
	return attribute[[]string](s, AttrActiveFaults)
}

// TurnOn starts the fan.
func (s *Session) TurnOn() error {
	if err := s.require(types.CapFan, "fan"); err != nil {
		return err
	}
	if s.link() {
		return s.setFields(map[string]string{"fmod": "FAN"})
	}
	return s.setFields(map[string]string{"fpwr": "ON"})
}

// TurnOff stops the fan.
func (s *Session) TurnOff() error {
	if err := s.require(types.CapFan, "fan"); err != nil {
		return err
	}
	if s.link() {
		return s.setFields(map[string]string{"fmod": "OFF"})
	}
	return s.setFields(map[string]string{"fpwr": "OFF"})
}

// SetSpeed turns the fan on at speed 1..10, leaving auto mode.
func (s *Session) SetSpeed(speed int) error {
	if err := s.require(types.CapFan, "fan speed"); err != nil {
		return err
	}
	if err := checkRange("speed", speed, MinSpeed, MaxSpeed); err != nil {
		return err
	}
	if s.link() {
		return s.setFields(map[string]string{"fmod": "FAN", "fnsp": codec.FormatNumber(speed)})
	}
	return s.setFields(map[string]string{"fpwr": "ON", "fnsp": codec.FormatNumber(speed)})
}

// EnableAutoMode lets the device choose its speed.
func (s *Session) EnableAutoMode() error { return s.setAutoMode(true) }

// DisableAutoMode hands speed control back to SetSpeed.
func (s *Session) DisableAutoMode() error { return s.setAutoMode(false) }

func (s *Session) setAutoMode(on bool) error {
	if err := s.require(types.CapAutoMode, "auto mode"); err != nil {
		return err
	}
	if s.link() {
		mode := "FAN"
		if on {
			mode = "AUTO"
		}
		return s.setFields(map[string]string{"fmod": mode})
	}
	return s.setFields(map[string]string{"auto": codec.OnOff(on)})
}

// EnableOscillation starts oscillating.
func (s *Session) EnableOscillation() error { return s.toggle(types.CapOscillation, "oson", true) }

// DisableOscillation stops oscillating.
func (s *Session) DisableOscillation() error { return s.toggle(types.CapOscillation, "oson", false) }

// SetOscillationAngles enables a custom sweep between low and high degrees.
func (s *Session) SetOscillationAngles(low, high int) error {
	if err := s.require(types.CapOscillationAngles, "oscillation angles"); err != nil {
		return err
	}
	if err := checkRange("oscillation low angle", low, MinOscillationAngle, MaxOscillationAngle); err != nil {
		return err
	}
	if err := checkRange("oscillation high angle", high, MinOscillationAngle, MaxOscillationAngle); err != nil {
		return err
	}
	if high-low < MinOscillationSpan {
		return fmt.Errorf("%w: oscillation span %d-%d narrower than %d degrees", ErrInvalidArgument, low, high, MinOscillationSpan)
	}
	return s.setFields(map[string]string{
		"oson": "ON",
		"fpwr": "ON",
		"ancp": string(types.HumidifyOscillationCustom),
		"osal": codec.FormatNumber(low),
		"osau": codec.FormatNumber(high),
	})
}

// SetOscillationMode selects a humidifier oscillation preset.
func (s *Session) SetOscillationMode(mode types.HumidifyOscillationMode) error {
	if err := s.require(types.CapOscillationMode, "oscillation mode"); err != nil {
		return err
	}
	switch mode {
	case types.HumidifyOscillation45, types.HumidifyOscillation90, types.HumidifyOscillationBreeze, types.HumidifyOscillationCustom:
	default:
		return fmt.Errorf("%w: oscillation mode %q", ErrInvalidArgument, mode)
	}
	return s.setFields(map[string]string{"oson": "ON", "fpwr": "ON", "ancp": string(mode)})
}

// EnableNightMode dims the display and limits the speed.
func (s *Session) EnableNightMode() error { return s.toggle(types.CapNightMode, "nmod", true) }

// DisableNightMode leaves night mode.
func (s *Session) DisableNightMode() error { return s.toggle(types.CapNightMode, "nmod", false) }

// EnableContinuousMonitoring keeps the sensors on while the fan is off.
func (s *Session) EnableContinuousMonitoring() error {
	return s.toggle(types.CapContinuousMonitoring, "rhtm", true)
}

// DisableContinuousMonitoring lets the sensors sleep with the fan.
func (s *Session) DisableContinuousMonitoring() error {
	return s.toggle(types.CapContinuousMonitoring, "rhtm", false)
}

// SetSleepTimer switches the device off after minutes (1..540).
func (s *Session) SetSleepTimer(minutes int) error {
	if err := s.require(types.CapSleepTimer, "sleep timer"); err != nil {
		return err
	}
	if err := checkRange("sleep timer", minutes, 1, MaxSleepTimerMinutes); err != nil {
		return err
	}
	return s.setFields(map[string]string{"sltm": codec.FormatNumber(minutes)})
}

// DisableSleepTimer clears a pending sleep timer.
func (s *Session) DisableSleepTimer() error {
	if err := s.require(types.CapSleepTimer, "sleep timer"); err != nil {
		return err
	}
	return s.setFields(map[string]string{"sltm": "OFF"})
}

// EnableFrontAirflow blows from the front.
func (s *Session) EnableFrontAirflow() error { return s.toggle(types.CapFrontAirflow, "fdir", true) }

// DisableFrontAirflow blows from the rear.
func (s *Session) DisableFrontAirflow() error { return s.toggle(types.CapFrontAirflow, "fdir", false) }

// EnableFocusMode narrows the airflow.
func (s *Session) EnableFocusMode() error { return s.toggle(types.CapFocusMode, "ffoc", true) }

// DisableFocusMode widens the airflow.
func (s *Session) DisableFocusMode() error { return s.toggle(types.CapFocusMode, "ffoc", false) }

// SetAirQualityTarget changes the auto mode goal.
func (s *Session) SetAirQualityTarget(target types.AirQualityTarget) error {
	if err := s.require(types.CapAirQualityTarget, "air quality target"); err != nil {
		return err
	}
	switch target {
	case types.AirQualityTargetOff, types.AirQualityTargetGood, types.AirQualityTargetSensitive,
		types.AirQualityTargetDefault, types.AirQualityTargetVerySensitive:
	default:
		return fmt.Errorf("%w: air quality target %q", ErrInvalidArgument, target)
	}
	return s.setFields(map[string]string{"qtar": string(target)})
}

// EnableHeatMode heats towards the current target.
func (s *Session) EnableHeatMode() error {
	if err := s.require(types.CapHeating, "heating"); err != nil {
		return err
	}
	return s.setFields(map[string]string{"hmod": "HEAT"})
}

// DisableHeatMode switches the heater off.
func (s *Session) DisableHeatMode() error {
	if err := s.require(types.CapHeating, "heating"); err != nil {
		return err
	}
	return s.setFields(map[string]string{"hmod": "OFF"})
}

// SetHeatTarget sets the target temperature in Kelvin and enables heating.
func (s *Session) SetHeatTarget(kelvin float64) error {
	if err := s.require(types.CapHeating, "heating"); err != nil {
		return err
	}
	if math.IsNaN(kelvin) || kelvin < MinHeatTargetKelvin || kelvin > MaxHeatTargetKelvin {
		return fmt.Errorf("%w: heat target %.1fK outside %d..%dK", ErrInvalidArgument, kelvin, MinHeatTargetKelvin, MaxHeatTargetKelvin)
	}
	tenths := int(math.Round(kelvin * 10))
	return s.setFields(map[string]string{"hmod": "HEAT", "hmax": codec.FormatNumber(tenths)})
}

// EnableHumidification switches the humidifier on.
func (s *Session) EnableHumidification() error {
	if err := s.require(types.CapHumidifier, "humidifier"); err != nil {
		return err
	}
	return s.setFields(map[string]string{"hume": "HUMD"})
}

// DisableHumidification switches the humidifier off.
func (s *Session) DisableHumidification() error {
	if err := s.require(types.CapHumidifier, "humidifier"); err != nil {
		return err
	}
	return s.setFields(map[string]string{"hume": "OFF"})
}

// EnableHumidificationAutoMode lets the device pick the humidity target.
func (s *Session) EnableHumidificationAutoMode() error {
	return s.toggle(types.CapHumidifier, "haut", true)
}

// DisableHumidificationAutoMode keeps the manual humidity target.
func (s *Session) DisableHumidificationAutoMode() error {
	return s.toggle(types.CapHumidifier, "haut", false)
}

// SetTargetHumidity sets a manual target (30..70%), leaving humidity auto mode.
func (s *Session) SetTargetHumidity(percent int) error {
	if err := s.require(types.CapHumidifier, "humidifier"); err != nil {
		return err
	}
	if err := checkRange("target humidity", percent, MinTargetHumidity, MaxTargetHumidity); err != nil {
		return err
	}
	return s.setFields(map[string]string{"haut": "OFF", "humt": codec.FormatNumber(percent)})
}

// SetWaterHardness tunes the deep clean schedule.
func (s *Session) SetWaterHardness(hardness types.WaterHardness) error {
	if err := s.require(types.CapHumidifier, "humidifier"); err != nil {
		return err
	}
	code, ok := hardness.Code()
	if !ok {
		return fmt.Errorf("%w: water hardness %q", ErrInvalidArgument, hardness)
	}
	return s.setFields(map[string]string{"wath": code})
}

// SetTilt moves the fan head.
func (s *Session) SetTilt(tilt types.Tilt) error {
	if err := s.require(types.CapTilt, "tilt"); err != nil {
		return err
	}
	switch tilt {
	case types.Tilt0, types.Tilt25, types.Tilt50, types.TiltBreeze:
	default:
		return fmt.Errorf("%w: tilt %q", ErrInvalidArgument, tilt)
	}
	return s.setFields(map[string]string{"anct": string(tilt)})
}

// ResetFilter marks the fitted filters as new.
func (s *Session) ResetFilter() error {
	profile := s.Profile()
	switch {
	case profile.Has(types.CapLegacyFilter):
		return s.setFields(map[string]string{"rstf": linkFilterResetValue})
	case profile.Has(types.CapHEPAFilter):
		fields := map[string]string{"hflr": filterResetValue}
		if profile.Has(types.CapCarbonFilter) {
			if state, ok := s.CurrentState(); !ok || state.String("cflr") != carbonFilterAbsent {
				fields["cflr"] = filterResetValue
			}
		}
		return s.setFields(fields)
	default:
		return fmt.Errorf("%w: filter reset", ErrNotSupported)
	}
}

func (s *Session) toggle(c types.Capability, field string, on bool) error {
	if err := s.require(c, field); err != nil {
		return err
	}
	return s.setFields(map[string]string{field: codec.OnOff(on)})
}

func (s *Session) link() bool {
	return s.Profile().Has(types.CapLinkProtocol)
}
