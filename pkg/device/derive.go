package device

import (
	"fmt"
	"sort"

	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// Attribute names a derived, typed device property.
type Attribute string

// Fan family attributes.
const (
	AttrIsOn                   Attribute = "is_on"
	AttrSpeed                  Attribute = "speed"
	AttrAutoMode               Attribute = "auto_mode"
	AttrOscillation            Attribute = "oscillation"
	AttrOscillationAngles      Attribute = "oscillation_angles"
	AttrOscillationMode        Attribute = "oscillation_mode"
	AttrNightMode              Attribute = "night_mode"
	AttrContinuousMonitoring   Attribute = "continuous_monitoring"
	AttrSleepTimer             Attribute = "sleep_timer"
	AttrFrontAirflow           Attribute = "front_airflow"
	AttrFocusMode              Attribute = "focus_mode"
	AttrAirQualityTarget       Attribute = "air_quality_target"
	AttrHeatMode               Attribute = "heat_mode"
	AttrHeatStatus             Attribute = "heat_status"
	AttrHeatTarget             Attribute = "heat_target"
	AttrHumidification         Attribute = "humidification"
	AttrHumidificationAutoMode Attribute = "humidification_auto_mode"
	AttrTargetHumidity         Attribute = "target_humidity"
	AttrWaterHardness          Attribute = "water_hardness"
	AttrTilt                   Attribute = "tilt"
	AttrFilterLife             Attribute = "filter_life"
	AttrHEPAFilterLife         Attribute = "hepa_filter_life"
	AttrCarbonFilterLife       Attribute = "carbon_filter_life"
	AttrCleanTimeRemaining     Attribute = "clean_time_remaining"
	AttrTimeUntilNextClean     Attribute = "time_until_next_clean"
	AttrActiveFaults           Attribute = "active_faults"
)

// Environmental attributes.
const (
	AttrHumidity            Attribute = "humidity"
	AttrTemperature         Attribute = "temperature"
	AttrPM25                Attribute = "particulate_matter_2_5"
	AttrPM10                Attribute = "particulate_matter_10"
	AttrParticulates        Attribute = "particulates"
	AttrVOC                 Attribute = "volatile_organic_compounds"
	AttrNO2                 Attribute = "nitrogen_dioxide"
	AttrFormaldehyde        Attribute = "formaldehyde"
	AttrCarbonDioxide       Attribute = "carbon_dioxide"
	AttrSleepTimerRemaining Attribute = "sleep_timer_remaining"
)

// Vacuum attributes.
const (
	AttrVacuumState      Attribute = "vacuum_state"
	AttrBatteryLevel     Attribute = "battery_level"
	AttrPosition         Attribute = "position"
	AttrPowerMode        Attribute = "power_mode"
	AttrDefaultPowerMode Attribute = "default_power_mode"
	AttrCleaningType     Attribute = "cleaning_type"
	AttrCleaningMode     Attribute = "cleaning_mode"
	AttrCleanID          Attribute = "clean_id"
)

// OscillationAngles is the configured sweep in degrees.
type OscillationAngles struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Position is a vacuum's reported map position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// view is the immutable input of every derivation.
type view struct {
	profile types.Profile
	state   *types.StateSnapshot
	env     *types.EnvironmentalSnapshot
	faults  *types.FaultSnapshot
}

// derivation reads one attribute. A zero requires means every device has it.
type derivation struct {
	requires types.Capability
	read     func(v view) (any, error)
}

var derivations = map[Attribute]derivation{
	AttrIsOn: {types.CapFan, func(v view) (any, error) {
		if v.link() {
			mode, err := v.str("fmod")
			return mode == "FAN" || mode == "AUTO", err
		}
		return v.on("fpwr", "ON")
	}},
	AttrSpeed: {types.CapFan, func(v view) (any, error) {
		speed, err := v.str("fnsp")
		if err != nil {
			return nil, err
		}
		if speed == "AUTO" {
			return 0, nil
		}
		return v.number("fnsp")
	}},
	AttrAutoMode: {types.CapAutoMode, func(v view) (any, error) {
		if v.link() {
			mode, err := v.str("fmod")
			return mode == "AUTO", err
		}
		return v.on("auto", "ON")
	}},
	AttrOscillation: {types.CapOscillation, func(v view) (any, error) {
		return v.on("oson", "ON")
	}},
	AttrOscillationAngles: {types.CapOscillationAngles, func(v view) (any, error) {
		low, err := v.number("osal")
		if err != nil {
			return nil, err
		}
		high, err := v.number("osau")
		if err != nil {
			return nil, err
		}
		return OscillationAngles{Low: low, High: high}, nil
	}},
	AttrOscillationMode: {types.CapOscillationMode, func(v view) (any, error) {
		mode, err := v.str("ancp")
		return types.HumidifyOscillationMode(mode), err
	}},
	AttrNightMode: {types.CapNightMode, func(v view) (any, error) {
		return v.on("nmod", "ON")
	}},
	AttrContinuousMonitoring: {types.CapContinuousMonitoring, func(v view) (any, error) {
		return v.on("rhtm", "ON")
	}},
	AttrSleepTimer: {types.CapSleepTimer, func(v view) (any, error) {
		timer, err := v.str("sltm")
		if err != nil {
			return nil, err
		}
		if timer == "OFF" {
			return 0, nil
		}
		return v.number("sltm")
	}},
	AttrFrontAirflow: {types.CapFrontAirflow, func(v view) (any, error) {
		return v.on("fdir", "ON")
	}},
	AttrFocusMode: {types.CapFocusMode, func(v view) (any, error) {
		return v.on("ffoc", "ON")
	}},
	AttrAirQualityTarget: {types.CapAirQualityTarget, func(v view) (any, error) {
		target, err := v.str("qtar")
		return types.AirQualityTarget(target), err
	}},
	AttrHeatMode: {types.CapHeating, func(v view) (any, error) {
		return v.on("hmod", "HEAT")
	}},
	AttrHeatStatus: {types.CapHeating, func(v view) (any, error) {
		return v.on("hsta", "HEAT")
	}},
	AttrHeatTarget: {types.CapHeating, func(v view) (any, error) {
		tenths, err := v.number("hmax")
		if err != nil {
			return nil, err
		}
		return float64(tenths) / 10, nil
	}},
	AttrHumidification: {types.CapHumidifier, func(v view) (any, error) {
		return v.on("hume", "HUMD")
	}},
	AttrHumidificationAutoMode: {types.CapHumidifier, func(v view) (any, error) {
		return v.on("haut", "ON")
	}},
	AttrTargetHumidity: {types.CapHumidifier, func(v view) (any, error) {
		return v.number("humt")
	}},
	AttrWaterHardness: {types.CapHumidifier, func(v view) (any, error) {
		code, err := v.str("wath")
		if err != nil {
			return nil, err
		}
		hardness, ok := types.WaterHardnessFromCode(code)
		if !ok {
			return nil, fmt.Errorf("%w: unknown water hardness %q", ErrProtocol, code)
		}
		return hardness, nil
	}},
	AttrTilt: {types.CapTilt, func(v view) (any, error) {
		tilt, err := v.str("anct")
		return types.Tilt(tilt), err
	}},
	AttrFilterLife: {types.CapLegacyFilter, func(v view) (any, error) {
		hours, err := v.number("filf")
		return types.FilterLife{Value: hours, Unit: types.FilterUnitHours}, err
	}},
	AttrHEPAFilterLife: {types.CapHEPAFilter, func(v view) (any, error) {
		percent, err := v.number("hflr")
		return types.FilterLife{Value: percent, Unit: types.FilterUnitPercent}, err
	}},
	AttrCarbonFilterLife: {types.CapCarbonFilter, func(v view) (any, error) {
		raw, err := v.str("cflr")
		if err != nil {
			return nil, err
		}
		if raw == "INV" {
			return nil, fmt.Errorf("%w: no carbon filter installed", ErrNotSupported)
		}
		percent, err := v.number("cflr")
		return types.FilterLife{Value: percent, Unit: types.FilterUnitPercent}, err
	}},
	AttrCleanTimeRemaining: {types.CapHumidifier, func(v view) (any, error) {
		return v.number("cdrr")
	}},
	AttrTimeUntilNextClean: {types.CapHumidifier, func(v view) (any, error) {
		return v.number("cltr")
	}},
	AttrActiveFaults: {0, func(v view) (any, error) {
		if v.faults == nil {
			return []string{}, nil
		}
		return v.faults.Active(), nil
	}},

	AttrHumidity: {types.CapEnvironmental, func(v view) (any, error) {
		return v.reading("hact", 1)
	}},
	AttrTemperature: {types.CapEnvironmental, func(v view) (any, error) {
		return v.reading("tact", 10)
	}},
	AttrPM25: {types.CapParticulateMatter, func(v view) (any, error) {
		return v.reading("pm25", 1)
	}},
	AttrPM10: {types.CapParticulateMatter, func(v view) (any, error) {
		return v.reading("pm10", 1)
	}},
	AttrParticulates: {types.CapLegacyParticulates, func(v view) (any, error) {
		return v.reading("pact", 1)
	}},
	AttrVOC: {types.CapVOC, func(v view) (any, error) {
		if v.link() {
			return v.reading("vact", 1)
		}
		return v.reading("va10", 10)
	}},
	AttrNO2: {types.CapNO2, func(v view) (any, error) {
		return v.reading("noxl", 10)
	}},
	AttrFormaldehyde: {types.CapFormaldehyde, func(v view) (any, error) {
		return v.reading("hchr", 1000)
	}},
	AttrCarbonDioxide: {types.CapCarbonDioxide, func(v view) (any, error) {
		return v.reading("co2r", 1)
	}},
	AttrSleepTimerRemaining: {types.CapSleepTimer, func(v view) (any, error) {
		return v.reading("sltm", 1)
	}},

	AttrVacuumState: {types.CapVacuum, func(v view) (any, error) {
		state, err := v.str("state")
		return types.VacuumState(state), err
	}},
	AttrBatteryLevel: {types.CapVacuum, func(v view) (any, error) {
		return v.number("batteryChargeLevel")
	}},
	AttrPosition: {types.CapVacuum, func(v view) (any, error) {
		raw, err := v.field("globalPosition")
		if err != nil {
			return nil, err
		}
		coords, ok := raw.([]any)
		if !ok || len(coords) != 2 {
			return nil, fmt.Errorf("%w: unexpected position %v", ErrProtocol, raw)
		}
		x, okX := toInt(coords[0])
		y, okY := toInt(coords[1])
		if !okX || !okY {
			return nil, fmt.Errorf("%w: unexpected position %v", ErrProtocol, raw)
		}
		return Position{X: x, Y: y}, nil
	}},
	AttrPowerMode: {types.CapVacuum, func(v view) (any, error) {
		return v.str("currentVacuumPowerMode")
	}},
	AttrDefaultPowerMode: {types.CapVacuum, func(v view) (any, error) {
		return v.str("defaultVacuumPowerMode")
	}},
	AttrCleaningType: {types.CapVacuum, func(v view) (any, error) {
		cleaningType, err := v.str("fullCleanType")
		return types.CleaningType(cleaningType), err
	}},
	AttrCleaningMode: {types.CapVacuum, func(v view) (any, error) {
		mode, err := v.str("cleaningMode")
		return types.CleaningMode(mode), err
	}},
	AttrCleanID: {types.CapVacuum, func(v view) (any, error) {
		return v.str("cleanId")
	}},
}

func (v view) link() bool {
	return v.profile.Has(types.CapLinkProtocol)
}

func (v view) field(name string) (any, error) {
	if v.state == nil {
		return nil, ErrNoState
	}
	val, ok := v.state.Fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: field %q not reported", ErrNoState, name)
	}
	return val, nil
}

func (v view) str(name string) (string, error) {
	if _, err := v.field(name); err != nil {
		return "", err
	}
	return v.state.String(name), nil
}

func (v view) on(name, onValue string) (bool, error) {
	val, err := v.str(name)
	if err != nil {
		return false, err
	}
	return val == onValue, nil
}

func (v view) number(name string) (int, error) {
	val, err := v.field(name)
	if err != nil {
		return 0, err
	}
	if s, ok := val.(string); ok {
		n, err := codec.ParseNumber(s)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q is not numeric: %q", ErrProtocol, name, s)
		}
		return n, nil
	}
	if n, ok := toInt(val); ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: field %q has unexpected value %v", ErrProtocol, name, val)
}

func (v view) reading(name string, scale float64) (types.Reading, error) {
	if v.env == nil {
		return types.Reading{}, ErrNoEnvironmentalData
	}
	raw, ok := v.env.Readings[name]
	if !ok {
		return types.Reading{}, fmt.Errorf("%w: field %q not reported", ErrNoEnvironmentalData, name)
	}
	status := types.StatusOf(raw)
	if status != types.StatusValid {
		return types.Reading{Status: status}, nil
	}
	return types.Reading{Value: float64(raw) / scale, Status: types.StatusValid}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (s *Session) view() view {
	return view{
		profile: s.Profile(),
		state:   s.visible.Load(),
		env:     s.env.Load(),
		faults:  s.faults.Load(),
	}
}

func (s *Session) supports(d derivation) bool {
	return d.requires == 0 || s.Profile().Has(d.requires)
}

// Attribute reads one attribute. It returns ErrNotSupported when the
// profile lacks the attribute's capability.
func (s *Session) Attribute(attr Attribute) (any, error) {
	d, ok := derivations[attr]
	if !ok || !s.supports(d) {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, attr)
	}
	return d.read(s.view())
}

// Attributes reads every supported attribute that currently has a value.
func (s *Session) Attributes() map[Attribute]any {
	v := s.view()
	out := make(map[Attribute]any)
	for attr, d := range derivations {
		if !s.supports(d) {
			continue
		}
		if val, err := d.read(v); err == nil {
			out[attr] = val
		}
	}
	return out
}

// SupportedAttributes lists the attributes of this session's profile.
func (s *Session) SupportedAttributes() []Attribute {
	var out []Attribute
	for attr, d := range derivations {
		if s.supports(d) {
			out = append(out, attr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func attribute[T any](s *Session, attr Attribute) (T, error) {
	var zero T
	val, err := s.Attribute(attr)
	if err != nil {
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("%w: attribute %s has type %T", ErrProtocol, attr, val)
	}
	return typed, nil
}
