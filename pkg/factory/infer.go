package factory

import (
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// stateRules maps a state field to the capability its presence implies.
var stateRules = []struct {
	field string
	cap   types.Capability
}{
	{"fpwr", types.CapFan},
	{"fmod", types.CapFan | types.CapAutoMode},
	{"auto", types.CapAutoMode},
	{"oson", types.CapOscillation},
	{"ancp", types.CapOscillationMode},
	{"nmod", types.CapNightMode},
	{"rhtm", types.CapContinuousMonitoring},
	{"sltm", types.CapSleepTimer},
	{"fdir", types.CapFrontAirflow},
	{"ffoc", types.CapFocusMode},
	{"qtar", types.CapAirQualityTarget},
	{"hmod", types.CapHeating},
	{"hume", types.CapHumidifier},
	{"anct", types.CapTilt},
	{"filf", types.CapLegacyFilter},
	{"hflr", types.CapHEPAFilter},
	{"batteryChargeLevel", types.CapVacuum},
}

// envRules maps a sensor field to the capability its presence implies.
var envRules = []struct {
	field string
	cap   types.Capability
}{
	{"pact", types.CapLegacyParticulates},
	{"pm25", types.CapParticulateMatter},
	{"pm10", types.CapParticulateMatter},
	{"vact", types.CapVOC},
	{"va10", types.CapVOC},
	{"noxl", types.CapNO2},
	{"hchr", types.CapFormaldehyde},
	{"co2r", types.CapCarbonDioxide},
}

// InferCapabilities derives capabilities from the fields a device reports.
// env may be nil when no sensor data arrived.
func InferCapabilities(state types.StateSnapshot, env *types.EnvironmentalSnapshot) types.Capability {
	var caps types.Capability
	for _, rule := range stateRules {
		if state.Has(rule.field) {
			caps |= rule.cap
		}
	}
	if state.Has("fmod") && !state.Has("fpwr") {
		caps |= types.CapLinkProtocol
	}
	if state.Has("osal") && state.Has("osau") {
		caps |= types.CapOscillationAngles
	}
	if v := state.String("cflr"); v != "" && v != "INV" {
		caps |= types.CapCarbonFilter
	}
	if env != nil && len(env.Raw) > 0 {
		caps |= types.CapEnvironmental
		for _, rule := range envRules {
			if _, ok := env.Raw[rule.field]; ok {
				caps |= rule.cap
			}
		}
	}
	return caps
}
