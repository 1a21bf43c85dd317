package factory

import "github.com/illmade-knight/go-dysonlocal/pkg/types"

const (
	linkFan = types.CapFan | types.CapLinkProtocol | types.CapAutoMode | types.CapOscillation |
		types.CapNightMode | types.CapContinuousMonitoring | types.CapSleepTimer | types.CapAirQualityTarget |
		types.CapLegacyFilter | types.CapEnvironmental | types.CapLegacyParticulates | types.CapVOC

	purifier = types.CapFan | types.CapAutoMode | types.CapOscillation | types.CapOscillationAngles |
		types.CapNightMode | types.CapContinuousMonitoring | types.CapSleepTimer | types.CapFrontAirflow |
		types.CapHEPAFilter | types.CapCarbonFilter | types.CapEnvironmental | types.CapParticulateMatter |
		types.CapVOC | types.CapNO2

	humidifier = purifier&^types.CapFrontAirflow | types.CapHumidifier | types.CapOscillationMode

	bigQuiet = types.CapFan | types.CapAutoMode | types.CapNightMode | types.CapContinuousMonitoring |
		types.CapSleepTimer | types.CapTilt | types.CapHEPAFilter | types.CapCarbonFilter |
		types.CapEnvironmental | types.CapParticulateMatter | types.CapVOC | types.CapNO2 | types.CapCarbonDioxide
)

// staticCapabilities is the fallback table used when a device cannot be probed.
// Deprecated regional variants keep their own entries so older configurations
// still resolve.
var staticCapabilities = map[string]types.Capability{
	types.DeviceTypePureCoolLink:                      linkFan,
	types.DeviceTypePureCoolLinkDesk:                  linkFan,
	types.DeviceTypePureHotCoolLink:                   linkFan | types.CapHeating | types.CapFocusMode,
	types.DeviceTypePureCool:                          purifier,
	types.DeviceTypePureCool + types.VariantK:         purifier | types.CapFormaldehyde,
	types.DeviceTypePureCool + types.VariantE:         purifier,
	types.DeviceTypePureCool + types.VariantM:         purifier | types.CapFormaldehyde,
	types.DeviceTypePureCoolDesk:                      purifier,
	types.DeviceTypePureCoolDeskFormaldehyde:          purifier | types.CapFormaldehyde,
	types.DeviceTypePureHotCool:                       purifier | types.CapHeating,
	types.DeviceTypePureHotCool + types.VariantK:      purifier | types.CapHeating | types.CapFormaldehyde,
	types.DeviceTypePureHotCool + types.VariantE:      purifier | types.CapHeating,
	types.DeviceTypePureHotCool + types.VariantM:      purifier | types.CapHeating | types.CapFormaldehyde,
	types.DeviceTypePureHumidifyCool:                  humidifier,
	types.DeviceTypePureHumidifyCool + types.VariantK: humidifier | types.CapFormaldehyde,
	types.DeviceTypePureHumidifyCool + types.VariantE: humidifier,
	types.DeviceTypePurifierBigQuiet:                  bigQuiet,
	types.DeviceType360Eye:                            types.CapVacuum,
	types.DeviceType360Heurist:                        types.CapVacuum,
	types.DeviceType360VisNav:                         types.CapVacuum,
}

// StaticProfile returns the table profile for deviceType. Unknown regional
// variants fall back to their base type.
func StaticProfile(deviceType string) (types.Profile, bool) {
	caps, ok := staticCapabilities[deviceType]
	if !ok {
		caps, ok = staticCapabilities[types.BaseDeviceType(deviceType)]
	}
	if !ok {
		return types.Profile{}, false
	}
	return types.Profile{DeviceType: deviceType, Family: familyOf(caps), Capabilities: caps}, true
}

// KnownDeviceTypes lists every type in the static table.
func KnownDeviceTypes() []string {
	out := make([]string, 0, len(staticCapabilities))
	for t := range staticCapabilities {
		out = append(out, t)
	}
	return out
}

func familyOf(caps types.Capability) types.Family {
	if caps.Has(types.CapVacuum) {
		return types.FamilyVacuum
	}
	return types.FamilyFan
}
