package types

import (
	"math/bits"
	"strings"
)

// Family separates devices with fundamentally different message vocabularies.
type Family int

const (
	// FamilyFan covers fans, purifiers, heaters and humidifiers.
	FamilyFan Family = iota
	// FamilyVacuum covers the 360 robot vacuums.
	FamilyVacuum
)

func (f Family) String() string {
	if f == FamilyVacuum {
		return "vacuum"
	}
	return "fan"
}

// Capability is a bit set of the features a device supports.
type Capability uint64

const (
	CapFan Capability = 1 << iota
	// CapLinkProtocol marks the older Link firmware that drives power through fmod.
	CapLinkProtocol
	CapAutoMode
	CapOscillation
	CapOscillationAngles
	CapOscillationMode
	CapNightMode
	CapContinuousMonitoring
	CapSleepTimer
	CapFrontAirflow
	CapFocusMode
	CapAirQualityTarget
	CapHeating
	CapHumidifier
	CapTilt
	CapLegacyFilter
	CapHEPAFilter
	CapCarbonFilter
	CapEnvironmental
	CapLegacyParticulates
	CapParticulateMatter
	CapVOC
	CapNO2
	CapFormaldehyde
	CapCarbonDioxide
	CapVacuum
)

var capabilityNames = map[Capability]string{
	CapFan:                  "fan",
	CapLinkProtocol:         "link_protocol",
	CapAutoMode:             "auto_mode",
	CapOscillation:          "oscillation",
	CapOscillationAngles:    "oscillation_angles",
	CapOscillationMode:      "oscillation_mode",
	CapNightMode:            "night_mode",
	CapContinuousMonitoring: "continuous_monitoring",
	CapSleepTimer:           "sleep_timer",
	CapFrontAirflow:         "front_airflow",
	CapFocusMode:            "focus_mode",
	CapAirQualityTarget:     "air_quality_target",
	CapHeating:              "heating",
	CapHumidifier:           "humidifier",
	CapTilt:                 "tilt",
	CapLegacyFilter:         "legacy_filter",
	CapHEPAFilter:           "hepa_filter",
	CapCarbonFilter:         "carbon_filter",
	CapEnvironmental:        "environmental",
	CapLegacyParticulates:   "legacy_particulates",
	CapParticulateMatter:    "particulate_matter",
	CapVOC:                  "voc",
	CapNO2:                  "no2",
	CapFormaldehyde:         "formaldehyde",
	CapCarbonDioxide:        "carbon_dioxide",
	CapVacuum:               "vacuum",
}

// Has reports whether every bit of c is set.
func (c Capability) Has(other Capability) bool {
	return other != 0 && c&other == other
}

// List returns the names of the set capabilities in bit order.
func (c Capability) List() []string {
	names := make([]string, 0, bits.OnesCount64(uint64(c)))
	for bit := Capability(1); bit != 0 && bit <= CapVacuum; bit <<= 1 {
		if c&bit != 0 {
			names = append(names, capabilityNames[bit])
		}
	}
	return names
}

func (c Capability) String() string {
	return strings.Join(c.List(), ",")
}

// Profile is the fixed description of what a session can do.
type Profile struct {
	DeviceType   string     `json:"device_type"`
	Family       Family     `json:"family"`
	Capabilities Capability `json:"capabilities"`
	// Discovered is true when the capabilities were learned from the device
	// rather than taken from the static table.
	Discovered bool `json:"discovered"`
}

// Has reports whether the profile carries capability c.
func (p Profile) Has(c Capability) bool {
	return p.Capabilities.Has(c)
}

// With returns a copy of p with the extra capabilities set.
func (p Profile) With(c Capability) Profile {
	p.Capabilities |= c
	return p
}

func (p Profile) String() string {
	return p.DeviceType + "/" + p.Family.String() + "[" + p.Capabilities.String() + "]"
}
