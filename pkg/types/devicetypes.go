// Package types holds the capability model shared by the codec, the device
// sessions, discovery and the factory. It is pure data.
package types

import "strings"

// Device type codes as reported by the cloud manifest and used in MQTT topics.
const (
	DeviceType360Eye     = "N223"
	DeviceType360Heurist = "276"
	DeviceType360VisNav  = "277"

	DeviceTypePureCoolLink             = "475"
	DeviceTypePureCoolLinkDesk         = "469"
	DeviceTypePureHotCoolLink          = "455"
	DeviceTypePureCoolDesk             = "520"
	DeviceTypePureCool                 = "438"
	DeviceTypePureHotCool              = "527"
	DeviceTypePureHumidifyCool         = "358"
	DeviceTypePurifierBigQuiet         = "664"
	DeviceTypePureCoolDeskFormaldehyde = "739"
)

// Variant suffixes appended to a base device type by newer regional models.
const (
	VariantK = "K"
	VariantE = "E"
	VariantM = "M"
)

// DeviceTypeNames gives a human readable model name for every known type.
var DeviceTypeNames = map[string]string{
	DeviceType360Eye:                      "360 Eye robot vacuum",
	DeviceType360Heurist:                  "360 Heurist robot vacuum",
	DeviceType360VisNav:                   "360 Vis Nav robot vacuum",
	DeviceTypePureCoolLink:                "Pure Cool Link",
	DeviceTypePureCoolLinkDesk:            "Pure Cool Link Desk",
	DeviceTypePureHotCoolLink:             "Pure Hot+Cool Link",
	DeviceTypePureCoolDesk:                "Pure Cool Desk",
	DeviceTypePureCool:                    "Pure Cool",
	DeviceTypePureCool + VariantK:         "Pure Cool Formaldehyde",
	DeviceTypePureCool + VariantE:         "Purifier Cool",
	DeviceTypePureCool + VariantM:         "Purifier Cool Formaldehyde",
	DeviceTypePureHotCool:                 "Pure Hot+Cool",
	DeviceTypePureHotCool + VariantK:      "Pure Hot+Cool Formaldehyde",
	DeviceTypePureHotCool + VariantE:      "Purifier Hot+Cool",
	DeviceTypePureHotCool + VariantM:      "Purifier Hot+Cool Formaldehyde",
	DeviceTypePureHumidifyCool:            "Pure Humidify+Cool",
	DeviceTypePureHumidifyCool + VariantK: "Pure Humidify+Cool Formaldehyde",
	DeviceTypePureHumidifyCool + VariantE: "Purifier Humidify+Cool",
	DeviceTypePurifierBigQuiet:            "Purifier Big+Quiet",
	DeviceTypePureCoolDeskFormaldehyde:    "Pure Cool Desk Formaldehyde",
}

// IsVacuum reports whether deviceType is one of the robot vacuums.
func IsVacuum(deviceType string) bool {
	switch deviceType {
	case DeviceType360Eye, DeviceType360Heurist, DeviceType360VisNav:
		return true
	}
	return false
}

// BaseDeviceType strips a regional variant suffix, "438K" becomes "438".
// Types without a known suffix are returned unchanged.
func BaseDeviceType(deviceType string) string {
	if len(deviceType) <= 3 {
		return deviceType
	}
	suffix := deviceType[len(deviceType)-1:]
	switch suffix {
	case VariantK, VariantE, VariantM:
		return deviceType[:len(deviceType)-1]
	}
	return deviceType
}

// ConstructDeviceType joins a base type and an optional variant letter.
func ConstructDeviceType(base, variant string) string {
	return base + strings.ToUpper(strings.TrimSpace(variant))
}

// DeviceTypeName returns the model name for deviceType or the raw code if unknown.
func DeviceTypeName(deviceType string) string {
	if name, ok := DeviceTypeNames[deviceType]; ok {
		return name
	}
	return deviceType
}
