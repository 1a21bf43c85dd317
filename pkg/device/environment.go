package device

import "github.com/illmade-knight/go-dysonlocal/pkg/types"

// Environmental readings carry a Status; only StatusValid readings have a Value.

// Humidity is the relative humidity in percent.
func (s *Session) Humidity() (types.Reading, error) { return attribute[types.Reading](s, AttrHumidity) }

// Temperature is the ambient temperature in Kelvin.
func (s *Session) Temperature() (types.Reading, error) {
	return attribute[types.Reading](s, AttrTemperature)
}

// ParticulateMatter25 is PM2.5 in µg/m³.
func (s *Session) ParticulateMatter25() (types.Reading, error) {
	return attribute[types.Reading](s, AttrPM25)
}

// ParticulateMatter10 is PM10 in µg/m³.
func (s *Session) ParticulateMatter10() (types.Reading, error) {
	return attribute[types.Reading](s, AttrPM10)
}

// Particulates is the Link models' unitless dust index.
func (s *Session) Particulates() (types.Reading, error) {
	return attribute[types.Reading](s, AttrParticulates)
}

// VolatileOrganicCompounds is the VOC index.
func (s *Session) VolatileOrganicCompounds() (types.Reading, error) {
	return attribute[types.Reading](s, AttrVOC)
}

// NitrogenDioxide is the NO2 index.
func (s *Session) NitrogenDioxide() (types.Reading, error) {
	return attribute[types.Reading](s, AttrNO2)
}

// Formaldehyde is in mg/m³.
func (s *Session) Formaldehyde() (types.Reading, error) {
	return attribute[types.Reading](s, AttrFormaldehyde)
}

// CarbonDioxide is in ppm.
func (s *Session) CarbonDioxide() (types.Reading, error) {
	return attribute[types.Reading](s, AttrCarbonDioxide)
}

// SleepTimerRemaining is the remaining sleep timer in minutes.
func (s *Session) SleepTimerRemaining() (types.Reading, error) {
	return attribute[types.Reading](s, AttrSleepTimerRemaining)
}
