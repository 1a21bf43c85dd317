package types

// ConnectionState is the lifecycle position of a device session.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// MessageKind tags an incoming device message and the events raised for it.
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageState
	MessageEnvironmental
	MessageFault
)

func (k MessageKind) String() string {
	switch k {
	case MessageState:
		return "state"
	case MessageEnvironmental:
		return "environmental"
	case MessageFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Environmental sentinel values. The firmware sends "OFF", "INIT" or "FAIL"
// in place of a number; the codec stores them as these negatives.
const (
	EnvironmentalOff  = -1
	EnvironmentalInit = -2
	EnvironmentalFail = -3
)

// ReadingStatus qualifies a sensor reading.
type ReadingStatus int

const (
	StatusValid ReadingStatus = iota
	StatusOff
	StatusInitializing
	StatusFailed
)

func (s ReadingStatus) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusInitializing:
		return "initializing"
	case StatusFailed:
		return "failed"
	default:
		return "valid"
	}
}

// StatusOf maps a raw stored reading to its status.
func StatusOf(raw int) ReadingStatus {
	switch raw {
	case EnvironmentalOff:
		return StatusOff
	case EnvironmentalInit:
		return StatusInitializing
	case EnvironmentalFail:
		return StatusFailed
	default:
		return StatusValid
	}
}

// Reading is a scaled sensor value. Value is zero unless Status is StatusValid.
type Reading struct {
	Value  float64       `json:"value"`
	Status ReadingStatus `json:"status"`
}

// Valid reports whether the reading carries a usable value.
func (r Reading) Valid() bool { return r.Status == StatusValid }

// FilterUnit is the unit a filter life is expressed in.
type FilterUnit string

const (
	FilterUnitHours   FilterUnit = "hours"
	FilterUnitPercent FilterUnit = "percent"
)

// FilterLife is the remaining life of a filter. Link models report hours,
// newer ones a percentage.
type FilterLife struct {
	Value int        `json:"value"`
	Unit  FilterUnit `json:"unit"`
}

// AirQualityTarget is the Link models' auto-mode sensitivity.
type AirQualityTarget string

const (
	AirQualityTargetOff           AirQualityTarget = "OFF"
	AirQualityTargetGood          AirQualityTarget = "0004"
	AirQualityTargetSensitive     AirQualityTarget = "0003"
	AirQualityTargetDefault       AirQualityTarget = "0002"
	AirQualityTargetVerySensitive AirQualityTarget = "0001"
)

// HumidifyOscillationMode is the humidifier's oscillation preset.
type HumidifyOscillationMode string

const (
	HumidifyOscillation45     HumidifyOscillationMode = "0045"
	HumidifyOscillation90     HumidifyOscillationMode = "0090"
	HumidifyOscillationBreeze HumidifyOscillationMode = "BRZE"
	HumidifyOscillationCustom HumidifyOscillationMode = "CUST"
)

// Tilt is the Big+Quiet nozzle angle.
type Tilt string

const (
	Tilt0      Tilt = "0000"
	Tilt25     Tilt = "0025"
	Tilt50     Tilt = "0050"
	TiltBreeze Tilt = "0359"
)

// WaterHardness is the humidifier's configured water hardness.
type WaterHardness string

const (
	WaterHardnessSoft   WaterHardness = "Soft"
	WaterHardnessMedium WaterHardness = "Medium"
	WaterHardnessHard   WaterHardness = "Hard"
)

var waterHardnessCodes = map[WaterHardness]string{
	WaterHardnessSoft:   "2025",
	WaterHardnessMedium: "1350",
	WaterHardnessHard:   "0675",
}

// Code returns the firmware's "wath" value for h.
func (h WaterHardness) Code() (string, bool) {
	code, ok := waterHardnessCodes[h]
	return code, ok
}

// WaterHardnessFromCode maps a "wath" value back to its hardness.
func WaterHardnessFromCode(code string) (WaterHardness, bool) {
	for h, c := range waterHardnessCodes {
		if c == code {
			return h, true
		}
	}
	return "", false
}

// VacuumState is the robot vacuum activity reported in "state".
type VacuumState string

const (
	VacuumStateFaultCallHelpline      VacuumState = "FAULT_CALL_HELPLINE"
	VacuumStateFaultContactHelpline   VacuumState = "FAULT_CONTACT_HELPLINE"
	VacuumStateFaultCritical          VacuumState = "FAULT_CRITICAL"
	VacuumStateFaultGettingInfo       VacuumState = "FAULT_GETTING_INFO"
	VacuumStateFaultLost              VacuumState = "FAULT_LOST"
	VacuumStateFaultOnDock            VacuumState = "FAULT_ON_DOCK"
	VacuumStateFaultOnDockCharged     VacuumState = "FAULT_ON_DOCK_CHARGED"
	VacuumStateFaultOnDockCharging    VacuumState = "FAULT_ON_DOCK_CHARGING"
	VacuumStateFaultReplaceOnDock     VacuumState = "FAULT_REPLACE_ON_DOCK"
	VacuumStateFaultReturnToDock      VacuumState = "FAULT_RETURN_TO_DOCK"
	VacuumStateFaultRunningDiagnostic VacuumState = "FAULT_RUNNING_DIAGNOSTIC"
	VacuumStateFaultUserRecoverable   VacuumState = "FAULT_USER_RECOVERABLE"
	VacuumStateFullCleanAbandoned     VacuumState = "FULL_CLEAN_ABANDONED"
	VacuumStateFullCleanAborted       VacuumState = "FULL_CLEAN_ABORTED"
	VacuumStateFullCleanCharging      VacuumState = "FULL_CLEAN_CHARGING"
	VacuumStateFullCleanDiscovering   VacuumState = "FULL_CLEAN_DISCOVERING"
	VacuumStateFullCleanFinished      VacuumState = "FULL_CLEAN_FINISHED"
	VacuumStateFullCleanInitiated     VacuumState = "FULL_CLEAN_INITIATED"
	VacuumStateFullCleanNeedsCharge   VacuumState = "FULL_CLEAN_NEEDS_CHARGE"
	VacuumStateFullCleanPaused        VacuumState = "FULL_CLEAN_PAUSED"
	VacuumStateFullCleanRunning       VacuumState = "FULL_CLEAN_RUNNING"
	VacuumStateFullCleanTraversing    VacuumState = "FULL_CLEAN_TRAVERSING"
	VacuumStateInactiveCharged        VacuumState = "INACTIVE_CHARGED"
	VacuumStateInactiveCharging       VacuumState = "INACTIVE_CHARGING"
	VacuumStateInactiveDischarging    VacuumState = "INACTIVE_DISCHARGING"
	VacuumStateMappingAborted         VacuumState = "MAPPING_ABORTED"
	VacuumStateMappingCharging        VacuumState = "MAPPING_CHARGING"
	VacuumStateMappingFinished        VacuumState = "MAPPING_FINISHED"
	VacuumStateMappingInitiated       VacuumState = "MAPPING_INITIATED"
	VacuumStateMappingNeedsCharge     VacuumState = "MAPPING_NEEDS_CHARGE"
	VacuumStateMappingPaused          VacuumState = "MAPPING_PAUSED"
	VacuumStateMappingRunning         VacuumState = "MAPPING_RUNNING"
)

// IsFault reports whether the vacuum is in one of the FAULT_ states.
func (s VacuumState) IsFault() bool {
	return len(s) > 6 && s[:6] == "FAULT_"
}

// IsCleaning reports whether a clean is in progress, paused or not.
func (s VacuumState) IsCleaning() bool {
	switch s {
	case VacuumStateFullCleanInitiated, VacuumStateFullCleanRunning, VacuumStateFullCleanTraversing,
		VacuumStateFullCleanDiscovering, VacuumStateFullCleanPaused, VacuumStateFullCleanCharging,
		VacuumStateFullCleanNeedsCharge:
		return true
	}
	return false
}

// Vacuum power modes differ per model.
const (
	VacuumEyePowerModeQuiet = "halfPower"
	VacuumEyePowerModeMax   = "fullPower"

	VacuumHeuristPowerModeQuiet = "1"
	VacuumHeuristPowerModeHigh  = "2"
	VacuumHeuristPowerModeMax   = "3"

	VacuumVisNavPowerModeAuto  = "1"
	VacuumVisNavPowerModeQuick = "2"
	VacuumVisNavPowerModeQuiet = "3"
	VacuumVisNavPowerModeBoost = "4"
)

// VacuumPowerModes lists the power modes accepted by each vacuum type.
var VacuumPowerModes = map[string][]string{
	DeviceType360Eye:     {VacuumEyePowerModeQuiet, VacuumEyePowerModeMax},
	DeviceType360Heurist: {VacuumHeuristPowerModeQuiet, VacuumHeuristPowerModeHigh, VacuumHeuristPowerModeMax},
	DeviceType360VisNav:  {VacuumVisNavPowerModeAuto, VacuumVisNavPowerModeQuick, VacuumVisNavPowerModeQuiet, VacuumVisNavPowerModeBoost},
}

// CleaningType is the "fullCleanType" of a vacuum run.
type CleaningType string

const (
	CleaningTypeImmediate CleaningType = "immediate"
	CleaningTypeManual    CleaningType = "manual"
	CleaningTypeScheduled CleaningType = "scheduled"
)

// CleaningMode is the Heurist / Vis Nav "cleaningMode".
type CleaningMode string

const (
	CleaningModeGlobal         CleaningMode = "global"
	CleaningModeZoneConfigured CleaningMode = "zoneConfigured"
)
