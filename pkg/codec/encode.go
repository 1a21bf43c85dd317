package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Outgoing "msg" values.
const (
	MsgStateSet             = "STATE-SET"
	MsgRequestCurrentState  = "REQUEST-CURRENT-STATE"
	MsgRequestEnvironmental = "REQUEST-PRODUCT-ENVIRONMENT-CURRENT-SENSOR-DATA"
	MsgRequestCurrentFaults = "REQUEST-CURRENT-FAULTS"
	MsgVacuumStart          = "START"
	MsgVacuumPause          = "PAUSE"
	MsgVacuumResume         = "RESUME"
	MsgVacuumAbort          = "ABORT"
	modeReasonApp           = "LAPP"
	timeLayout              = "2006-01-02T15:04:05Z"
)

// Topics are the three MQTT topics of one device.
type Topics struct {
	Current string
	Fault   string
	Command string
}

// TopicsFor builds the topic set for a device: status/current,
// status/fault and command under {deviceType}/{serial}.
func TopicsFor(deviceType, serial string) Topics {
	prefix := deviceType + "/" + serial
	return Topics{
		Current: prefix + "/status/current",
		Fault:   prefix + "/status/fault",
		Command: prefix + "/command",
	}
}

// Subscriptions lists the topics a session listens on.
func (t Topics) Subscriptions() []string {
	return []string{t.Current, t.Fault}
}

type stateSet struct {
	Msg        string            `json:"msg"`
	Time       string            `json:"time"`
	ModeReason string            `json:"mode-reason"`
	Data       map[string]string `json:"data"`
}

type request struct {
	Msg  string `json:"msg"`
	Time string `json:"time"`
}

// EncodeStateSet builds a STATE-SET command carrying fields.
func EncodeStateSet(fields map[string]string, now time.Time) ([]byte, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("state set needs at least one field")
	}
	return json.Marshal(stateSet{
		Msg:        MsgStateSet,
		Time:       formatTime(now),
		ModeReason: modeReasonApp,
		Data:       fields,
	})
}

// EncodeCommand is EncodeStateSet for a single field.
func EncodeCommand(field, value string, now time.Time) ([]byte, error) {
	return EncodeStateSet(map[string]string{field: value}, now)
}

// EncodeRequest builds one of the REQUEST-* messages.
func EncodeRequest(msg string, now time.Time) ([]byte, error) {
	return json.Marshal(request{Msg: msg, Time: formatTime(now)})
}

// EncodeVacuumCommand builds a vacuum control message. extra is merged into
// the top level of the payload.
func EncodeVacuumCommand(msg string, extra map[string]any, now time.Time) ([]byte, error) {
	payload := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		payload[k] = v
	}
	payload["msg"] = msg
	payload["time"] = formatTime(now)
	return json.Marshal(payload)
}

// FormatNumber renders n the way the firmware expects numeric settings,
// zero padded to four digits.
func FormatNumber(n int) string {
	return fmt.Sprintf("%04d", n)
}

// ParseNumber reads a zero padded numeric field.
func ParseNumber(s string) (int, error) {
	return strconv.Atoi(s)
}

// OnOff renders a boolean as the firmware's "ON"/"OFF".
func OnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
