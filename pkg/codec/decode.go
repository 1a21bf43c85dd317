// Package codec converts between device MQTT payloads and typed snapshots.
// Every function is pure: no clock reads, no shared state.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// ErrDecode wraps every payload the codec cannot interpret.
var ErrDecode = errors.New("cannot decode device message")

// Incoming "msg" values.
const (
	MsgCurrentState   = "CURRENT-STATE"
	MsgStateChange    = "STATE-CHANGE"
	MsgEnvironmental  = "ENVIRONMENTAL-CURRENT-SENSOR-DATA"
	MsgCurrentFaults  = "CURRENT-FAULTS"
	MsgFaultsChange   = "FAULTS-CHANGE"
	fieldMsg          = "msg"
	fieldTime         = "time"
	fieldProductState = "product-state"
	fieldData         = "data"
)

// Message is a classified, decoded device message. Exactly one of State,
// Environmental or Faults is populated, matching Kind.
type Message struct {
	Kind types.MessageKind
	// Type is the raw "msg" value.
	Type string
	// Full is true when State replaces the previous snapshot rather than
	// being merged into it.
	Full          bool
	State         types.StateSnapshot
	Environmental types.EnvironmentalSnapshot
	Faults        types.FaultSnapshot
}

// Decode classifies a payload by its "msg" field and decodes it. Unknown
// message types return a Message of kind MessageUnknown and no error.
func Decode(payload []byte) (Message, error) {
	raw, err := unmarshalObject(payload)
	if err != nil {
		return Message{}, err
	}
	msgType, _ := raw[fieldMsg].(string)

	switch msgType {
	case MsgCurrentState, MsgStateChange:
		state := stateFromObject(raw)
		return Message{Kind: types.MessageState, Type: msgType, Full: msgType == MsgCurrentState, State: state}, nil
	case MsgEnvironmental:
		env, err := environmentalFromObject(raw)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: types.MessageEnvironmental, Type: msgType, Environmental: env}, nil
	case MsgCurrentFaults, MsgFaultsChange:
		return Message{Kind: types.MessageFault, Type: msgType, Full: msgType == MsgCurrentFaults, Faults: faultsFromObject(raw)}, nil
	default:
		return Message{Kind: types.MessageUnknown, Type: msgType}, nil
	}
}

// DecodeState decodes a CURRENT-STATE or STATE-CHANGE payload. Values sent
// as [old, new] pairs resolve to new.
func DecodeState(payload []byte) (types.StateSnapshot, error) {
	raw, err := unmarshalObject(payload)
	if err != nil {
		return types.StateSnapshot{}, err
	}
	return stateFromObject(raw), nil
}

// DecodeEnvironmental decodes an ENVIRONMENTAL-CURRENT-SENSOR-DATA payload.
func DecodeEnvironmental(payload []byte) (types.EnvironmentalSnapshot, error) {
	raw, err := unmarshalObject(payload)
	if err != nil {
		return types.EnvironmentalSnapshot{}, err
	}
	return environmentalFromObject(raw)
}

// DecodeFaults decodes a CURRENT-FAULTS or FAULTS-CHANGE payload.
func DecodeFaults(payload []byte) (types.FaultSnapshot, error) {
	raw, err := unmarshalObject(payload)
	if err != nil {
		return types.FaultSnapshot{}, err
	}
	return faultsFromObject(raw), nil
}

// MergeState overlays delta on prev and returns a new snapshot. Neither
// argument is modified.
func MergeState(prev, delta types.StateSnapshot) types.StateSnapshot {
	merged := prev.Clone()
	if merged.Fields == nil {
		merged.Fields = make(map[string]any, len(delta.Fields))
	}
	for k, v := range delta.Fields {
		merged.Fields[k] = v
	}
	return merged
}

func unmarshalObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}
	return raw, nil
}

func stateFromObject(raw map[string]any) types.StateSnapshot {
	fields := make(map[string]any)
	if ps, ok := raw[fieldProductState].(map[string]any); ok {
		for k, v := range ps {
			fields[k] = normalise(resolvePair(v))
		}
		return types.StateSnapshot{Fields: fields}
	}

	// Robot vacuums publish their state flat at the top level, and their
	// arrays (globalPosition) are values, not [old, new] pairs.
	for k, v := range raw {
		switch k {
		case fieldMsg, fieldTime:
			continue
		case "newstate":
			fields["state"] = normalise(v)
		case "oldstate":
			continue
		default:
			fields[k] = normalise(v)
		}
	}
	return types.StateSnapshot{Fields: fields}
}

func environmentalFromObject(raw map[string]any) (types.EnvironmentalSnapshot, error) {
	data, ok := raw[fieldData].(map[string]any)
	if !ok {
		return types.EnvironmentalSnapshot{}, fmt.Errorf("%w: environmental message has no data object", ErrDecode)
	}
	env := types.EnvironmentalSnapshot{
		Readings: make(map[string]int, len(data)),
		Raw:      make(map[string]any, len(data)),
	}
	for k, v := range data {
		v = normalise(resolvePair(v))
		env.Raw[k] = v
		if reading, ok := ParseReading(v); ok {
			env.Readings[k] = reading
		}
	}
	return env, nil
}

func faultsFromObject(raw map[string]any) types.FaultSnapshot {
	faults := make(map[string]any)
	for k, v := range raw {
		if k == fieldMsg || k == fieldTime {
			continue
		}
		faults[k] = normalise(v)
	}
	return types.FaultSnapshot{Faults: faults}
}

// resolvePair returns the new value of an [old, new] pair, or v unchanged.
func resolvePair(v any) any {
	if pair, ok := v.([]any); ok && len(pair) == 2 {
		if _, nested := pair[0].([]any); !nested {
			return pair[1]
		}
	}
	return v
}

// normalise turns json.Number into int64 or float64 so snapshots hold plain
// Go values.
func normalise(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalise(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalise(item)
		}
		return out
	default:
		return v
	}
}

// ParseReading converts a sensor value to its stored integer, mapping the
// "OFF", "INIT" and "FAIL" sentinels to their negative codes.
func ParseReading(v any) (int, bool) {
	switch val := v.(type) {
	case string:
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "OFF":
			return types.EnvironmentalOff, true
		case "INIT":
			return types.EnvironmentalInit, true
		case "FAIL":
			return types.EnvironmentalFail, true
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	case int64:
		return int(val), true
	case int:
		return val, true
	case float64:
		return int(val), true
	}
	return 0, false
}
