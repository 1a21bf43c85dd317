package types

import (
	"fmt"
	"sort"
	"time"
)

// StateSnapshot is the device-reported state keyed by field code ("fpwr",
// "fnsp", ...). A snapshot is never modified after it is published; updates
// build a new one.
type StateSnapshot struct {
	Fields     map[string]any `json:"fields"`
	Seq        uint64         `json:"seq"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Get returns the raw value of a field.
func (s StateSnapshot) Get(field string) (any, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// Has reports whether the field is present.
func (s StateSnapshot) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}

// String returns a field formatted as a string, "" if absent.
func (s StateSnapshot) String(field string) string {
	v, ok := s.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Clone returns a deep enough copy to be mutated while building a successor.
func (s StateSnapshot) Clone() StateSnapshot {
	fields := make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return StateSnapshot{Fields: fields, Seq: s.Seq, ReceivedAt: s.ReceivedAt}
}

// Keys returns the field names in sorted order.
func (s StateSnapshot) Keys() []string {
	return sortedKeys(s.Fields)
}

// EnvironmentalSnapshot holds the latest sensor readings. Readings are the
// unscaled integers sent by the device, with the Environmental* sentinels in
// place of "OFF", "INIT" and "FAIL". Raw keeps every field as received.
type EnvironmentalSnapshot struct {
	Readings   map[string]int `json:"readings"`
	Raw        map[string]any `json:"raw"`
	Seq        uint64         `json:"seq"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Reading returns the stored reading for a sensor field.
func (e EnvironmentalSnapshot) Reading(field string) (int, bool) {
	v, ok := e.Readings[field]
	return v, ok
}

// Keys returns the sensor field names in sorted order.
func (e EnvironmentalSnapshot) Keys() []string {
	return sortedKeys(e.Raw)
}

// FaultSnapshot holds the last fault report, grouped as the device sends it
// ("product-errors", "product-warnings", "module-errors", "module-warnings").
type FaultSnapshot struct {
	Faults     map[string]any `json:"faults"`
	Seq        uint64         `json:"seq"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Active returns "group/code" for every fault entry not reporting "OK" or "NONE".
func (f FaultSnapshot) Active() []string {
	var active []string
	for _, group := range sortedKeys(f.Faults) {
		entries, ok := f.Faults[group].(map[string]any)
		if !ok {
			continue
		}
		for _, code := range sortedKeys(entries) {
			if v := fmt.Sprint(entries[code]); v != "OK" && v != "NONE" {
				active = append(active, group+"/"+code)
			}
		}
	}
	return active
}

// PendingCommand is a command whose effect has been applied optimistically
// and not yet confirmed by the device.
type PendingCommand struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
	Field    string    `json:"field"`
	Value    any       `json:"value"`
}

// DiscoveryRecord is the last known address of a device seen over mDNS.
type DiscoveryRecord struct {
	Serial   string    `json:"serial"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
