package types

import (
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Identity is everything needed to authenticate with a device. It is a value;
// sessions copy it and never change it.
type Identity struct {
	Serial     string `json:"serial" yaml:"serial"`
	Credential string `json:"credential" yaml:"credential"`
	DeviceType string `json:"device_type" yaml:"device_type"`
}

// Validate checks that every field is set.
func (i Identity) Validate() error {
	var missing []string
	if i.Serial == "" {
		missing = append(missing, "serial")
	}
	if i.Credential == "" {
		missing = append(missing, "credential")
	}
	if i.DeviceType == "" {
		missing = append(missing, "device_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("device identity is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ErrUnrecognisedSSID is returned when a Wi-Fi name matches no known pattern.
var ErrUnrecognisedSSID = errors.New("ssid does not belong to a known device")

var (
	fanSSID = regexp.MustCompile(`^DYSON-([0-9A-Z]{3}-[A-Z]{2}-[0-9A-Z]{8})-([0-9]{3}[A-Z]?)$`)
	eyeSSID = regexp.MustCompile(`^360EYE-([0-9A-Z]{3}-[A-Z]{2}-[0-9A-Z]{8})$`)
)

// IdentityFromWiFi builds an identity from the details printed on the device
// sticker. The MQTT credential is the base64 of the SHA-512 of the Wi-Fi password.
func IdentityFromWiFi(ssid, password string) (Identity, error) {
	var id Identity
	if m := fanSSID.FindStringSubmatch(ssid); m != nil {
		id.Serial = m[1]
		id.DeviceType = m[2]
	} else if m := eyeSSID.FindStringSubmatch(ssid); m != nil {
		id.Serial = m[1]
		id.DeviceType = DeviceType360Eye
	} else {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnrecognisedSSID, ssid)
	}
	sum := sha512.Sum512([]byte(password))
	id.Credential = base64.StdEncoding.EncodeToString(sum[:])
	return id, nil
}
