package cloud

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dysonlocal/pkg/types"
)

// ErrCredential is returned when a local credential cannot be decrypted.
var ErrCredential = errors.New("cannot decrypt local credential")

// DeviceInfo is one entry of the account's device manifest.
type DeviceInfo struct {
	Serial              string `json:"Serial"`
	Name                string `json:"Name"`
	Version             string `json:"Version"`
	LocalCredentials    string `json:"LocalCredentials"`
	AutoUpdate          bool   `json:"AutoUpdate"`
	NewVersionAvailable bool   `json:"NewVersionAvailable"`
	ProductType         string `json:"ProductType"`
	Variant             string `json:"Variant,omitempty"`
	// MQTTRootTopicLevel is the topic prefix the device publishes under when
	// it differs from its product type.
	MQTTRootTopicLevel string `json:"MqttRootTopicLevel,omitempty"`
}

// DeviceType returns the type used for MQTT topics: the advertised root
// topic level when present, otherwise the product type.
func (d DeviceInfo) DeviceType() string {
	if d.MQTTRootTopicLevel != "" {
		return d.MQTTRootTopicLevel
	}
	return d.ProductType
}

// Identity decrypts the local credential into a session identity.
func (d DeviceInfo) Identity() (types.Identity, error) {
	credential, err := DecryptLocalCredential(d.LocalCredentials)
	if err != nil {
		return types.Identity{}, fmt.Errorf("device %s: %w", d.Serial, err)
	}
	return types.Identity{Serial: d.Serial, Credential: credential, DeviceType: d.DeviceType()}, nil
}

// localCredentialKey is the fixed AES-256 key the app uses: bytes 1..32.
var localCredentialKey = func() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}()

// DecryptLocalCredential decodes a manifest LocalCredentials value
// (base64 AES-256-CBC with a zero IV) and returns its apPasswordHash.
func DecryptLocalCredential(encrypted string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrCredential, len(data))
	}
	block, err := aes.NewCipher(localCredentialKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(plain, data)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize {
		return "", fmt.Errorf("%w: bad padding", ErrCredential)
	}
	plain = plain[:len(plain)-pad]

	var payload struct {
		Serial         string `json:"serial"`
		APPasswordHash string `json:"apPasswordHash"`
	}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	if payload.APPasswordHash == "" {
		return "", fmt.Errorf("%w: no apPasswordHash", ErrCredential)
	}
	return payload.APPasswordHash, nil
}

// EncryptLocalCredential is the inverse of DecryptLocalCredential. It builds
// manifest fixtures for offline use.
func EncryptLocalCredential(serial, hash string) (string, error) {
	plain, err := json.Marshal(map[string]string{"serial": serial, "apPasswordHash": hash})
	if err != nil {
		return "", err
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	for i := 0; i < pad; i++ {
		plain = append(plain, byte(pad))
	}
	block, err := aes.NewCipher(localCredentialKey)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}
