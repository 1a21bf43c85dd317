package device

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
)

// ErrProtocol is the root of every failure talking to a device.
var ErrProtocol = errors.New("dyson protocol error")

// Transport and authentication failures. Each wraps ErrProtocol; the
// connection failures also wrap ErrTransport.
var (
	ErrTransport         = fmt.Errorf("%w: transport failure", ErrProtocol)
	ErrConnectionRefused = fmt.Errorf("%w: connection refused", ErrTransport)
	ErrConnectTimeout    = fmt.Errorf("%w: connection timed out", ErrTransport)
	ErrNotConnected      = fmt.Errorf("%w: not connected", ErrTransport)
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrProtocol)
)

// Errors returned by accessors and commands.
var (
	ErrNotSupported        = errors.New("not supported by this device")
	ErrNoState             = errors.New("no state received from device")
	ErrNoEnvironmentalData = errors.New("no environmental data received from device")
	ErrInvalidArgument     = errors.New("invalid argument")
)

func classifyConnectError(err error) error {
	switch {
	case errors.Is(err, mqttconverter.ErrRefusedCredentials):
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	case errors.Is(err, mqttconverter.ErrConnectTimeout):
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	case errors.Is(err, mqttconverter.ErrStopped):
		return fmt.Errorf("%w: connect aborted: %w", ErrNotConnected, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	}
}

func classifyPublishError(err error) error {
	if errors.Is(err, mqttconverter.ErrNotConnected) || errors.Is(err, mqttconverter.ErrStopped) {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return fmt.Errorf("%w: publish failed: %w", ErrTransport, err)
}
