package mqttconverter

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeviceConsumer owns one MQTT connection to one device. It is single use:
// after Stop a new consumer must be created to reconnect.
type DeviceConsumer struct {
	pahoClient mqtt.Client
	newClient  ClientFactory
	logger     zerolog.Logger
	mqttCfg    *MQTTClientConfig
	creds      Credentials
	topics     []string
	outputChan chan InMessage
	lostChan   chan error
	doneChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewDeviceConsumer creates a consumer for the given topics. It does not
// connect until Connect is called.
func NewDeviceConsumer(cfg *MQTTClientConfig, creds Credentials, topics []string, newClient ClientFactory, logger zerolog.Logger) (*DeviceConsumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt client config is required")
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("mqtt username and password are required")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if newClient == nil {
		newClient = DefaultClientFactory
	}
	buffer := cfg.MessageBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &DeviceConsumer{
		newClient:  newClient,
		logger:     logger.With().Str("component", "DeviceConsumer").Str("username", creds.Username).Logger(),
		mqttCfg:    cfg,
		creds:      creds,
		topics:     topics,
		outputChan: make(chan InMessage, buffer),
		lostChan:   make(chan error, 1),
		doneChan:   make(chan struct{}),
	}, nil
}

// Messages returns the channel incoming messages are delivered on. It is
// never closed; select on Done to detect shutdown.
func (c *DeviceConsumer) Messages() <-chan InMessage {
	return c.outputChan
}

// Lost receives at most one error, when an established connection drops.
func (c *DeviceConsumer) Lost() <-chan error {
	return c.lostChan
}

// Done returns a channel that is closed when the consumer has stopped.
func (c *DeviceConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// Connect dials host, waits for the CONNACK and subscribes to every topic.
// It blocks for at most ConnectTimeout plus one OperationTimeout per topic,
// and returns early with ErrStopped if Stop is called meanwhile.
func (c *DeviceConsumer) Connect(host string) error {
	opts := c.createMqttOptions(host)
	client := c.newClient(opts)

	c.mu.Lock()
	c.pahoClient = client
	c.mu.Unlock()

	c.logger.Debug().Str("host", host).Msg("Connecting to device broker.")
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(c.mqttCfg.ConnectTimeout):
		client.Disconnect(0)
		return fmt.Errorf("%w after %s", ErrConnectTimeout, c.mqttCfg.ConnectTimeout)
	case <-c.doneChan:
		client.Disconnect(0)
		return ErrStopped
	}
	if err := token.Error(); err != nil {
		return classifyConnectError(err)
	}

	for _, topic := range c.topics {
		if err := c.wait(client.Subscribe(topic, 1, c.handleIncomingMessage())); err != nil {
			client.Disconnect(0)
			return fmt.Errorf("%w: subscribe to %s: %v", ErrConnectFailed, topic, err)
		}
		c.logger.Debug().Str("topic", topic).Msg("Subscribed to device topic.")
	}
	c.logger.Info().Str("host", host).Msg("Connected to device broker.")
	return nil
}

// Publish sends payload to topic at QoS 1 and waits for the acknowledgement.
func (c *DeviceConsumer) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	client := c.pahoClient
	c.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	if err := c.wait(client.Publish(topic, 1, false, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// IsConnected returns the connection status of the underlying Paho client.
func (c *DeviceConsumer) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pahoClient != nil && c.pahoClient.IsConnected()
}

// Stop unsubscribes and disconnects. It is safe to call more than once and
// from any goroutine.
func (c *DeviceConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneChan)
		c.mu.Lock()
		client := c.pahoClient
		c.mu.Unlock()
		if client != nil && client.IsConnected() {
			if token := client.Unsubscribe(c.topics...); token.WaitTimeout(c.mqttCfg.OperationTimeout) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Msg("Failed to unsubscribe from device topics.")
			}
			client.Disconnect(uint(c.mqttCfg.DisconnectQuiesce.Milliseconds()))
			c.logger.Info().Msg("Paho MQTT client disconnected.")
		}
	})
}

func (c *DeviceConsumer) wait(token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(c.mqttCfg.OperationTimeout):
		return fmt.Errorf("no acknowledgement within %s", c.mqttCfg.OperationTimeout)
	case <-c.doneChan:
		return ErrStopped
	}
}

// handleIncomingMessage copies each message onto the output channel.
func (c *DeviceConsumer) handleIncomingMessage() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		in := InMessage{
			Payload:   payloadCopy,
			Topic:     msg.Topic(),
			MessageID: msg.MessageID(),
			Timestamp: time.Now().UTC(),
			Duplicate: msg.Duplicate(),
		}
		select {
		case c.outputChan <- in:
		case <-c.doneChan:
			c.logger.Debug().Str("topic", msg.Topic()).Msg("Consumer is stopped, dropping MQTT message.")
		}
	}
}

func (c *DeviceConsumer) createMqttOptions(host string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + net.JoinHostPort(host, strconv.Itoa(c.mqttCfg.Port)))
	opts.SetClientID(c.mqttCfg.ClientIDPrefix + uuid.NewString())
	opts.SetUsername(c.creds.Username)
	opts.SetPassword(c.creds.Password)
	opts.SetProtocolVersion(c.mqttCfg.ProtocolVersion)
	opts.SetKeepAlive(c.mqttCfg.KeepAlive)
	opts.SetConnectTimeout(c.mqttCfg.ConnectTimeout)
	opts.SetCleanSession(true)
	// Reconnection is the owner's decision, never the transport's.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn().Err(err).Msg("Paho client lost MQTT connection.")
		select {
		case c.lostChan <- err:
		default:
		}
	})
	return opts
}

func classifyConnectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		return fmt.Errorf("%w: %v", ErrRefusedCredentials, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectFailed, err)
}
