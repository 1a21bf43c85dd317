// Package mqtttest provides an in-process stand-in for a device's MQTT broker.
package mqtttest

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
)

// Token is a completed (or never completing) paho token.
type Token struct {
	err  error
	done chan struct{}
}

// NewToken returns a token that has already completed with err.
func NewToken(err error) *Token {
	done := make(chan struct{})
	close(done)
	return &Token{err: err, done: done}
}

// PendingToken returns a token that never completes.
func PendingToken() *Token {
	return &Token{done: make(chan struct{})}
}

func (t *Token) Wait() bool {
	<-t.done
	return true
}

func (t *Token) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *Token) Done() <-chan struct{} { return t.done }
func (t *Token) Error() error          { return t.err }

// Message is a paho message delivered by the fake.
type Message struct {
	TopicName string
	Body      []byte
	ID        uint16
}

func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) MessageID() uint16 { return m.ID }
func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Ack()              {}

// Published is a message sent by the client under test.
type Published struct {
	Topic   string
	Payload []byte
}

// Msg returns the "msg" field of the published payload.
func (p Published) Msg() string {
	var body struct {
		Msg string `json:"msg"`
	}
	_ = json.Unmarshal(p.Payload, &body)
	return body.Msg
}

// Device is a fake device broker. Install its Factory as the session's client
// factory; every client it builds talks to the same device.
type Device struct {
	mu sync.Mutex

	// ConnectErr is returned by every Connect when set.
	ConnectErr error
	// ConnectHangs makes Connect return a token that never completes.
	ConnectHangs bool
	// PublishErr is returned by every Publish when set.
	PublishErr error
	// Responses maps a request "msg" to the payload published back on the
	// status topic, e.g. REQUEST-CURRENT-STATE to a CURRENT-STATE document.
	Responses map[string]string
	// Silent suppresses automatic responses.
	Silent bool

	connected   bool
	handlers    map[string]mqtt.MessageHandler
	published   []Published
	options     []*mqtt.ClientOptions
	connects    int
	disconnects int
	nextID      uint16
}

// NewDevice returns a fake that answers requests with the given responses.
func NewDevice(responses map[string]string) *Device {
	if responses == nil {
		responses = map[string]string{}
	}
	return &Device{Responses: responses, handlers: map[string]mqtt.MessageHandler{}}
}

// Factory is an mqttconverter.ClientFactory bound to this device.
func (d *Device) Factory() mqttconverter.ClientFactory {
	return func(opts *mqtt.ClientOptions) mqtt.Client {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.options = append(d.options, opts)
		return &client{device: d, opts: opts}
	}
}

// Deliver publishes payload on topic to whichever handler subscribed to it.
// It returns false if nothing is subscribed.
func (d *Device) Deliver(topic, payload string) bool {
	d.mu.Lock()
	handler, ok := d.handlers[topic]
	d.nextID++
	id := d.nextID
	d.mu.Unlock()
	if !ok || handler == nil {
		return false
	}
	handler(nil, &Message{TopicName: topic, Body: []byte(payload), ID: id})
	return true
}

// DeliverStatus publishes payload on the first subscribed status/current topic.
func (d *Device) DeliverStatus(payload string) bool {
	return d.Deliver(d.topicWithSuffix("/status/current"), payload)
}

// DropConnection simulates the link going away.
func (d *Device) DropConnection(err error) {
	d.mu.Lock()
	d.connected = false
	var lost mqtt.ConnectionLostHandler
	if len(d.options) > 0 {
		lost = d.options[len(d.options)-1].OnConnectionLost
	}
	d.mu.Unlock()
	if lost != nil {
		lost(nil, err)
	}
}

// Published returns a copy of everything published so far.
func (d *Device) Published() []Published {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Published, len(d.published))
	copy(out, d.published)
	return out
}

// PublishedMsgs returns the "msg" value of every published payload.
func (d *Device) PublishedMsgs() []string {
	var msgs []string
	for _, p := range d.Published() {
		msgs = append(msgs, p.Msg())
	}
	return msgs
}

// Subscriptions returns the subscribed topics.
func (d *Device) Subscriptions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	topics := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		topics = append(topics, t)
	}
	return topics
}

// LastOptions returns the options of the most recently built client.
func (d *Device) LastOptions() *mqtt.ClientOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.options) == 0 {
		return nil
	}
	return d.options[len(d.options)-1]
}

// Connects returns the number of successful connections.
func (d *Device) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Disconnects returns the number of Disconnect calls.
func (d *Device) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// IsConnected reports whether a client is currently connected.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Device) topicWithSuffix(suffix string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.handlers {
		if strings.HasSuffix(t, suffix) {
			return t
		}
	}
	return ""
}

// client is the mqtt.Client handed to the code under test.
type client struct {
	device *Device
	opts   *mqtt.ClientOptions
}

func (c *client) IsConnected() bool      { return c.device.IsConnected() }
func (c *client) IsConnectionOpen() bool { return c.device.IsConnected() }

func (c *client) Connect() mqtt.Token {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectHangs {
		return PendingToken()
	}
	if d.ConnectErr != nil {
		return NewToken(d.ConnectErr)
	}
	d.connected = true
	d.connects++
	return NewToken(nil)
}

func (c *client) Disconnect(_ uint) {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.disconnects++
	d.handlers = map[string]mqtt.MessageHandler{}
}

func (c *client) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	d := c.device
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}

	d.mu.Lock()
	if d.PublishErr != nil {
		err := d.PublishErr
		d.mu.Unlock()
		return NewToken(err)
	}
	d.published = append(d.published, Published{Topic: topic, Payload: body})
	response, respond := d.Responses[Published{Payload: body}.Msg()]
	silent := d.Silent
	d.mu.Unlock()

	if respond && !silent {
		status := strings.TrimSuffix(topic, "/command") + "/status/current"
		go d.Deliver(status, response)
	}
	return NewToken(nil)
}

func (c *client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = callback
	return NewToken(nil)
}

func (c *client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		c.Subscribe(topic, 1, callback)
	}
	return NewToken(nil)
}

func (c *client) Unsubscribe(topics ...string) mqtt.Token {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range topics {
		delete(d.handlers, t)
	}
	return NewToken(nil)
}

func (c *client) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (c *client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(c.opts)
}
