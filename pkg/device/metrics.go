package device

import (
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every session of a host. A nil *Metrics records nothing.
type Metrics struct {
	messages     *prometheus.CounterVec
	decodeErrors prometheus.Counter
	commands     *prometheus.CounterVec
	dropped      prometheus.Counter
	connState    *prometheus.GaugeVec
}

// NewMetrics creates the session metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyson_messages_received_total",
			Help: "Device messages received, by kind.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dyson_decode_errors_total",
			Help: "Device messages dropped because they could not be decoded.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyson_commands_published_total",
			Help: "Commands published to devices, by result.",
		}, []string{"result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dyson_events_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full.",
		}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dyson_connection_state",
			Help: "Connection state per device: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		}, []string{"serial"}),
	}
	for _, c := range []prometheus.Collector{m.messages, m.decodeErrors, m.commands, m.dropped, m.connState} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) messageReceived(kind types.MessageKind) {
	if m != nil {
		m.messages.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) commandPublished(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) setConnectionState(serial string, state types.ConnectionState) {
	if m != nil {
		m.connState.WithLabelValues(serial).Set(float64(state))
	}
}
