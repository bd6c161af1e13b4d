package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ilievs/plugpanel/core"
)

// Collector exports plug telemetry and panel activity to Prometheus.
type Collector struct {
	voltage  *prometheus.GaugeVec
	current  *prometheus.GaugeVec
	power    *prometheus.GaugeVec
	relay    *prometheus.GaugeVec
	timer    *prometheus.GaugeVec
	rejected *prometheus.CounterVec
	commands *prometheus.CounterVec
	clients  prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	plug := []string{"plug"}
	c := &Collector{
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plug_voltage_volts",
			Help: "Last voltage reported by the plug",
		}, plug),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plug_current_amperes",
			Help: "Last current reported by the plug",
		}, plug),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plug_power_watts",
			Help: "Voltage times current of the last reading",
		}, plug),
		relay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plug_relay_on",
			Help: "1 when the last reading had the relay on",
		}, plug),
		timer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plug_timer_seconds",
			Help: "Seconds left on the plug countdown",
		}, plug),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plug_telemetry_rejected_total",
			Help: "Telemetry messages dropped because they did not decode",
		}, plug),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plug_commands_published_total",
			Help: "Commands published by panel sessions",
		}, []string{"plug", "cmd"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_connected_clients",
			Help: "Clients with a session on the embedded broker",
		}),
	}

	reg.MustRegister(c.voltage, c.current, c.power, c.relay, c.timer, c.rejected, c.commands, c.clients)
	return c
}

func (c *Collector) ReadingAccepted(id core.PlugId, r core.Reading) {
	plug := id.String()
	c.voltage.WithLabelValues(plug).Set(r.Voltage)
	c.current.WithLabelValues(plug).Set(r.Current)
	c.power.WithLabelValues(plug).Set(r.Power())
	relay := 0.0
	if r.Relay.On() {
		relay = 1
	}
	c.relay.WithLabelValues(plug).Set(relay)
	c.timer.WithLabelValues(plug).Set(float64(max(r.Timer, 0)))
}

func (c *Collector) ReadingRejected(id core.PlugId) {
	c.rejected.WithLabelValues(id.String()).Inc()
}

func (c *Collector) CommandPublished(id core.PlugId, kind core.CommandKind) {
	c.commands.WithLabelValues(id.String(), string(kind)).Inc()
}

func (c *Collector) ClientConnected() {
	c.clients.Inc()
}

func (c *Collector) ClientDisconnected() {
	c.clients.Dec()
}
