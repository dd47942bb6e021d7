package enginebridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts bridge activity on a registry owned by the bridge, so
// embedding the host in tests or tools never collides with the global
// default registry.
type Metrics struct {
	registry *prometheus.Registry

	EngineStarts      prometheus.Counter
	EngineExits       prometheus.Counter
	ConsoleLines      *prometheus.CounterVec
	CommandsSent      prometheus.Counter
	CommandsQueued    prometheus.Counter
	SendFailures      prometheus.Counter
	DiscoveryAttempts prometheus.Counter
	DiscoveryFailures prometheus.Counter
	Paused            prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.EngineStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_engine_starts_total",
		Help: "Engine processes launched.",
	})
	m.EngineExits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_engine_exits_total",
		Help: "Engine process exits, expected or not.",
	})
	m.ConsoleLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_console_lines_total",
		Help: "Captured engine output lines.",
	}, []string{"stream"})
	m.CommandsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_commands_sent_total",
		Help: "Commands delivered over the message channel.",
	})
	m.CommandsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_commands_queued_total",
		Help: "Commands buffered while the channel was not ready.",
	})
	m.SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_send_failures_total",
		Help: "Channel send attempts that reported failure.",
	})
	m.DiscoveryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_discovery_attempts_total",
		Help: "Surface discovery polling ticks.",
	})
	m.DiscoveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prism_discovery_failures_total",
		Help: "Discovery rounds that exhausted the attempt budget.",
	})
	m.Paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prism_engine_paused",
		Help: "1 while the engine process is suspended.",
	})

	m.registry.MustRegister(
		m.EngineStarts,
		m.EngineExits,
		m.ConsoleLines,
		m.CommandsSent,
		m.CommandsQueued,
		m.SendFailures,
		m.DiscoveryAttempts,
		m.DiscoveryFailures,
		m.Paused,
	)
	return m
}

// Registry exposes the bridge-owned registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
