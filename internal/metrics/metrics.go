// Package metrics collects and exposes Prometheus metrics for Osiris.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Osiris-specific Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// Signal pipeline metrics.
	SignalsGenerated *prometheus.CounterVec
	SignalsDelivered *prometheus.CounterVec
	SignalsBlocked   prometheus.Counter
	SignalsCoalesced prometheus.Counter
	SignalsDiscarded prometheus.Counter
	QueueOverflows   prometheus.Counter
	DeliveryFailures prometheus.Counter
	DeliveryDuration prometheus.Histogram

	// Process lifecycle metrics.
	ProcessExitTotal  *prometheus.CounterVec
	ProcessKillTotal  prometheus.Counter
	ProcessReapTotal  prometheus.Counter
	OrphansReparented prometheus.Counter
	WaitCallsTotal    *prometheus.CounterVec

	// Kernel-level metrics.
	ProcessesByState *prometheus.GaugeVec
	ZombieCount      prometheus.Gauge
	KernelUptime     prometheus.Gauge
	BuildInfo        *prometheus.GaugeVec
}

// New creates and registers all Osiris metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	// Register default Go runtime metrics.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		SignalsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osiris_signals_generated_total",
				Help: "Total number of signals generated, by signal name.",
			},
			[]string{"signal"},
		),

		SignalsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osiris_signals_delivered_total",
				Help: "Total number of signals delivered to targets, by signal name.",
			},
			[]string{"signal"},
		),

		SignalsBlocked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_signals_blocked_total",
				Help: "Total number of signals left pending because the target blocked them.",
			},
		),

		SignalsCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_signals_coalesced_total",
				Help: "Total number of standard signals merged into an existing pending instance.",
			},
		),

		SignalsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_signals_discarded_total",
				Help: "Total number of signals discarded before delivery.",
			},
		),

		QueueOverflows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_signal_queue_overflows_total",
				Help: "Total number of signals dropped because a pending queue was full.",
			},
		),

		DeliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_signal_delivery_failures_total",
				Help: "Total number of delivery attempts that failed.",
			},
		),

		DeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "osiris_signal_delivery_duration_seconds",
				Help:    "Time from signal generation to delivery.",
				Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
			},
		),

		ProcessExitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osiris_process_exit_total",
				Help: "Total number of process exits, by cause.",
			},
			[]string{"cause"},
		),

		ProcessKillTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_process_kill_total",
				Help: "Total number of processes terminated by a fatal signal.",
			},
		),

		ProcessReapTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_process_reap_total",
				Help: "Total number of zombies reaped by wait calls or sweeps.",
			},
		),

		OrphansReparented: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "osiris_orphans_reparented_total",
				Help: "Total number of children reparented to init.",
			},
		),

		WaitCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osiris_wait_calls_total",
				Help: "Total number of wait calls, by outcome.",
			},
			[]string{"outcome"},
		),

		ProcessesByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "osiris_processes",
				Help: "Number of processes per state.",
			},
			[]string{"state"},
		),

		ZombieCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "osiris_zombies",
				Help: "Number of zombie processes awaiting reaping.",
			},
		),

		KernelUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "osiris_kernel_uptime_seconds",
				Help: "Uptime of the Osiris kernel core in seconds.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "osiris_info",
				Help: "Build information about Osiris.",
			},
			[]string{"version", "go_version", "fips"},
		),
	}

	reg.MustRegister(
		c.SignalsGenerated,
		c.SignalsDelivered,
		c.SignalsBlocked,
		c.SignalsCoalesced,
		c.SignalsDiscarded,
		c.QueueOverflows,
		c.DeliveryFailures,
		c.DeliveryDuration,
		c.ProcessExitTotal,
		c.ProcessKillTotal,
		c.ProcessReapTotal,
		c.OrphansReparented,
		c.WaitCallsTotal,
		c.ProcessesByState,
		c.ZombieCount,
		c.KernelUptime,
		c.BuildInfo,
	)

	return c
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetBuildInfo sets the constant build info gauge.
func (c *Collector) SetBuildInfo(version, goVersion, fips string) {
	c.BuildInfo.WithLabelValues(version, goVersion, fips).Set(1)
}

// IncSignalGenerated increments the generated counter for a signal.
func (c *Collector) IncSignalGenerated(signal string) {
	c.SignalsGenerated.WithLabelValues(signal).Inc()
}

// IncSignalDelivered increments the delivered counter for a signal.
func (c *Collector) IncSignalDelivered(signal string) {
	c.SignalsDelivered.WithLabelValues(signal).Inc()
}

// ObserveDelivery records the generation-to-delivery latency in seconds.
func (c *Collector) ObserveDelivery(seconds float64) {
	c.DeliveryDuration.Observe(seconds)
}

// IncProcessExit increments the exit counter for a termination cause.
// Cause is one of "exit", "signal", "forced".
func (c *Collector) IncProcessExit(cause string) {
	c.ProcessExitTotal.WithLabelValues(cause).Inc()
}

// IncWaitCall increments the wait counter for an outcome.
// Outcome is one of "reaped", "nohang", "nochild", "blocked".
func (c *Collector) IncWaitCall(outcome string) {
	c.WaitCallsTotal.WithLabelValues(outcome).Inc()
}

// SetProcessCount sets the count of processes in a given state.
func (c *Collector) SetProcessCount(state string, count int) {
	c.ProcessesByState.WithLabelValues(state).Set(float64(count))
}

// SetZombieCount sets the zombie gauge.
func (c *Collector) SetZombieCount(count int) {
	c.ZombieCount.Set(float64(count))
}

// SetKernelUptime sets the kernel uptime gauge.
func (c *Collector) SetKernelUptime(seconds float64) {
	c.KernelUptime.Set(seconds)
}
