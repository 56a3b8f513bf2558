package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mission_control"

type moduleMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentChatTotal   *prometheus.CounterVec
	modelCallTotal   *prometheus.CounterVec
	providerCooldown *prometheus.GaugeVec

	schedulerTicks    prometheus.Counter
	schedulerSkips    *prometheus.CounterVec
	schedulerInFlight prometheus.Gauge

	securityEvents      *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	memoryEntries       *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "agent_runs_total",
					Help:      "Agent runs by agent and outcome.",
				},
				[]string{"agent", "outcome"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "agent_run_duration_seconds",
					Help:      "Agent run duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			agentChatTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "agent_chats_total",
					Help:      "Chat exchanges by agent and status.",
				},
				[]string{"agent", "status"},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "model_calls_total",
					Help:      "Model provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "provider_cooldown_active",
					Help:      "1 while a provider profile is cooling down.",
				},
				[]string{"provider"},
			),
			schedulerTicks: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "scheduler_ticks_total",
					Help:      "Scheduler ticks fired.",
				},
			),
			schedulerSkips: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "scheduler_skips_total",
					Help:      "Wakes skipped because the agent was still running.",
				},
				[]string{"agent"},
			),
			schedulerInFlight: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "scheduler_in_flight",
					Help:      "Agent runs currently in flight.",
				},
			),
			securityEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "security_events_total",
					Help:      "Guardrail security events by label.",
				},
				[]string{"label"},
			),
			rateLimitRejections: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rate_limit_rejections_total",
					Help:      "Calls rejected by the rate limiter, by scope.",
				},
				[]string{"scope"},
			),
			memoryEntries: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "memory_entries",
					Help:      "Conversation entries held in session memory.",
				},
				[]string{"agent"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentChatTotal,
			m.modelCallTotal,
			m.providerCooldown,
			m.schedulerTicks,
			m.schedulerSkips,
			m.schedulerInFlight,
			m.securityEvents,
			m.rateLimitRejections,
			m.memoryEntries,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Handler serves the default registry
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordAgentRun(agent, outcome string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(agent, outcome).Inc()
	m.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordChat(agent string, success bool) {
	getMetrics().agentChatTotal.WithLabelValues(agent, status(success)).Inc()
}

func RecordModelCall(provider string, success bool) {
	getMetrics().modelCallTotal.WithLabelValues(provider, status(success)).Inc()
}

func SetProviderCooldown(provider string, active bool) {
	value := 0.0
	if active {
		value = 1
	}
	getMetrics().providerCooldown.WithLabelValues(provider).Set(value)
}

func RecordSchedulerTick() {
	getMetrics().schedulerTicks.Inc()
}

func RecordSchedulerSkip(agent string) {
	getMetrics().schedulerSkips.WithLabelValues(agent).Inc()
}

func SetSchedulerInFlight(count int) {
	getMetrics().schedulerInFlight.Set(float64(count))
}

func RecordSecurityEvent(label string) {
	getMetrics().securityEvents.WithLabelValues(label).Inc()
}

func RecordRateLimitRejection(scope string) {
	getMetrics().rateLimitRejections.WithLabelValues(scope).Inc()
}

func SetMemoryEntries(agent string, count int) {
	getMetrics().memoryEntries.WithLabelValues(agent).Set(float64(count))
}
