// Package metrics 提供引擎的 Prometheus 指标集合。
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 引擎事件计数，按事件类型与出口（applied/rejected/violated）分
	EventsTotal *prometheus.CounterVec
	// 引擎单事件处理耗时
	EventDuration prometheus.Histogram
	// 产生的效果计数，按效果类型分
	EffectsTotal *prometheus.CounterVec
	// 强平级联平仓数
	LiquidationsTotal prometheus.Counter
}

// New 创建并注册指标实例
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "events_total",
			Help:      "Engine events by type and outcome",
		}, []string{"event_type", "outcome"}),
		EventDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "event_duration_seconds",
			Help:      "Engine event processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		EffectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "effects_total",
			Help:      "Effects produced by type",
		}, []string{"effect_type"}),
		LiquidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "liquidations_total",
			Help:      "Positions closed by stop out cascades",
		}),
	}
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsTotal,
		m.EventDuration,
		m.EffectsTotal,
		m.LiquidationsTotal,
	)
	return m
}

// RecordEvent 上报一次引擎事件处理。
func (m *Metrics) RecordEvent(eventType, outcome string, duration time.Duration) {
	m.EventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.EventDuration.Observe(duration.Seconds())
}

// RecordEffect 上报一条引擎效果。
func (m *Metrics) RecordEffect(effectType string) {
	m.EffectsTotal.WithLabelValues(effectType).Inc()
}

// RecordLiquidation 上报一次强平平仓。
func (m *Metrics) RecordLiquidation() {
	m.LiquidationsTotal.Inc()
}

// Handler 返回 /metrics 的 gin 处理器。
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
