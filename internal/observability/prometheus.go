// Package observability exports client call metrics to Prometheus.
package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// Metrics holds the collectors fed by the client hooks.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "textsynth",
			Name:      "requests_total",
			Help:      "Calls made to the TextSynth API by operation, method and outcome.",
		}, []string{"operation", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "textsynth",
			Name:      "request_duration_seconds",
			Help:      "Call latency; for streams, time until the body was closed.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation", "stream"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "textsynth",
			Name:      "requests_in_flight",
			Help:      "Calls started but not finished.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns client hooks that record every call.
func (m *Metrics) Hooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestStart: func(ctx context.Context, _ llmclient.RequestInfo) context.Context {
			m.inFlight.Inc()
			return ctx
		},
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			m.inFlight.Dec()
			m.requests.WithLabelValues(info.Operation, info.Method, statusLabel(info)).Inc()
			m.duration.WithLabelValues(info.Operation, strconv.FormatBool(info.Stream)).Observe(info.Duration.Seconds())
		},
	}
}

// statusLabel is the HTTP status when the API answered, otherwise the error type.
func statusLabel(info llmclient.ResponseInfo) string {
	// A stream can fail after a 200; the error type is the better outcome.
	if info.ErrorType != "" && info.ErrorType != core.ErrorTypeHTTPStatus {
		return string(info.ErrorType)
	}
	if info.StatusCode != 0 {
		return strconv.Itoa(info.StatusCode)
	}
	return "unknown"
}
