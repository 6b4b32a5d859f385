// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

const namespace = "tubearticles"

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	OutcomesTotal   *prometheus.CounterVec
	PollsTotal      *prometheus.CounterVec
	PollDuration    *prometheus.HistogramVec
	RunningMonitors prometheus.Gauge
}

var _ ports.PipelineMetrics = (*Metrics)(nil)

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "video_outcomes_total",
				Help:      "Processed videos by project and outcome",
			},
			[]string{"project", "outcome"},
		),
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_polls_total",
				Help:      "Channel polls by result",
			},
			[]string{"result"},
		),
		PollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_poll_duration_seconds",
				Help:      "Duration of a full channel poll",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"result"},
		),
		RunningMonitors: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_monitors",
				Help:      "Channel monitors currently running",
			},
		),
	}
}

// ObserveOutcome counts one finished video.
func (m *Metrics) ObserveOutcome(projectID string, kind domain.OutcomeKind) {
	m.OutcomesTotal.WithLabelValues(projectID, string(kind)).Inc()
}

// ObservePoll records the duration and result of one poll. Channel refs are
// not used as labels to keep cardinality bounded.
func (m *Metrics) ObservePoll(_ string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = domain.Classify(err).String()
	}
	m.PollsTotal.WithLabelValues(result).Inc()
	m.PollDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetRunning publishes the current monitor count.
func (m *Metrics) SetRunning(n int) {
	m.RunningMonitors.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
