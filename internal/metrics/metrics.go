// Package metrics exposes the gate's decisions to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lessucettes/chatgate/internal/policy"
)

type Collector struct {
	filterResults  *prometheus.CounterVec
	filterDuration *prometheus.HistogramVec
	feedbackSent   *prometheus.CounterVec
	commands       *prometheus.CounterVec
}

// NewCollector registers the gate metrics with reg. feedbackSessions, when
// set, backs a gauge of sessions remembered by the feedback throttle.
func NewCollector(reg prometheus.Registerer, feedbackSessions func() int) *Collector {
	c := &Collector{
		filterResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgate_filter_results_total",
				Help: "Number of filter verdicts.",
			},
			[]string{"filter", "verdict"},
		),
		filterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatgate_filter_duration_seconds",
				Help:    "Time spent in each filter.",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"filter"},
		),
		feedbackSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgate_feedback_sent_total",
				Help: "Number of block notices sent back to senders.",
			},
			[]string{"filter"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgate_commands_total",
				Help: "Number of admin commands handled.",
			},
			[]string{"command", "outcome"},
		),
	}

	reg.MustRegister(c.filterResults)
	reg.MustRegister(c.filterDuration)
	reg.MustRegister(c.feedbackSent)
	reg.MustRegister(c.commands)

	if feedbackSessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "chatgate_feedback_sessions",
				Help: "Sessions currently remembered by the feedback throttle.",
			},
			func() float64 { return float64(feedbackSessions()) },
		))
	}

	return c
}

func (c *Collector) Report(res policy.FilterResult) {
	c.filterResults.WithLabelValues(res.Filter, res.Verdict.String()).Inc()
	c.filterDuration.WithLabelValues(res.Filter).Observe(res.Duration.Seconds())
	if res.Feedback != "" {
		c.feedbackSent.WithLabelValues(res.Filter).Inc()
	}
}

func (c *Collector) ObserveCommand(command, outcome string) {
	c.commands.WithLabelValues(command, outcome).Inc()
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown failed", "error", err)
		}
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
