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

	"github.com/FranksOps/kwscout/internal/serp"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_provider_calls_total",
			Help: "Total number of billable provider calls issued",
		},
		[]string{"source", "operator", "outcome"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kwscout_provider_call_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	KeywordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_keywords_total",
			Help: "Keywords processed, by report status and tier",
		},
		[]string{"status", "tier"},
	)

	LedgerCallsUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kwscout_ledger_calls_used",
			Help: "Calls committed to the cost ledger in the current run",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_cache_lookups_total",
			Help: "Metrics cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	SuggestionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kwscout_suggestions_total",
			Help: "Keyword suggestions kept after merging related searches",
		},
	)
)

// RecordCall counts one provider attempt. The outcome label is "ok" or the
// error kind.
func RecordCall(source serp.Source, op serp.Operator, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = serp.Kind(err)
	}
	ProviderCallsTotal.WithLabelValues(string(source), string(op), outcome).Inc()
	ProviderCallDuration.WithLabelValues(string(source)).Observe(d.Seconds())
}

// RecordKeyword counts a finished report entry.
func RecordKeyword(status, tier string) {
	KeywordsTotal.WithLabelValues(status, tier).Inc()
}

// RecordCacheLookup counts a cache lookup.
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
