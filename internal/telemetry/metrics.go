package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds the server's collectors; it is served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	toolCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schoolpulse",
		Name:      "tool_calls_total",
		Help:      "Tool calls by tool and outcome (ok, tool_error, error).",
	}, []string{"tool", "outcome"})

	toolDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schoolpulse",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"tool"})

	cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schoolpulse",
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups by result (hit, miss).",
	}, []string{"result"})

	cacheEvictions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schoolpulse",
		Name:      "cache_evictions_total",
		Help:      "Result cache entries evicted for capacity, by tool.",
	}, []string{"tool"})

	storeQueryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schoolpulse",
		Name:      "store_query_duration_seconds",
		Help:      "Fact store query latency by backend and operation.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"backend", "op"})

	importedRows = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "schoolpulse",
		Name:      "imported_rows_total",
		Help:      "Assessment rows loaded from workbooks.",
	})
)

// ObserveQuery records a store query that began at started. Use with defer.
func ObserveQuery(backend, op string, started time.Time) {
	storeQueryDuration.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}

// ObserveCache records a result cache lookup.
func ObserveCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveEviction counts a cached result of tool dropped for capacity.
func ObserveEviction(tool string) {
	cacheEvictions.WithLabelValues(tool).Inc()
}

// ObserveImport counts imported rows.
func ObserveImport(rows int) {
	importedRows.Add(float64(rows))
}

// ToolMetrics is a server.ToolHandlerMiddleware recording call counts and latency.
func ToolMetrics(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		res, err := next(ctx, req)
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res != nil && res.IsError:
			outcome = "tool_error"
		}
		toolCalls.WithLabelValues(req.Params.Name, outcome).Inc()
		toolDuration.WithLabelValues(req.Params.Name).Observe(time.Since(started).Seconds())
		return res, err
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables it.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
