package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roverlog_messages_received_total",
			Help: "Total number of MQTT messages delivered to the handler",
		},
	)

	MessagesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverlog_messages_discarded_total",
			Help: "Total number of messages discarded before insert, by reason",
		},
		[]string{"reason"},
	)

	RowsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roverlog_rows_inserted_total",
			Help: "Total number of readings persisted to the log table",
		},
	)

	InsertErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roverlog_insert_errors_total",
			Help: "Total number of failed inserts, by error kind",
		},
		[]string{"kind"},
	)

	InsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roverlog_insert_duration_seconds",
			Help:    "Duration of database inserts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPromServerOpts() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options.
// The server shuts down gracefully when the provided context is canceled.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, opts *PromServerOpts) {
	effectiveOpts := defaultPromServerOpts()
	if opts != nil {
		if opts.Addr != "" {
			effectiveOpts.Addr = opts.Addr
		}
		if opts.Path != "" {
			effectiveOpts.Path = opts.Path
		}
		if opts.ShutdownTimeout != 0 {
			effectiveOpts.ShutdownTimeout = opts.ShutdownTimeout
		}
		if opts.ReadHeaderTimeout != 0 {
			effectiveOpts.ReadHeaderTimeout = opts.ReadHeaderTimeout
		}
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
