package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registerOnce sync.Once

	workerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hashpipe",
			Subsystem: "supervisor",
			Name:      "events_total",
			Help:      "Worker events observed by the supervisor.",
		},
		[]string{"worker", "kind"},
	)
	relayedLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hashpipe",
			Subsystem: "relay",
			Name:      "lines_total",
			Help:      "Input lines read by the relay.",
		},
		[]string{"mode"},
	)
	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hashpipe",
			Subsystem: "relay",
			Name:      "send_failures_total",
			Help:      "Outbound sends that failed.",
		},
		[]string{"mode"},
	)
	printedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hashpipe",
			Subsystem: "reader",
			Name:      "messages_total",
			Help:      "Inbound messages read from the connection.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(workerEvents, relayedLines, sendFailures, printedMessages)
	})
}

func RecordEvent(worker, kind string) {
	RegisterMetrics()
	workerEvents.WithLabelValues(worker, kind).Inc()
}

func RecordLine(mode string) {
	RegisterMetrics()
	relayedLines.WithLabelValues(mode).Inc()
}

func RecordSendFailure(mode string) {
	RegisterMetrics()
	sendFailures.WithLabelValues(mode).Inc()
}

func RecordInbound() {
	RegisterMetrics()
	printedMessages.Inc()
}

// ServeMetrics exposes the default registry on addr until ctx ends.
func ServeMetrics(ctx context.Context, addr string) error {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", addr).Msg("observability.ServeMetrics listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
