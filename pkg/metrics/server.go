package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeHandler serves g in the Prometheus text or OpenMetrics format.
// A collector that fails is logged and skipped rather than failing the
// whole scrape.
func ScrapeHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:          scrapeLog{slog.Default().With("component", "metrics")},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
		Timeout:           5 * time.Second,
	})
}

type scrapeLog struct{ l *slog.Logger }

func (s scrapeLog) Println(v ...any) { s.l.Warn("scrape error", "detail", fmt.Sprint(v...)) }

// StartServer binds port and serves /metrics from the default registry in
// the background. It fails at once when the port is taken; the returned
// function shuts the server down.
func StartServer(port int) (shutdown func(context.Context) error, err error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	return Serve(ln, prometheus.DefaultGatherer), nil
}

// Serve serves g on ln until the returned function is called.
func Serve(ln net.Listener, g prometheus.Gatherer) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", ScrapeHandler(g))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
