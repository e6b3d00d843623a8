package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	metricsAddr     string
	metricsInterval time.Duration
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose deserializer metrics over HTTP",
	Long: `Serve prometheus metrics for the deserializer and its register traffic on /metrics.
The link status is sampled periodically so lock changes show up without other clients.

Examples:
  gmsl serve-metrics --listen :9101 --interval 5s`,
	RunE: runServeMetrics,
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd)

	serveMetricsCmd.Flags().StringVar(&metricsAddr, "listen", ":9101", "HTTP listen address")
	serveMetricsCmd.Flags().DurationVar(&metricsInterval, "interval", 10*time.Second,
		"status sampling interval (0 disables sampling)")
}

// newMetricsHandler opens the board with a fresh registry and returns the
// /metrics handler serving it.
func newMetricsHandler() (*board, http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	b, err := openBoard(reg)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return b, mux, nil
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	b, handler, err := newMetricsHandler()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{Addr: metricsAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	if metricsInterval > 0 {
		go func() {
			t := time.NewTicker(metricsInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					b.dev.Status()
				}
			}
		}()
	}

	fmt.Printf("Serving metrics on %s/metrics\n", metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
