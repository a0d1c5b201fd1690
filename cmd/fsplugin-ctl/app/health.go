package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srediag/fsplugin/api"
	"github.com/srediag/fsplugin/pkg/health"
	"github.com/srediag/fsplugin/plugin"
)

const shutdownTimeout = 5 * time.Second

func (a *app) healthCmd() *cobra.Command {
	var (
		addr string
		poll time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Keep a client connected and serve its health and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			cfg := a.clientConfig()
			cfg.Registerer = reg
			cfg.WatchSetInterval = poll

			return a.withClient(cfg, func(c *plugin.FinderSyncClient) error {
				srv := &http.Server{
					Addr:              addr,
					Handler:           newHealthMux(c, reg),
					ReadHeaderTimeout: 5 * time.Second,
				}
				done := make(chan error, 1)
				go func() { done <- srv.ListenAndServe() }()
				a.log.Info("health endpoint", zap.String("addr", addr))

				select {
				case <-ctxOrBackground(cmd.Context()).Done():
					ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return srv.Shutdown(ctx)
				case err := <-done:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "HTTP listen address")
	cmd.Flags().DurationVar(&poll, "poll", 30*time.Second, "Watch set refresh interval, 0 disables polling")
	return cmd
}

// newHealthMux serves /live and /ready for h and /metrics from reg.
func newHealthMux(h api.Health, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	checks := health.NewHandler(h, reg)
	mux.Handle("/live", checks)
	mux.Handle("/ready", checks)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
