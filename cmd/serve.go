package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/api"
	"github.com/sells-group/kpi-cli/internal/config"
	"github.com/sells-group/kpi-cli/internal/loader"
	"github.com/sells-group/kpi-cli/internal/monitoring"
	"github.com/sells-group/kpi-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the KPI upload and report API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store.Table)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		handler, checker := buildServer(st, cfg)
		if checker != nil {
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("table", cfg.Store.Table),
			zap.Bool("monitoring", checker != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the API over st with a private metrics registry. The
// returned checker is nil unless monitoring is enabled.
func buildServer(st store.Store, c *config.Config) (http.Handler, *monitoring.Checker) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	collector := monitoring.NewCollector(st)

	ld := &loader.Loader{Store: st, Table: c.Store.Table, Metrics: metrics}
	handler := api.NewRouter(ld, st, c.Store.Table, api.Options{
		MaxUploadBytes:   int64(c.Server.MaxUploadMB) << 20,
		UploadsPerMinute: c.Server.UploadsPerMinute,
		AllowedOrigins:   c.Server.AllowedOrigins,
		Gatherer:         reg,
		Collector:        collector,
	})

	var checker *monitoring.Checker
	if c.Monitoring.Enabled {
		checker = monitoring.NewChecker(collector, monitoring.NewAlerter(c.Monitoring), metrics, c.Monitoring)
	}
	return handler, checker
}
