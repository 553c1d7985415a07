package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aretw0/mintline/internal/cli"
	httpapi "github.com/aretw0/mintline/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the workflow API. Workflows left unfinished by a previous run are
resumed from the store before the listener opens.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		cmd.SetContext(sc)

		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				app.Logger.Error("Failed to release resources", "err", err)
			}
		}()

		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			app.Logger.Debug(fmt.Sprintf(format, args...))
		})); err != nil {
			app.Logger.Warn("Failed to set GOMAXPROCS", "err", err)
		}

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.Server.Addr = addr
		}

		resumed, err := app.Service.Resume(sc)
		if err != nil {
			return fmt.Errorf("failed to resume workflows: %w", err)
		}
		if resumed > 0 {
			app.Logger.Info("Resumed unfinished workflows", "count", resumed)
		}

		handler := httpapi.NewHandler(app.Service,
			httpapi.WithLogger(app.Logger),
			httpapi.WithStreams(app.Streams),
			httpapi.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})),
			httpapi.WithReadiness(app.Ready),
		)

		srv := &http.Server{
			Addr:    app.Config.Server.Addr,
			Handler: handler,
			// Event streams end with the signal instead of holding up shutdown.
			BaseContext: func(net.Listener) context.Context { return sc },
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting mintline server", "addr", srv.Addr, "simulated", app.Config.Simulated())
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sc.Done():
			app.Logger.Info("Start shutdown", "signal", sc.Signal())

			timeout := app.Config.Server.ShutdownTimeout
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Warn("Graceful shutdown did not complete", "timeout", timeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("failed to stop server: %w", err)
				}
			}
			app.Logger.Info("Mintline server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
}
