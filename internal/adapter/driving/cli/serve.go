package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httphandler "github.com/ericfisherdev/vidrelay/internal/adapter/driving/http"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 10 * time.Second

func newServeCmd(open Factory) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload queue behind the HTTP control API",
		Long: `Run the upload queue, the event dispatcher and the HTTP control API until
interrupted. Uploads still in flight are cancelled on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), open, func(svc *Services) error {
				if addr == "" {
					addr = svc.ListenAddr
				}
				return serve(cmd.Context(), svc, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to VIDRELAY_LISTEN_ADDR)")
	return cmd
}

// serve blocks until ctx is cancelled or the listener fails. Shutdown order is
// HTTP server, then queue, then event dispatcher, so events from uploads
// cancelled during shutdown are still delivered.
func serve(ctx context.Context, svc *Services, addr string) error {
	h := httphandler.NewHandler(svc.Queue, svc.Relay, svc.Provenance, slog.Default())

	srv := &http.Server{
		Addr:              addr,
		Handler:           httphandler.NewServeMux(h, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Relay requests return only after the source download finishes.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBus()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.Bus.Run(busCtx)
		return nil
	})

	g.Go(func() error {
		slog.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			err = fmt.Errorf("http server shutdown: %w", err)
		}
		svc.Queue.Shutdown()
		stopBus()

		slog.Info("shutdown complete")
		return err
	})

	slog.Info("vidrelay started",
		"listen_addr", addr,
		"max_concurrent", svc.Queue.Status().Limit,
		"max_retries", svc.Queue.MaxRetries(),
	)
	return g.Wait()
}
