package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagecraft/internal/config"
	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/router"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load func() config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Run the HTTP server with the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.EnsureAdmin(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.StartBackground(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              a.Config.ListenAddr,
				Handler:           router.SetupRouter(a.API, a.Config.SessionSecret, a.SecureCookies()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.L().Info().Str("addr", srv.Addr).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					stop()
					a.Wait()
					return err
				}
			case <-ctx.Done():
			}

			logging.L().Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.L().Error().Err(err).Msg("http server shutdown failed")
			}
			stop()
			a.Wait()
			return nil
		},
	}
}
