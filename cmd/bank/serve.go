package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/api"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet HTTP API and Swagger UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := &http.Server{
				Addr:              a.cfg.Addr(),
				Handler:           api.SetupRouter(a.session),
				ReadHeaderTimeout: readHeaderTimeout,
			}
			return serve(cmd.Context(), srv)
		},
	}
}

// serve runs srv until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		log.Info().Str("url", "http://"+srv.Addr+"/swagger/index.html").Msg("Swagger UI")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
