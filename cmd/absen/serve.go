package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internalhttp "github.com/grifitth12/absen-siswa/internal/http"
)

func serveCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over local HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = e.cfg.HTTPAddr
			}
			nav := &internalhttp.NavigationLog{}
			a, err := e.open(cmd, nav)
			if err != nil {
				return err
			}
			defer a.Close()

			server := internalhttp.NewServer(a.Session, a.Staff, nav, e.log)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				e.log.Info().Str("addr", addr).Str("service", a.Gateway.BaseURL()).Msg("absen http listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					e.log.Error().Err(err).Msg("shutdown error")
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	return cmd
}
