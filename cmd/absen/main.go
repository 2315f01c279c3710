package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/grifitth12/absen-siswa/internal/app"
	"github.com/grifitth12/absen-siswa/internal/config"
	"github.com/grifitth12/absen-siswa/internal/logging"
	"github.com/grifitth12/absen-siswa/internal/session"
)

type env struct {
	cfg config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		e        env
		apiURL   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "absen",
		Short:        "Student attendance from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.APIBaseURL = apiURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			e.cfg = cfg
			e.log = logging.NewConsole(cfg.LogLevel)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "service base URL (overrides ABSEN_API_URL)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		loginCmd(&e),
		whoamiCmd(&e),
		submitCmd(&e),
		logoutCmd(&e),
		statusCmd(&e),
		serveCmd(&e),
		adminCmd(&e),
	)
	return cmd
}

// open builds the application and restores the persisted session.
func (e *env) open(cmd *cobra.Command, nav session.Navigator) (*app.App, error) {
	if nav == nil {
		out := cmd.ErrOrStderr()
		nav = session.NavigatorFunc(func(dest session.Destination) {
			fmt.Fprintf(out, "-> %s\n", dest)
		})
	}
	a, err := app.New(cmd.Context(), e.cfg, e.log, nav)
	if err != nil {
		return nil, err
	}
	a.Session.Start(cmd.Context())
	return a, nil
}
