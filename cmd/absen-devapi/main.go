package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/grifitth12/absen-siswa/internal/config"
	"github.com/grifitth12/absen-siswa/internal/devapi"
	"github.com/grifitth12/absen-siswa/internal/logging"
	"github.com/grifitth12/absen-siswa/internal/model"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := devapi.NewStore(bcrypt.DefaultCost)
	if err := devapi.Seed(store, devapi.DefaultSeed); err != nil {
		log.Fatal().Err(err).Msg("seeding users failed")
	}

	server := devapi.NewServer(cfg.DevAPI, store, model.NewRoleSet(cfg.PrivilegedRoles...), log)
	httpServer := &http.Server{
		Addr:              cfg.DevAPI.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	devapi.StartExpiryJob(ctx, cfg.DevAPI.ExpiryJobInterval, store, log)

	go func() {
		log.Info().Str("addr", cfg.DevAPI.Addr).Str("login_shape", cfg.DevAPI.LoginShape).Msg("absen devapi listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
