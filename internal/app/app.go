// Package app wires configuration into a ready session: slot storage, the
// service gateway, the session manager and the staff client.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/grifitth12/absen-siswa/internal/config"
	"github.com/grifitth12/absen-siswa/internal/gateway"
	"github.com/grifitth12/absen-siswa/internal/model"
	"github.com/grifitth12/absen-siswa/internal/session"
	"github.com/grifitth12/absen-siswa/internal/staff"
	"github.com/grifitth12/absen-siswa/internal/storage"
	"github.com/grifitth12/absen-siswa/internal/storage/bolt"
	"github.com/grifitth12/absen-siswa/internal/storage/file"
	"github.com/grifitth12/absen-siswa/internal/storage/memory"
	"github.com/grifitth12/absen-siswa/internal/storage/postgres"
	"github.com/grifitth12/absen-siswa/internal/storage/redis"
)

type App struct {
	Store   storage.Store
	Gateway *gateway.Gateway
	Session *session.Manager
	Staff   *staff.Client
}

// New builds the application for cfg. nav may be nil. The session is not
// started; callers decide when to restore it.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, nav session.Navigator) (*App, error) {
	baseURL, err := gateway.ResolveBaseURL(cfg.Origin, cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Storage, storage.Namespace(baseURL))
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(baseURL, store,
		gateway.WithHTTPClient(httpClient(cfg)),
		gateway.WithLogger(log),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []session.Option{session.WithLogger(log)}
	if len(cfg.PrivilegedRoles) > 0 {
		opts = append(opts, session.WithPrivilegedRoles(model.NewRoleSet(cfg.PrivilegedRoles...)))
	}
	if nav != nil {
		opts = append(opts, session.WithNavigator(nav))
	}

	return &App{
		Store:   store,
		Gateway: gw,
		Session: session.New(gw, opts...),
		Staff:   staff.New(gw),
	}, nil
}

// httpClient uses the transport's own timeouts unless ABSEN_HTTP_TIMEOUT
// sets an overall one.
func httpClient(cfg config.Config) *http.Client {
	if cfg.HTTPTimeout <= 0 {
		return &http.Client{}
	}
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore opens the slot backend named by cfg.Backend, scoped to namespace.
func OpenStore(ctx context.Context, cfg config.Storage, namespace string) (storage.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "", "file":
		return file.New(filepath.Join(cfg.Dir, namespace))
	case "bolt":
		return bolt.New(bolt.Options{Path: cfg.BoltPath, Bucket: namespace})
	case "redis":
		return redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "absen:" + namespace + ":",
		})
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL, namespace)
	default:
		return nil, fmt.Errorf("app: unknown storage backend %q", cfg.Backend)
	}
}
