// Package vaultservice wires configuration, storage and the HTTP surface
// into a runnable server.
package vaultservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/keyfold/keyfold-server/internal/api"
	"github.com/keyfold/keyfold-server/internal/config"
	"github.com/keyfold/keyfold-server/internal/logger"
	"github.com/keyfold/keyfold-server/internal/ratelimit"
	"github.com/keyfold/keyfold-server/internal/services"
	"github.com/keyfold/keyfold-server/internal/session"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/postgres"
	"github.com/keyfold/keyfold-server/internal/store/sqlite"
)

// sessionPurgeInterval bounds how long an expired session row can linger.
const sessionPurgeInterval = time.Hour

// Run starts the vault service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("vault-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("Vault service starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, err := NewStore(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}

	sessions := session.NewManager(st.Sessions(), time.Duration(cfg.SessionTTLHours)*time.Hour)
	router := api.NewRouter(api.RouterDeps{
		Store:         st,
		Users:         services.NewUserService(st),
		Vault:         services.NewVaultService(st),
		Sessions:      sessions,
		SignupLimiter: ratelimit.NewSignupLimiter(cfg.SignupPerDay, 24*time.Hour),
		SecureCookies: cfg.SecureCookies,
	})

	go purgeSessions(ctx, sessions, log)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// NewStore opens the configured storage backend. Postgres schemas are
// migrated on startup; SQLite creates its schema on open.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.NewWithDB(db), nil
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// purgeSessions drops expired session rows on an interval until ctx ends.
func purgeSessions(ctx context.Context, sessions *session.Manager, log zerolog.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired sessions removed")
			}
		}
	}
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
