package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/target/cyano-batch/config"
	httpx "github.com/target/cyano-batch/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
	// ErrCh receives the serve error if the listener fails after startup.
	ErrCh chan<- error
}

// StartHTTPServer binds the listener and serves the batch API in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	verifier, err := buildTokenVerifier(appCfg, logger)
	if err != nil {
		return nil, err
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Batch:        cfg.Services.Batch,
		Verifier:     verifier,
		Readiness:    readinessChecks(cfg.DB, cfg.Services),
		MaxBodyBytes: appCfg.HTTP.MaxBodyBytes,
		Logger:       logger,
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if appCfg.HTTP.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, appCfg.HTTP.MaxConnections)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       appCfg.HTTP.ReadTimeout,
		WriteTimeout:      appCfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server",
			"addr", ln.Addr().String(),
			"max_connections", appCfg.HTTP.MaxConnections,
			"auth", verifier != nil)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
			if cfg.ErrCh != nil {
				select {
				case cfg.ErrCh <- fmt.Errorf("http server: %w", serveErr):
				default:
				}
			}
		}
	}()

	return server, nil
}

func buildTokenVerifier(cfg *config.AppConfig, logger *slog.Logger) (*httpx.TokenVerifier, error) {
	if !cfg.Auth.Enabled(cfg.IsDev) {
		logger.Warn("bearer token verification disabled; trusting usernames from request bodies")
		return nil, nil
	}
	verifier, err := httpx.NewTokenVerifier(cfg.Auth.SecretKey, cfg.Auth.Leeway)
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}
	return verifier, nil
}

func readinessChecks(db *sql.DB, svcs ServiceContainer) []httpx.ReadinessCheck {
	checks := make([]httpx.ReadinessCheck, 0, 2)
	if db != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Check: db.PingContext})
	}
	if svcs.Broker != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Check: svcs.Broker.Ping})
	}
	return checks
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
