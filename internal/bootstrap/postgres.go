package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/data"
)

const (
	connectTimeout = 5 * time.Second

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// DatabaseConfig carries the connection settings for Postgres and Redis.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresURL renders cfg as a postgres:// URL. Credentials are escaped by url.URL.
func postgresURL(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func pgxConnConfig(cfg config.DBConfig) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(postgresURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.ApplicationName != "" {
		connCfg.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	return connCfg, nil
}

type poolLimits struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func poolLimitsFor(cfg config.DBConfig) poolLimits {
	l := poolLimits{maxOpen: cfg.MaxOpenConns, maxIdle: cfg.MaxIdleConns, maxLifetime: cfg.ConnMaxLifetime}
	if l.maxOpen <= 0 {
		l.maxOpen = defaultMaxOpenConns
	}
	if l.maxIdle <= 0 {
		l.maxIdle = defaultMaxIdleConns
	}
	if l.maxIdle > l.maxOpen {
		l.maxIdle = l.maxOpen
	}
	if l.maxLifetime <= 0 {
		l.maxLifetime = defaultConnMaxLifetime
	}
	return l
}

// ConnectDB opens the job store pool through the pgx stdlib driver and pings it.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	connCfg, err := pgxConnConfig(cfg.DBConfig)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connCfg)
	limits := poolLimitsFor(cfg.DBConfig)
	db.SetMaxOpenConns(limits.maxOpen)
	db.SetMaxIdleConns(limits.maxIdle)
	db.SetConnMaxLifetime(limits.maxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		return nil, closeAfter(fmt.Errorf("ping postgres: %w", pingErr), db.Close)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("postgres connected",
			"host", cfg.DBConfig.Host,
			"database", cfg.DBConfig.Name,
			"max_open_conns", limits.maxOpen)
	}
	return db, nil
}

// closeAfter releases a half-open resource and joins any close failure onto err.
func closeAfter(err error, closeFn func() error) error {
	if closeErr := closeFn(); closeErr != nil {
		return errors.Join(err, fmt.Errorf("close after failed connect: %w", closeErr))
	}
	return err
}

// RunMigrations applies the batch job schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
