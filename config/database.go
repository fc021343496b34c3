package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"cyano"`
	Password string `env:"PASSWORD" envDefault:"cyano"`
	Name     string `env:"NAME"     envDefault:"cyano"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`
	// ApplicationName is reported to Postgres so sessions show up in pg_stat_activity.
	ApplicationName string `env:"APPLICATION_NAME" envDefault:"cyano-batch"`
}

// RedisConfig contains Redis configuration for the task broker.
//
// HOSTNAME and PORT are accepted for compatibility with older deployments
// and are folded into URI when URI is not set explicitly.
type RedisConfig struct {
	URI                string   `env:"URI"`
	Hostname           string   `env:"HOSTNAME"             envDefault:"localhost"`
	Port               string   `env:"PORT"                 envDefault:"6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize derives URI from HOSTNAME/PORT when it was not provided.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.URI != "" {
		return
	}
	host := strings.TrimSpace(r.Hostname)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	r.URI = host + ":" + port
}
