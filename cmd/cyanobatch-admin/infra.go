package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/cyano-batch/config"
	redisadapter "github.com/target/cyano-batch/internal/adapters/redis"
	"github.com/target/cyano-batch/internal/bootstrap"
)

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

// infra holds the connections a command asked for; unwanted ones stay nil.
type infra struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Broker *redisadapter.TaskBroker
}

// connectInfra wires up infrastructure dependencies based on CLI options.
func connectInfra(opts *connectInfraOptions) (*infra, error) {
	out := &infra{}

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: opts.Config.Postgres, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		out.DB = db
	}

	if opts.WantRedis {
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: opts.Config.Redis, Logger: opts.Logger})
		if err != nil {
			err = fmt.Errorf("connect redis: %w", err)
			if closeErr := out.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
			return nil, err
		}
		out.Redis = client

		broker, err := redisadapter.NewTaskBroker(redisadapter.TaskBrokerOptions{
			Client:   client,
			Prefix:   opts.Config.Worker.QueuePrefix,
			StateTTL: opts.Config.Worker.StateTTL,
			Logger:   opts.Logger,
		})
		if err != nil {
			if closeErr := out.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
			return nil, fmt.Errorf("create task broker: %w", err)
		}
		out.Broker = broker
	}

	return out, nil
}

// Close releases every connection that was opened.
func (i *infra) Close() error {
	if i == nil {
		return nil
	}
	var closeErr error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

// withInfra connects what the command needs and always closes it afterwards.
func withInfra(cmdCtx *commandContext, wantDB, wantRedis bool, f func(*infra) error) error {
	conns, err := connectInfra(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    wantDB,
		WantRedis: wantRedis,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conns.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", cerr)
		}
	}()
	return f(conns)
}
