package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/cyano-batch/config"
)

type redisTopology string

const (
	redisDirect   redisTopology = "direct"
	redisSentinel redisTopology = "sentinel"
	redisCluster  redisTopology = "cluster"
)

func topologyFor(cfg config.RedisConfig) redisTopology {
	switch {
	case cfg.UseCluster:
		return redisCluster
	case cfg.UseSentinel:
		return redisSentinel
	default:
		return redisDirect
	}
}

// redisOptions folds the broker's Redis settings into one UniversalOptions
// value; newRedisClient then narrows it to the topology-specific client.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisTopology, error) {
	topology := topologyFor(cfg)
	opts := &redis.UniversalOptions{
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	}

	switch topology {
	case redisCluster:
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 {
			if err := applyURI(opts, cfg.URI); err != nil {
				return nil, topology, err
			}
		}
		// Cluster mode has no logical databases.
		opts.DB = 0
		if len(opts.Addrs) == 0 {
			return nil, topology, errors.New("redis cluster needs REDIS_CLUSTER_NODES or REDIS_URI")
		}
	case redisSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		opts.SentinelPassword = cfg.SentinelPassword
		if len(opts.Addrs) == 0 {
			return nil, topology, errors.New("redis sentinel needs at least one REDIS_SENTINEL_NODES entry")
		}
		if opts.MasterName == "" {
			return nil, topology, errors.New("redis sentinel needs REDIS_SENTINEL_MASTER_NAME")
		}
	default:
		if err := applyURI(opts, cfg.URI); err != nil {
			return nil, topology, err
		}
		if len(opts.Addrs) == 0 {
			return nil, topology, errors.New("redis direct connection needs REDIS_URI")
		}
	}
	return opts, topology, nil
}

// applyURI accepts either host:port or a redis:// / rediss:// URL. Values in
// the URL override the discrete password and DB settings.
func applyURI(opts *redis.UniversalOptions, raw string) error {
	uri := strings.TrimSpace(raw)
	if uri == "" {
		return nil
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if parsed.DB != 0 {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

//nolint:ireturn // the broker only needs redis.UniversalClient.
func newRedisClient(opts *redis.UniversalOptions, topology redisTopology) redis.UniversalClient {
	switch topology {
	case redisCluster:
		return redis.NewClusterClient(opts.Cluster())
	case redisSentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

// ConnectRedis connects to the Redis deployment backing the task broker and
// verifies it answers PING.
//
//nolint:ireturn // single, sentinel and cluster clients share redis.UniversalClient.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, topology, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := newRedisClient(opts, topology)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		return nil, closeAfter(fmt.Errorf("ping redis (%s): %w", topology, pingErr), client.Close)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected",
			"topology", string(topology),
			"addrs", strings.Join(opts.Addrs, ","),
			"master", opts.MasterName,
			"tls", opts.TLSConfig != nil)
	}
	return client, nil
}

func normalizeAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
