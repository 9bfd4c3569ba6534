package config

// Redis backs the rate limiter and, with NOTIFY_TRANSPORT=redis, the seat
// event fan-out between server processes.  If the server cannot be reached
// at startup the constructor returns nil and callers degrade: rate limiting
// is disabled and the redis transport refuses to start.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Address resolves the server address.  REDIS_HOST and REDIS_PORT take
// precedence over REDIS_ADDR; the default is localhost:6379.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	if c.Addr != "" {
		return c.Addr
	}
	return "localhost:6379"
}

// NewRedisClient connects to Redis and pings it with a short timeout.  The
// returned client is nil when the ping fails.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
