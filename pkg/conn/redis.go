package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

const defaultRedisDialTimeout = 5 * time.Second

// RedisOption locates the Redis instance mirroring the snapshot store.
type RedisOption struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether Redis is configured.
func (opt RedisOption) Enabled() bool {
	return opt.Addr != ""
}

// NewRedis connects and pings Redis.
func NewRedis(ctx context.Context, opt RedisOption) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opt.Addr,
		Username:    opt.Username,
		Password:    opt.Password,
		DB:          opt.DB,
		PoolSize:    opt.PoolSize,
		DialTimeout: defaultRedisDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opt.Addr)
	}
	return client, nil
}
