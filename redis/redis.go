package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func ConnectToRedis(addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	return connect(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}, timeout)
}

// ConnectToRedisURL accepts redis:// and rediss:// URLs.
func ConnectToRedisURL(url string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return connect(opts, timeout)
}

func connect(opts *redis.Options, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}
