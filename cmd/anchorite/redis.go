package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// newRedisClient connects to Redis, returning nil when it is unreachable so
// callers can degrade to the un-indexed store.
func newRedisClient(addr string) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
