package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend       string
	Dir           string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the configured backend.
func Open(opt Options) (KV, error) {
	switch opt.Backend {
	case "", BackendFile:
		return NewFileKV(opt.Dir), nil
	case BackendSQLite:
		return OpenSQLite(opt.SQLitePath)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opt.RedisAddr,
			Password: opt.RedisPassword,
			DB:       opt.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", opt.RedisAddr, err)
		}
		return NewRedisKV(client, opt.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opt.Backend)
	}
}
