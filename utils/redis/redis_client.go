/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package redis

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"go.corp.nvidia.com/sensorbench/utils"
)

const pingTimeout = 5 * time.Second

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
	// StreamMaxLen caps sample streams with an approximate MAXLEN; 0 leaves them unbounded.
	StreamMaxLen int64
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts the config to go-redis options.
func (c RedisConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:     c.Addr(),
		Password: c.Password,
		DB:       c.DB,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// RedisClient wraps a go-redis client with logging.
type RedisClient struct {
	client *redis.Client
	config RedisConfig
	logger *slog.Logger
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, config RedisConfig, logger *slog.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(config.Options())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", config.Addr(), err)
	}

	logger.Info("Redis client connected successfully",
		slog.String("address", config.Addr()),
		slog.Int("db", config.DB),
		slog.Bool("tls", config.TLSEnabled),
	)
	return WrapClient(client, config, logger), nil
}

// WrapClient wraps an existing client without pinging it.
func WrapClient(client *redis.Client, config RedisConfig, logger *slog.Logger) *RedisClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisClient{client: client, config: config, logger: logger}
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	c.logger.Info("closing redis client")
	return c.client.Close()
}

// Client returns the underlying redis.Client
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Config returns the configuration the client was built from.
func (c *RedisClient) Config() RedisConfig {
	return c.config
}

// Ping verifies the Redis connection is still alive
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RedisFlagPointers holds pointers to flag values for Redis configuration
type RedisFlagPointers struct {
	host         *string
	port         *int
	password     *string
	db           *int
	tlsEnabled   *bool
	streamMaxLen *int64
}

// RegisterRedisFlags registers Redis-related command-line flags. Convert the
// result with ToRedisConfig after flag.Parse().
func RegisterRedisFlags() *RedisFlagPointers {
	return RegisterRedisFlagsOn(flag.CommandLine)
}

// RegisterRedisFlagsOn registers the Redis flags on fs.
func RegisterRedisFlagsOn(fs *flag.FlagSet) *RedisFlagPointers {
	return &RedisFlagPointers{
		host: fs.String("redis-host",
			utils.GetEnv("SENSORBENCH_REDIS_HOST", "localhost"),
			"Redis host"),
		port: fs.Int("redis-port",
			utils.GetEnvInt("SENSORBENCH_REDIS_PORT", 6379),
			"Redis port"),
		password: fs.String("redis-password",
			utils.GetEnvOrConfig("SENSORBENCH_REDIS_PASSWORD", "redis_password", ""),
			"Redis password"),
		db: fs.Int("redis-db-number",
			utils.GetEnvInt("SENSORBENCH_REDIS_DB_NUMBER", 0),
			"Redis database number to connect to. Default value is 0"),
		tlsEnabled: fs.Bool("redis-tls-enable",
			utils.GetEnvBool("SENSORBENCH_REDIS_TLS_ENABLE", false),
			"Enable TLS for Redis connection"),
		streamMaxLen: fs.Int64("redis-stream-maxlen",
			int64(utils.GetEnvInt("SENSORBENCH_REDIS_STREAM_MAXLEN", 100000)),
			"Approximate MAXLEN applied to sample streams (0 disables trimming)"),
	}
}

// ToRedisConfig converts flag pointers to RedisConfig
func (r *RedisFlagPointers) ToRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         *r.host,
		Port:         *r.port,
		Password:     *r.password,
		DB:           *r.db,
		TLSEnabled:   *r.tlsEnabled,
		StreamMaxLen: *r.streamMaxLen,
	}
}
