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

package postgres

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.corp.nvidia.com/sensorbench/utils"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	SSLMode         string
}

// ConnString renders the config as a postgres:// URL.
func (c PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// PostgresClient handles PostgreSQL database operations
type PostgresClient struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresClient creates a new PostgreSQL client with connection pooling
func NewPostgresClient(ctx context.Context, config PostgresConfig, logger *slog.Logger) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = config.MinConns
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	return NewPostgresClientFromPoolConfig(ctx, poolConfig, logger)
}

// NewPostgresClientFromPoolConfig creates a client from an already parsed pool config.
func NewPostgresClientFromPoolConfig(ctx context.Context, poolConfig *pgxpool.Config, logger *slog.Logger) (*PostgresClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("postgres client connected successfully",
		slog.String("host", poolConfig.ConnConfig.Host),
		slog.String("database", poolConfig.ConnConfig.Database),
	)
	return &PostgresClient{pool: pool, logger: logger}, nil
}

// Close closes the database connection pool
func (c *PostgresClient) Close() {
	c.logger.Info("closing postgres client")
	c.pool.Close()
}

// Pool returns the underlying pgxpool.Pool for direct database access
func (c *PostgresClient) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping verifies the database connection is still alive
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// CreateClient creates a client from the config with a background context.
func (c *PostgresConfig) CreateClient(logger *slog.Logger) (*PostgresClient, error) {
	return NewPostgresClient(context.Background(), *c, logger)
}

// PostgresFlagPointers holds pointers to flag values for PostgreSQL configuration
type PostgresFlagPointers struct {
	host            *string
	port            *int
	database        *string
	user            *string
	password        *string
	maxConns        *int
	minConns        *int
	maxConnLifetime *time.Duration
	sslMode         *string
}

// RegisterPostgresFlags registers PostgreSQL-related command-line flags.
// Convert the result with ToPostgresConfig after flag.Parse().
func RegisterPostgresFlags() *PostgresFlagPointers {
	return RegisterPostgresFlagsOn(flag.CommandLine)
}

// RegisterPostgresFlagsOn registers the PostgreSQL flags on fs.
func RegisterPostgresFlagsOn(fs *flag.FlagSet) *PostgresFlagPointers {
	return &PostgresFlagPointers{
		host: fs.String("postgres-host",
			utils.GetEnv("SENSORBENCH_POSTGRES_HOST", "localhost"),
			"PostgreSQL host"),
		port: fs.Int("postgres-port",
			utils.GetEnvInt("SENSORBENCH_POSTGRES_PORT", 5432),
			"PostgreSQL port"),
		database: fs.String("postgres-database-name",
			utils.GetEnv("SENSORBENCH_POSTGRES_DATABASE_NAME", "sensorbench"),
			"PostgreSQL database name"),
		user: fs.String("postgres-user",
			utils.GetEnv("SENSORBENCH_POSTGRES_USER", "postgres"),
			"PostgreSQL user"),
		password: fs.String("postgres-password",
			utils.GetEnvOrConfig("SENSORBENCH_POSTGRES_PASSWORD", "postgres_password", ""),
			"PostgreSQL password"),
		maxConns: fs.Int("postgres-max-conns",
			utils.GetEnvInt("SENSORBENCH_POSTGRES_MAX_CONNS", 4),
			"Maximum connections in the pool"),
		minConns: fs.Int("postgres-min-conns",
			utils.GetEnvInt("SENSORBENCH_POSTGRES_MIN_CONNS", 0),
			"Minimum idle connections kept in the pool"),
		maxConnLifetime: fs.Duration("postgres-max-conn-lifetime",
			utils.GetEnvDuration("SENSORBENCH_POSTGRES_MAX_CONN_LIFETIME", 5*time.Minute),
			"Maximum lifetime of a pooled connection"),
		sslMode: fs.String("postgres-ssl-mode",
			utils.GetEnv("SENSORBENCH_POSTGRES_SSL_MODE", "disable"),
			"PostgreSQL sslmode"),
	}
}

// ToPostgresConfig converts flag pointers to PostgresConfig
func (p *PostgresFlagPointers) ToPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            *p.host,
		Port:            *p.port,
		Database:        *p.database,
		User:            *p.user,
		Password:        *p.password,
		MaxConns:        int32(*p.maxConns),
		MinConns:        int32(*p.minConns),
		MaxConnLifetime: *p.maxConnLifetime,
		SSLMode:         *p.sslMode,
	}
}
