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

// Package generator floods a local stream endpoint with newline-delimited JSON
// records. It never reads from the endpoint; the only feedback it acts on is a
// failed write, which triggers a bounded reconnect.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"go.corp.nvidia.com/sensorbench/utils"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const (
	DefaultConnectTimeout  = 60 * time.Second
	DefaultMaxRetries      = 5
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxRetryBackoff = 5 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultShutdownGrace   = 5 * time.Second

	// MinBytesPerConn is the smallest per-connection byte cap. Template
	// records are well below it, so each one is written in a single
	// rate-limited chunk and finishes within ShutdownGrace.
	MinBytesPerConn = 4096
)

// Config configures a Generator. Zero durations select the defaults above;
// zero rate caps and a zero Count mean unbounded.
type Config struct {
	Endpoint Endpoint
	Workers  int

	// RecordsPerSec caps the offered load across all workers.
	RecordsPerSec float64
	// BytesPerSec caps the bytes written across all workers. It is split
	// evenly between worker connections.
	BytesPerSec int64
	// Count stops the generator after this many records have been written.
	Count uint64
	// Duration stops the generator after this long.
	Duration time.Duration

	ConnectTimeout time.Duration
	PollInterval   time.Duration
	// MaxRetries is the number of consecutive reconnect attempts allowed
	// after a failed write. Zero fails on the first error.
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	// ShutdownGrace bounds a write that is still blocked when the run ends.
	ShutdownGrace time.Duration
	StatsInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Endpoint.Network == "" {
		c.Endpoint.Network = "unix"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = throughput.DefaultInterval
	}
}

// Generator writes records from per-worker sources to the endpoint.
type Generator struct {
	config  Config
	sources SourceFactory
	logger  *slog.Logger
	dialer  *dialer
	limiter *rate.Limiter
	sinks   []throughput.Sink

	records *throughput.Accumulator
	bytes   atomic.Uint64
	issued  atomic.Uint64
}

// New creates a generator. Every sample of the offered load is handed to
// sinks in addition to being logged.
func New(config Config, sources SourceFactory, logger *slog.Logger, sinks ...throughput.Sink) (*Generator, error) {
	if sources == nil {
		return nil, errors.New("generator requires a record source")
	}
	if config.Endpoint.Address == "" {
		return nil, errors.New("generator requires an endpoint address")
	}
	if config.RecordsPerSec < 0 || config.BytesPerSec < 0 {
		return nil, errors.New("rate caps must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.setDefaults()

	g := &Generator{
		config:  config,
		sources: sources,
		logger:  logger,
		sinks:   sinks,
		records: throughput.NewAccumulator(),
	}

	perConn := int64(0)
	if config.BytesPerSec > 0 {
		perConn = config.BytesPerSec / int64(config.Workers)
		if perConn < MinBytesPerConn {
			return nil, fmt.Errorf("byte cap of %d B/s over %d workers leaves %d B/s per connection, below the %d B/s minimum",
				config.BytesPerSec, config.Workers, perConn, MinBytesPerConn)
		}
	}
	g.dialer = &dialer{
		endpoint:     config.Endpoint,
		pollInterval: config.PollInterval,
		bytesPerSec:  perConn,
		logger:       logger,
	}

	if config.RecordsPerSec > 0 {
		burst := max(1, int(config.RecordsPerSec/100))
		g.limiter = rate.NewLimiter(rate.Limit(config.RecordsPerSec), burst)
	}
	return g, nil
}

// Records returns the number of records fully written so far.
func (g *Generator) Records() uint64 {
	return g.records.Total()
}

// Bytes returns the number of bytes fully written so far.
func (g *Generator) Bytes() uint64 {
	return g.bytes.Load()
}

// Run writes records until ctx is cancelled, Duration elapses or Count
// records have been written. Cancellation is a clean stop and returns nil.
func (g *Generator) Run(ctx context.Context) error {
	if g.config.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Duration)
		defer cancel()
	}

	reporter := throughput.NewReporter(g.records, throughput.ReporterConfig{
		Interval: g.config.StatsInterval,
		Label:    "Generator Throughput",
		Unit:     "records",
	}, g.logger, g.sinks...)
	reportCtx, stopReport := context.WithCancel(context.WithoutCancel(ctx))
	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		reporter.Run(reportCtx)
	}()

	g.logger.InfoContext(ctx, "starting generator",
		slog.String("endpoint", g.config.Endpoint.String()),
		slog.Int("workers", g.config.Workers),
		slog.Float64("records_per_sec", g.config.RecordsPerSec),
		slog.Int64("bytes_per_sec", g.config.BytesPerSec),
		slog.Uint64("count", g.config.Count))

	group, groupCtx := errgroup.WithContext(ctx)
	for worker := range g.config.Workers {
		group.Go(func() error {
			return g.runWorker(groupCtx, worker)
		})
	}
	err := group.Wait()

	stopReport()
	<-reportDone

	g.logger.InfoContext(ctx, "generator stopped",
		slog.Uint64("records", g.Records()),
		slog.Uint64("bytes", g.Bytes()))
	return err
}

// reserve claims the right to write one more record under Count.
func (g *Generator) reserve() bool {
	if g.config.Count == 0 {
		return true
	}
	return g.issued.Add(1) <= g.config.Count
}

func (g *Generator) runWorker(ctx context.Context, worker int) error {
	source, err := g.sources(worker)
	if err != nil {
		return fmt.Errorf("worker %d: %w", worker, err)
	}
	logger := g.logger.With(slog.Int("worker", worker))

	conn, err := g.dialer.waitForEndpoint(ctx, g.config.ConnectTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	stopWatch := g.watchShutdown(ctx, conn)
	defer func() {
		if conn != nil {
			stopWatch()
			conn.Close()
		}
	}()

	var pending Record
	failures := 0
	var lastErr error
	for {
		if ctx.Err() != nil {
			return nil
		}
		if pending == nil {
			if !g.reserve() {
				return nil
			}
			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			pending = source.Next()
			if perConn := g.dialer.bytesPerSec; perConn > 0 && int64(len(pending)) > perConn {
				// Writing it would take several rate-limited chunks and could
				// be cut short by shutdown.
				return fmt.Errorf("%w: worker %d has a %d byte record and a %d B/s connection cap",
					ErrRecordTooLarge, worker, len(pending), perConn)
			}
		}

		if conn != nil {
			// One Write per record: net.Conn writes the whole line or fails.
			_, err := conn.Write(pending)
			if err == nil {
				g.records.Add(1)
				g.bytes.Add(uint64(len(pending)))
				pending = nil
				failures = 0
				continue
			}
			if ctx.Err() != nil {
				logger.WarnContext(ctx, "write interrupted by shutdown", slog.String("error", err.Error()))
				return nil
			}
			logger.WarnContext(ctx, "write failed, reconnecting", slog.String("error", err.Error()))
			stopWatch()
			conn.Close()
			conn = nil
			lastErr = err
		}

		failures++
		if failures > g.config.MaxRetries {
			return fmt.Errorf("%w: worker %d gave up after %d attempts: %v",
				ErrRetriesExhausted, worker, failures, lastErr)
		}
		backoff := utils.CalculateBackoff(failures, g.config.RetryBackoff, g.config.MaxRetryBackoff, g.config.RetryBackoff/2)
		if !sleepContext(ctx, backoff) {
			return nil
		}
		conn, err = g.dialer.dialOnce(ctx)
		if err != nil {
			conn = nil
			lastErr = err
			logger.WarnContext(ctx, "reconnect failed",
				slog.Int("attempt", failures),
				slog.String("error", err.Error()))
			continue
		}
		stopWatch = g.watchShutdown(ctx, conn)
		logger.InfoContext(ctx, "reconnected", slog.Int("attempt", failures))
	}
}

// watchShutdown arms a write deadline on conn once ctx ends, so a write
// blocked on a stalled reader cannot hold shutdown forever.
func (g *Generator) watchShutdown(ctx context.Context, conn net.Conn) func() bool {
	grace := g.config.ShutdownGrace
	return context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now().Add(grace))
	})
}
