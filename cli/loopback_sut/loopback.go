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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.corp.nvidia.com/sensorbench/pkg/sensorclient"
	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
)

const maxLineSize = 1 << 20

// Config tunes how lines are grouped into batches.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	Method        sensorclient.Method
	SensorID      string
}

// Loopback is a minimal system under test: every line read from a local
// connection becomes one metric, and lines are forwarded in batches on one
// collector stream per connection.
type Loopback struct {
	config Config
	conn   grpc.ClientConnInterface
	logger *slog.Logger

	connections atomic.Uint64
	lines       atomic.Uint64
	batches     atomic.Uint64
}

func NewLoopback(config Config, conn grpc.ClientConnInterface, logger *slog.Logger) *Loopback {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 50 * time.Millisecond
	}
	if config.Method == "" {
		config.Method = sensorclient.MethodStreamData
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loopback{config: config, conn: conn, logger: logger}
}

// Lines returns the number of lines forwarded so far.
func (l *Loopback) Lines() uint64 {
	return l.lines.Load()
}

// Serve accepts connections on ln until ctx is cancelled. Lines already read
// when ctx ends are still forwarded before Serve returns.
func (l *Loopback) Serve(ctx context.Context, ln net.Listener) error {
	group, groupCtx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(groupCtx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if groupCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		id := l.connections.Add(1)
		group.Go(func() error {
			return l.forward(groupCtx, conn, id)
		})
	}
	return group.Wait()
}

// forward reads lines from conn and sends them as batches until the writer
// closes the connection or ctx ends.
func (l *Loopback) forward(ctx context.Context, conn net.Conn, id uint64) error {
	defer conn.Close()
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	logger := l.logger.With(slog.Uint64("connection", id))
	stream, err := sensorclient.Dial(context.WithoutCancel(ctx), l.conn, l.config.Method, l.config.SensorID)
	if err != nil {
		return fmt.Errorf("failed to open collector stream: %w", err)
	}
	logger.Info("forwarding connection", slog.String("method", string(l.config.Method)))

	lines := make(chan []byte, l.config.BatchSize*4)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lines <- line
		}
		readErr <- scanner.Err()
	}()

	prefix := l.config.SensorID + "-" + strconv.FormatUint(id, 10) + "-"
	var seq uint64
	batch := make([]pb.Metric, 0, l.config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := stream.Send(batch); err != nil {
			return err
		}
		l.batches.Add(1)
		l.lines.Add(uint64(len(batch)))
		batch = make([]pb.Metric, 0, l.config.BatchSize)
		return nil
	}

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	var sendErr error
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			seq++
			batch = append(batch, pb.Metric{
				Key:       prefix + strconv.FormatUint(seq, 10),
				Timestamp: time.Now().UnixNano(),
				Name:      jsoniter.Get(line, "event_type").ToString(),
				Value:     1,
				Payload:   line,
			})
			if len(batch) >= l.config.BatchSize {
				if sendErr = flush(); sendErr != nil {
					break loop
				}
			}
		case <-ticker.C:
			if sendErr = flush(); sendErr != nil {
				break loop
			}
		}
	}
	if sendErr == nil {
		sendErr = flush()
	} else {
		conn.Close()
		for range lines {
		}
	}

	result, closeErr := stream.Close()
	logger.Info("connection closed",
		slog.Uint64("batches", result.Batches),
		slog.Uint64("events", result.Events))

	if sendErr != nil {
		return fmt.Errorf("failed to forward batch: %w", sendErr)
	}
	if closeErr != nil {
		return fmt.Errorf("collector closed the stream: %w", closeErr)
	}
	if err := <-readErr; err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to read from connection: %w", err)
	}
	return nil
}
