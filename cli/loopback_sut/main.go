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

// Command loopback_sut is a stand-in system under test. It listens on the
// generator socket and forwards every line to the collector, so the harness
// can measure its own ceiling without a real sensor client in the loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.corp.nvidia.com/sensorbench/pkg/sensorclient"
	"go.corp.nvidia.com/sensorbench/utils"
	"go.corp.nvidia.com/sensorbench/utils/logging"
)

var (
	network   = flag.String("network", utils.GetEnv("SENSORBENCH_LOOPBACK_NETWORK", "unix"), "Network to listen on (unix or tcp)")
	socket    = flag.String("socket", utils.GetEnv("SENSORBENCH_LOOPBACK_SOCKET", "/tmp/suricata.sock"), "Address the generator writes to")
	collector = flag.String("collector", utils.GetEnv("SENSORBENCH_COLLECTOR_ADDRESS", "localhost:50051"), "Collector gRPC address")
	batchSize = flag.Int("batch-size", utils.GetEnvInt("SENSORBENCH_LOOPBACK_BATCH_SIZE", 100), "Lines per batch")
	flushInt  = flag.Duration("flush-interval", utils.GetEnvDuration("SENSORBENCH_LOOPBACK_FLUSH_INTERVAL", 50*time.Millisecond),
		"Send a partial batch after this long")
	method   = flag.String("method", utils.GetEnv("SENSORBENCH_LOOPBACK_METHOD", string(sensorclient.MethodStreamData)), "stream-data or stream-batches")
	sensorID = flag.String("sensor-id", utils.GetEnv("SENSORBENCH_LOOPBACK_SENSOR_ID", "loopback"), "Sensor ID sent to the collector")
)

func main() {
	loggingFlagPtrs := logging.RegisterFlags()
	flag.Parse()

	logger := logging.InitLogger("loopback_sut", loggingFlagPtrs.ToConfig())
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("loopback failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	rpcMethod, err := sensorclient.ParseMethod(*method)
	if err != nil {
		return err
	}
	if *batchSize <= 0 {
		return fmt.Errorf("batch-size must be > 0 (got %d)", *batchSize)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := sensorclient.NewClientConn(*collector)
	if err != nil {
		return fmt.Errorf("failed to create collector client: %w", err)
	}
	defer conn.Close()

	if *network == "unix" {
		// A socket left behind by a previous run blocks Listen.
		if err := os.Remove(*socket); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(*network, *socket)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *socket, err)
	}
	logger.Info("loopback listening",
		slog.String("socket", *socket),
		slog.String("collector", *collector),
		slog.Int("batch_size", *batchSize),
		slog.Duration("flush_interval", *flushInt),
		slog.String("method", string(rpcMethod)))

	loopback := NewLoopback(Config{
		BatchSize:     *batchSize,
		FlushInterval: *flushInt,
		Method:        rpcMethod,
		SensorID:      *sensorID,
	}, conn, logger)
	err = loopback.Serve(ctx, ln)
	logger.Info("loopback stopped", slog.Uint64("lines", loopback.Lines()))
	return err
}
