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

package utils

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"go.corp.nvidia.com/sensorbench/utils"
	"go.corp.nvidia.com/sensorbench/utils/logging"
	metrics "go.corp.nvidia.com/sensorbench/utils/metrics-go"
	"go.corp.nvidia.com/sensorbench/utils/postgres"
	"go.corp.nvidia.com/sensorbench/utils/redis"
)

// DefaultMaxRecvMsgSize admits batches well beyond gRPC's 4 MiB default.
const DefaultMaxRecvMsgSize = 64 * 1024 * 1024

// CollectorArgs holds configuration for the mock collector
type CollectorArgs struct {
	// Service configuration
	Host                 string
	RunID                string
	ReportInterval       time.Duration
	IdleTimeout          time.Duration
	AckEvery             int
	MaxConcurrentStreams uint32
	MaxRecvMsgSize       int
	MetricsAddr          string
	ProgressFile         string

	// Duplicate tracking
	TrackDuplicates   bool
	DuplicateWindow   time.Duration
	DuplicateCapacity int

	// Sample sinks
	SinkRedis    bool
	SinkPostgres bool
	SinkTimeout  time.Duration

	Logging  logging.Config
	Redis    redis.RedisConfig
	Postgres postgres.PostgresConfig
	Metrics  metrics.MetricsConfig
}

// CollectorParse parses command line arguments and environment variables
func CollectorParse() (CollectorArgs, error) {
	return CollectorParseArgs(flag.CommandLine, os.Args[1:])
}

// CollectorParseArgs registers the collector flags on fs and parses args.
func CollectorParseArgs(fs *flag.FlagSet, args []string) (CollectorArgs, error) {
	host := fs.String("host",
		utils.GetEnv("SENSORBENCH_COLLECTOR_HOST", "0.0.0.0:50051"),
		"Listen address for the sensor gRPC service")
	runID := fs.String("run-id",
		utils.GetEnv("SENSORBENCH_RUN_ID", ""),
		"Identifier attached to every sample (random when empty)")
	reportInterval := fs.Duration("report-interval",
		utils.GetEnvDuration("SENSORBENCH_REPORT_INTERVAL", time.Second),
		"Throughput reporting interval")
	idleTimeout := fs.Duration("idle-timeout",
		utils.GetEnvDuration("SENSORBENCH_IDLE_TIMEOUT", 5*time.Minute),
		"Close streams that send nothing for this long (0 disables)")
	ackEvery := fs.Int("ack-every",
		utils.GetEnvInt("SENSORBENCH_ACK_EVERY", 1),
		"Acknowledge every N batches on StreamBatches (0 acks only at end of stream)")
	maxConcurrentStreams := fs.Uint64("max-concurrent-streams",
		utils.GetEnvUint64("SENSORBENCH_MAX_CONCURRENT_STREAMS", 1000),
		"Maximum concurrent streams per client connection")
	maxRecvMsgSize := fs.Int("max-recv-msg-size",
		utils.GetEnvInt("SENSORBENCH_MAX_RECV_MSG_SIZE", DefaultMaxRecvMsgSize),
		"Largest batch message accepted, in bytes. Larger batches end the stream with ResourceExhausted")
	metricsAddr := fs.String("metrics-addr",
		utils.GetEnv("SENSORBENCH_METRICS_ADDR", ""),
		"Address for the Prometheus /metrics endpoint (empty disables)")
	progressFile := fs.String("progress-file",
		utils.GetEnv("SENSORBENCH_COLLECTOR_PROGRESS_FILE", ""),
		"File to write a heartbeat to on every report (for liveness probes)")

	trackDuplicates := fs.Bool("track-duplicates",
		utils.GetEnvBool("SENSORBENCH_TRACK_DUPLICATES", false),
		"Count repeated event keys. Adds a lock to the receive path and lowers the measured ceiling")
	duplicateWindow := fs.Duration("duplicate-window",
		utils.GetEnvDuration("SENSORBENCH_DUPLICATE_WINDOW", time.Minute),
		"How long an event key is remembered for duplicate tracking")
	duplicateCapacity := fs.Int("duplicate-capacity",
		utils.GetEnvInt("SENSORBENCH_DUPLICATE_CAPACITY", 100000),
		"Maximum number of event keys remembered for duplicate tracking")

	sinkRedis := fs.Bool("sink-redis",
		utils.GetEnvBool("SENSORBENCH_SINK_REDIS", false),
		"Append every throughput sample to a Redis stream")
	sinkPostgres := fs.Bool("sink-postgres",
		utils.GetEnvBool("SENSORBENCH_SINK_POSTGRES", false),
		"Insert every throughput sample into PostgreSQL")
	sinkTimeout := fs.Duration("sink-timeout",
		utils.GetEnvDuration("SENSORBENCH_SINK_TIMEOUT", 2*time.Second),
		"Timeout for a single sink write")

	loggingFlagPtrs := logging.RegisterFlagsOn(fs)
	redisFlagPtrs := redis.RegisterRedisFlagsOn(fs)
	postgresFlagPtrs := postgres.RegisterPostgresFlagsOn(fs)
	metricsFlagPtrs := metrics.RegisterMetricsFlagsOn(fs, "sensorbench-collector")

	if err := fs.Parse(args); err != nil {
		return CollectorArgs{}, err
	}

	id := *runID
	if id == "" {
		id = uuid.New().String()
	}

	return CollectorArgs{
		Host:                 *host,
		RunID:                id,
		ReportInterval:       *reportInterval,
		IdleTimeout:          *idleTimeout,
		AckEvery:             *ackEvery,
		MaxConcurrentStreams: uint32(*maxConcurrentStreams),
		MaxRecvMsgSize:       *maxRecvMsgSize,
		MetricsAddr:          *metricsAddr,
		ProgressFile:         *progressFile,
		TrackDuplicates:      *trackDuplicates,
		DuplicateWindow:      *duplicateWindow,
		DuplicateCapacity:    *duplicateCapacity,
		SinkRedis:            *sinkRedis,
		SinkPostgres:         *sinkPostgres,
		SinkTimeout:          *sinkTimeout,
		Logging:              loggingFlagPtrs.ToConfig(),
		Redis:                redisFlagPtrs.ToRedisConfig(),
		Postgres:             postgresFlagPtrs.ToPostgresConfig(),
		Metrics:              metricsFlagPtrs.ToMetricsConfig(),
	}, nil
}

// Validate checks values that flag parsing cannot.
func (a CollectorArgs) Validate() error {
	if _, _, err := ParseHost(a.Host); err != nil {
		return err
	}
	if a.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be > 0 (got %v)", a.ReportInterval)
	}
	if a.IdleTimeout < 0 {
		return fmt.Errorf("idle-timeout must be >= 0 (got %v)", a.IdleTimeout)
	}
	if a.AckEvery < 0 {
		return fmt.Errorf("ack-every must be >= 0 (got %d)", a.AckEvery)
	}
	if a.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("max-recv-msg-size must be > 0 (got %d)", a.MaxRecvMsgSize)
	}
	if a.TrackDuplicates && a.DuplicateCapacity <= 0 {
		return fmt.Errorf("duplicate-capacity must be > 0 when tracking duplicates")
	}
	if a.SinkTimeout <= 0 {
		return fmt.Errorf("sink-timeout must be > 0 (got %v)", a.SinkTimeout)
	}
	return nil
}
