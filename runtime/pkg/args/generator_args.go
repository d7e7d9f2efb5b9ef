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

package args

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.corp.nvidia.com/sensorbench/runtime/pkg/generator"
	"go.corp.nvidia.com/sensorbench/utils"
	"go.corp.nvidia.com/sensorbench/utils/logging"
)

type GeneratorArgs struct {
	Network        string
	Socket         string
	Rate           float64
	BytesPerSec    int64
	Workers        int
	Source         string
	Corpus         string
	Seed           uint64
	SensorID       string
	Count          uint64
	ConnectTimeout time.Duration
	MaxRetries     int
	Duration       time.Duration
	StatsInterval  time.Duration
	ProgressFile   string

	Logging logging.Config
}

// GeneratorParse parses command line arguments and environment variables
func GeneratorParse() (GeneratorArgs, error) {
	return GeneratorParseArgs(flag.CommandLine, os.Args[1:])
}

// GeneratorParseArgs registers the generator flags on fs and parses args.
func GeneratorParseArgs(fs *flag.FlagSet, args []string) (GeneratorArgs, error) {
	network := fs.String("network",
		utils.GetEnv("SENSORBENCH_GENERATOR_NETWORK", "unix"),
		"Endpoint network (unix or tcp)")
	socket := fs.String("socket",
		utils.GetEnv("SENSORBENCH_GENERATOR_SOCKET", "/tmp/suricata.sock"),
		"Endpoint address the system under test reads from")
	rate := fs.Float64("rate",
		utils.GetEnvFloat("SENSORBENCH_GENERATOR_RATE", 0),
		"Records per second across all workers (0 = unbounded). Unbounded flooding "+
			"can turn the generator's own socket buffer into the bottleneck; cap it to "+
			"measure the system under test at a known offered load")
	bytesPerSec := fs.Int64("bytes-per-sec",
		int64(utils.GetEnvInt("SENSORBENCH_GENERATOR_BYTES_PER_SEC", 0)),
		"Bytes per second across all workers (0 = unbounded)")
	workers := fs.Int("workers",
		utils.GetEnvInt("SENSORBENCH_GENERATOR_WORKERS", 1),
		"Parallel writers, each with its own connection")
	source := fs.String("source",
		utils.GetEnv("SENSORBENCH_GENERATOR_SOURCE", generator.SourceTemplate),
		"Record source: template or corpus")
	corpus := fs.String("corpus",
		utils.GetEnv("SENSORBENCH_GENERATOR_CORPUS", ""),
		"File of JSON lines replayed when source is corpus")
	seed := fs.Uint64("seed",
		utils.GetEnvUint64("SENSORBENCH_GENERATOR_SEED", 1),
		"Seed for template records (0 = random)")
	sensorID := fs.String("sensor-id",
		utils.GetEnv("SENSORBENCH_GENERATOR_SENSOR_ID", "sensorbench"),
		"sensor_id written into template record metadata")
	count := fs.Uint64("count",
		utils.GetEnvUint64("SENSORBENCH_GENERATOR_COUNT", 0),
		"Stop after writing this many records (0 = no limit)")
	connectTimeout := fs.Duration("connect-timeout",
		utils.GetEnvDuration("SENSORBENCH_GENERATOR_CONNECT_TIMEOUT", generator.DefaultConnectTimeout),
		"How long to wait for the endpoint to accept a connection")
	maxRetries := fs.Int("max-retries",
		utils.GetEnvInt("SENSORBENCH_GENERATOR_MAX_RETRIES", generator.DefaultMaxRetries),
		"Consecutive reconnect attempts after a failed write before giving up")
	duration := fs.Duration("duration",
		utils.GetEnvDuration("SENSORBENCH_GENERATOR_DURATION", 0),
		"Stop after this long (0 = until signalled)")
	statsInterval := fs.Duration("stats-interval",
		utils.GetEnvDuration("SENSORBENCH_GENERATOR_STATS_INTERVAL", time.Second),
		"Interval between offered load reports")
	progressFile := fs.String("progress-file",
		utils.GetEnv("SENSORBENCH_GENERATOR_PROGRESS_FILE", ""),
		"File to write a heartbeat to on every report (for liveness probes)")

	loggingFlagPtrs := logging.RegisterFlagsOn(fs)

	if err := fs.Parse(args); err != nil {
		return GeneratorArgs{}, err
	}

	return GeneratorArgs{
		Network:        *network,
		Socket:         *socket,
		Rate:           *rate,
		BytesPerSec:    *bytesPerSec,
		Workers:        *workers,
		Source:         *source,
		Corpus:         *corpus,
		Seed:           *seed,
		SensorID:       *sensorID,
		Count:          *count,
		ConnectTimeout: *connectTimeout,
		MaxRetries:     *maxRetries,
		Duration:       *duration,
		StatsInterval:  *statsInterval,
		ProgressFile:   *progressFile,
		Logging:        loggingFlagPtrs.ToConfig(),
	}, nil
}

// Validate checks values that flag parsing cannot.
func (a GeneratorArgs) Validate() error {
	switch a.Network {
	case "unix", "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("network must be unix or tcp (got %q)", a.Network)
	}
	if a.Socket == "" {
		return fmt.Errorf("socket must not be empty")
	}
	if a.Rate < 0 {
		return fmt.Errorf("rate must be >= 0 (got %v)", a.Rate)
	}
	if a.BytesPerSec < 0 {
		return fmt.Errorf("bytes-per-sec must be >= 0 (got %d)", a.BytesPerSec)
	}
	if a.BytesPerSec > 0 && a.Workers > 0 && a.BytesPerSec/int64(a.Workers) < generator.MinBytesPerConn {
		return fmt.Errorf("bytes-per-sec must allow at least %d B/s per worker (got %d over %d workers)",
			generator.MinBytesPerConn, a.BytesPerSec, a.Workers)
	}
	if a.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", a.Workers)
	}
	switch a.Source {
	case generator.SourceTemplate:
	case generator.SourceCorpus:
		if a.Corpus == "" {
			return fmt.Errorf("source corpus requires --corpus")
		}
	default:
		return fmt.Errorf("source must be %s or %s (got %q)",
			generator.SourceTemplate, generator.SourceCorpus, a.Source)
	}
	if a.ConnectTimeout <= 0 {
		return fmt.Errorf("connect-timeout must be > 0 (got %v)", a.ConnectTimeout)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0 (got %d)", a.MaxRetries)
	}
	if a.Duration < 0 {
		return fmt.Errorf("duration must be >= 0 (got %v)", a.Duration)
	}
	if a.StatsInterval <= 0 {
		return fmt.Errorf("stats-interval must be > 0 (got %v)", a.StatsInterval)
	}
	return nil
}

// GeneratorConfig maps the arguments onto a generator.Config.
func (a GeneratorArgs) GeneratorConfig() generator.Config {
	return generator.Config{
		Endpoint:       generator.Endpoint{Network: a.Network, Address: a.Socket},
		Workers:        a.Workers,
		RecordsPerSec:  a.Rate,
		BytesPerSec:    a.BytesPerSec,
		Count:          a.Count,
		Duration:       a.Duration,
		ConnectTimeout: a.ConnectTimeout,
		MaxRetries:     a.MaxRetries,
		StatsInterval:  a.StatsInterval,
	}
}
