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

package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

// StreamKey returns the Redis stream that holds the samples of runID.
func StreamKey(runID string) string {
	return fmt.Sprintf("sensorbench:{%s}:samples", runID)
}

// RedisSink appends every sample to a Redis stream.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisSink writes to StreamKey(runID). maxLen > 0 trims the stream
// approximately to that many entries.
func NewRedisSink(client redis.Cmdable, runID string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: StreamKey(runID), maxLen: maxLen}
}

// Name implements throughput.Sink.
func (s *RedisSink) Name() string { return "redis" }

// Stream returns the stream key written to.
func (s *RedisSink) Stream() string { return s.stream }

// Record implements throughput.Sink.
func (s *RedisSink) Record(ctx context.Context, sample throughput.Sample) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: sampleValues(sample),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add sample to Redis stream %s: %w", s.stream, err)
	}
	return nil
}

func sampleValues(sample throughput.Sample) []interface{} {
	return []interface{}{
		"window_start", sample.WindowStart.UTC().Format(time.RFC3339Nano),
		"window_end", sample.WindowEnd.UTC().Format(time.RFC3339Nano),
		"events", sample.EventCount,
		"total", sample.Total,
		"rate", sample.Rate(),
		"warmup", sample.Warmup,
		"final", sample.Final,
	}
}
