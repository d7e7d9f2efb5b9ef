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

package throughput

import (
	"context"
	"math"
	"time"
)

// Sample is one reporting window.
type Sample struct {
	WindowStart time.Time
	WindowEnd   time.Time
	// EventCount is the counter delta observed between WindowStart and WindowEnd.
	EventCount uint64
	// Total is the cumulative counter value at WindowEnd.
	Total uint64
	// Warmup marks a first window that closed abnormally early.
	Warmup bool
	// Final marks the partial window flushed on shutdown.
	Final bool
}

// Elapsed returns the measured window length.
func (s Sample) Elapsed() time.Duration {
	return s.WindowEnd.Sub(s.WindowStart)
}

// Rate returns events per second over the measured window, rounded to the
// nearest integer.
func (s Sample) Rate() uint64 {
	secs := s.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return uint64(math.Round(float64(s.EventCount) / secs))
}

// Sink receives every sample produced by a Reporter. Implementations must be
// safe to call from the reporter goroutine; they are never called concurrently
// by one Reporter.
type Sink interface {
	Name() string
	Record(ctx context.Context, sample Sample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, sample Sample) error

// Name implements Sink.
func (f SinkFunc) Name() string { return "func" }

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, sample Sample) error { return f(ctx, sample) }

// Summary aggregates all samples of one run.
type Summary struct {
	Start       time.Time
	End         time.Time
	// TotalEvents counts events since the reporter started, not the
	// absolute counter value.
	TotalEvents uint64
	Samples     int
	// PeakRate ignores warm-up and final partial windows.
	PeakRate uint64
}

// MeanRate returns the run-wide events per second.
func (s Summary) MeanRate() uint64 {
	secs := s.End.Sub(s.Start).Seconds()
	if secs <= 0 {
		return 0
	}
	return uint64(math.Round(float64(s.TotalEvents) / secs))
}
