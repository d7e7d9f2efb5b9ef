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
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	// DefaultInterval is the nominal reporting cadence.
	DefaultInterval = time.Second
	// DefaultSinkTimeout bounds a single Sink.Record call.
	DefaultSinkTimeout = 2 * time.Second
	// DefaultLabel prefixes every sample line.
	DefaultLabel = "Server Throughput"
	// DefaultUnit names what the accumulator counts.
	DefaultUnit = "events"
	// warmupFraction of the interval below which the first window is flagged.
	warmupFraction = 0.5
)

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	Interval    time.Duration
	SinkTimeout time.Duration
	// Label and Unit shape the sample line as "<Label>: <rate> <Unit>/sec".
	Label string
	Unit  string
}

// Reporter samples an Accumulator on a fixed ticker. The reporter goroutine
// is the only owner of the window state; stream handlers only touch the
// accumulator.
type Reporter struct {
	acc         *Accumulator
	interval    time.Duration
	sinkTimeout time.Duration
	sinks       []Sink
	format      string
	logger      *slog.Logger
	now         func() time.Time

	lastTick   time.Time
	lastCount  uint64
	startCount uint64
	first      bool
	summary    Summary

	lastRate atomic.Uint64
}

// NewReporter creates a reporter for acc. A nil logger falls back to slog.Default().
func NewReporter(acc *Accumulator, config ReporterConfig, logger *slog.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = DefaultSinkTimeout
	}
	if config.Label == "" {
		config.Label = DefaultLabel
	}
	if config.Unit == "" {
		config.Unit = DefaultUnit
	}
	return &Reporter{
		acc:         acc,
		interval:    config.Interval,
		sinkTimeout: config.SinkTimeout,
		sinks:       sinks,
		format:      config.Label + ": %d " + config.Unit + "/sec",
		logger:      logger,
		now:         time.Now,
	}
}

// Start opens the first window at now and snapshots the counter.
func (r *Reporter) Start(now time.Time) {
	r.lastTick = now
	r.lastCount = r.acc.Total()
	r.startCount = r.lastCount
	r.first = true
	r.summary = Summary{Start: now, End: now}
}

// Tick closes the current window at now and opens the next one. It returns
// false when now does not lie after the window start, in which case no sample
// is produced and the window stays open.
func (r *Reporter) Tick(ctx context.Context, now time.Time) (Sample, bool) {
	return r.closeWindow(ctx, now, false)
}

func (r *Reporter) closeWindow(ctx context.Context, now time.Time, final bool) (Sample, bool) {
	if !now.After(r.lastTick) {
		return Sample{}, false
	}

	current := r.acc.Total()
	sample := Sample{
		WindowStart: r.lastTick,
		WindowEnd:   now,
		EventCount:  current - r.lastCount,
		Total:       current,
		Final:       final,
	}
	if r.first && sample.Elapsed() < time.Duration(float64(r.interval)*warmupFraction) {
		sample.Warmup = true
	}
	r.first = false
	r.lastTick = now
	r.lastCount = current

	r.record(ctx, sample)
	return sample, true
}

func (r *Reporter) record(ctx context.Context, sample Sample) {
	rate := sample.Rate()
	r.lastRate.Store(rate)

	r.summary.End = sample.WindowEnd
	r.summary.TotalEvents = sample.Total - r.startCount
	r.summary.Samples++
	if !sample.Warmup && !sample.Final && rate > r.summary.PeakRate {
		r.summary.PeakRate = rate
	}

	r.logger.InfoContext(ctx, fmt.Sprintf(r.format, rate),
		slog.Uint64("events", sample.EventCount),
		slog.Uint64("total", sample.Total),
		slog.Int64("window_ms", sample.Elapsed().Milliseconds()),
		slog.Bool("warmup", sample.Warmup),
	)

	for _, sink := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sinkTimeout)
		if err := sink.Record(sinkCtx, sample); err != nil {
			r.logger.WarnContext(ctx, "failed to record throughput sample",
				slog.String("sink", sink.Name()),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

// Run samples the accumulator every interval until ctx is cancelled. On stop
// it flushes the partial window if events arrived since the last tick and
// logs the run summary.
func (r *Reporter) Run(ctx context.Context) Summary {
	r.Start(r.now())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.Stop(ctx)
		case <-ticker.C:
			r.Tick(ctx, r.now())
		}
	}
}

// Stop flushes the final partial window and returns the run summary.
func (r *Reporter) Stop(ctx context.Context) Summary {
	if r.acc.Total() != r.lastCount {
		r.closeWindow(ctx, r.now(), true)
	}

	summary := r.summary
	r.logger.InfoContext(ctx, "throughput run summary",
		slog.Uint64("total_events", summary.TotalEvents),
		slog.Int("samples", summary.Samples),
		slog.Uint64("mean_events_per_sec", summary.MeanRate()),
		slog.Uint64("peak_events_per_sec", summary.PeakRate),
		slog.Duration("elapsed", summary.End.Sub(summary.Start)),
	)
	return summary
}

// LastRate returns the rate of the most recent sample. Safe for concurrent use.
func (r *Reporter) LastRate() uint64 {
	return r.lastRate.Load()
}
