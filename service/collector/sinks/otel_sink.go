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
	"errors"
	"strconv"

	metrics "go.corp.nvidia.com/sensorbench/utils/metrics-go"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const (
	eventsMetric = "sensorbench.collector.events"
	rateMetric   = "sensorbench.collector.throughput"
	windowMetric = "sensorbench.collector.window.duration"
)

// OTELSink records samples as OpenTelemetry instruments.
type OTELSink struct {
	mc   *metrics.MetricCreator
	tags map[string]string
}

// NewOTELSink tags every measurement with run_id.
func NewOTELSink(mc *metrics.MetricCreator, runID string) *OTELSink {
	return &OTELSink{mc: mc, tags: map[string]string{"run_id": runID}}
}

// Name implements throughput.Sink.
func (s *OTELSink) Name() string { return "otel" }

// Record implements throughput.Sink.
func (s *OTELSink) Record(ctx context.Context, sample throughput.Sample) error {
	tags := make(map[string]string, len(s.tags)+1)
	for k, v := range s.tags {
		tags[k] = v
	}
	tags["warmup"] = strconv.FormatBool(sample.Warmup)

	return errors.Join(
		s.mc.RecordCounter(ctx, eventsMetric, int64(sample.EventCount), "{event}",
			"Events counted by the mock collector", tags),
		s.mc.RecordGauge(ctx, rateMetric, float64(sample.Rate()), "{event}/s",
			"Events per second over the last window", tags),
		s.mc.RecordHistogram(ctx, windowMetric, sample.Elapsed().Seconds(), "s",
			"Measured length of each reporting window", tags),
	)
}
