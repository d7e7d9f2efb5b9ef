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
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPrometheus exposes the accumulator and reporter through reg. The
// collectors read the atomic counters at scrape time, so nothing is added to
// the counting path.
func RegisterPrometheus(reg prometheus.Registerer, acc *Accumulator, reporter *Reporter) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sensorbench",
			Subsystem: "collector",
			Name:      "events_total",
			Help:      "Events decoded and counted by the mock collector.",
		}, func() float64 { return float64(acc.Total()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sensorbench",
			Subsystem: "collector",
			Name:      "throughput_events_per_second",
			Help:      "Rate reported for the most recent sampling window.",
		}, func() float64 { return float64(reporter.LastRate()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
