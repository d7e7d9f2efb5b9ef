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

// Package throughput holds the measurement core shared by the collector: a
// lock-free event counter written by every stream handler and a reporter
// that turns counter deltas into per-window rate samples.
package throughput

import (
	"sync/atomic"
)

// Accumulator is a monotonic event counter. Add is safe for concurrent use by
// any number of writers; readers take deltas between two Total calls instead
// of resetting, so a read never races with an increment.
type Accumulator struct {
	total atomic.Uint64
}

// NewAccumulator returns a zeroed accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add increments the counter by n and returns the new total. Adding zero is a
// no-op that still returns the current total.
func (a *Accumulator) Add(n uint64) uint64 {
	if n == 0 {
		return a.total.Load()
	}
	return a.total.Add(n)
}

// Total returns an atomic snapshot of the counter.
func (a *Accumulator) Total() uint64 {
	return a.total.Load()
}
