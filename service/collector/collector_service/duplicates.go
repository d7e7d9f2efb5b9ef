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

package collector_service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DuplicateTracker counts event keys seen more than once within a window.
// Duplicates are still counted as events; the tracker only reports them.
// Observe takes a lock, so enabling it perturbs the measured throughput.
type DuplicateTracker struct {
	mu         sync.Mutex
	seen       *expirable.LRU[string, struct{}]
	duplicates atomic.Uint64
}

// NewDuplicateTracker remembers up to capacity keys for window each.
func NewDuplicateTracker(capacity int, window time.Duration) *DuplicateTracker {
	return &DuplicateTracker{
		seen: expirable.NewLRU[string, struct{}](capacity, nil, window),
	}
}

// Observe records key and reports whether it was already present.
func (d *DuplicateTracker) Observe(key []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := string(key)
	if _, ok := d.seen.Get(k); ok {
		d.duplicates.Add(1)
		return true
	}
	d.seen.Add(k, struct{}{})
	return false
}

// Duplicates returns the number of repeated keys observed so far.
func (d *DuplicateTracker) Duplicates() uint64 {
	if d == nil {
		return 0
	}
	return d.duplicates.Load()
}
