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

package progress_check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

// ProgressWriter is a liveness heartbeat: each report atomically replaces the
// file with "<unix seconds> <cumulative count>". It is safe for concurrent use.
type ProgressWriter struct {
	filename string
	mu       sync.Mutex
}

// NewProgressWriter creates the parent directory of filename if needed.
func NewProgressWriter(filename string) (*ProgressWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory %s: %w", dir, err)
	}
	return &ProgressWriter{filename: filename}, nil
}

// ReportProgress writes now and count to the progress file.
func (pw *ProgressWriter) ReportProgress(now time.Time, count uint64) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	tempFile := fmt.Sprintf("%s-%s.tmp", pw.filename, uuid.New().String())
	timestamp := float64(now.UnixNano()) / 1e9
	content := strconv.FormatFloat(timestamp, 'f', 6, 64) + " " + strconv.FormatUint(count, 10)

	if err := os.WriteFile(tempFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write progress to temp file %s: %w", tempFile, err)
	}
	if err := os.Rename(tempFile, pw.filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file %s to %s: %w", tempFile, pw.filename, err)
	}
	return nil
}

// Name implements throughput.Sink.
func (pw *ProgressWriter) Name() string { return "progress" }

// Record implements throughput.Sink by heartbeating on every sample.
func (pw *ProgressWriter) Record(_ context.Context, sample throughput.Sample) error {
	return pw.ReportProgress(sample.WindowEnd, sample.Total)
}

// ReadProgress parses a progress file written by ReportProgress.
func ReadProgress(filename string) (time.Time, uint64, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return time.Time{}, 0, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) != 2 {
		return time.Time{}, 0, fmt.Errorf("malformed progress file %s", filename)
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed progress timestamp: %w", err)
	}
	count, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed progress count: %w", err)
	}
	return time.Unix(0, int64(secs*1e9)), count, nil
}
