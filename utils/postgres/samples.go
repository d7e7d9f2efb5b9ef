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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

// SamplesTable stores one row per throughput window.
const SamplesTable = "throughput_samples"

const createSamplesTableSQL = `CREATE TABLE IF NOT EXISTS throughput_samples (
    id           BIGSERIAL PRIMARY KEY,
    run_id       TEXT        NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    window_end   TIMESTAMPTZ NOT NULL,
    event_count  BIGINT      NOT NULL,
    total        BIGINT      NOT NULL,
    rate         BIGINT      NOT NULL,
    warmup       BOOLEAN     NOT NULL DEFAULT FALSE,
    final        BOOLEAN     NOT NULL DEFAULT FALSE
)`

const insertSampleSQL = `INSERT INTO throughput_samples
    (run_id, window_start, window_end, event_count, total, rate, warmup, final)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Execer is the subset of pgxpool.Pool used to write samples.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EnsureSamplesTable creates the samples table if it does not exist.
func EnsureSamplesTable(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, createSamplesTableSQL); err != nil {
		return fmt.Errorf("failed to create %s: %w", SamplesTable, err)
	}
	return nil
}

// InsertSample writes one sample for runID.
func InsertSample(ctx context.Context, db Execer, runID string, sample throughput.Sample) error {
	_, err := db.Exec(ctx, insertSampleSQL,
		runID,
		sample.WindowStart,
		sample.WindowEnd,
		int64(sample.EventCount),
		int64(sample.Total),
		int64(sample.Rate()),
		sample.Warmup,
		sample.Final,
	)
	if err != nil {
		return fmt.Errorf("failed to insert throughput sample: %w", err)
	}
	return nil
}
