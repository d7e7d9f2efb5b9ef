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

	"go.corp.nvidia.com/sensorbench/utils/postgres"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

// PostgresSink inserts every sample into the throughput_samples table.
type PostgresSink struct {
	db    postgres.Execer
	runID string
}

// NewPostgresSink creates the samples table if needed.
func NewPostgresSink(ctx context.Context, db postgres.Execer, runID string) (*PostgresSink, error) {
	if err := postgres.EnsureSamplesTable(ctx, db); err != nil {
		return nil, err
	}
	return &PostgresSink{db: db, runID: runID}, nil
}

// Name implements throughput.Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Record implements throughput.Sink.
func (s *PostgresSink) Record(ctx context.Context, sample throughput.Sample) error {
	return postgres.InsertSample(ctx, s.db, s.runID, sample)
}
