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
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
)

// ErrMalformedBatch is returned when a batch does not decode as a SensorEvent.
var ErrMalformedBatch = errors.New("malformed batch")

// Batch is the result of scanning one SensorEvent message.
type Batch struct {
	SensorID string
	SentAt   int64
	// Accepted events carry a non-empty key and a positive timestamp.
	Accepted int
	// Rejected events decoded but failed validation.
	Rejected int
}

// DecodeBatch validates raw and counts its metrics without building them.
// If observe is non-nil it receives the key of every accepted event. Any wire
// error fails the whole batch with ErrMalformedBatch and nothing is observed.
func DecodeBatch(raw []byte, observe func(key []byte)) (Batch, error) {
	var batch Batch
	var keys [][]byte

	err := pb.ScanFields(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case pb.SensorEventSensorIDField:
			v, n, err := pb.ConsumeBytesField(typ, b)
			batch.SensorID = string(v)
			return n, err
		case pb.SensorEventSentAtField:
			v, n, err := pb.ConsumeVarintField(typ, b)
			batch.SentAt = int64(v)
			return n, err
		case pb.SensorEventMetricsField:
			v, n, err := pb.ConsumeBytesField(typ, b)
			if err != nil {
				return n, err
			}
			key, ok, err := scanMetric(v)
			if err != nil {
				return n, fmt.Errorf("metric %d: %w", batch.Accepted+batch.Rejected, err)
			}
			if !ok {
				batch.Rejected++
				return n, nil
			}
			batch.Accepted++
			if observe != nil {
				keys = append(keys, key)
			}
			return n, nil
		}
		return pb.SkipField(num, typ, b)
	})
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}

	for _, k := range keys {
		observe(k)
	}
	return batch, nil
}

// scanMetric returns the metric key and whether the metric is countable.
func scanMetric(b []byte) ([]byte, bool, error) {
	var key []byte
	var timestamp int64
	err := pb.ScanFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case pb.MetricKeyField:
			v, n, err := pb.ConsumeBytesField(typ, b)
			key = v
			return n, err
		case pb.MetricTimestampField:
			v, n, err := pb.ConsumeVarintField(typ, b)
			timestamp = int64(v)
			return n, err
		}
		return pb.SkipField(num, typ, b)
	})
	if err != nil {
		return nil, false, err
	}
	return key, len(key) > 0 && timestamp > 0, nil
}
