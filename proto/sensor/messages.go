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

// Package sensor holds the wire types of the sensor.SensorService protocol
// described in sensor.proto. Messages are encoded with protowire directly so
// the collector can scan batches without materializing them.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from sensor.proto.
const (
	SensorEventSensorIDField protowire.Number = 1
	SensorEventSentAtField   protowire.Number = 2
	SensorEventMetricsField  protowire.Number = 3

	MetricKeyField       protowire.Number = 1
	MetricTimestampField protowire.Number = 2
	MetricNameField      protowire.Number = 3
	MetricValueField     protowire.Number = 4
	MetricLabelsField    protowire.Number = 5
	MetricPayloadField   protowire.Number = 6

	BatchAckBatchesField  protowire.Number = 1
	BatchAckEventsField   protowire.Number = 2
	BatchAckRejectedField protowire.Number = 3
)

// ErrWireType is returned when a known field arrives with an unexpected wire type.
var ErrWireType = errors.New("unexpected wire type")

// Metric is one event.
type Metric struct {
	Key       string
	Timestamp int64
	Name      string
	Value     float64
	Labels    map[string]string
	Payload   []byte
}

// SensorEvent is one batch of metrics.
type SensorEvent struct {
	SensorID string
	SentAt   int64
	Metrics  []Metric
}

// BatchAck carries cumulative per-stream counters.
type BatchAck struct {
	Batches  uint64
	Events   uint64
	Rejected uint64
}

// AppendWire appends the protobuf encoding of m to b.
func (m *Metric) AppendWire(b []byte) []byte {
	if m.Key != "" {
		b = protowire.AppendTag(b, MetricKeyField, protowire.BytesType)
		b = protowire.AppendString(b, m.Key)
	}
	if m.Timestamp != 0 {
		b = protowire.AppendTag(b, MetricTimestampField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Timestamp))
	}
	if m.Name != "" {
		b = protowire.AppendTag(b, MetricNameField, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	if m.Value != 0 {
		b = protowire.AppendTag(b, MetricValueField, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.Value))
	}
	if len(m.Labels) > 0 {
		keys := make([]string, 0, len(m.Labels))
		for k := range m.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.BytesType)
			entry = protowire.AppendString(entry, k)
			entry = protowire.AppendTag(entry, 2, protowire.BytesType)
			entry = protowire.AppendString(entry, m.Labels[k])
			b = protowire.AppendTag(b, MetricLabelsField, protowire.BytesType)
			b = protowire.AppendBytes(b, entry)
		}
	}
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, MetricPayloadField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

// AppendWire appends the protobuf encoding of e to b.
func (e *SensorEvent) AppendWire(b []byte) []byte {
	if e.SensorID != "" {
		b = protowire.AppendTag(b, SensorEventSensorIDField, protowire.BytesType)
		b = protowire.AppendString(b, e.SensorID)
	}
	if e.SentAt != 0 {
		b = protowire.AppendTag(b, SensorEventSentAtField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.SentAt))
	}
	var scratch []byte
	for i := range e.Metrics {
		scratch = e.Metrics[i].AppendWire(scratch[:0])
		b = protowire.AppendTag(b, SensorEventMetricsField, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}
	return b
}

// MarshalWire implements WireMarshaler.
func (e *SensorEvent) MarshalWire() ([]byte, error) {
	return e.AppendWire(nil), nil
}

// UnmarshalWire decodes a full SensorEvent, replacing the contents of e.
func (e *SensorEvent) UnmarshalWire(b []byte) error {
	*e = SensorEvent{}
	return ScanFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case SensorEventSensorIDField:
			v, n, err := ConsumeBytesField(typ, b)
			e.SensorID = string(v)
			return n, err
		case SensorEventSentAtField:
			v, n, err := ConsumeVarintField(typ, b)
			e.SentAt = int64(v)
			return n, err
		case SensorEventMetricsField:
			v, n, err := ConsumeBytesField(typ, b)
			if err != nil {
				return n, err
			}
			var m Metric
			if err := m.UnmarshalWire(v); err != nil {
				return n, fmt.Errorf("metric %d: %w", len(e.Metrics), err)
			}
			e.Metrics = append(e.Metrics, m)
			return n, nil
		}
		return SkipField(num, typ, b)
	})
}

// UnmarshalWire decodes a Metric, replacing the contents of m.
func (m *Metric) UnmarshalWire(b []byte) error {
	*m = Metric{}
	return ScanFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case MetricKeyField:
			v, n, err := ConsumeBytesField(typ, b)
			m.Key = string(v)
			return n, err
		case MetricTimestampField:
			v, n, err := ConsumeVarintField(typ, b)
			m.Timestamp = int64(v)
			return n, err
		case MetricNameField:
			v, n, err := ConsumeBytesField(typ, b)
			m.Name = string(v)
			return n, err
		case MetricValueField:
			if typ != protowire.Fixed64Type {
				return 0, fmt.Errorf("field %d: %w", num, ErrWireType)
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.Value = math.Float64frombits(v)
			return n, nil
		case MetricLabelsField:
			v, n, err := ConsumeBytesField(typ, b)
			if err != nil {
				return n, err
			}
			k, val, err := decodeMapEntry(v)
			if err != nil {
				return n, err
			}
			if m.Labels == nil {
				m.Labels = make(map[string]string)
			}
			m.Labels[k] = val
			return n, nil
		case MetricPayloadField:
			v, n, err := ConsumeBytesField(typ, b)
			m.Payload = append([]byte(nil), v...)
			return n, err
		}
		return SkipField(num, typ, b)
	})
}

// MarshalWire implements WireMarshaler.
func (a *BatchAck) MarshalWire() ([]byte, error) {
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		v   uint64
	}{
		{BatchAckBatchesField, a.Batches},
		{BatchAckEventsField, a.Events},
		{BatchAckRejectedField, a.Rejected},
	} {
		if f.v == 0 {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		b = protowire.AppendVarint(b, f.v)
	}
	return b, nil
}

// UnmarshalWire decodes a BatchAck, replacing the contents of a.
func (a *BatchAck) UnmarshalWire(b []byte) error {
	*a = BatchAck{}
	return ScanFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var dst *uint64
		switch num {
		case BatchAckBatchesField:
			dst = &a.Batches
		case BatchAckEventsField:
			dst = &a.Events
		case BatchAckRejectedField:
			dst = &a.Rejected
		default:
			return SkipField(num, typ, b)
		}
		v, n, err := ConsumeVarintField(typ, b)
		*dst = v
		return n, err
	})
}

func decodeMapEntry(b []byte) (string, string, error) {
	var key, value string
	err := ScanFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := ConsumeBytesField(typ, b)
			key = string(v)
			return n, err
		case 2:
			v, n, err := ConsumeBytesField(typ, b)
			value = string(v)
			return n, err
		}
		return SkipField(num, typ, b)
	})
	return key, value, err
}

// ScanFields walks the top-level fields of b. visit receives the bytes after
// the tag and returns how many of them the field value occupied.
func ScanFields(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

// ConsumeBytesField reads a length-delimited field value.
func ConsumeBytesField(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, ErrWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// ConsumeVarintField reads a varint field value.
func ConsumeVarintField(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, ErrWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// SkipField returns the length of a field value that is not interpreted.
func SkipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
