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

package generator

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// SuricataTimeLayout is the timestamp layout used by Suricata EVE output.
const SuricataTimeLayout = "2006-01-02T15:04:05.000000-0700"

var (
	// ErrEmptyRecord is returned for blank lines.
	ErrEmptyRecord = errors.New("empty record")
	// ErrInvalidRecord is returned for lines that do not match the record schema.
	ErrInvalidRecord = errors.New("invalid record")
)

var json = jsoniter.ConfigFastest

// Record is one newline-terminated JSON object. Records are never modified
// after they are produced, so a Record may be written any number of times.
type Record []byte

// NewRecord validates line and returns it as a Record with exactly one
// trailing newline.
func NewRecord(line []byte) (Record, error) {
	body := bytes.TrimRight(line, "\r\n")
	if err := ValidateRecord(body); err != nil {
		return nil, err
	}
	rec := make(Record, len(body)+1)
	copy(rec, body)
	rec[len(body)] = '\n'
	return rec, nil
}

// ValidateRecord checks the minimal schema every consumer relies on: a single
// JSON object with a string "timestamp", a string "event_type", an object
// field named after the event type and a numeric "flow_id".
func ValidateRecord(line []byte) error {
	body := bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyRecord
	}
	if bytes.IndexByte(body, '\n') >= 0 {
		return fmt.Errorf("%w: embedded newline", ErrInvalidRecord)
	}

	iter := json.BorrowIterator(body)
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return fmt.Errorf("%w: not a JSON object", ErrInvalidRecord)
	}

	var (
		timestamp string
		eventType string
		hasFlowID bool
		objects   []string
		fieldErr  error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case "timestamp":
			if it.WhatIsNext() != jsoniter.StringValue {
				fieldErr = fmt.Errorf("%w: timestamp must be a string", ErrInvalidRecord)
				return false
			}
			timestamp = it.ReadString()
		case "event_type":
			if it.WhatIsNext() != jsoniter.StringValue {
				fieldErr = fmt.Errorf("%w: event_type must be a string", ErrInvalidRecord)
				return false
			}
			eventType = it.ReadString()
		case "flow_id":
			if it.WhatIsNext() != jsoniter.NumberValue {
				fieldErr = fmt.Errorf("%w: flow_id must be a number", ErrInvalidRecord)
				return false
			}
			it.Skip()
			hasFlowID = true
		default:
			if it.WhatIsNext() == jsoniter.ObjectValue {
				objects = append(objects, field)
			}
			it.Skip()
		}
		return true
	})
	if fieldErr != nil {
		return fieldErr
	}
	if iter.Error != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, iter.Error)
	}

	switch {
	case timestamp == "":
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	case !validTimestamp(timestamp):
		return fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidRecord, timestamp)
	case eventType == "":
		return fmt.Errorf("%w: missing event_type", ErrInvalidRecord)
	case !slices.Contains(objects, eventType):
		return fmt.Errorf("%w: missing %q object", ErrInvalidRecord, eventType)
	case !hasFlowID:
		return fmt.Errorf("%w: missing flow_id", ErrInvalidRecord)
	}
	return nil
}

func validTimestamp(ts string) bool {
	if _, err := time.Parse(SuricataTimeLayout, ts); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339Nano, ts)
	return err == nil
}
