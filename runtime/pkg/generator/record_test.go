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
	"errors"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{
			name: "suricata alert",
			line: `{"timestamp":"2023-10-27T10:00:00.000000+0000","flow_id":1,"event_type":"alert","alert":{"signature_id":1}}`,
		},
		{
			name: "rfc3339 timestamp and nested object first",
			line: `{"dns":{"rrname":"example.com"},"event_type":"dns","flow_id":7,"timestamp":"2026-01-02T03:04:05Z"}`,
		},
		{
			name: "trailing newline",
			line: "{\"timestamp\":\"2026-01-02T03:04:05Z\",\"event_type\":\"alert\",\"alert\":{},\"flow_id\":1}\n",
		},
		{name: "empty", line: "", wantErr: ErrEmptyRecord},
		{name: "whitespace", line: "   \n", wantErr: ErrEmptyRecord},
		{name: "array", line: `[1,2]`, wantErr: ErrInvalidRecord},
		{name: "truncated", line: `{"timestamp":"2026-01-02T03:04:05Z","event_type":"al`, wantErr: ErrInvalidRecord},
		{
			name:    "missing timestamp",
			line:    `{"event_type":"alert","alert":{},"flow_id":1}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "bad timestamp",
			line:    `{"timestamp":"yesterday","event_type":"alert","alert":{},"flow_id":1}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "numeric event type",
			line:    `{"timestamp":"2026-01-02T03:04:05Z","event_type":3,"alert":{},"flow_id":1}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "missing nested object",
			line:    `{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","flow_id":1}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "nested field is not an object",
			line:    `{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":"x","flow_id":1}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "string flow id",
			line:    `{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{},"flow_id":"1"}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "missing flow id",
			line:    `{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{}}`,
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "embedded newline",
			line:    "{\"timestamp\":\"2026-01-02T03:04:05Z\",\n\"event_type\":\"alert\",\"alert\":{},\"flow_id\":1}",
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord([]byte(tt.line))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateRecord() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRecordTerminatesWithSingleNewline(t *testing.T) {
	line := `{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{},"flow_id":1}`
	for _, in := range []string{line, line + "\n", line + "\r\n"} {
		rec, err := NewRecord([]byte(in))
		if err != nil {
			t.Fatalf("NewRecord(%q) error = %v", in, err)
		}
		if string(rec) != line+"\n" {
			t.Errorf("NewRecord(%q) = %q", in, rec)
		}
	}
}

func TestNewRecordCopiesInput(t *testing.T) {
	line := []byte(`{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{},"flow_id":1}`)
	rec, err := NewRecord(line)
	if err != nil {
		t.Fatal(err)
	}
	line[0] = 'X'
	if rec[0] != '{' {
		t.Error("record shares memory with its input")
	}
}
