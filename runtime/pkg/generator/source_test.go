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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTemplateSourceRecordsAreValid(t *testing.T) {
	src := NewTemplateSource("bench", 42, fixedClock)
	for i := 0; i < 1000; i++ {
		rec := src.Next()
		if rec[len(rec)-1] != '\n' {
			t.Fatalf("record %d is not newline terminated", i)
		}
		if bytes.Count(rec, []byte("\n")) != 1 {
			t.Fatalf("record %d contains an embedded newline", i)
		}
		if err := ValidateRecord(rec); err != nil {
			t.Fatalf("record %d invalid: %v\n%s", i, err, rec)
		}
	}
}

func TestTemplateSourceIncrementsIdentifiers(t *testing.T) {
	src := NewTemplateSource("bench", 7, fixedClock)
	var prevFlow, prevSig uint64
	for i := 0; i < 10; i++ {
		rec := src.Next()
		flow := jsoniter.Get(rec, "flow_id").ToUint64()
		sig := jsoniter.Get(rec, "alert", "signature_id").ToUint64()
		if i > 0 && (flow != prevFlow+1 || sig != prevSig+1) {
			t.Fatalf("record %d: flow_id %d signature_id %d after %d/%d", i, flow, sig, prevFlow, prevSig)
		}
		prevFlow, prevSig = flow, sig
	}
	if got := jsoniter.Get(src.Next(), "metadata", "sensor_id").ToString(); got != "bench" {
		t.Errorf("sensor_id = %q, want bench", got)
	}
}

func TestTemplateSourceIsDeterministicForSeed(t *testing.T) {
	a := NewTemplateSource("bench", 99, fixedClock)
	b := NewTemplateSource("bench", 99, fixedClock)
	c := NewTemplateSource("bench", 100, fixedClock)

	differs := false
	for i := 0; i < 300; i++ {
		ra, rb, rc := a.Next(), b.Next(), c.Next()
		if !bytes.Equal(ra, rb) {
			t.Fatalf("record %d differs for identical seeds:\n%s\n%s", i, ra, rb)
		}
		if !bytes.Equal(ra, rc) {
			differs = true
		}
	}
	if !differs {
		t.Error("different seeds produced identical sequences")
	}
}

func TestLoadCorpus(t *testing.T) {
	path := writeCorpus(t,
		`{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{},"flow_id":1}`,
		``,
		`{"timestamp":"2026-01-02T03:04:06Z","event_type":"dns","dns":{},"flow_id":2}`,
	)
	records, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("LoadCorpus() returned %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec[len(rec)-1] != '\n' {
			t.Errorf("record %q not newline terminated", rec)
		}
	}
}

func TestLoadCorpusReportsLineOfInvalidRecord(t *testing.T) {
	path := writeCorpus(t,
		`{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{},"flow_id":1}`,
		`{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert"}`,
	)
	_, err := LoadCorpus(path)
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("LoadCorpus() error = %v, want ErrInvalidRecord", err)
	}
	if !strings.Contains(err.Error(), ":2:") {
		t.Errorf("error %q does not name line 2", err)
	}
}

func TestLoadCorpusRejectsEmptyFile(t *testing.T) {
	if _, err := LoadCorpus(writeCorpus(t, "", "")); err == nil {
		t.Fatal("expected an error for a corpus without records")
	}
	if _, err := LoadCorpus(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error for a missing corpus")
	}
}

func TestCorpusReplayIsRepeatable(t *testing.T) {
	path := writeCorpus(t,
		`{"timestamp":"2026-01-02T03:04:05Z","event_type":"alert","alert":{"signature_id":1},"flow_id":1}`,
		`{"timestamp":"2026-01-02T03:04:06Z","event_type":"alert","alert":{"signature_id":2},"flow_id":2}`,
		`{"timestamp":"2026-01-02T03:04:07Z","event_type":"dns","dns":{},"flow_id":3}`,
	)
	records, err := LoadCorpus(path)
	if err != nil {
		t.Fatal(err)
	}

	histogram := func(src Source, n int) map[string]int {
		counts := make(map[string]int)
		for i := 0; i < n; i++ {
			counts[jsoniter.Get(src.Next(), "event_type").ToString()]++
		}
		return counts
	}

	first := histogram(NewCorpusSource(records, 0), 3000)
	second := histogram(NewCorpusSource(records, 0), 3000)
	if len(first) != len(second) {
		t.Fatalf("replays differ: %v vs %v", first, second)
	}
	for k, v := range first {
		if second[k] != v {
			t.Fatalf("replays differ for %q: %d vs %d", k, v, second[k])
		}
	}
	if first["alert"] != 2000 || first["dns"] != 1000 {
		t.Errorf("unexpected distribution %v", first)
	}
}

func TestCorpusSourceOffsetWraps(t *testing.T) {
	records := []Record{Record("a\n"), Record("b\n"), Record("c\n")}
	src := NewCorpusSource(records, 4)
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, string(src.Next()))
	}
	want := []string{"b\n", "c\n", "a\n", "b\n"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %q, want %q", got, want)
		}
	}
}

func TestNewSourceFactory(t *testing.T) {
	if _, err := NewSourceFactory("bogus", "", 1, "bench"); err == nil {
		t.Error("expected error for unknown source")
	}
	if _, err := NewSourceFactory(SourceCorpus, "", 1, "bench"); err == nil {
		t.Error("expected error for corpus source without a path")
	}

	factory, err := NewSourceFactory(SourceTemplate, "", 5, "bench")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := factory(0)
	b, _ := factory(1)
	if bytes.Equal(a.Next(), b.Next()) {
		t.Error("workers share a seed")
	}
}
