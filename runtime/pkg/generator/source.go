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
	"bufio"
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	SourceTemplate = "template"
	SourceCorpus   = "corpus"

	maxCorpusLine = 1 << 20
	// variants is the number of pre-faked field sets a TemplateSource cycles
	// through, so that faking stays off the write path.
	variants = 256
)

// Source yields records for one writer. Sources are not safe for concurrent
// use; every worker owns its own.
type Source interface {
	Next() Record
}

// SourceFactory builds the Source for worker number worker.
type SourceFactory func(worker int) (Source, error)

// CorpusSource replays a fixed list of records in order, wrapping around at
// the end.
type CorpusSource struct {
	records []Record
	pos     int
}

// NewCorpusSource starts replay at offset so that parallel workers do not
// emit identical sequences.
func NewCorpusSource(records []Record, offset int) *CorpusSource {
	pos := 0
	if len(records) > 0 {
		pos = offset % len(records)
	}
	return &CorpusSource{records: records, pos: pos}
}

func (s *CorpusSource) Next() Record {
	rec := s.records[s.pos]
	s.pos++
	if s.pos == len(s.records) {
		s.pos = 0
	}
	return rec
}

// LoadCorpus reads a file of JSON lines. Blank lines are skipped; any other
// line must pass ValidateRecord.
func LoadCorpus(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxCorpusLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := NewRecord(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("corpus %s has no records", path)
	}
	return records, nil
}

type alertVariant struct {
	srcIP     string
	destIP    string
	srcPort   int
	destPort  int
	proto     string
	signature string
	category  string
	severity  int
	hostname  string
	url       string
	userAgent string
	method    string
	status    int
	length    int
}

// TemplateSource produces Suricata EVE alert records. Every record carries a
// fresh flow_id and signature_id, so consecutive records never hash alike.
// Two sources with the same seed and clock produce identical sequences.
type TemplateSource struct {
	sensorID    string
	variants    []alertVariant
	next        uint64
	signatureID uint64
	now         func() time.Time
}

// NewTemplateSource creates a source seeded with seed. A zero seed is
// replaced by a random one.
func NewTemplateSource(sensorID string, seed uint64, now func() time.Time) *TemplateSource {
	if now == nil {
		now = time.Now
	}
	faker := gofakeit.New(seed)
	vs := make([]alertVariant, variants)
	for i := range vs {
		vs[i] = alertVariant{
			srcIP:     faker.IPv4Address(),
			destIP:    faker.IPv4Address(),
			srcPort:   faker.IntRange(1024, 65535),
			destPort:  faker.RandomInt([]int{22, 53, 80, 443, 8080}),
			proto:     faker.RandomString([]string{"TCP", "UDP"}),
			signature: faker.HackerPhrase(),
			category:  faker.RandomString([]string{"Misc activity", "Attempted Information Leak", "Potentially Bad Traffic", "Not Suspicious Traffic"}),
			severity:  faker.IntRange(1, 3),
			hostname:  faker.DomainName(),
			url:       "/" + faker.Word(),
			userAgent: faker.UserAgent(),
			method:    faker.HTTPMethod(),
			status:    faker.HTTPStatusCode(),
			length:    faker.IntRange(64, 65536),
		}
	}
	return &TemplateSource{
		sensorID:    sensorID,
		variants:    vs,
		signatureID: 1000000,
		now:         now,
	}
}

func (s *TemplateSource) Next() Record {
	s.next++
	s.signatureID++
	v := &s.variants[s.next%uint64(len(s.variants))]
	ts := s.now().Format(SuricataTimeLayout)

	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("metadata")
	stream.WriteObjectStart()
	stream.WriteObjectField("sensor_id")
	stream.WriteString(s.sensorID)
	stream.WriteMore()
	stream.WriteObjectField("sensor_version")
	stream.WriteString("1.0")
	stream.WriteObjectEnd()
	stream.WriteMore()
	stream.WriteObjectField("timestamp")
	stream.WriteString(ts)
	stream.WriteMore()
	stream.WriteObjectField("flow_id")
	stream.WriteUint64(s.next)
	stream.WriteMore()
	stream.WriteObjectField("in_iface")
	stream.WriteString("eth0")
	stream.WriteMore()
	stream.WriteObjectField("event_type")
	stream.WriteString("alert")
	stream.WriteMore()
	stream.WriteObjectField("src_ip")
	stream.WriteString(v.srcIP)
	stream.WriteMore()
	stream.WriteObjectField("src_port")
	stream.WriteInt(v.srcPort)
	stream.WriteMore()
	stream.WriteObjectField("dest_ip")
	stream.WriteString(v.destIP)
	stream.WriteMore()
	stream.WriteObjectField("dest_port")
	stream.WriteInt(v.destPort)
	stream.WriteMore()
	stream.WriteObjectField("proto")
	stream.WriteString(v.proto)
	stream.WriteMore()
	stream.WriteObjectField("alert")
	stream.WriteObjectStart()
	stream.WriteObjectField("action")
	stream.WriteString("allowed")
	stream.WriteMore()
	stream.WriteObjectField("gid")
	stream.WriteInt(1)
	stream.WriteMore()
	stream.WriteObjectField("signature_id")
	stream.WriteUint64(s.signatureID)
	stream.WriteMore()
	stream.WriteObjectField("rev")
	stream.WriteInt(1)
	stream.WriteMore()
	stream.WriteObjectField("signature")
	stream.WriteString(v.signature)
	stream.WriteMore()
	stream.WriteObjectField("category")
	stream.WriteString(v.category)
	stream.WriteMore()
	stream.WriteObjectField("severity")
	stream.WriteInt(v.severity)
	stream.WriteObjectEnd()
	stream.WriteMore()
	stream.WriteObjectField("http")
	stream.WriteObjectStart()
	stream.WriteObjectField("hostname")
	stream.WriteString(v.hostname)
	stream.WriteMore()
	stream.WriteObjectField("url")
	stream.WriteString(v.url)
	stream.WriteMore()
	stream.WriteObjectField("http_user_agent")
	stream.WriteString(v.userAgent)
	stream.WriteMore()
	stream.WriteObjectField("http_method")
	stream.WriteString(v.method)
	stream.WriteMore()
	stream.WriteObjectField("status")
	stream.WriteInt(v.status)
	stream.WriteMore()
	stream.WriteObjectField("length")
	stream.WriteInt(v.length)
	stream.WriteObjectEnd()
	stream.WriteMore()
	stream.WriteObjectField("app_proto")
	stream.WriteString("http")
	stream.WriteObjectEnd()

	buf := stream.Buffer()
	rec := make(Record, len(buf)+1)
	copy(rec, buf)
	rec[len(buf)] = '\n'
	return rec
}

// NewSourceFactory returns the factory for the named source kind. Template
// workers get distinct seeds derived from seed; corpus workers share the
// loaded records, each starting one record further in.
func NewSourceFactory(kind, corpusPath string, seed uint64, sensorID string) (SourceFactory, error) {
	switch kind {
	case SourceTemplate, "":
		return func(worker int) (Source, error) {
			workerSeed := seed
			if seed != 0 {
				workerSeed = seed + uint64(worker)
			}
			return NewTemplateSource(sensorID, workerSeed, nil), nil
		}, nil
	case SourceCorpus:
		if corpusPath == "" {
			return nil, fmt.Errorf("source %q requires a corpus path", SourceCorpus)
		}
		records, err := LoadCorpus(corpusPath)
		if err != nil {
			return nil, err
		}
		return func(worker int) (Source, error) {
			return NewCorpusSource(records, worker), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %q or %q)", kind, SourceTemplate, SourceCorpus)
	}
}
