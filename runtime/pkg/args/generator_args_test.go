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

package args

import (
	"flag"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.corp.nvidia.com/sensorbench/runtime/pkg/generator"
)

func parse(t *testing.T, args ...string) GeneratorArgs {
	t.Helper()
	fs := flag.NewFlagSet("generator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	parsed, err := GeneratorParseArgs(fs, args)
	if err != nil {
		t.Fatalf("GeneratorParseArgs(%v) error = %v", args, err)
	}
	return parsed
}

func TestGeneratorParseDefaults(t *testing.T) {
	a := parse(t)
	if a.Network != "unix" || a.Socket != "/tmp/suricata.sock" {
		t.Errorf("endpoint = %s %s", a.Network, a.Socket)
	}
	if a.Rate != 0 || a.BytesPerSec != 0 || a.Workers != 1 {
		t.Errorf("rate=%v bytes=%d workers=%d", a.Rate, a.BytesPerSec, a.Workers)
	}
	if a.Source != generator.SourceTemplate || a.Seed != 1 {
		t.Errorf("source=%s seed=%d", a.Source, a.Seed)
	}
	if a.ConnectTimeout != 60*time.Second || a.MaxRetries != 5 {
		t.Errorf("connect-timeout=%v max-retries=%d", a.ConnectTimeout, a.MaxRetries)
	}
	if a.Duration != 0 || a.StatsInterval != time.Second {
		t.Errorf("duration=%v stats-interval=%v", a.Duration, a.StatsInterval)
	}
	if a.Logging.Level != slog.LevelInfo {
		t.Errorf("log level = %v", a.Logging.Level)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestGeneratorParseEnvFallback(t *testing.T) {
	t.Setenv("SENSORBENCH_GENERATOR_SOCKET", "/run/sut.sock")
	t.Setenv("SENSORBENCH_GENERATOR_WORKERS", "4")
	t.Setenv("SENSORBENCH_GENERATOR_DURATION", "30s")
	t.Setenv("SENSORBENCH_GENERATOR_RATE", "1500.5")

	a := parse(t)
	if a.Socket != "/run/sut.sock" || a.Workers != 4 || a.Duration != 30*time.Second {
		t.Errorf("env not applied: %+v", a)
	}
	if a.Rate != 1500.5 {
		t.Errorf("fractional rate from env = %v, want 1500.5", a.Rate)
	}

	a = parse(t, "--workers", "2")
	if a.Workers != 2 {
		t.Errorf("flag did not override env: workers = %d", a.Workers)
	}
}

func TestGeneratorArgsValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad network", []string{"--network", "udp"}},
		{"empty socket", []string{"--socket", ""}},
		{"negative rate", []string{"--rate", "-1"}},
		{"negative byte rate", []string{"--bytes-per-sec", "-5"}},
		{"byte rate below minimum", []string{"--bytes-per-sec", "50"}},
		{"byte rate split below minimum", []string{"--bytes-per-sec", "8000", "--workers", "4"}},
		{"no workers", []string{"--workers", "0"}},
		{"unknown source", []string{"--source", "random"}},
		{"corpus without path", []string{"--source", "corpus"}},
		{"zero connect timeout", []string{"--connect-timeout", "0s"}},
		{"negative retries", []string{"--max-retries", "-1"}},
		{"zero stats interval", []string{"--stats-interval", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := parse(t, tt.args...).Validate(); err == nil {
				t.Errorf("Validate() accepted %v", tt.args)
			}
		})
	}
}

func TestGeneratorConfig(t *testing.T) {
	a := parse(t, "--network", "tcp", "--socket", "127.0.0.1:9000", "--rate", "5000",
		"--bytes-per-sec", "1048576", "--workers", "3", "--count", "100000")
	cfg := a.GeneratorConfig()
	if cfg.Endpoint.Network != "tcp" || cfg.Endpoint.Address != "127.0.0.1:9000" {
		t.Errorf("endpoint = %+v", cfg.Endpoint)
	}
	if cfg.RecordsPerSec != 5000 || cfg.BytesPerSec != 1048576 || cfg.Workers != 3 || cfg.Count != 100000 {
		t.Errorf("config = %+v", cfg)
	}
}
