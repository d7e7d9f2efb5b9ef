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

// Package logging provides the line-oriented slog handler shared by the
// collector and the generator. Log lines follow the format:
//
//	<ISO8601_time> <service_name> [<LEVEL>] <source>: [run_id=<id> ]<message>[ key=value ...]
//
// The "run_id" attribute is hoisted in front of the message so that output
// from several benchmark runs written to one file can be split with grep.
// The message itself is written verbatim; external tooling greps for fixed
// phrases such as "Server Throughput: <n> events/sec".
package logging

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.corp.nvidia.com/sensorbench/utils"
)

// Config holds the logging configuration.
type Config struct {
	Level   slog.Level
	LogDir  string
	LogName string
}

// FlagPointers holds pointers to flag values for logging configuration.
type FlagPointers struct {
	logLevel *string
	logDir   *string
	logName  *string
}

// RegisterFlags registers logging-related command-line flags and returns
// pointers that should be converted to Config after flag.Parse().
func RegisterFlags() *FlagPointers {
	return RegisterFlagsOn(flag.CommandLine)
}

// RegisterFlagsOn registers the logging flags on fs.
func RegisterFlagsOn(fs *flag.FlagSet) *FlagPointers {
	return &FlagPointers{
		logLevel: fs.String("log-level",
			utils.GetEnv("SENSORBENCH_LOG_LEVEL", "info"),
			"Log level (debug, info, warn, error)"),
		logDir: fs.String("log-dir",
			utils.GetEnv("SENSORBENCH_LOG_DIR", ""),
			"Directory to write log files to"),
		logName: fs.String("log-name",
			utils.GetEnv("SENSORBENCH_LOG_NAME", ""),
			"Name for the log file (without extension)"),
	}
}

// ToConfig converts flag pointers to Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig() Config {
	return Config{
		Level:   ParseLevel(*f.logLevel),
		LogDir:  *f.logDir,
		LogName: *f.logName,
	}
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RunIDKey is the attribute key hoisted in front of the message.
const RunIDKey = "run_id"

// ServiceHandler is a slog.Handler writing one plain-text line per record:
//
//	<ISO8601_time> <service_name> [<LEVEL>] <source>: [run_id=<id> ]<message>
//
// All attributes other than run_id are appended as key=value pairs after the
// message. The <source> field is the calling Go package name.
type ServiceHandler struct {
	serviceName string
	level       slog.Level
	writer      io.Writer
	mu          *sync.Mutex
	attrs       []slog.Attr
	groups      []string
}

// NewServiceHandler creates a new ServiceHandler that writes to the given writer.
func NewServiceHandler(serviceName string, level slog.Level, writer io.Writer) *ServiceHandler {
	return &ServiceHandler{
		serviceName: serviceName,
		level:       level,
		writer:      writer,
		mu:          &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ServiceHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes the log record.
func (h *ServiceHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02T15:04:05.000-07:00")
	source := callerSource(r.PC)

	var runID string
	var extraParts []string

	collectAttr := func(a slog.Attr, groups []string) {
		if a.Key == RunIDKey && runID == "" {
			runID = a.Value.String()
			return
		}
		extraParts = append(extraParts, formatAttr(a, groups))
	}

	for _, a := range h.attrs {
		collectAttr(a, nil)
	}
	r.Attrs(func(a slog.Attr) bool {
		collectAttr(a, h.groups)
		return true
	})

	var b strings.Builder
	b.Grow(len(r.Message) + 64)
	fmt.Fprintf(&b, "%s %s [%s] %s: ", timeStr, h.serviceName, r.Level.String(), source)
	if runID != "" {
		b.WriteString(RunIDKey + "=" + runID + " ")
	}
	b.WriteString(r.Message)
	for _, part := range extraParts {
		b.WriteByte(' ')
		b.WriteString(part)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

// WithAttrs returns a new Handler with the given attributes pre-set.
func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		if len(h.groups) > 0 && a.Key != RunIDKey {
			a = slog.Attr{Key: strings.Join(h.groups, ".") + "." + a.Key, Value: a.Value}
		}
		prefixed[i] = a
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(prefixed))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, prefixed...)
	return &ServiceHandler{
		serviceName: h.serviceName,
		level:       h.level,
		writer:      h.writer,
		mu:          h.mu,
		attrs:       newAttrs,
		groups:      h.groups,
	}
}

// WithGroup returns a new Handler with the given group name prepended to
// subsequent attribute keys.
func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &ServiceHandler{
		serviceName: h.serviceName,
		level:       h.level,
		writer:      h.writer,
		mu:          h.mu,
		attrs:       h.attrs,
		groups:      newGroups,
	}
}

// InitLogger initializes the default slog logger with a ServiceHandler.
// It always writes to stdout. If config.LogDir is set, it also writes to
// <LogDir>/<timestamp>_<pid>_<LogName>.txt (LogName defaults to serviceName).
func InitLogger(serviceName string, config Config) *slog.Logger {
	writers := []io.Writer{os.Stdout}

	if config.LogDir != "" {
		if file, err := openLogFile(serviceName, config); err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		} else {
			writers = append(writers, file)
		}
	}

	handler := NewServiceHandler(serviceName, config.Level, io.MultiWriter(writers...))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("Starting " + serviceName + " ...")

	return logger
}

func openLogFile(serviceName string, config Config) (*os.File, error) {
	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", config.LogDir, err)
	}
	logName := config.LogName
	if logName == "" {
		logName = serviceName
	}
	timestamp := time.Now().Format("2006-01-02T15-04-05")
	fileName := fmt.Sprintf("%s_%d_%s.txt", timestamp, os.Getpid(), logName)
	filePath := filepath.Join(config.LogDir, fileName)

	return os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// callerSource extracts the Go package name from the program counter.
func callerSource(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Function == "" {
		return "unknown"
	}
	parts := strings.Split(f.Function, "/")
	lastPart := parts[len(parts)-1]
	if idx := strings.Index(lastPart, "."); idx >= 0 {
		return lastPart[:idx]
	}
	return lastPart
}

// formatAttr formats a single slog.Attr as "key=value", applying the group
// prefix if provided.
func formatAttr(a slog.Attr, groups []string) string {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return fmt.Sprintf("%s=%s", key, a.Value.String())
}
