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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.corp.nvidia.com/sensorbench/runtime/pkg/args"
	"go.corp.nvidia.com/sensorbench/runtime/pkg/generator"
	"go.corp.nvidia.com/sensorbench/utils/logging"
	"go.corp.nvidia.com/sensorbench/utils/progress_check"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

func main() {
	generatorArgs, err := args.GeneratorParse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse arguments: %v\n", err)
		os.Exit(1)
	}

	logger := logging.InitLogger("generator", generatorArgs.Logging)
	slog.SetDefault(logger)

	if err := generatorArgs.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(generatorArgs, logger); err != nil {
		switch {
		case errors.Is(err, generator.ErrEndpointUnavailable):
			logger.Error("endpoint never became available", slog.String("error", err.Error()))
		case errors.Is(err, generator.ErrRetriesExhausted):
			logger.Error("lost the endpoint and could not reconnect", slog.String("error", err.Error()))
		case errors.Is(err, generator.ErrRecordTooLarge):
			logger.Error("raise --bytes-per-sec or lower --workers", slog.String("error", err.Error()))
		default:
			logger.Error("generator failed", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func run(generatorArgs args.GeneratorArgs, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := generator.NewSourceFactory(generatorArgs.Source, generatorArgs.Corpus,
		generatorArgs.Seed, generatorArgs.SensorID)
	if err != nil {
		return err
	}

	var sinks []throughput.Sink
	if generatorArgs.ProgressFile != "" {
		progress, err := progress_check.NewProgressWriter(generatorArgs.ProgressFile)
		if err != nil {
			return fmt.Errorf("failed to create progress writer: %w", err)
		}
		sinks = append(sinks, progress)
	}

	gen, err := generator.New(generatorArgs.GeneratorConfig(), sources, logger, sinks...)
	if err != nil {
		return err
	}
	return gen.Run(ctx)
}
