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
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	libutils "go.corp.nvidia.com/sensorbench/lib/utils"
	"go.corp.nvidia.com/sensorbench/service/collector/collector_service"
	"go.corp.nvidia.com/sensorbench/service/collector/sinks"
	"go.corp.nvidia.com/sensorbench/service/collector/utils"
	"go.corp.nvidia.com/sensorbench/utils/logging"
	metrics "go.corp.nvidia.com/sensorbench/utils/metrics-go"
	"go.corp.nvidia.com/sensorbench/utils/postgres"
	"go.corp.nvidia.com/sensorbench/utils/progress_check"
	"go.corp.nvidia.com/sensorbench/utils/redis"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const gracefulShutdownTimeout = 10 * time.Second

func main() {
	args, err := utils.CollectorParse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse arguments: %v\n", err)
		os.Exit(1)
	}

	logger := logging.InitLogger("collector", args.Logging).
		With(slog.String(logging.RunIDKey, args.RunID))
	slog.SetDefault(logger)

	if err := args.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(args, logger); err != nil {
		logger.Error("collector failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args utils.CollectorArgs, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, err := libutils.LoadVersion()
	if err != nil {
		logger.Warn("failed to load version", slog.String("error", err.Error()))
	}
	if args.Metrics.ServiceVersion == "" {
		args.Metrics.ServiceVersion = version
	}

	sampleSinks, cleanup, err := buildSinks(ctx, args, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	acc := throughput.NewAccumulator()
	reporter := throughput.NewReporter(acc, throughput.ReporterConfig{
		Interval:    args.ReportInterval,
		SinkTimeout: args.SinkTimeout,
	}, logger, sampleSinks...)

	var duplicates *collector_service.DuplicateTracker
	if args.TrackDuplicates {
		duplicates = collector_service.NewDuplicateTracker(args.DuplicateCapacity, args.DuplicateWindow)
		logger.Warn("duplicate tracking enabled; measured throughput includes its locking cost")
	}

	service := collector_service.NewCollectorService(logger, acc, collector_service.Config{
		IdleTimeout: args.IdleTimeout,
		AckEvery:    args.AckEvery,
	}, duplicates)

	grpcServer := grpc.NewServer(collector_service.ServerOptions(collector_service.ServerLimits{
		MaxRecvMsgSize:       args.MaxRecvMsgSize,
		MaxConcurrentStreams: args.MaxConcurrentStreams,
	})...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	collector_service.RegisterServices(grpcServer, service)

	var metricsServer *http.Server
	if args.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := throughput.RegisterPrometheus(registry, acc, reporter); err != nil {
			return fmt.Errorf("failed to register throughput metrics: %w", err)
		}
		if err := service.RegisterPrometheus(registry); err != nil {
			return fmt.Errorf("failed to register collector metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: args.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	lis, err := net.Listen("tcp", args.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", args.Host, err)
	}

	logger.Info("collector listening",
		slog.String("address", lis.Addr().String()),
		slog.String("version", version),
		slog.Duration("report_interval", args.ReportInterval),
		slog.Duration("idle_timeout", args.IdleTimeout),
		slog.Int("ack_every", args.AckEvery),
		slog.Int("max_recv_msg_size", args.MaxRecvMsgSize),
		slog.Int("sinks", len(sampleSinks)))
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// The reporter outlives the gRPC server so the final window includes
	// every batch drained during graceful shutdown.
	reporterCtx, stopReporter := context.WithCancel(context.Background())
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(reporterCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("prometheus metrics listening", slog.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown...")
		healthServer.Shutdown()
		shutdownGRPC(grpcServer, logger)
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	stopReporter()
	<-reporterDone
	return err
}

func shutdownGRPC(grpcServer *grpc.Server, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("server stopped gracefully")
	case <-time.After(gracefulShutdownTimeout):
		logger.Warn("graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}
}

// buildSinks connects the optional sample sinks. The returned cleanup closes
// whatever was opened, even on error.
func buildSinks(ctx context.Context, args utils.CollectorArgs, logger *slog.Logger) ([]throughput.Sink, func(), error) {
	var out []throughput.Sink
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if args.ProgressFile != "" {
		pw, err := progress_check.NewProgressWriter(args.ProgressFile)
		if err != nil {
			return nil, cleanup, err
		}
		out = append(out, pw)
	}

	if args.SinkRedis {
		client, err := redis.NewRedisClient(ctx, args.Redis, logger)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = client.Close() })
		sink := sinks.NewRedisSink(client.Client(), args.RunID, args.Redis.StreamMaxLen)
		logger.Info("redis sample sink enabled", slog.String("stream", sink.Stream()))
		out = append(out, sink)
	}

	if args.SinkPostgres {
		client, err := postgres.NewPostgresClient(ctx, args.Postgres, logger)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, client.Close)
		sink, err := sinks.NewPostgresSink(ctx, client.Pool(), args.RunID)
		if err != nil {
			return nil, cleanup, err
		}
		logger.Info("postgres sample sink enabled", slog.String("table", postgres.SamplesTable))
		out = append(out, sink)
	}

	if args.Metrics.Enabled {
		args.Metrics.GlobalTags["role"] = "collector"
		if err := metrics.InitMetricCreator(args.Metrics); err != nil {
			return nil, cleanup, err
		}
		mc := metrics.GetMetricCreator()
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mc.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to flush OpenTelemetry metrics", slog.String("error", err.Error()))
			}
		})
		logger.Info("OpenTelemetry sample sink enabled", slog.String("endpoint", args.Metrics.OTLPEndpoint))
		out = append(out, sinks.NewOTELSink(mc, args.RunID))
	}

	return out, cleanup, nil
}
