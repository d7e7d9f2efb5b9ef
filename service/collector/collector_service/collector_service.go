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
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
	"go.corp.nvidia.com/sensorbench/service/collector/utils"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultAckEvery    = 1
)

// Config tunes per-stream behavior.
type Config struct {
	// IdleTimeout closes a stream that sends nothing for this long. Zero disables it.
	IdleTimeout time.Duration
	// AckEvery sends a BatchAck after this many batches on StreamBatches.
	// Zero sends only the end-of-stream ack.
	AckEvery int
}

// CollectorService is the mock collector behind sensor.SensorService. Every
// stream feeds the same accumulator.
type CollectorService struct {
	pb.UnimplementedSensorServiceServer

	logger     *slog.Logger
	acc        *throughput.Accumulator
	config     Config
	duplicates *DuplicateTracker

	activeStreams    atomic.Int64
	malformedBatches atomic.Uint64
	rejectedEvents   atomic.Uint64
}

// NewCollectorService creates a collector. duplicates may be nil.
func NewCollectorService(
	logger *slog.Logger,
	acc *throughput.Accumulator,
	config Config,
	duplicates *DuplicateTracker,
) *CollectorService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AckEvery < 0 {
		config.AckEvery = 0
	}
	return &CollectorService{
		logger:     logger,
		acc:        acc,
		config:     config,
		duplicates: duplicates,
	}
}

// streamStats are the per-stream counters logged when the stream closes.
type streamStats struct {
	method    string
	peer      string
	sensorID  string
	start     time.Time
	batches   uint64
	events    uint64
	rejected  uint64
	malformed uint64
	unacked   int
}

func (st *streamStats) ack() *pb.BatchAck {
	return &pb.BatchAck{Batches: st.batches, Events: st.events, Rejected: st.rejected}
}

// grpcStream is the receive side shared by both stream shapes.
type grpcStream interface {
	Context() context.Context
	RecvMsg(m any) error
}

// recvResult holds the result of an async receive operation.
type recvResult struct {
	msg pb.RawMessage
	err error
}

// StreamData consumes batches until the client half-closes, then replies once.
func (cs *CollectorService) StreamData(stream pb.SensorService_StreamDataServer) (err error) {
	stats := cs.openStream(stream.Context(), "StreamData")
	defer func() { cs.closeStream(stream.Context(), stats, err) }()

	if err := cs.receiveLoop(stream, stats, nil); err != nil {
		return err
	}
	return stream.SendAndClose(&emptypb.Empty{})
}

// StreamBatches consumes batches and acknowledges them every AckEvery batches,
// plus once more at end of stream for any unacknowledged batches.
func (cs *CollectorService) StreamBatches(stream pb.SensorService_StreamBatchesServer) (err error) {
	stats := cs.openStream(stream.Context(), "StreamBatches")
	defer func() { cs.closeStream(stream.Context(), stats, err) }()

	onBatch := func() error {
		stats.unacked++
		if cs.config.AckEvery > 0 && stats.unacked >= cs.config.AckEvery {
			stats.unacked = 0
			return stream.Send(stats.ack())
		}
		return nil
	}

	if err := cs.receiveLoop(stream, stats, onBatch); err != nil {
		return err
	}
	if stats.unacked > 0 {
		stats.unacked = 0
		return stream.Send(stats.ack())
	}
	return nil
}

// receiveLoop reads batches until EOF (returns nil), a transport error, the
// idle timeout, or cancellation.
func (cs *CollectorService) receiveLoop(stream grpcStream, stats *streamStats, onBatch func() error) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	recvCh := make(chan recvResult, 1)
	go func() {
		for {
			var msg pb.RawMessage
			err := stream.RecvMsg(&msg)
			select {
			case recvCh <- recvResult{msg, err}:
				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var idle <-chan time.Time
	resetIdle := func() {}
	if cs.config.IdleTimeout > 0 {
		timer := time.NewTimer(cs.config.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
		resetIdle = func() { timer.Reset(cs.config.IdleTimeout) }
	}
	return cs.consume(ctx, recvCh, idle, resetIdle, stats, onBatch)
}

func (cs *CollectorService) consume(
	ctx context.Context,
	recvCh <-chan recvResult,
	idle <-chan time.Time,
	resetIdle func(),
	stats *streamStats,
	onBatch func() error,
) error {
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()

		case <-idle:
			return status.Errorf(codes.DeadlineExceeded,
				"no batch received for %s", cs.config.IdleTimeout)

		case result := <-recvCh:
			if errors.Is(result.err, io.EOF) {
				return nil
			}
			if result.err != nil {
				return result.err
			}
			resetIdle()

			cs.handleBatch(ctx, result.msg.Raw, stats)
			if onBatch != nil {
				if err := onBatch(); err != nil {
					return err
				}
			}
		}
	}
}

// handleBatch decodes one message and feeds the accumulator. A malformed
// batch is logged and dropped; it never fails the stream.
func (cs *CollectorService) handleBatch(ctx context.Context, raw []byte, stats *streamStats) {
	stats.batches++

	var observe func([]byte)
	if cs.duplicates != nil {
		observe = func(key []byte) { cs.duplicates.Observe(key) }
	}

	batch, err := DecodeBatch(raw, observe)
	if err != nil {
		stats.malformed++
		cs.malformedBatches.Add(1)
		cs.logger.WarnContext(ctx, "dropping batch that failed to decode",
			slog.String("peer", stats.peer),
			slog.Int("bytes", len(raw)),
			slog.String("error", err.Error()))
		return
	}

	stats.events += uint64(batch.Accepted)
	cs.acc.Add(uint64(batch.Accepted))

	if batch.Rejected > 0 {
		stats.rejected += uint64(batch.Rejected)
		cs.rejectedEvents.Add(uint64(batch.Rejected))
		cs.logger.DebugContext(ctx, "rejected events without key or timestamp",
			slog.String("peer", stats.peer),
			slog.Int("rejected", batch.Rejected))
	}
	if stats.sensorID == "" && batch.SensorID != "" {
		stats.sensorID = batch.SensorID
	}
}

func (cs *CollectorService) openStream(ctx context.Context, method string) *streamStats {
	cs.activeStreams.Add(1)
	stats := &streamStats{
		method:   method,
		peer:     utils.PeerAddress(ctx),
		sensorID: utils.SensorIDFromContext(ctx),
		start:    time.Now(),
	}
	cs.logger.InfoContext(ctx, "sensor stream opened",
		slog.String("method", method),
		slog.String("peer", stats.peer))
	return stats
}

func (cs *CollectorService) closeStream(ctx context.Context, stats *streamStats, err error) {
	cs.activeStreams.Add(-1)

	attrs := []any{
		slog.String("method", stats.method),
		slog.String("peer", stats.peer),
		slog.String("sensor_id", stats.sensorID),
		slog.Uint64("batches", stats.batches),
		slog.Uint64("events", stats.events),
		slog.Uint64("rejected", stats.rejected),
		slog.Uint64("malformed", stats.malformed),
		slog.Duration("duration", time.Since(stats.start)),
	}
	if err != nil && !utils.IsExpectedClose(err) {
		attrs = append(attrs, slog.String("error", err.Error()))
		cs.logger.WarnContext(ctx, "sensor stream closed with error", attrs...)
		return
	}
	cs.logger.InfoContext(ctx, "sensor stream closed", attrs...)
}

// ActiveStreams returns the number of open streams.
func (cs *CollectorService) ActiveStreams() int64 {
	return cs.activeStreams.Load()
}

// MalformedBatches returns the number of batches dropped for decode errors.
func (cs *CollectorService) MalformedBatches() uint64 {
	return cs.malformedBatches.Load()
}

// RejectedEvents returns the number of events rejected for missing fields.
func (cs *CollectorService) RejectedEvents() uint64 {
	return cs.rejectedEvents.Load()
}

// RegisterPrometheus exposes stream and validation counters through reg.
func (cs *CollectorService) RegisterPrometheus(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sensorbench", Subsystem: "collector", Name: "active_streams",
			Help: "Open sensor streams.",
		}, func() float64 { return float64(cs.ActiveStreams()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sensorbench", Subsystem: "collector", Name: "malformed_batches_total",
			Help: "Batches dropped because they failed to decode.",
		}, func() float64 { return float64(cs.MalformedBatches()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sensorbench", Subsystem: "collector", Name: "rejected_events_total",
			Help: "Events rejected for a missing key or timestamp.",
		}, func() float64 { return float64(cs.RejectedEvents()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sensorbench", Subsystem: "collector", Name: "duplicate_events_total",
			Help: "Event keys seen more than once within the duplicate window.",
		}, func() float64 { return float64(cs.duplicates.Duplicates()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ServerLimits bounds what one client connection may ask of the server.
type ServerLimits struct {
	// MaxRecvMsgSize is the largest batch accepted. Zero selects
	// utils.DefaultMaxRecvMsgSize; a larger batch ends its stream.
	MaxRecvMsgSize       int
	MaxConcurrentStreams uint32
}

// ServerOptions returns the transport settings for the collector's gRPC server.
func ServerOptions(limits ServerLimits) []grpc.ServerOption {
	if limits.MaxRecvMsgSize <= 0 {
		limits.MaxRecvMsgSize = utils.DefaultMaxRecvMsgSize
	}
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(limits.MaxRecvMsgSize),
	}
	if limits.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(limits.MaxConcurrentStreams))
	}
	return opts
}

// RegisterServices registers the collector with the gRPC server.
func RegisterServices(grpcServer *grpc.Server, service *CollectorService) {
	pb.RegisterSensorServiceServer(grpcServer, service)
	service.logger.Info("sensor service registered")
}
