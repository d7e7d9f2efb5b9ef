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

// Package sensorclient sends metric batches to a sensor collector over either
// of the SensorService RPC shapes. The loopback SUT and the end-to-end tests
// use it; it is also the reference for what a real sensor client is expected
// to put on the wire.
//
// A Stream is NOT safe for concurrent Send calls. Acks on StreamBatches are
// drained by an internal goroutine, so a sender never blocks on them.
package sensorclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
)

// SensorIDMetadataKey names the sensor on every stream.
const SensorIDMetadataKey = "sensor-id"

// Method selects the RPC shape a Stream uses.
type Method string

const (
	// MethodStreamData is client streaming with one empty reply.
	MethodStreamData Method = "stream-data"
	// MethodStreamBatches is bidirectional with cumulative acks.
	MethodStreamBatches Method = "stream-batches"
)

// ParseMethod validates a method name from configuration.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodStreamData, MethodStreamBatches:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown method %q (want %s or %s)", s, MethodStreamData, MethodStreamBatches)
	}
}

// NewClientConn creates a plaintext connection to a collector.
func NewClientConn(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	return grpc.NewClient(target, append(base, opts...)...)
}

// batchStream abstracts over the two RPC shapes.
type batchStream interface {
	Send(*pb.SensorEvent) error
	// finish half-closes the stream and waits for the server to complete it.
	finish() (*pb.BatchAck, error)
}

// Result summarizes a closed stream.
type Result struct {
	Batches uint64
	Events  uint64
	// Ack is the last acknowledgement received. It is nil for StreamData and
	// for StreamBatches streams that ended before any ack arrived.
	Ack *pb.BatchAck
}

// Stream sends batches on one gRPC stream.
type Stream struct {
	stream   batchStream
	sensorID string
	now      func() time.Time

	batches uint64
	events  uint64

	closeOnce sync.Once
	result    Result
	closeErr  error
}

// Dial opens a stream on conn. The sensor ID is sent as stream metadata and
// stamped on every batch.
func Dial(ctx context.Context, conn grpc.ClientConnInterface, method Method, sensorID string) (*Stream, error) {
	if sensorID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, SensorIDMetadataKey, sensorID)
	}
	client := pb.NewSensorServiceClient(conn)

	var stream batchStream
	switch method {
	case MethodStreamData, "":
		grpcStream, err := client.StreamData(ctx)
		if err != nil {
			return nil, err
		}
		stream = &dataStream{stream: grpcStream}
	case MethodStreamBatches:
		grpcStream, err := client.StreamBatches(ctx)
		if err != nil {
			return nil, err
		}
		stream = newAckedStream(grpcStream)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}

	return &Stream{
		stream:   stream,
		sensorID: sensorID,
		now:      time.Now,
	}, nil
}

// Send sends metrics as one batch. An empty batch is sent as-is; the
// collector treats it as a no-op.
func (s *Stream) Send(metrics []pb.Metric) error {
	return s.SendEvent(&pb.SensorEvent{
		SensorID: s.sensorID,
		SentAt:   s.now().UnixNano(),
		Metrics:  metrics,
	})
}

// SendEvent sends a prepared batch.
func (s *Stream) SendEvent(event *pb.SensorEvent) error {
	if err := s.stream.Send(event); err != nil {
		return err
	}
	s.batches++
	s.events += uint64(len(event.Metrics))
	return nil
}

// Close half-closes the stream and waits for the collector to finish it.
// Later calls return the first result.
func (s *Stream) Close() (Result, error) {
	s.closeOnce.Do(func() {
		ack, err := s.stream.finish()
		s.result = Result{Batches: s.batches, Events: s.events, Ack: ack}
		s.closeErr = err
	})
	return s.result, s.closeErr
}

type dataStream struct {
	stream pb.SensorService_StreamDataClient
}

func (d *dataStream) Send(event *pb.SensorEvent) error {
	err := d.stream.Send(event)
	if errors.Is(err, io.EOF) {
		// The server ended the stream; the real status comes from Recv.
		if _, recvErr := d.stream.CloseAndRecv(); recvErr != nil {
			return recvErr
		}
	}
	return err
}

func (d *dataStream) finish() (*pb.BatchAck, error) {
	_, err := d.stream.CloseAndRecv()
	return nil, err
}

// ackedStream drains acks in the background and keeps the latest one.
type ackedStream struct {
	stream pb.SensorService_StreamBatchesClient

	mu      sync.Mutex
	lastAck *pb.BatchAck
	recvErr error
	done    chan struct{}
}

func newAckedStream(stream pb.SensorService_StreamBatchesClient) *ackedStream {
	a := &ackedStream{stream: stream, done: make(chan struct{})}
	go a.receive()
	return a
}

func (a *ackedStream) receive() {
	defer close(a.done)
	for {
		ack, err := a.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.mu.Lock()
				a.recvErr = err
				a.mu.Unlock()
			}
			return
		}
		a.mu.Lock()
		a.lastAck = ack
		a.mu.Unlock()
	}
}

func (a *ackedStream) Send(event *pb.SensorEvent) error {
	err := a.stream.Send(event)
	if errors.Is(err, io.EOF) {
		// The server ended the stream; the real status comes from Recv.
		<-a.done
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.recvErr != nil {
			return a.recvErr
		}
	}
	return err
}

func (a *ackedStream) finish() (*pb.BatchAck, error) {
	if err := a.stream.CloseSend(); err != nil {
		return nil, err
	}
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAck, a.recvErr
}

// LastAck returns the most recent acknowledgement on a StreamBatches stream.
func (s *Stream) LastAck() (*pb.BatchAck, bool) {
	acked, ok := s.stream.(*ackedStream)
	if !ok {
		return nil, false
	}
	acked.mu.Lock()
	defer acked.mu.Unlock()
	return acked.lastAck, acked.lastAck != nil
}
