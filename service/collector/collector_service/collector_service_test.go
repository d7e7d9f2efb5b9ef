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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const bufSize = 1024 * 1024

// syncBuffer is a log sink shared by concurrent stream handlers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	service *CollectorService
	acc     *throughput.Accumulator
	client  pb.SensorServiceClient
	logs    *syncBuffer
}

func setupTestEnv(t *testing.T, config Config, duplicates *DuplicateTracker) *testEnv {
	t.Helper()
	return setupTestEnvWithOptions(t, config, duplicates)
}

func setupTestEnvWithOptions(t *testing.T, config Config, duplicates *DuplicateTracker, opts ...grpc.ServerOption) *testEnv {
	t.Helper()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	acc := throughput.NewAccumulator()
	service := NewCollectorService(logger, acc, config, duplicates)

	lis := bufconn.Listen(bufSize)
	server := grpc.NewServer(opts...)
	RegisterServices(server, service)
	go func() {
		if err := server.Serve(lis); err != nil {
			t.Logf("server exited with error: %v", err)
		}
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &testEnv{
		service: service,
		acc:     acc,
		client:  pb.NewSensorServiceClient(conn),
		logs:    logs,
	}
}

func makeBatch(prefix string, n int) *pb.SensorEvent {
	event := &pb.SensorEvent{SensorID: "test-sensor", SentAt: time.Now().UnixNano()}
	for i := 0; i < n; i++ {
		event.Metrics = append(event.Metrics, pb.Metric{
			Key:       fmt.Sprintf("%s-%d", prefix, i),
			Timestamp: time.Now().UnixNano(),
			Name:      "alert",
			Value:     float64(i),
			Payload:   []byte(`{"event_type":"alert"}`),
		})
	}
	return event
}

// malformedBatch declares a 16 byte metric but carries only one byte.
var malformedBatch = []byte{0x1a, 0x10, 0x01}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStreamDataCountsEvents(t *testing.T) {
	env := setupTestEnv(t, Config{}, nil)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := stream.Send(makeBatch(fmt.Sprintf("b%d", i), 10)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		t.Fatalf("CloseAndRecv failed: %v", err)
	}

	if got := env.acc.Total(); got != 30 {
		t.Errorf("total = %d, want 30", got)
	}
	if !strings.Contains(env.logs.String(), "sensor stream closed") {
		t.Error("expected per-stream summary log")
	}
}

func TestMalformedBatchIsDroppedAndStreamContinues(t *testing.T) {
	env := setupTestEnv(t, Config{}, nil)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("first", 50)); err != nil {
		t.Fatal(err)
	}
	if err := stream.SendMsg(&pb.RawMessage{Raw: malformedBatch}); err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("second", 50)); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		t.Fatalf("stream should survive a malformed batch: %v", err)
	}

	if got := env.acc.Total(); got != 100 {
		t.Errorf("total = %d, want 100", got)
	}
	if got := strings.Count(env.logs.String(), "dropping batch that failed to decode"); got != 1 {
		t.Errorf("decode failures logged = %d, want 1", got)
	}
	if got := env.service.MalformedBatches(); got != 1 {
		t.Errorf("MalformedBatches() = %d, want 1", got)
	}
}

func TestBatchLargerThanGRPCDefaultIsCounted(t *testing.T) {
	env := setupTestEnvWithOptions(t, Config{}, nil, ServerOptions(ServerLimits{})...)

	large := makeBatch("large", 120000)
	if size := len(large.AppendWire(nil)); size <= 4*1024*1024 {
		t.Fatalf("batch is %d bytes, want more than the 4 MiB gRPC default", size)
	}

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, batch := range []*pb.SensorEvent{makeBatch("before", 50), large, makeBatch("after", 50)} {
		if err := stream.Send(batch); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		t.Fatalf("stream ended with %v", err)
	}

	if got := env.acc.Total(); got != 120100 {
		t.Errorf("total = %d, want 120100", got)
	}
	if got := env.service.MalformedBatches(); got != 0 {
		t.Errorf("MalformedBatches() = %d, want 0", got)
	}
}

func TestServerOptionsHonorRecvLimit(t *testing.T) {
	env := setupTestEnvWithOptions(t, Config{}, nil, ServerOptions(ServerLimits{MaxRecvMsgSize: 1024})...)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("small", 5)); err != nil {
		t.Fatal(err)
	}
	// The oversized send may itself succeed; the status arrives on close.
	_ = stream.Send(makeBatch("big", 500))
	_, err = stream.CloseAndRecv()
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("CloseAndRecv() error = %v, want ResourceExhausted", err)
	}
	if got := env.acc.Total(); got != 5 {
		t.Errorf("total = %d, want 5", got)
	}
}

func TestZeroLengthBatchIsNoop(t *testing.T) {
	env := setupTestEnv(t, Config{}, nil)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(&pb.SensorEvent{}); err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(&pb.SensorEvent{SensorID: "only-header"}); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		t.Fatal(err)
	}

	if got := env.acc.Total(); got != 0 {
		t.Errorf("total = %d, want 0", got)
	}
	if env.service.MalformedBatches() != 0 {
		t.Error("an empty batch is not a decode failure")
	}
}

func TestInvalidEventsRejectedIndividually(t *testing.T) {
	env := setupTestEnv(t, Config{AckEvery: 1}, nil)

	stream, err := env.client.StreamBatches(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	batch := &pb.SensorEvent{Metrics: []pb.Metric{
		{Key: "ok", Timestamp: 1},
		{Key: "", Timestamp: 1},
		{Key: "no-timestamp"},
		{Key: "negative", Timestamp: -5},
		{Key: "ok-2", Timestamp: 2},
	}}
	if err := stream.Send(batch); err != nil {
		t.Fatal(err)
	}
	ack, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if ack.Batches != 1 || ack.Events != 2 || ack.Rejected != 3 {
		t.Errorf("ack = %+v, want batches=1 events=2 rejected=3", ack)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after close, got %v", err)
	}
	if got := env.acc.Total(); got != 2 {
		t.Errorf("total = %d, want 2", got)
	}
	if got := env.service.RejectedEvents(); got != 3 {
		t.Errorf("RejectedEvents() = %d, want 3", got)
	}
}

func collectAcks(t *testing.T, stream pb.SensorService_StreamBatchesClient) []pb.BatchAck {
	t.Helper()
	var acks []pb.BatchAck
	for {
		ack, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acks
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		acks = append(acks, *ack)
	}
}

func TestStreamBatchesAckCadence(t *testing.T) {
	tests := []struct {
		name     string
		ackEvery int
		batches  int
		want     []uint64 // cumulative batch count carried by each ack
	}{
		{name: "every batch", ackEvery: 1, batches: 3, want: []uint64{1, 2, 3}},
		{name: "every two with remainder", ackEvery: 2, batches: 5, want: []uint64{2, 4, 5}},
		{name: "every two without remainder", ackEvery: 2, batches: 4, want: []uint64{2, 4}},
		{name: "final only", ackEvery: 0, batches: 4, want: []uint64{4}},
		{name: "no batches", ackEvery: 1, batches: 0, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t, Config{AckEvery: tc.ackEvery}, nil)
			stream, err := env.client.StreamBatches(testContext(t))
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < tc.batches; i++ {
				if err := stream.Send(makeBatch(fmt.Sprintf("b%d", i), 10)); err != nil {
					t.Fatal(err)
				}
			}
			if err := stream.CloseSend(); err != nil {
				t.Fatal(err)
			}

			acks := collectAcks(t, stream)
			if len(acks) != len(tc.want) {
				t.Fatalf("got %d acks %+v, want %d", len(acks), acks, len(tc.want))
			}
			for i, ack := range acks {
				if ack.Batches != tc.want[i] || ack.Events != tc.want[i]*10 {
					t.Errorf("ack %d = %+v, want batches=%d events=%d", i, ack, tc.want[i], tc.want[i]*10)
				}
			}
		})
	}
}

func TestMalformedStreamDoesNotAffectOthers(t *testing.T) {
	env := setupTestEnv(t, Config{}, nil)
	ctx := testContext(t)

	const goodStreams = 4
	const batchesPerStream = 20
	const eventsPerBatch = 25

	var wg sync.WaitGroup
	errs := make(chan error, goodStreams+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		stream, err := env.client.StreamData(ctx)
		if err != nil {
			errs <- err
			return
		}
		for i := 0; i < batchesPerStream; i++ {
			if err := stream.SendMsg(&pb.RawMessage{Raw: malformedBatch}); err != nil {
				errs <- err
				return
			}
		}
		_, err = stream.CloseAndRecv()
		errs <- err
	}()

	for s := 0; s < goodStreams; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			stream, err := env.client.StreamData(ctx)
			if err != nil {
				errs <- err
				return
			}
			for i := 0; i < batchesPerStream; i++ {
				if err := stream.Send(makeBatch(fmt.Sprintf("s%d-b%d", s, i), eventsPerBatch)); err != nil {
					errs <- err
					return
				}
			}
			_, err = stream.CloseAndRecv()
			errs <- err
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("stream failed: %v", err)
		}
	}

	if got, want := env.acc.Total(), uint64(goodStreams*batchesPerStream*eventsPerBatch); got != want {
		t.Errorf("total = %d, want %d", got, want)
	}
	if got := env.service.MalformedBatches(); got != batchesPerStream {
		t.Errorf("MalformedBatches() = %d, want %d", got, batchesPerStream)
	}
}

func TestConcurrentStreamsSumAllBatches(t *testing.T) {
	env := setupTestEnv(t, Config{AckEvery: 3}, nil)
	ctx := testContext(t)

	sizes := [][]int{{1, 2, 3, 4}, {100, 0, 7}, {50, 50}, {13}, {0}, {999, 1}}
	var want uint64
	for _, s := range sizes {
		for _, n := range s {
			want += uint64(n)
		}
	}

	var wg sync.WaitGroup
	for i, batchSizes := range sizes {
		wg.Add(1)
		go func(i int, batchSizes []int) {
			defer wg.Done()
			stream, err := env.client.StreamBatches(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			go func() {
				for {
					if _, err := stream.Recv(); err != nil {
						return
					}
				}
			}()
			for j, n := range batchSizes {
				if err := stream.Send(makeBatch(fmt.Sprintf("c%d-%d", i, j), n)); err != nil {
					t.Error(err)
					return
				}
			}
			if err := stream.CloseSend(); err != nil {
				t.Error(err)
			}
		}(i, batchSizes)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for env.acc.Total() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.acc.Total(); got != want {
		t.Errorf("total = %d, want %d", got, want)
	}
}

func TestIdleStreamClosedWithDeadlineExceeded(t *testing.T) {
	env := setupTestEnv(t, Config{IdleTimeout: 100 * time.Millisecond}, nil)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("idle", 5)); err != nil {
		t.Fatal(err)
	}

	err = stream.RecvMsg(new(pb.RawMessage))
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if got := env.acc.Total(); got != 5 {
		t.Errorf("events before the idle close must be counted, total = %d", got)
	}
	if !strings.Contains(env.logs.String(), "sensor stream closed with error") {
		t.Error("expected idle close to be logged as an error")
	}
}

func TestDuplicateTrackingCountsRepeatedKeys(t *testing.T) {
	dups := NewDuplicateTracker(1000, time.Minute)
	env := setupTestEnv(t, Config{}, dups)

	stream, err := env.client.StreamData(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("same", 10)); err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(makeBatch("same", 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		t.Fatal(err)
	}

	if got := env.acc.Total(); got != 20 {
		t.Errorf("duplicates are still counted: total = %d, want 20", got)
	}
	if got := dups.Duplicates(); got != 10 {
		t.Errorf("Duplicates() = %d, want 10", got)
	}
}
