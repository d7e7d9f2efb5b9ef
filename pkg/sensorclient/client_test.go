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

package sensorclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pb "go.corp.nvidia.com/sensorbench/proto/sensor"
	"go.corp.nvidia.com/sensorbench/service/collector/collector_service"
	"go.corp.nvidia.com/sensorbench/utils/throughput"
)

const bufSize = 1024 * 1024

func startCollector(t *testing.T, config collector_service.Config) (*grpc.ClientConn, *throughput.Accumulator) {
	t.Helper()

	acc := throughput.NewAccumulator()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := collector_service.NewCollectorService(logger, acc, config, nil)

	lis := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	collector_service.RegisterServices(server, service)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := NewClientConn("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, acc
}

func metrics(prefix string, n int) []pb.Metric {
	out := make([]pb.Metric, n)
	for i := range out {
		out[i] = pb.Metric{
			Key:       fmt.Sprintf("%s-%d", prefix, i),
			Timestamp: time.Now().UnixNano(),
			Name:      "alert",
			Payload:   []byte(`{"event_type":"alert"}`),
		}
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"stream-data", "stream-batches"} {
		if _, err := ParseMethod(name); err != nil {
			t.Errorf("ParseMethod(%q) error = %v", name, err)
		}
	}
	if _, err := ParseMethod("unary"); err == nil {
		t.Error("ParseMethod accepted an unknown method")
	}
}

func TestStreamDataDelivery(t *testing.T) {
	conn, acc := startCollector(t, collector_service.Config{})

	stream, err := Dial(testContext(t), conn, MethodStreamData, "sensor-a")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := stream.Send(metrics(fmt.Sprintf("b%d", i), 10)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if err := stream.Send(nil); err != nil {
		t.Fatalf("Send(empty) error = %v", err)
	}

	result, err := stream.Close()
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if result.Batches != 4 || result.Events != 30 || result.Ack != nil {
		t.Errorf("Close() = %+v", result)
	}
	if got := acc.Total(); got != 30 {
		t.Errorf("collector counted %d events, want 30", got)
	}
	if _, ok := stream.LastAck(); ok {
		t.Error("StreamData stream reported an ack")
	}
}

func TestStreamBatchesFinalAck(t *testing.T) {
	conn, acc := startCollector(t, collector_service.Config{AckEvery: 2})

	stream, err := Dial(testContext(t), conn, MethodStreamBatches, "sensor-b")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := stream.Send(metrics(fmt.Sprintf("b%d", i), 20)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	result, err := stream.Close()
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if result.Ack == nil {
		t.Fatal("expected a final ack")
	}
	if result.Ack.Batches != 5 || result.Ack.Events != 100 || result.Ack.Rejected != 0 {
		t.Errorf("final ack = %+v", result.Ack)
	}
	if got := acc.Total(); got != 100 {
		t.Errorf("collector counted %d events, want 100", got)
	}

	again, err := stream.Close()
	if err != nil || again.Ack != result.Ack {
		t.Errorf("second Close() = %+v, %v", again, err)
	}
}

func TestStreamBatchesReportsRejected(t *testing.T) {
	conn, acc := startCollector(t, collector_service.Config{AckEvery: 1})

	stream, err := Dial(testContext(t), conn, MethodStreamBatches, "sensor-c")
	if err != nil {
		t.Fatal(err)
	}
	batch := metrics("r", 4)
	batch[1].Key = ""
	batch[3].Timestamp = 0
	if err := stream.Send(batch); err != nil {
		t.Fatal(err)
	}

	result, err := stream.Close()
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if result.Ack == nil || result.Ack.Events != 2 || result.Ack.Rejected != 2 {
		t.Errorf("ack = %+v", result.Ack)
	}
	if got := acc.Total(); got != 2 {
		t.Errorf("collector counted %d events, want 2", got)
	}
}

func TestIdleStreamSurfacesDeadlineExceeded(t *testing.T) {
	conn, _ := startCollector(t, collector_service.Config{IdleTimeout: 100 * time.Millisecond})

	stream, err := Dial(testContext(t), conn, MethodStreamBatches, "sensor-idle")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	_, err = stream.Close()
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("Close() error = %v, want DeadlineExceeded", err)
	}
}

func TestDialUnknownMethod(t *testing.T) {
	conn, _ := startCollector(t, collector_service.Config{})
	if _, err := Dial(testContext(t), conn, Method("unary"), ""); err == nil {
		t.Fatal("Dial accepted an unknown method")
	}
}
