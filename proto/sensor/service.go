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

package sensor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Full method names of sensor.SensorService.
const (
	ServiceName                                = "sensor.SensorService"
	SensorService_StreamData_FullMethodName    = "/sensor.SensorService/StreamData"
	SensorService_StreamBatches_FullMethodName = "/sensor.SensorService/StreamBatches"
)

// SensorServiceServer is the server API for SensorService.
type SensorServiceServer interface {
	StreamData(SensorService_StreamDataServer) error
	StreamBatches(SensorService_StreamBatchesServer) error
}

// UnimplementedSensorServiceServer can be embedded to satisfy
// SensorServiceServer when only one method is served.
type UnimplementedSensorServiceServer struct{}

func (UnimplementedSensorServiceServer) StreamData(SensorService_StreamDataServer) error {
	return status.Error(codes.Unimplemented, "method StreamData not implemented")
}

func (UnimplementedSensorServiceServer) StreamBatches(SensorService_StreamBatchesServer) error {
	return status.Error(codes.Unimplemented, "method StreamBatches not implemented")
}

// SensorService_StreamDataServer is the server side of StreamData. Batches
// are received undecoded.
type SensorService_StreamDataServer interface {
	Recv() (*RawMessage, error)
	SendAndClose(*emptypb.Empty) error
	grpc.ServerStream
}

// SensorService_StreamBatchesServer is the server side of StreamBatches.
type SensorService_StreamBatchesServer interface {
	Recv() (*RawMessage, error)
	Send(*BatchAck) error
	grpc.ServerStream
}

type streamDataServer struct {
	grpc.ServerStream
}

func (s *streamDataServer) Recv() (*RawMessage, error) {
	m := new(RawMessage)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *streamDataServer) SendAndClose(m *emptypb.Empty) error {
	return s.ServerStream.SendMsg(m)
}

type streamBatchesServer struct {
	grpc.ServerStream
}

func (s *streamBatchesServer) Recv() (*RawMessage, error) {
	m := new(RawMessage)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *streamBatchesServer) Send(m *BatchAck) error {
	return s.ServerStream.SendMsg(m)
}

func streamDataHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SensorServiceServer).StreamData(&streamDataServer{stream})
}

func streamBatchesHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SensorServiceServer).StreamBatches(&streamBatchesServer{stream})
}

// SensorService_ServiceDesc is the grpc.ServiceDesc for SensorService.
var SensorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamData",
			Handler:       streamDataHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "StreamBatches",
			Handler:       streamBatchesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "sensor/sensor.proto",
}

// RegisterSensorServiceServer registers srv with s.
func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&SensorService_ServiceDesc, srv)
}

// SensorServiceClient is the client API for SensorService.
type SensorServiceClient interface {
	StreamData(ctx context.Context, opts ...grpc.CallOption) (SensorService_StreamDataClient, error)
	StreamBatches(ctx context.Context, opts ...grpc.CallOption) (SensorService_StreamBatchesClient, error)
}

// SensorService_StreamDataClient is the client side of StreamData.
type SensorService_StreamDataClient interface {
	Send(*SensorEvent) error
	CloseAndRecv() (*emptypb.Empty, error)
	grpc.ClientStream
}

// SensorService_StreamBatchesClient is the client side of StreamBatches.
type SensorService_StreamBatchesClient interface {
	Send(*SensorEvent) error
	Recv() (*BatchAck, error)
	grpc.ClientStream
}

type sensorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSensorServiceClient returns a client bound to cc.
func NewSensorServiceClient(cc grpc.ClientConnInterface) SensorServiceClient {
	return &sensorServiceClient{cc}
}

func (c *sensorServiceClient) StreamData(ctx context.Context, opts ...grpc.CallOption) (SensorService_StreamDataClient, error) {
	stream, err := c.cc.NewStream(ctx, &SensorService_ServiceDesc.Streams[0], SensorService_StreamData_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &streamDataClient{stream}, nil
}

func (c *sensorServiceClient) StreamBatches(ctx context.Context, opts ...grpc.CallOption) (SensorService_StreamBatchesClient, error) {
	stream, err := c.cc.NewStream(ctx, &SensorService_ServiceDesc.Streams[1], SensorService_StreamBatches_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &streamBatchesClient{stream}, nil
}

type streamDataClient struct {
	grpc.ClientStream
}

func (c *streamDataClient) Send(m *SensorEvent) error {
	return c.ClientStream.SendMsg(m)
}

func (c *streamDataClient) CloseAndRecv() (*emptypb.Empty, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(emptypb.Empty)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type streamBatchesClient struct {
	grpc.ClientStream
}

func (c *streamBatchesClient) Send(m *SensorEvent) error {
	return c.ClientStream.SendMsg(m)
}

func (c *streamBatchesClient) Recv() (*BatchAck, error) {
	m := new(BatchAck)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
