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

// codec.go - raw batch handling for the collector
//
// The collector only needs to count and validate the metrics of a batch, so
// it never builds a SensorEvent. The codec hands it gRPC's receive buffer as a
// RawMessage and the collector scans the bytes in place.
//
// gRPC BUFFER OWNERSHIP:
// RawMessage.Raw references the buffer passed to Unmarshal. gRPC-go hands a
// freshly materialized buffer to v1 codecs on every RecvMsg, so the slice is
// valid until the next receive on the same stream.
//
// The codec is registered as "proto" so it serves every method on the server
// and client, including the health service. Messages it does not know about
// are passed to the protobuf runtime.

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content subtype the codec is registered under.
const CodecName = "proto"

// RawMessage wraps the undecoded bytes of one message.
type RawMessage struct {
	Raw []byte
}

// WireMarshaler is implemented by the hand-encoded messages of this package.
type WireMarshaler interface {
	MarshalWire() ([]byte, error)
}

// WireUnmarshaler is implemented by the hand-decoded messages of this package.
type WireUnmarshaler interface {
	UnmarshalWire([]byte) error
}

type rawCodec struct{}

// Name returns "proto" to override the default protobuf codec.
func (rawCodec) Name() string {
	return CodecName
}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case RawMessage:
		return m.Raw, nil
	case *RawMessage:
		return m.Raw, nil
	case WireMarshaler:
		return m.MarshalWire()
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("sensor codec: cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *RawMessage:
		m.Raw = data
		return nil
	case WireUnmarshaler:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("sensor codec: cannot unmarshal into %T", v)
}

// RegisterCodec installs the raw codec. It is called from init and is safe to
// call again.
func RegisterCodec() {
	encoding.RegisterCodec(rawCodec{})
}

func init() {
	RegisterCodec()
}
