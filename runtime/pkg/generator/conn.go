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

package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/conduitio/bwlimit"
)

var (
	// ErrEndpointUnavailable is returned when the endpoint does not accept a
	// connection within the connect timeout.
	ErrEndpointUnavailable = errors.New("endpoint unavailable")
	// ErrRetriesExhausted is returned after MaxRetries consecutive failed
	// writes or reconnects.
	ErrRetriesExhausted = errors.New("write retries exhausted")
	// ErrRecordTooLarge is returned when a record is longer than the
	// per-connection byte cap allows in one second.
	ErrRecordTooLarge = errors.New("record exceeds per-connection byte cap")
)

// Endpoint is the local stream the system under test reads from.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

type dialer struct {
	endpoint     Endpoint
	pollInterval time.Duration
	bytesPerSec  int64
	logger       *slog.Logger
}

func (d *dialer) dialOnce(ctx context.Context) (net.Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, d.endpoint.Network, d.endpoint.Address)
	if err != nil {
		return nil, err
	}
	if d.bytesPerSec > 0 {
		conn = bwlimit.NewConn(conn, bwlimit.Byte(d.bytesPerSec), 0)
	}
	return conn, nil
}

// waitForEndpoint dials until the endpoint accepts a connection. The system
// under test usually creates its socket after the generator starts, so
// refused dials and missing socket files are retried until timeout.
func (d *dialer) waitForEndpoint(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	start := time.Now()
	attempts := 0
	for {
		attempts++
		conn, err := d.dialOnce(ctx)
		if err == nil {
			d.logger.InfoContext(ctx, "connected to endpoint",
				slog.String("endpoint", d.endpoint.String()),
				slog.Int("attempts", attempts),
				slog.Duration("waited", time.Since(start)))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Since(start) >= timeout {
			return nil, fmt.Errorf("%w: %s did not accept a connection within %v: %v",
				ErrEndpointUnavailable, d.endpoint, timeout, err)
		}
		if attempts == 1 {
			d.logger.InfoContext(ctx, "waiting for endpoint",
				slog.String("endpoint", d.endpoint.String()),
				slog.String("error", err.Error()))
		}
		if !sleepContext(ctx, d.pollInterval) {
			return nil, ctx.Err()
		}
	}
}

// sleepContext returns false if ctx ended before d elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
