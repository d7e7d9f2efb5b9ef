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

package metrics

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"go.corp.nvidia.com/sensorbench/utils"
)

// MetricsConfig holds configuration for the metrics system.
type MetricsConfig struct {
	OTLPEndpoint     string
	ExportIntervalMS int
	ServiceName      string
	ServiceVersion   string
	GlobalTags       map[string]string
	Enabled          bool
}

// MetricCreator provides thread-safe metric recording capabilities.
// All methods are safe for concurrent use and on a nil receiver.
type MetricCreator struct {
	meterProvider  *sdkmetric.MeterProvider
	meter          metric.Meter
	counterCache   sync.Map // map[string]metric.Int64Counter
	gaugeCache     sync.Map // map[string]metric.Float64Gauge
	histogramCache sync.Map // map[string]metric.Float64Histogram
	globalTags     map[string]string
}

var (
	initMutex   sync.Mutex
	instance    *MetricCreator
	initialized bool
	initErr     error
)

// InitMetricCreator initializes the global MetricCreator. A failed
// initialization may be retried; a successful one is kept. When metrics are
// disabled no exporter is created and GetMetricCreator returns nil.
func InitMetricCreator(config MetricsConfig) error {
	initMutex.Lock()
	defer initMutex.Unlock()

	if initialized {
		return nil
	}
	if !config.Enabled {
		initialized = true
		return nil
	}

	exporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		initErr = fmt.Errorf("failed to create OTLP exporter: %w", err)
		return initErr
	}
	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(time.Duration(config.ExportIntervalMS)*time.Millisecond))

	mc, err := NewMetricCreatorWithReader(config, reader)
	if err != nil {
		initErr = err
		return initErr
	}
	instance = mc
	initialized = true
	initErr = nil
	return nil
}

// GetMetricCreator returns the global MetricCreator, or nil if metrics are
// disabled or not initialized.
func GetMetricCreator() *MetricCreator {
	initMutex.Lock()
	defer initMutex.Unlock()
	return instance
}

// NewMetricCreatorWithReader builds a MetricCreator that feeds reader. Tests
// use it with a sdkmetric.ManualReader.
func NewMetricCreatorWithReader(config MetricsConfig, reader sdkmetric.Reader) (*MetricCreator, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	globalTags := make(map[string]string, len(config.GlobalTags))
	for k, v := range config.GlobalTags {
		globalTags[k] = v
	}

	meterName := config.ServiceName
	if config.ServiceVersion != "" {
		meterName = config.ServiceName + "@" + config.ServiceVersion
	}

	return &MetricCreator{
		meterProvider: provider,
		meter:         provider.Meter(meterName),
		globalTags:    globalTags,
	}, nil
}

// RecordCounter adds value to an integer counter.
func (mc *MetricCreator) RecordCounter(ctx context.Context, name string, value int64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	counter, err := loadOrCreate(&mc.counterCache, name, func() (metric.Int64Counter, error) {
		return mc.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(description))
	})
	if err != nil {
		return err
	}
	counter.Add(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

// RecordGauge records the current value of a floating-point gauge.
func (mc *MetricCreator) RecordGauge(ctx context.Context, name string, value float64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	gauge, err := loadOrCreate(&mc.gaugeCache, name, func() (metric.Float64Gauge, error) {
		return mc.meter.Float64Gauge(name, metric.WithUnit(unit), metric.WithDescription(description))
	})
	if err != nil {
		return err
	}
	gauge.Record(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

// RecordHistogram records a floating-point histogram observation.
func (mc *MetricCreator) RecordHistogram(ctx context.Context, name string, value float64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	histogram, err := loadOrCreate(&mc.histogramCache, name, func() (metric.Float64Histogram, error) {
		return mc.meter.Float64Histogram(name, metric.WithUnit(unit), metric.WithDescription(description))
	})
	if err != nil {
		return err
	}
	histogram.Record(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

func loadOrCreate[T any](cache *sync.Map, name string, create func() (T, error)) (T, error) {
	if cached, ok := cache.Load(name); ok {
		return cached.(T), nil
	}

	instrument, err := create()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to create instrument %s: %w", name, err)
	}

	actual, _ := cache.LoadOrStore(name, instrument)
	return actual.(T), nil
}

func (mc *MetricCreator) buildAttributes(callTags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(mc.globalTags)+len(callTags))
	for k, v := range mc.globalTags {
		if _, overridden := callTags[k]; overridden {
			continue
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range callTags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Shutdown flushes pending metrics and stops the meter provider.
func (mc *MetricCreator) Shutdown(ctx context.Context) error {
	if mc == nil || mc.meterProvider == nil {
		return nil
	}
	return mc.meterProvider.Shutdown(ctx)
}

// MetricsFlagPointers holds pointers to flag values for metrics configuration.
type MetricsFlagPointers struct {
	enable     *bool
	host       *string
	port       *int
	intervalMS *int
	component  *string
	version    *string
}

// RegisterMetricsFlags registers the OpenTelemetry flag group. defaultComponent
// is the service name reported when none is configured.
func RegisterMetricsFlags(defaultComponent string) *MetricsFlagPointers {
	return RegisterMetricsFlagsOn(flag.CommandLine, defaultComponent)
}

// RegisterMetricsFlagsOn registers the OpenTelemetry flags on fs.
func RegisterMetricsFlagsOn(fs *flag.FlagSet, defaultComponent string) *MetricsFlagPointers {
	return &MetricsFlagPointers{
		enable: fs.Bool("metrics-otel-enable",
			utils.GetEnvBool("SENSORBENCH_METRICS_OTEL_ENABLE", false),
			"Push throughput samples to an OpenTelemetry collector"),
		host: fs.String("metrics-otel-collector-host",
			utils.GetEnv("SENSORBENCH_METRICS_OTEL_COLLECTOR_HOST", "localhost"),
			"OpenTelemetry collector host"),
		port: fs.Int("metrics-otel-collector-port",
			utils.GetEnvInt("SENSORBENCH_METRICS_OTEL_COLLECTOR_PORT", 4317),
			"OpenTelemetry collector port"),
		intervalMS: fs.Int("metrics-otel-interval-ms",
			utils.GetEnvInt("SENSORBENCH_METRICS_OTEL_INTERVAL_MS", 5000),
			"OpenTelemetry export interval in milliseconds"),
		component: fs.String("metrics-otel-component",
			utils.GetEnv("SENSORBENCH_METRICS_OTEL_COMPONENT", defaultComponent),
			"Service name for OpenTelemetry metrics"),
		version: fs.String("service-version",
			utils.GetEnv("SENSORBENCH_SERVICE_VERSION", ""),
			"Service version for OpenTelemetry metrics (defaults to the build version)"),
	}
}

// ToMetricsConfig converts flag pointers to MetricsConfig. Must be called
// after flag.Parse().
func (m *MetricsFlagPointers) ToMetricsConfig() MetricsConfig {
	return MetricsConfig{
		OTLPEndpoint:     fmt.Sprintf("%s:%d", *m.host, *m.port),
		ExportIntervalMS: *m.intervalMS,
		ServiceName:      *m.component,
		ServiceVersion:   *m.version,
		GlobalTags:       make(map[string]string),
		Enabled:          *m.enable,
	}
}
