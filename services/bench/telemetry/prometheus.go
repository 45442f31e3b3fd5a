// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "grindbench"

// PrometheusSink records benchmark results as Prometheus metrics.
//
// # Description
//
// Every sink owns its registry, so several sinks (one per test, for
// example) never collide on registration. The collected metrics are
// written once per run with WriteTextfile.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking.
type PrometheusSink struct {
	registry *prometheus.Registry

	// BenchmarksTotal counts processed benchmarks.
	// Labels: tool
	BenchmarksTotal *prometheus.CounterVec

	// RegressionsTotal counts limit violations.
	// Labels: tool, kind, limit (soft, hard)
	RegressionsTotal *prometheus.CounterVec

	// ParseErrorsTotal counts outputs that failed to parse.
	// Labels: tool
	ParseErrorsTotal *prometheus.CounterVec

	// MetricValue is the latest total of a metric.
	// Labels: benchmark, tool, kind
	MetricValue *prometheus.GaugeVec

	// BenchmarkDuration measures the time to process one benchmark.
	// Labels: tool
	BenchmarkDuration *prometheus.HistogramVec
}

// NewPrometheusSink creates a sink with a fresh registry.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusSink{
		registry: reg,
		BenchmarksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "benchmarks_total",
			Help:      "Total benchmarks processed by tool",
		}, []string{"tool"}),
		RegressionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "regressions_total",
			Help:      "Total regression limit violations by tool, metric kind and limit type",
		}, []string{"tool", "kind", "limit"}),
		ParseErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_errors_total",
			Help:      "Total tool outputs that failed to parse",
		}, []string{"tool"}),
		MetricValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "metric_value",
			Help:      "Latest total of a benchmark metric",
		}, []string{"benchmark", "tool", "kind"}),
		BenchmarkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "benchmark_duration_seconds",
			Help:      "Time to parse, aggregate and compare one benchmark",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"tool"}),
	}
}

// =============================================================================
// Recording
// =============================================================================

// RecordBenchmark counts a processed benchmark and observes its duration.
func (s *PrometheusSink) RecordBenchmark(tool string, duration time.Duration) {
	s.BenchmarksTotal.WithLabelValues(tool).Inc()
	s.BenchmarkDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordMetric sets the latest value of a metric.
func (s *PrometheusSink) RecordMetric(benchmark, tool, kind string, value float64) {
	s.MetricValue.WithLabelValues(benchmark, tool, kind).Set(value)
}

// RecordRegression counts one violation.
func (s *PrometheusSink) RecordRegression(tool, kind, limit string) {
	s.RegressionsTotal.WithLabelValues(tool, kind, limit).Inc()
}

// RecordParseError counts one output that failed to parse.
func (s *PrometheusSink) RecordParseError(tool string) {
	s.ParseErrorsTotal.WithLabelValues(tool).Inc()
}

// Gatherer exposes the sink's registry.
func (s *PrometheusSink) Gatherer() prometheus.Gatherer {
	return s.registry
}

// WriteTextfile writes all metrics in the text exposition format.
//
// The file is written atomically, so a node-exporter textfile collector
// never reads a partial file. Parent directories are created.
func (s *PrometheusSink) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write textfile: %w", err)
	}
	return nil
}
