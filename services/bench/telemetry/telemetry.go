// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up tracing and collects benchmark metrics.
//
// Init installs the global otel TracerProvider used by the spans in the
// engine, the regression gate and the callgrind parser. PrometheusSink
// implements regression.Sink and writes its registry to a node-exporter
// textfile at the end of a run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext is returned when Init is called without a context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned for an unsupported trace exporter.
	ErrUnknownExporter = errors.New("unknown trace exporter")
)

// Trace exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies the process in exported spans.
	ServiceName string

	// ServiceVersion is the version string attached to spans.
	ServiceVersion string

	// TraceExporter is "none" or "stdout". Empty means "none".
	TraceExporter string

	// Writer receives stdout spans. Defaults to os.Stderr so spans never
	// mix with a JSON summary on stdout.
	Writer io.Writer
}

// DefaultConfig returns a config with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "grindbench",
		ServiceVersion: "dev",
		TraceExporter:  ExporterNone,
	}
}

// Init installs the global TracerProvider described by cfg.
//
// Description:
//
//	With the "none" exporter the global no-op provider stays in place and
//	shutdown does nothing. With "stdout" every span is written as pretty
//	JSON to cfg.Writer when it ends.
//
// Outputs:
//
//	shutdown - Flushes and stops the provider. Must be called before exit.
//	error - ErrUnknownExporter for an unsupported exporter name.
//
// Example:
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(cfg.TraceExporter) {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
