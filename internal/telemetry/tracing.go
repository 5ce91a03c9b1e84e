package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/util"
)

const serviceName = "flailbot"

// Tracing owns the SDK tracer provider that records frame spans and the
// file the spans are exported to.
type Tracing struct {
	provider *sdktrace.TracerProvider
	file     *os.File
}

// NewTracerProvider builds a batching tracer provider that exports spans as
// JSON to w, sampled at cfg.SampleRatio.
func NewTracerProvider(cfg config.TracingConfig, w io.Writer, version string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}

// StartTracing opens cfg.File for appending and builds a provider over it.
func StartTracing(cfg config.TracingConfig, version string) (*Tracing, error) {
	if err := util.EnsureDir(filepath.Dir(cfg.File)); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	tp, err := NewTracerProvider(cfg, f, version)
	if err != nil {
		f.Close()
		return nil, err
	}

	log.Info().
		Str("component", "tracing").
		Str("file", cfg.File).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("frame tracing enabled")

	return &Tracing{provider: tp, file: f}, nil
}

// Provider returns the tracer provider to hand to the client.
func (t *Tracing) Provider() trace.TracerProvider {
	return t.provider
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return errors.Join(t.provider.Shutdown(ctx), t.file.Close())
}
