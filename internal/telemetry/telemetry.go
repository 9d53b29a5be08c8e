// Package telemetry wires OpenTelemetry for the server: the trace provider
// behind otel.Tracer, and slog loggers that feed both the OpenTelemetry log
// bridge and the process log.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects where spans are exported.
type Config struct {
	ServiceName string
	Environment string
	// TracesExporter is "none" (or empty) or "stdout".
	TracesExporter string
	// Output receives stdout exports; defaults to os.Stdout.
	Output io.Writer
}

// Setup installs the global propagator and, unless tracing is disabled, an
// SDK trace provider. The returned function flushes and stops it.
func Setup(cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	var exporter sdktrace.SpanExporter
	switch cfg.TracesExporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown traces exporter %q", cfg.TracesExporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewLogger returns a logger for an instrumentation scope. Records go to the
// OpenTelemetry log bridge and to slog's default handler, so they are printed
// even when no log exporter is installed. The default handler's level
// (slog.SetLogLoggerLevel) applies to the printed side.
func NewLogger(scope string) *slog.Logger {
	return slog.New(&handler{bridge: otelslog.NewHandler(scope)})
}

type handler struct {
	bridge slog.Handler
	// ops replays WithAttrs/WithGroup onto the default handler, which is
	// resolved per record so a later slog.SetDefault is honoured.
	ops []func(slog.Handler) slog.Handler
}

func (h *handler) local() slog.Handler {
	l := slog.Default().Handler()
	for _, op := range h.ops {
		l = op(l)
	}
	return l
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.bridge.Enabled(ctx, level) || h.local().Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	if h.bridge.Enabled(ctx, r.Level) {
		errs = append(errs, h.bridge.Handle(ctx, r.Clone()))
	}
	if l := h.local(); l.Enabled(ctx, r.Level) {
		r = r.Clone()
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
		errs = append(errs, l.Handle(ctx, r))
	}
	return errors.Join(errs...)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(l slog.Handler) slog.Handler { return l.WithAttrs(attrs) })
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(l slog.Handler) slog.Handler { return l.WithGroup(name) })
}

func (h *handler) with(op func(slog.Handler) slog.Handler) *handler {
	return &handler{
		bridge: op(h.bridge),
		ops:    append(slices.Clip(h.ops), op),
	}
}
