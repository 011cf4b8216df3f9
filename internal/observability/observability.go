package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module's logs in OpenTelemetry.
const instrumentationName = "github.com/walkabout/corebe"

// Exporter names accepted by Instrument.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// ShutdownFunc flushes and stops telemetry export.
type ShutdownFunc func(context.Context) error

// Instrument sets the default slog logger and the W3C trace context
// propagator. The returned ShutdownFunc must be called before exit to flush
// exported records.
func Instrument(ctx context.Context, level slog.Level, format, exporter string) (ShutdownFunc, error) {
	return instrument(ctx, os.Stderr, level, format, exporter)
}

func instrument(ctx context.Context, w io.Writer, level slog.Level, format, exporter string) (ShutdownFunc, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	shutdown := ShutdownFunc(func(context.Context) error { return nil })

	if exporter != "" && exporter != ExporterNone {
		logExporter, err := newLogExporter(ctx, exporter)
		if err != nil {
			return nil, err
		}
		processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(logExporter), severity(level))
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		global.SetLoggerProvider(provider)

		handler = fanout{handler, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))}
		shutdown = provider.Shutdown
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})
	slog.SetDefault(slog.New(traceHandler{handler}))

	return shutdown, nil
}

func newLogExporter(ctx context.Context, exporter string) (sdklog.Exporter, error) {
	switch exporter {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(os.Stdout))
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter: %s", exporter)
	}
}

// severity maps a slog level to the OpenTelemetry minimum severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
