// Package observability wires OpenTelemetry trace export.
//
// Spans are shipped over OTLP HTTP to a local collector (an OpenTelemetry
// Collector, a vendor agent, anything speaking the protocol). Two span
// families exist in this process: the turn engine traces through the
// global tracer provider, and genkit traces its model calls and flows
// through its own. [Setup] points both at the same provider so a turn and
// the model calls it made land in one trace tree.
//
// Export is strictly best-effort. A missing collector must never take the
// process down with it, so setup failures degrade to running untraced.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/strand-ai/strand/internal/log"
)

// DefaultEndpoint is the conventional OTLP HTTP listener address.
const DefaultEndpoint = "localhost:4318"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector host:port. Empty means
	// DefaultEndpoint.
	Endpoint string

	// ServiceName tags exported spans. Empty means "strand".
	ServiceName string

	// Environment becomes the deployment.environment resource attribute
	// when set.
	Environment string
}

// Setup registers an OTLP HTTP exporter and returns a shutdown function
// that flushes pending spans. When the exporter cannot be built the error
// is logged, tracing stays off, and the returned shutdown is a no-op.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "strand"
	}

	// The tracer providers read their resource from the environment, so
	// these must be set before the first TracerProvider call.
	_ = os.Setenv("OTEL_SERVICE_NAME", serviceName)
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("trace exporter unavailable, tracing disabled", "endpoint", endpoint, "error", err)
		return func(context.Context) error { return nil }, nil
	}

	// Genkit owns its provider; feeding it the exporter and installing it
	// as the global provider keeps engine spans and model spans together.
	provider := tracing.TracerProvider()
	provider.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	// Emit one span so a broken pipeline surfaces at startup instead of
	// silently dropping the first real turn.
	_, span := provider.Tracer("strand/internal/observability").Start(ctx, "observability.init")
	span.End()

	return provider.Shutdown, nil
}
