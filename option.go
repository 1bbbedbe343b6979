package procflow

import (
	"log/slog"

	"github.com/viant/afs/storage"
	"github.com/viant/procflow/policy"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service; options override Config.
type Option func(s *Service)

// WithConfig sets the configuration the service is built from.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetaBaseURL sets the base URL relative workflow locations resolve to.
func WithMetaBaseURL(URL string) Option {
	return func(s *Service) {
		s.metaBaseURL = URL
	}
}

// WithMetaFsOptions sets storage options used to load definitions, for
// example an embed.FS.
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = options
	}
}

// WithServices registers services on the local registry.
func WithServices(services ...registry.Service) Option {
	return func(s *Service) {
		s.services = append(s.services, services...)
	}
}

// WithPolicy restricts which services workflows may call.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithBus replaces the configured event bus.
func WithBus(bus event.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithStore replaces the configured snapshot store.
func WithStore(store dao.Service[string, execution.Snapshot]) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithTaskQueue replaces the in-memory task queue.
func WithTaskQueue(queue task.Queue) Option {
	return func(s *Service) {
		s.tasks = queue
	}
}

// WithTracing enables OpenTelemetry tracing with the stdout exporter; an
// empty outputFile writes to stdout.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracing = &TracingConfig{Enabled: true, ServiceName: serviceName, ServiceVersion: serviceVersion, OutputFile: outputFile}
	}
}

// WithTracingExporter enables tracing with a custom exporter such as OTLP.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracing = &TracingConfig{Enabled: true, ServiceName: serviceName, ServiceVersion: serviceVersion}
		s.exporter = exporter
	}
}
