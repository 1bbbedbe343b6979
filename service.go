package procflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/procflow/policy"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/action/nop"
	"github.com/viant/procflow/service/action/printer"
	"github.com/viant/procflow/service/dao"
	snapshotfs "github.com/viant/procflow/service/dao/snapshot/fs"
	snapshotmemory "github.com/viant/procflow/service/dao/snapshot/memory"
	"github.com/viant/procflow/service/dao/workflow"
	"github.com/viant/procflow/service/engine"
	"github.com/viant/procflow/service/event"
	natsbus "github.com/viant/procflow/service/event/nats"
	"github.com/viant/procflow/service/meta"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
	taskmemory "github.com/viant/procflow/service/task/memory"
	"github.com/viant/procflow/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Service wires the engine with definition loading, services, events and
// persistence.
type Service struct {
	config        *Config
	logger        *slog.Logger
	runtime       *Runtime
	metaService   *meta.Service
	registry      *registry.Local
	services      []registry.Service
	policy        *policy.Policy
	bus           event.Bus
	store         dao.Service[string, execution.Snapshot]
	tasks         task.Queue
	metaBaseURL   string
	metaFsOptions []storage.Option
	tracing       *TracingConfig
	exporter      sdktrace.SpanExporter
	closers       []func(ctx context.Context) error
}

// New builds a service from Config (DefaultConfig when not supplied) and
// options.
func New(options ...Option) (*Service, error) {
	s := &Service{logger: slog.Default()}
	for _, option := range options {
		option(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := s.init(); err != nil {
		_ = s.close(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	if err := s.initTracing(); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	if s.policy == nil {
		s.policy = policy.FromConfig(s.config.Policy)
	}
	s.registry = registry.NewLocal(registry.WithPolicy(s.policy))
	s.registry.Register(nop.New(), printer.New(os.Stdout))
	s.registry.Register(s.services...)

	if s.metaBaseURL == "" {
		s.metaBaseURL = s.config.Definitions.BaseURL
	}
	s.metaService = meta.New(afs.New(), s.metaBaseURL, s.metaFsOptions...)
	workflowOptions := []workflow.Option{workflow.WithMetaService(s.metaService)}
	if ttl, err := time.ParseDuration(s.config.Definitions.CacheTTL); err == nil {
		workflowOptions = append(workflowOptions, workflow.WithCacheTTL(ttl))
	}
	workflowDAO := workflow.New(workflowOptions...)

	if err := s.initBus(); err != nil {
		return err
	}
	if err := s.initStore(); err != nil {
		return err
	}
	if s.tasks == nil {
		s.tasks = taskmemory.New(taskmemory.WithBus(s.bus), taskmemory.WithLogger(s.logger))
	}
	anEngine := engine.New(
		engine.WithLogger(s.logger),
		engine.WithBus(s.bus),
		engine.WithRegistry(s.registry),
		engine.WithStore(s.store),
		engine.WithTaskQueue(s.tasks),
		engine.WithRetryDefaults(s.config.RetryDefaults()),
		engine.WithInboxSize(s.config.Engine.InboxSize),
	)
	s.runtime = &Runtime{engine: anEngine, workflowDAO: workflowDAO, tasks: s.tasks, close: s.close}
	return nil
}

func (s *Service) initTracing() error {
	settings := s.tracing
	if settings == nil {
		settings = &s.config.Tracing
	}
	if !settings.Enabled {
		return nil
	}
	var shutdown tracing.Shutdown
	var err error
	if s.exporter != nil {
		shutdown, err = tracing.InitWithExporter(settings.ServiceName, settings.ServiceVersion, s.exporter)
	} else {
		shutdown, err = tracing.Init(settings.ServiceName, settings.ServiceVersion, settings.OutputFile)
	}
	if err != nil {
		return err
	}
	s.closers = append(s.closers, shutdown)
	return nil
}

func (s *Service) initBus() error {
	if s.bus != nil {
		return nil
	}
	switch s.config.Events.Vendor {
	case VendorNATS:
		bus, err := natsbus.Connect(s.config.Events.URL,
			natsbus.WithPrefix(s.config.Events.SubjectPrefix),
			natsbus.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("failed to connect event bus: %w", err)
		}
		s.bus = bus
		s.closers = append(s.closers, func(context.Context) error { return bus.Close() })
	default:
		bus := event.New(event.WithLogger(s.logger))
		s.bus = bus
		s.closers = append(s.closers, func(context.Context) error { return bus.Close() })
	}
	return nil
}

func (s *Service) initStore() error {
	if s.store != nil {
		return nil
	}
	switch s.config.Store.Vendor {
	case VendorFS:
		store, err := snapshotfs.New(s.config.Store.Path, afs.New())
		if err != nil {
			return fmt.Errorf("failed to create snapshot store: %w", err)
		}
		s.store = store
	default:
		s.store = snapshotmemory.New()
	}
	return nil
}

// close releases owned resources in reverse order of creation.
func (s *Service) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Runtime returns the workflow runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Registry returns the local service registry.
func (s *Service) Registry() *registry.Local {
	return s.registry
}

// RegisterServices adds services after construction.
func (s *Service) RegisterServices(services ...registry.Service) {
	s.registry.Register(services...)
}

// Config returns the effective configuration.
func (s *Service) Config() *Config {
	return s.config
}
