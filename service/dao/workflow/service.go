package workflow

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/viant/afs"
	"github.com/viant/procflow/internal/yml"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/service/meta"
	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is used unless WithCacheTTL overrides it.
const DefaultCacheTTL = time.Minute

// Service loads YAML workflow definitions through the meta service and caches
// parsed definitions by URL.
type Service struct {
	metaService *meta.Service
	cacheTTL    time.Duration
	cache       *ttlcache.Cache[string, *model.Workflow]
}

// DecodeYAML decodes and validates a workflow from YAML.
func (s *Service) DecodeYAML(encoded []byte) (*model.Workflow, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(encoded, &node); err != nil {
		return nil, err
	}
	return s.Parse("", &node)
}

// Load returns the workflow at URL; a missing extension defaults to .yaml.
// Callers receive a clone so cached definitions are never shared.
func (s *Service) Load(ctx context.Context, URL string) (*model.Workflow, error) {
	if path.Ext(URL) == "" {
		URL += ".yaml"
	}
	if s.cache != nil {
		if item := s.cache.Get(URL); item != nil {
			return item.Value().Clone(), nil
		}
	}
	var node yaml.Node
	if err := s.metaService.Load(ctx, URL, &node); err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	workflow, err := s.Parse(URL, &node)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(URL, workflow, ttlcache.DefaultTTL)
	}
	return workflow.Clone(), nil
}

// LoadAll loads every .yaml/.yml definition under location.
func (s *Service) LoadAll(ctx context.Context, location string) ([]*model.Workflow, error) {
	URLs, err := s.metaService.List(ctx, location, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	var result []*model.Workflow
	for _, URL := range URLs {
		workflow, err := s.Load(ctx, URL)
		if err != nil {
			return nil, err
		}
		result = append(result, workflow)
	}
	return result, nil
}

// Refresh drops a cached definition so the next Load re-reads it.
func (s *Service) Refresh(URL string) {
	if s.cache == nil {
		return
	}
	if path.Ext(URL) == "" {
		URL += ".yaml"
	}
	s.cache.Delete(URL)
}

// Parse converts a YAML document into a validated workflow.
func (s *Service) Parse(URL string, node *yaml.Node) (*model.Workflow, error) {
	workflow := model.NewWorkflow(nameFromURL(URL))
	if URL != "" {
		workflow.Source = &model.Source{URL: URL}
	}
	if err := parseWorkflow(yml.Root(node), workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", URL, err)
	}
	if workflow.ID == "" {
		return nil, fmt.Errorf("failed to parse workflow: id is required")
	}
	if workflow.Name == "" {
		workflow.Name = workflow.ID
	}
	if err := workflow.Check(); err != nil {
		return nil, err
	}
	return workflow, nil
}

func nameFromURL(URL string) string {
	if URL == "" {
		return ""
	}
	base := path.Base(URL)
	return strings.TrimSuffix(base, path.Ext(base))
}

// New creates a workflow loader.
func New(opts ...Option) *Service {
	ret := &Service{cacheTTL: DefaultCacheTTL}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.metaService == nil {
		ret.metaService = meta.New(afs.New(), "")
	}
	if ret.cacheTTL > 0 {
		ret.cache = ttlcache.New[string, *model.Workflow](
			ttlcache.WithTTL[string, *model.Workflow](ret.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, *model.Workflow](),
		)
	}
	return ret
}
