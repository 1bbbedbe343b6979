package workflow

import (
	"time"

	"github.com/viant/procflow/service/meta"
)

type Option func(*Service)

// WithMetaService sets the resource loader.
func WithMetaService(meta *meta.Service) Option {
	return func(s *Service) {
		s.metaService = meta
	}
}

// WithCacheTTL sets how long loaded definitions are reused; zero disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
	}
}
