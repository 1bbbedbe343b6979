package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service loads YAML or JSON resources relative to a base URL.
type Service struct {
	fs      afs.Service
	baseURL string
	options []storage.Option
}

// URL resolves a relative location against the base URL.
func (s *Service) URL(location string) string {
	if s.baseURL == "" || !url.IsRelative(location) {
		return location
	}
	return url.Join(s.baseURL, location)
}

// Download returns raw resource content with ${env.KEY} expanded.
func (s *Service) Download(ctx context.Context, location string) ([]byte, error) {
	URL := s.URL(location)
	data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", URL, err)
	}
	if strings.Contains(string(data), envPrefix) {
		data = []byte(ExpandEnv(string(data)))
	}
	return data, nil
}

// Load decodes a resource into target; YAML is a superset of JSON so both
// encodings are accepted.
func (s *Service) Load(ctx context.Context, location string, target interface{}) error {
	data, err := s.Download(ctx, location)
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.URL(location), err)
	}
	return nil
}

// List returns resource URLs under location with the given suffixes.
func (s *Service) List(ctx context.Context, location string, suffixes ...string) ([]string, error) {
	URL := s.URL(location)
	objects, err := s.fs.List(ctx, URL, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", URL, err)
	}
	var result []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		if len(suffixes) == 0 {
			result = append(result, object.URL())
			continue
		}
		for _, suffix := range suffixes {
			if strings.HasSuffix(object.Name(), suffix) {
				result = append(result, object.URL())
				break
			}
		}
	}
	return result, nil
}

// New creates a meta service; options are passed to every afs call
// (for example an *embed.FS for embed:// URLs).
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{fs: fs, baseURL: baseURL, options: options}
}
