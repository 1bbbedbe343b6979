package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/dao/criteria"
)

// Service stores one JSON document per process snapshot under baseURL.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

var _ dao.Service[string, execution.Snapshot] = (*Service)(nil)

func (s *Service) Save(ctx context.Context, snapshot *execution.Snapshot) error {
	if snapshot == nil {
		return dao.ErrNilEntity
	}
	if snapshot.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snapshot.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(snapshot.ID)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", location, err)
	}
	return nil
}

func (s *Service) Load(ctx context.Context, id string) (*execution.Snapshot, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	location := s.location(id)
	if ok, _ := s.fs.Exists(ctx, location); !ok {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", location, err)
	}
	snapshot := &execution.Snapshot{}
	if err = json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", location, err)
	}
	return snapshot, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(id)
	if ok, _ := s.fs.Exists(ctx, location); !ok {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", location, err)
	}
	return nil
}

// List decodes every stored snapshot; unreadable files are logged and skipped.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var result []*execution.Snapshot
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			slog.Warn("failed to read snapshot", "url", object.URL(), "error", err)
			continue
		}
		snapshot := &execution.Snapshot{}
		if err = json.Unmarshal(data, snapshot); err != nil {
			slog.Warn("failed to decode snapshot", "url", object.URL(), "error", err)
			continue
		}
		if !criteria.FilterByStatus(string(snapshot.Status), parameters) {
			continue
		}
		result = append(result, snapshot)
	}
	return result, nil
}

func (s *Service) location(id string) string {
	return path.Join(s.baseURL, id+".json")
}

// New creates the store, creating baseURL when missing. Any afs URL scheme
// is accepted (file://, mem://, s3:// ...).
func New(baseURL string, fs afs.Service) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	baseURL = url.Normalize(baseURL, file.Scheme)
	ctx := context.Background()
	if ok, _ := fs.Exists(ctx, baseURL); !ok {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", baseURL, err)
		}
	}
	return &Service{baseURL: baseURL, fs: fs}, nil
}
