package procflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/procflow/policy"
	"github.com/viant/procflow/service/activity"
	"github.com/viant/procflow/service/engine"
	"github.com/viant/procflow/service/meta"
)

const (
	VendorMemory = "memory"
	VendorNATS   = "nats"
	VendorFS     = "fs"
)

// Config is a serialisable representation of the service configuration.
// Zero values inherit package defaults.
type Config struct {
	Engine      EngineConfig      `json:"engine" yaml:"engine"`
	Events      EventsConfig      `json:"events" yaml:"events"`
	Store       StoreConfig       `json:"store" yaml:"store"`
	Definitions DefinitionsConfig `json:"definitions" yaml:"definitions"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Policy      *policy.Config    `json:"policy,omitempty" yaml:"policy,omitempty"`
}

type EngineConfig struct {
	Retry     RetryConfig `json:"retry" yaml:"retry"`
	InboxSize int         `json:"inboxSize" yaml:"inboxSize"`
}

// RetryConfig holds defaults for activity retry policies.
type RetryConfig struct {
	Type       string  `json:"type" yaml:"type"`
	Delay      string  `json:"delay" yaml:"delay"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	MaxDelay   string  `json:"maxDelay" yaml:"maxDelay"`
}

type EventsConfig struct {
	Vendor        string `json:"vendor" yaml:"vendor"`
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	SubjectPrefix string `json:"subjectPrefix,omitempty" yaml:"subjectPrefix,omitempty"`
}

type StoreConfig struct {
	Vendor string `json:"vendor" yaml:"vendor"`
	// Path is an afs URL holding one JSON snapshot per instance.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type DefinitionsConfig struct {
	BaseURL  string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	CacheTTL string `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty"`
}

type TracingConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	ServiceName    string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty" yaml:"serviceVersion,omitempty"`
	OutputFile     string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config populated with package defaults.
func DefaultConfig() *Config {
	retry := activity.DefaultRetry()
	return &Config{
		Engine: EngineConfig{
			Retry: RetryConfig{
				Type:       retry.Type,
				Delay:      retry.Delay.String(),
				Multiplier: retry.Multiplier,
				MaxDelay:   retry.MaxDelay.String(),
			},
			InboxSize: engine.DefaultConfig().InboxSize,
		},
		Events:      EventsConfig{Vendor: VendorMemory},
		Store:       StoreConfig{Vendor: VendorMemory},
		Definitions: DefinitionsConfig{CacheTTL: time.Minute.String()},
		Tracing:     TracingConfig{ServiceName: "procflow"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	switch c.Engine.Retry.Type {
	case "", activity.RetryNone, activity.RetryFixed, activity.RetryExponential:
	default:
		errs = append(errs, fmt.Errorf("engine.retry.type: unsupported %q", c.Engine.Retry.Type))
	}
	for name, value := range map[string]string{
		"engine.retry.delay":    c.Engine.Retry.Delay,
		"engine.retry.maxDelay": c.Engine.Retry.MaxDelay,
		"definitions.cacheTTL":  c.Definitions.CacheTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Engine.Retry.Multiplier < 0 {
		errs = append(errs, fmt.Errorf("engine.retry.multiplier must be >= 0"))
	}
	if c.Engine.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("engine.inboxSize must be >= 0"))
	}
	switch c.Events.Vendor {
	case "", VendorMemory, VendorNATS:
	default:
		errs = append(errs, fmt.Errorf("events.vendor: unsupported %q", c.Events.Vendor))
	}
	switch c.Store.Vendor {
	case "", VendorMemory:
	case VendorFS:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for %s store", VendorFS))
		}
	default:
		errs = append(errs, fmt.Errorf("store.vendor: unsupported %q", c.Store.Vendor))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RetryDefaults converts the retry section into engine defaults.
func (c *Config) RetryDefaults() activity.RetryDefaults {
	ret := activity.DefaultRetry()
	retry := c.Engine.Retry
	if retry.Type != "" {
		ret.Type = retry.Type
	}
	if d, err := time.ParseDuration(retry.Delay); err == nil {
		ret.Delay = d
	}
	if retry.Multiplier > 0 {
		ret.Multiplier = retry.Multiplier
	}
	if d, err := time.ParseDuration(retry.MaxDelay); err == nil {
		ret.MaxDelay = d
	}
	return ret
}

// LoadConfig reads a YAML or JSON config over DefaultConfig; ${env.KEY}
// placeholders are expanded.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	ret := DefaultConfig()
	loader := meta.New(afs.New(), "", options...)
	if err := loader.Load(ctx, URL, ret); err != nil {
		return nil, err
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
