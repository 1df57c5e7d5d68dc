// Package config loads the Bridge's YAML configuration file, mirroring the
// nested-struct-per-concern layout the property controller's config file
// uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iotaledger/meter-bridge/internal/dispatch"
)

// Config is the Bridge's configuration file structure.
type Config struct {
	Node struct {
		URL string `yaml:"url"`
	} `yaml:"node"`

	Indexer struct {
		URL string `yaml:"url"`
	} `yaml:"indexer"`

	ObjectStore struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"object_store"`

	Wallet struct {
		File     string `yaml:"file"`
		Password string `yaml:"password"`
	} `yaml:"wallet"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	ErrorHandling struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"error_handling"`

	Buffered struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"buffered"`

	Indexing struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		BudgetSeconds   int `yaml:"budget_seconds"`
	} `yaml:"indexing"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return &cfg, nil
}

// ErrorHandlingStrategy parses the configured strategy string, defaulting
// to dispatch.AlwaysReturnErrors when unset.
func (c *Config) ErrorHandlingStrategy() (dispatch.ErrorHandlingStrategy, error) {
	return dispatch.ParseErrorHandlingStrategy(c.ErrorHandling.Strategy)
}

// BufferedInterval returns the configured buffered-message retry interval,
// falling back to the package default when unset.
func (c *Config) BufferedInterval(fallback time.Duration) time.Duration {
	if c.Buffered.IntervalSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.Buffered.IntervalSeconds) * time.Second
}

// IndexingInterval returns the configured indexer sync interval, falling
// back to the package default when unset.
func (c *Config) IndexingInterval(fallback time.Duration) time.Duration {
	if c.Indexing.IntervalSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.Indexing.IntervalSeconds) * time.Second
}

// IndexingBudget returns the configured indexer per-tick budget, falling
// back to the package default when unset.
func (c *Config) IndexingBudget(fallback time.Duration) time.Duration {
	if c.Indexing.BudgetSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.Indexing.BudgetSeconds) * time.Second
}
