// File: pool/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/process"
)

// Config tunes a worker pool.
type Config struct {
	// Code names the worker entry registered with RegisterWorker.
	Code string

	// MinWorkers is the lower fleet bound; defaults to 1.
	MinWorkers int

	// MaxWorkers is the upper fleet bound; defaults to MinWorkers.
	MaxWorkers int

	// IdleTimeout evicts one surplus idle worker per expiry; zero
	// disables eviction.
	IdleTimeout time.Duration

	// ExitOnDie retires a worker after it reports an error outcome.
	ExitOnDie bool

	// Setup is forwarded to every worker's spawn plan.
	Setup []process.SetupOp

	Loop   api.Loop
	Reaper api.Reaper

	// Log is optional; nil disables logging.
	Log *zerolog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

func (c *Config) applyDefaults() error {
	if c.Code == "" {
		return fmt.Errorf("pool: config: missing worker code entry")
	}
	if c.Loop == nil || c.Reaper == nil {
		return fmt.Errorf("pool: config: loop and reaper are required")
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = c.MinWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("pool: config: max_workers %d below min_workers %d", c.MaxWorkers, c.MinWorkers)
	}
	return nil
}

// FileConfig is the YAML shape accepted by ConfigFromFile.
type FileConfig struct {
	Code        string  `yaml:"code"`
	MinWorkers  int     `yaml:"min_workers"`
	MaxWorkers  int     `yaml:"max_workers"`
	IdleTimeout float64 `yaml:"idle_timeout_seconds"`
	ExitOnDie   bool    `yaml:"exit_on_die"`
}

// ConfigFromFile loads pool tuning from a YAML file. Collaborators (loop,
// reaper, logger) are filled in by the caller afterwards.
func ConfigFromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pool: config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("pool: config: %w", err)
	}
	return Config{
		Code:        fc.Code,
		MinWorkers:  fc.MinWorkers,
		MaxWorkers:  fc.MaxWorkers,
		IdleTimeout: time.Duration(fc.IdleTimeout * float64(time.Second)),
		ExitOnDie:   fc.ExitOnDie,
	}, nil
}
