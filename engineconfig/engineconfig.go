// Package engineconfig loads a device.Context's construction options
// from a YAML file, the way a deployed netrt process picks its queue
// mode, profiling, and tuning settings without a recompile.
package engineconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gpudag/netrt/device"
)

// QueueMode mirrors device.QueueMode's closed set as YAML-friendly
// strings, per spec.md §4.1's three queue configuration options.
type QueueMode string

const (
	QueueInOrder    QueueMode = "in_order"
	QueueOutOfOrder QueueMode = "out_of_order"
	QueuePriority   QueueMode = "priority"
)

// TuningMode mirrors device.TuningMode the same way.
type TuningMode string

const (
	TuningDisabled    TuningMode = "disabled"
	TuningUseCache    TuningMode = "use_cache"
	TuningTuneAndCache TuningMode = "tune_and_cache"
)

// Config is the on-disk shape of an engine configuration file.
type Config struct {
	QueueMode  QueueMode  `yaml:"queue_mode"`
	Profiling  bool       `yaml:"profiling"`
	TuningMode TuningMode `yaml:"tuning_mode"`
	CachePath  string     `yaml:"cache_path"`
	TuningPath string     `yaml:"tuning_path"`
}

// Load reads and parses a YAML engine config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engineconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("engineconfig: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// EngineOptions translates the parsed config into device.EngineOption
// values ready to pass to device.NewContext.
func (c *Config) EngineOptions() ([]device.EngineOption, error) {
	var opts []device.EngineOption

	switch c.QueueMode {
	case "", QueueInOrder:
		opts = append(opts, device.WithQueueMode(device.InOrder))
	case QueueOutOfOrder:
		opts = append(opts, device.WithQueueMode(device.OutOfOrder))
	case QueuePriority:
		opts = append(opts, device.WithQueueMode(device.Priority))
	default:
		return nil, fmt.Errorf("engineconfig: unknown queue_mode %q", c.QueueMode)
	}

	opts = append(opts, device.WithProfiling(c.Profiling))

	switch c.TuningMode {
	case "", TuningDisabled:
		opts = append(opts, device.WithTuningMode(device.TuningDisabled))
	case TuningUseCache:
		opts = append(opts, device.WithTuningMode(device.TuningUseCache))
	case TuningTuneAndCache:
		opts = append(opts, device.WithTuningMode(device.TuningTuneAndCache))
	default:
		return nil, fmt.Errorf("engineconfig: unknown tuning_mode %q", c.TuningMode)
	}

	return opts, nil
}
