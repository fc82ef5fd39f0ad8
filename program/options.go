package program

import "github.com/gpudag/netrt/device"

// TuningConfig carries a tuning mode and tuning file path, mirroring
// device.TuningMode plus the on-disk tuning file path spec.md §6 names as
// a build option. Build records it, but no pass reads it: Pass 16 always
// takes selector.Book.Select's static pick.
type TuningConfig struct {
	Mode     device.TuningMode
	FilePath string
}

// BuildOption configures program.Build, in the same functional-options
// style as device's EngineOption.
type BuildOption func(*buildConfig)

type buildConfig struct {
	outputs             []string
	optimizeData         bool
	debug                bool
	tuning               TuningConfig
	serializationName    string
	dumpDirectory        string
	enableParallelReorder bool
}

// WithOutputs overrides automatic endpoint detection (spec.md §6):
// exactly these ids are marked as outputs instead of every node with no
// users.
func WithOutputs(ids ...string) BuildOption {
	return func(c *buildConfig) { c.outputs = ids }
}

// WithOptimizeData enables parallel reorder, layout reorder selection,
// depthwise fusion, buffer fusing, and primitive fusing (Passes
// 7/9/12/14/15). Passes 10 and 11 run whether or not it is set.
func WithOptimizeData(enabled bool) BuildOption {
	return func(c *buildConfig) {
		c.optimizeData = enabled
		c.enableParallelReorder = enabled
	}
}

// WithDebug marks every surviving node as an output, for inspection.
func WithDebug(enabled bool) BuildOption {
	return func(c *buildConfig) { c.debug = enabled }
}

// WithTuningConfig records a TuningConfig on the build; no pass reads it.
func WithTuningConfig(cfg TuningConfig) BuildOption {
	return func(c *buildConfig) { c.tuning = cfg }
}

// WithSerializationName sets the name a serialized program dump is
// written under, when dumping is enabled via WithDumpDirectory.
func WithSerializationName(name string) BuildOption {
	return func(c *buildConfig) { c.serializationName = name }
}

// WithDumpDirectory enables writing a diagnostic JSON program dump
// (processing order plus a per-node summary) to the given directory after
// Build completes.
func WithDumpDirectory(dir string) BuildOption {
	return func(c *buildConfig) { c.dumpDirectory = dir }
}
