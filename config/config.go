// Package config provides YAML-backed configuration loading for the IPD
// simulator. Ported from the teacher's config package: embedded defaults
// merged with an optional user file via two yaml.Unmarshal passes into the
// same struct, plus a Derived section computed after loading. Generalized
// from the teacher's many ecosystem-tuning sections down to the Grid,
// Learning, Policy and Run sections this simulator's engine needs, plus a
// Telemetry section for the CSV/frame-export collaborators.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/ipdcells/action"
	"github.com/pthm-cable/ipdcells/engine"
	"github.com/pthm-cable/ipdcells/grid"
	"github.com/pthm-cable/ipdcells/payoff"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every simulator parameter loadable from YAML.
type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Learning  LearningConfig  `yaml:"learning"`
	Policy    PolicyConfig    `yaml:"policy"`
	Run       RunConfig       `yaml:"run"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived holds values computed after loading, not read from YAML.
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig describes the grid's shape, topology, and payoff matrix.
type GridConfig struct {
	Width        int       `yaml:"width"`
	Height       int       `yaml:"height"`
	Neighborhood string    `yaml:"neighborhood"` // "4" or "8"
	Payoff       PayoffRow `yaml:"payoff"`
}

// PayoffRow holds the four scalar payoffs of the standard PD plus the
// (Merge, Merge) payoff; every other Merge/Split entry of the derived table
// is zero.
type PayoffRow struct {
	CooperateCooperate float64 `yaml:"cc"`
	CooperateDefect    float64 `yaml:"cd"`
	DefectCooperate    float64 `yaml:"dc"`
	DefectDefect       float64 `yaml:"dd"`
	MergeMerge         float64 `yaml:"mm"`
}

// LearningConfig holds the Q-learning hyperparameters.
type LearningConfig struct {
	Alpha   float64 `yaml:"alpha"`
	Gamma   float64 `yaml:"gamma"`
	Epsilon float64 `yaml:"epsilon"`
}

// PolicyConfig holds Policy Store and Memory sizing.
type PolicyConfig struct {
	MemoryCapacity int `yaml:"memory_capacity"`
	StoreCapacity  int `yaml:"store_capacity"`
}

// RunConfig holds run-level parameters: seed, step count, worker count.
type RunConfig struct {
	Seed       int64 `yaml:"seed"`
	Steps      int   `yaml:"steps"`
	NumWorkers int   `yaml:"num_workers"`
	ChunkSize  int   `yaml:"chunk_size"`
}

// TelemetryConfig configures the external CSV/frame collaborators; the
// engine itself never reads this section (spec.md §9 layering note).
type TelemetryConfig struct {
	CSVPath   string `yaml:"csv_path"`
	VideoPath string `yaml:"video_path"`
	Width     int    `yaml:"video_width"`
	Height    int    `yaml:"video_height"`
	FPS       int    `yaml:"fps"`
}

// DerivedConfig holds values computed once after loading.
type DerivedConfig struct {
	Neighborhood grid.Neighborhood
	Payoff       payoff.Table
}

// Load reads embedded defaults, then overlays path's contents if path is
// non-empty (only fields present in the file override the defaults), then
// computes Derived.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports a ConfigInvalid-class error (spec.md §7) for any
// nonsensical parameter, checked once at load time. Neighborhood string
// validity is checked here (it's specific to the YAML-facing type, before
// Derived even exists); everything else is delegated to engine.Config's
// own Validate, via EngineConfig, so the numeric bounds named in
// SPEC_FULL.md §4.7 (dimensions, alpha/gamma/epsilon range, memory
// capacity, payoff finiteness) live in exactly one place rather than being
// duplicated between this package and engine.
func (c *Config) Validate() error {
	switch c.Grid.Neighborhood {
	case "", "4", "8":
	default:
		return fmt.Errorf("config: ConfigInvalid: neighborhood must be \"4\" or \"8\", got %q", c.Grid.Neighborhood)
	}
	return c.EngineConfig().Validate()
}

func (c *Config) computeDerived() error {
	switch c.Grid.Neighborhood {
	case "", "4":
		c.Derived.Neighborhood = grid.FourConnected
	case "8":
		c.Derived.Neighborhood = grid.EightConnected
	default:
		return fmt.Errorf("config: ConfigInvalid: neighborhood must be \"4\" or \"8\", got %q", c.Grid.Neighborhood)
	}

	var pt payoff.Table
	pt[action.Cooperate.Code()][action.Cooperate.Code()] = c.Grid.Payoff.CooperateCooperate
	pt[action.Cooperate.Code()][action.Defect.Code()] = c.Grid.Payoff.CooperateDefect
	pt[action.Defect.Code()][action.Cooperate.Code()] = c.Grid.Payoff.DefectCooperate
	pt[action.Defect.Code()][action.Defect.Code()] = c.Grid.Payoff.DefectDefect
	pt[action.Merge.Code()][action.Merge.Code()] = c.Grid.Payoff.MergeMerge
	c.Derived.Payoff = pt
	return nil
}

// EngineConfig converts the loaded Config into an engine.Config ready for
// engine.New. This is the one place the YAML-facing config type is
// translated into the core's own construction type.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Width:               c.Grid.Width,
		Height:              c.Grid.Height,
		Neighborhood:        c.Derived.Neighborhood,
		Payoff:              c.Derived.Payoff,
		Alpha:               c.Learning.Alpha,
		Gamma:               c.Learning.Gamma,
		Epsilon:             c.Learning.Epsilon,
		MemoryCapacity:      uint8(c.Policy.MemoryCapacity),
		PolicyStoreCapacity: c.Policy.StoreCapacity,
		Seed:                uint64(c.Run.Seed),
		NumWorkers:          c.Run.NumWorkers,
		ChunkSize:           c.Run.ChunkSize,
	}
}

// WriteYAML writes the configuration to a YAML file; cmd/optimize uses it
// to dump the best config it found.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: writing file: %w", err)
	}
	return nil
}
