// Package config provides unified configuration loading for loom.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/loom/internal/consolidation"
	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/persistence"
	"github.com/nvandessel/loom/internal/vecstore"
)

// LoomConfig contains all loom configuration settings.
type LoomConfig struct {
	// Engine sizes the topology and tunes the tick.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	Learning      hebbian.Config       `json:"learning" yaml:"learning"`
	Hyperedge     hyperedge.Config     `json:"hyperedge" yaml:"hyperedge"`
	Consolidation consolidation.Config `json:"consolidation" yaml:"consolidation"`

	// Persistence controls topology files and checkpoints.
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// MCP controls the tool server.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`

	// Context holds the signals applied to the engine when a session
	// opens. The engine does not persist context in topology files.
	Context map[string]float64 `json:"context,omitempty" yaml:"context,omitempty"`
}

// EngineConfig sizes the topology. Changing Dimension or a capacity makes
// existing topology files unreadable.
type EngineConfig struct {
	Dimension         int     `json:"dimension" yaml:"dimension"`
	NodeCapacity      int     `json:"node_capacity" yaml:"node_capacity"`
	EdgesPerNode      int     `json:"edges_per_node" yaml:"edges_per_node"`
	TimeStep          float64 `json:"time_step" yaml:"time_step"`
	Diffusion         float64 `json:"diffusion" yaml:"diffusion"`
	CouplingThreshold float64 `json:"coupling_threshold" yaml:"coupling_threshold"`
	MinWeight         float64 `json:"min_weight" yaml:"min_weight"`
	MaxWeight         float64 `json:"max_weight" yaml:"max_weight"`

	// Workers bounds force-phase goroutines. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// PersistenceConfig controls topology files and checkpoint rotation.
type PersistenceConfig struct {
	// Precision of stored vectors: "float32" (default) or "float16".
	Precision string `json:"precision" yaml:"precision"`

	// Compress writes zstd-framed checkpoints.
	Compress bool `json:"compress" yaml:"compress"`

	// CheckpointEvery is the number of ticks between checkpoints during
	// "loom run". 0 disables checkpoints.
	CheckpointEvery uint64 `json:"checkpoint_every" yaml:"checkpoint_every"`

	// MaxCheckpoints is the number of checkpoints kept. 0 means unlimited.
	MaxCheckpoints int `json:"max_checkpoints" yaml:"max_checkpoints"`

	// MaxCheckpointAge drops checkpoints older than this. 0 disables.
	MaxCheckpointAge time.Duration `json:"max_checkpoint_age,omitempty" yaml:"max_checkpoint_age,omitempty"`
}

// LoggingConfig configures loom's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .loom/decisions.jsonl.
	// "trace" additionally logs every tick.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// MCPConfig controls the tool server.
type MCPConfig struct {
	// RateLimit is the sustained number of tool calls per second.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// Burst is the number of calls allowed above RateLimit at once.
	Burst int `json:"burst" yaml:"burst"`

	// TicksPerCall caps the ticks a single loom_tick call may request.
	TicksPerCall int `json:"ticks_per_call" yaml:"ticks_per_call"`
}

// Default returns a LoomConfig with sensible defaults.
func Default() *LoomConfig {
	return &LoomConfig{
		Engine: EngineConfig{
			Dimension:         constants.DefaultDimension,
			NodeCapacity:      constants.DefaultNodeCapacity,
			EdgesPerNode:      constants.DefaultEdgesPerNode,
			TimeStep:          constants.DefaultTimeStep,
			Diffusion:         constants.DefaultDiffusion,
			CouplingThreshold: constants.CouplingThreshold,
			MinWeight:         constants.MinEdgeWeight,
			MaxWeight:         constants.MaxEdgeWeight,
		},
		Learning:      hebbian.DefaultConfig(),
		Hyperedge:     hyperedge.DefaultConfig(),
		Consolidation: consolidation.DefaultConfig(),
		Persistence: PersistenceConfig{
			Precision:       "float32",
			CheckpointEvery: constants.DefaultConsolidationInterval,
			MaxCheckpoints:  constants.MaxCheckpointRotation,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		MCP: MCPConfig{
			RateLimit:    20,
			Burst:        40,
			TicksPerCall: 10000,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.loom/config.yaml -> environment variables
func Load() (*LoomConfig, error) {
	return LoadProject("")
}

// LoadProject is Load with a project layer.
// Order: defaults -> ~/.loom/config.yaml -> <root>/.loom/config.yaml -> environment variables
// An empty root skips the project layer.
func LoadProject(root string) (*LoomConfig, error) {
	config := Default()

	if homeDir, err := os.UserHomeDir(); err == nil {
		if err := mergeFile(config, filepath.Join(homeDir, ".loom", "config.yaml")); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	if root != "" {
		if err := mergeFile(config, ProjectPath(root)); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ProjectPath returns the project configuration file under root.
func ProjectPath(root string) string {
	return filepath.Join(root, ".loom", "config.yaml")
}

// mergeFile overlays the YAML file at path onto config. A missing file is
// not an error.
func mergeFile(config *LoomConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	config.Metrics.Addr = expandEnvVars(config.Metrics.Addr)
	return nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys not
// present keep their defaults.
func LoadFromFile(path string) (*LoomConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *LoomConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks that the configuration is valid.
func (c *LoomConfig) Validate() error {
	if _, err := persistence.ParsePrecision(c.Persistence.Precision); err != nil {
		return err
	}
	if c.Persistence.MaxCheckpoints < 0 {
		return fmt.Errorf("max_checkpoints must be non-negative, got %d", c.Persistence.MaxCheckpoints)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, warn, error, or empty for default)", c.Logging.Level)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", f)
	}
	if c.MCP.RateLimit < 0 || c.MCP.Burst < 0 {
		return fmt.Errorf("mcp rate limit and burst must be non-negative")
	}

	if _, err := c.KernelConfig(); err != nil {
		return err
	}
	return nil
}

// KernelConfig converts the configuration into an engine configuration.
func (c *LoomConfig) KernelConfig() (kernel.Config, error) {
	layout, err := vecstore.ScaledLayout(c.Engine.Dimension)
	if err != nil {
		return kernel.Config{}, fmt.Errorf("dimension: %w", err)
	}
	precision, err := persistence.ParsePrecision(c.Persistence.Precision)
	if err != nil {
		return kernel.Config{}, err
	}
	if c.Engine.EdgesPerNode <= 0 {
		return kernel.Config{}, fmt.Errorf("edges_per_node must be positive, got %d", c.Engine.EdgesPerNode)
	}

	kc := kernel.DefaultConfig()
	kc.Layout = layout
	kc.NodeCapacity = c.Engine.NodeCapacity
	kc.EdgeCapacity = c.Engine.NodeCapacity * c.Engine.EdgesPerNode
	kc.Bounds = graph.Bounds{Min: c.Engine.MinWeight, Max: c.Engine.MaxWeight}
	kc.TimeStep = c.Engine.TimeStep
	kc.Diffusion = c.Engine.Diffusion
	kc.CouplingThreshold = c.Engine.CouplingThreshold
	if c.Engine.Workers > 0 {
		kc.Workers = c.Engine.Workers
	}
	kc.Precision = precision
	kc.Learning = c.Learning
	kc.Hyperedge = c.Hyperedge
	kc.Consolidation = c.Consolidation
	if err := kc.Validate(); err != nil {
		return kernel.Config{}, err
	}
	return kc, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *LoomConfig) {
	setInt(&config.Engine.Dimension, "LOOM_DIMENSION")
	setInt(&config.Engine.NodeCapacity, "LOOM_NODE_CAPACITY")
	setInt(&config.Engine.EdgesPerNode, "LOOM_EDGES_PER_NODE")
	setInt(&config.Engine.Workers, "LOOM_WORKERS")
	setFloat(&config.Engine.TimeStep, "LOOM_TIME_STEP")
	setFloat(&config.Learning.LearningRate, "LOOM_LEARNING_RATE")

	if v := os.Getenv("LOOM_LEARNING_RULE"); v != "" {
		config.Learning.Rule = hebbian.Rule(v)
	}
	if v := os.Getenv("LOOM_CONSOLIDATION_INTERVAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Consolidation.Interval = n
		}
	}
	if v := os.Getenv("LOOM_PRECISION"); v != "" {
		config.Persistence.Precision = v
	}
	if v := os.Getenv("LOOM_COMPRESS"); v != "" {
		config.Persistence.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOOM_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	if v := os.Getenv("LOOM_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
		config.Metrics.Enabled = true
	}
	setFloat(&config.MCP.RateLimit, "LOOM_MCP_RATE_LIMIT")
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
