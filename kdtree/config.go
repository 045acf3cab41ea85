package kdtree

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Geometry selects what an interior node stores.
type Geometry uint8

const (
	// GeometryBoundingBox stores an axis-aligned box per interior node.
	GeometryBoundingBox Geometry = iota
	// GeometrySplitPlane stores one split coordinate (and its dimension) per interior node.
	GeometrySplitPlane
)

func (g Geometry) String() string {
	switch g {
	case GeometryBoundingBox:
		return "bbox"
	case GeometrySplitPlane:
		return "split"
	default:
		return fmt.Sprintf("geometry(%d)", uint8(g))
	}
}

// UnmarshalText accepts "bbox" or "split" (used by envconfig).
func (g *Geometry) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "bbox", "boundingbox", "bounding_box":
		*g = GeometryBoundingBox
	case "split", "splitplane", "split_plane":
		*g = GeometrySplitPlane
	default:
		return fmt.Errorf("unknown geometry %q", text)
	}
	return nil
}

// Config holds build and runtime parameters.
type Config struct {
	LeafSize           int      `envconfig:"LEAF_SIZE" default:"16"`              // target points per leaf, default 16
	Levels             int      `envconfig:"LEVELS" default:"0"`                  // explicit tree depth; 0 derives it from LeafSize
	Geometry           Geometry `envconfig:"GEOMETRY" default:"bbox"`             // bbox or split
	PackSplitDims      bool     `envconfig:"PACK_SPLIT_DIMS" default:"false"`     // integer split trees: split dim packed into low bits
	InPlace            bool     `envconfig:"IN_PLACE" default:"false"`            // float64 storage: reorder and keep the caller's slice
	SelfCheck          bool     `envconfig:"SELF_CHECK" default:"false"`          // run Check before Build returns
	StrictQuantization bool     `envconfig:"STRICT_QUANTIZATION" default:"false"` // a clamped coordinate fails the build
	SearchPoolWorkers  int      `envconfig:"SEARCH_POOL_WORKERS" default:"0"`     // when >0, queries go through a resident worker pool
	PersistPath        string   `envconfig:"PERSIST_PATH"`                        // index file used by OpenIndex callers and the bench tool

	// QuantMin and QuantMax override the per-dimension quantization range.
	// Both must have ndim entries when set.
	QuantMin []float64 `envconfig:"QUANT_MIN"`
	QuantMax []float64 `envconfig:"QUANT_MAX"`

	Logger *zap.SugaredLogger `ignored:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LeafSize: 16,
		Logger:   zap.NewNop().Sugar(),
	}
}

// OrDefault returns DefaultConfig if c is nil, otherwise normalizes c.
func (c *Config) OrDefault() *Config {
	if c == nil {
		return DefaultConfig()
	}
	if c.LeafSize <= 0 {
		c.LeafSize = 16
	}
	if c.Levels < 0 {
		c.Levels = 0
	}
	if c.SearchPoolWorkers < 0 {
		c.SearchPoolWorkers = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// ConfigFromEnv reads a Config from environment variables named
// <prefix>_LEAF_SIZE, <prefix>_GEOMETRY and so on. An empty prefix means "KDINDEX".
func ConfigFromEnv(prefix string) (*Config, error) {
	if prefix == "" {
		prefix = "KDINDEX"
	}
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("kdtree: read config from env: %w", err)
	}
	return cfg.OrDefault(), nil
}
