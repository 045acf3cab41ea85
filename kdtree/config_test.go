package kdtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("KDINDEX_LEAF_SIZE", "32")
	t.Setenv("KDINDEX_GEOMETRY", "split")
	t.Setenv("KDINDEX_PACK_SPLIT_DIMS", "true")
	t.Setenv("KDINDEX_SEARCH_POOL_WORKERS", "2")
	t.Setenv("KDINDEX_QUANT_MIN", "0,-1.5")
	t.Setenv("KDINDEX_QUANT_MAX", "10,1.5")

	cfg, err := ConfigFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.LeafSize)
	assert.Equal(t, GeometrySplitPlane, cfg.Geometry)
	assert.True(t, cfg.PackSplitDims)
	assert.Equal(t, 2, cfg.SearchPoolWorkers)
	assert.Equal(t, []float64{0, -1.5}, cfg.QuantMin)
	assert.Equal(t, []float64{10, 1.5}, cfg.QuantMax)
	assert.NotNil(t, cfg.Logger)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv("KDTEST")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.LeafSize)
	assert.Equal(t, GeometryBoundingBox, cfg.Geometry)
	assert.False(t, cfg.SelfCheck)
}

func TestConfigFromEnvRejectsGeometry(t *testing.T) {
	t.Setenv("KDTEST_GEOMETRY", "sphere")
	_, err := ConfigFromEnv("KDTEST")
	assert.Error(t, err)
}

func TestOrDefault(t *testing.T) {
	var nilCfg *Config
	assert.Equal(t, 16, nilCfg.OrDefault().LeafSize)

	cfg := &Config{LeafSize: -3, Levels: -1, SearchPoolWorkers: -2}
	cfg.OrDefault()
	assert.Equal(t, 16, cfg.LeafSize)
	assert.Zero(t, cfg.Levels)
	assert.Zero(t, cfg.SearchPoolWorkers)
	assert.NotNil(t, cfg.Logger)
}
