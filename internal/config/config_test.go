package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/proxsuit/internal/raster"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Raster.CellSize)
	assert.Empty(t, cfg.Raster.Extent)
	assert.Empty(t, cfg.Raster.Mask)
	assert.Equal(t, 0, cfg.Raster.Workers)
	assert.Empty(t, cfg.Scratch.Dir)
	assert.Empty(t, cfg.Report.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
raster:
  cell_size: 30
  extent: "0,0,3000,1500"
  mask: study_area.shp
  workers: 4
scratch:
  dir: /tmp/proxsuit
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 30.0, cfg.Raster.CellSize, 1e-12)
	assert.Equal(t, "0,0,3000,1500", cfg.Raster.Extent)
	assert.Equal(t, "study_area.shp", cfg.Raster.Mask)
	assert.Equal(t, 4, cfg.Raster.Workers)
	assert.Equal(t, "/tmp/proxsuit", cfg.Scratch.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
raster:
  cell_size: 30
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PROXSUIT_RASTER_CELL_SIZE", "12.5")
	t.Setenv("PROXSUIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.InDelta(t, 12.5, cfg.Raster.CellSize, 1e-12)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalidExtent(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROXSUIT_RASTER_EXTENT", "10,10,0,0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ordered")
}

func TestLoadRejectsNegativeCellSize(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROXSUIT_RASTER_CELL_SIZE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell_size")
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("raster: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestParseExtent(t *testing.T) {
	e, err := ParseExtent("")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = ParseExtent(" -10.5, 20 ,30,40.25")
	require.NoError(t, err)
	assert.Equal(t, &raster.Extent{MinX: -10.5, MinY: 20, MaxX: 30, MaxY: 40.25}, e)

	e, err = ParseExtent("1 2 3 4")
	require.NoError(t, err)
	assert.Equal(t, 4.0, e.MaxY)

	_, err = ParseExtent("1,2,3")
	require.Error(t, err)

	_, err = ParseExtent("a,2,3,4")
	require.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestInitLoggerDefaultsToConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zap.WarnLevel))
}

func TestInitLoggerUnknownFormat(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}
