package scratch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proxsuit/internal/raster"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestOpen_CreatesDatabaseInDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w, err := Open(dir)
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	assert.Equal(t, filepath.Join(dir, DefaultFile), w.Path())
	assert.FileExists(t, w.Path())
}

func TestZonalTable_RoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t)
	table := NewTableName("zonal")

	rows := []ZonalRow{{ZoneID: ZoneAll, Stats: raster.Stats{Count: 42, Min: 0, Max: 31.5, Mean: 10, StdDev: 8}}}
	require.NoError(t, w.WriteZonalTable(ctx, table, rows))

	exists, err := w.TableExists(ctx, table)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := w.ReadZonalStatistics(ctx, table, ZoneAll)
	require.NoError(t, err)
	assert.Equal(t, rows[0], *got)

	require.NoError(t, w.Drop(ctx, table))
	exists, err = w.TableExists(ctx, table)
	require.NoError(t, err)
	assert.False(t, exists)

	// Dropping twice is fine.
	require.NoError(t, w.Drop(ctx, table))
}

func TestReadZonalStatistics_MissingZone(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t)
	table := NewTableName("zonal")
	require.NoError(t, w.WriteZonalTable(ctx, table, []ZonalRow{{ZoneID: ZoneAll}}))

	_, err := w.ReadZonalStatistics(ctx, table, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone 7 not found")
}

func TestWriteZonalTable_ExistingTableFails(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t)
	table := NewTableName("zonal")
	require.NoError(t, w.WriteZonalTable(ctx, table, nil))

	err := w.WriteZonalTable(ctx, table, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scratch: create")
}

func TestInvalidTableNames(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t)

	for _, name := range []string{"", "zonal; DROP", `zo"nal`} {
		assert.Error(t, w.Drop(ctx, name), name)
		assert.Error(t, w.WriteZonalTable(ctx, name, nil), name)
		_, err := w.ReadZonalStatistics(ctx, name, ZoneAll)
		assert.Error(t, err, name)
	}
}

func TestNewTableName_Unique(t *testing.T) {
	a, b := NewTableName("zonal"), NewTableName("zonal")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "zonal_"))
	assert.NoError(t, validateName(a))
}

func TestOpen_UnusableDatabasePath(t *testing.T) {
	dir := t.TempDir()
	// A directory where the database file should be.
	require.NoError(t, os.Mkdir(filepath.Join(dir, DefaultFile), 0o755))

	ws, err := Open(dir)
	require.Error(t, err)
	assert.Nil(t, ws)
	assert.Contains(t, err.Error(), "scratch: exec PRAGMA journal_mode=WAL")
}
