// Package scratch is a SQLite workspace for intermediate tables created while
// a suitability run is in progress.
package scratch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// DefaultFile is the workspace database name inside the scratch directory.
const DefaultFile = "proxsuit-scratch.db"

// Workspace holds intermediate tables.
type Workspace struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the workspace database in dir. An empty dir
// uses os.TempDir(); ":memory:" keeps everything in memory.
func Open(dir string) (*Workspace, error) {
	dsn := dir
	if dir != ":memory:" {
		if dir == "" {
			dir = os.TempDir()
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "scratch: create dir %s", dir)
		}
		dsn = filepath.Join(dir, DefaultFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "scratch: open")
	}
	// One connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "scratch: exec %s", pragma)
		}
	}
	return &Workspace{db: db, path: dsn}, nil
}

// Path returns the database location.
func (w *Workspace) Path() string {
	return w.path
}

// Close closes the database.
func (w *Workspace) Close() error {
	return w.db.Close()
}

// NewTableName returns a unique table name with the given prefix.
func NewTableName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TableExists reports whether a table is present in the workspace.
func (w *Workspace) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "scratch: lookup table %s", table)
	}
	return n > 0, nil
}

// Drop removes a table. Dropping a missing table is not an error.
func (w *Workspace) Drop(ctx context.Context, table string) error {
	if err := validateName(table); err != nil {
		return err
	}
	_, err := w.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table))
	return eris.Wrapf(err, "scratch: drop %s", table)
}

func validateName(name string) error {
	if name == "" {
		return eris.New("scratch: empty table name")
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return eris.Errorf("scratch: invalid table name %q", name)
		}
	}
	return nil
}
