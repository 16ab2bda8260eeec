package scratch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/proxsuit/internal/raster"
)

// ZoneAll is the zone id every reference feature is assigned to.
const ZoneAll = 1

// ZonalRow is one row of a zonal statistics table.
type ZonalRow struct {
	ZoneID int
	raster.Stats
}

// WriteZonalTable creates table and stores one row per zone, the layout of a
// zonal-statistics-as-table result.
func (w *Workspace) WriteZonalTable(ctx context.Context, table string, rows []ZonalRow) (err error) {
	if err := validateName(table); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "scratch: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ddl := fmt.Sprintf(`CREATE TABLE %q (
	zone_id INTEGER PRIMARY KEY,
	count   INTEGER NOT NULL,
	min     REAL NOT NULL,
	max     REAL NOT NULL,
	mean    REAL NOT NULL,
	std     REAL NOT NULL
)`, table)
	if _, err = tx.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "scratch: create %s", table)
	}

	insert := fmt.Sprintf(`INSERT INTO %q (zone_id, count, min, max, mean, std) VALUES (?, ?, ?, ?, ?, ?)`, table)
	for _, r := range rows {
		if _, err = tx.ExecContext(ctx, insert, r.ZoneID, r.Count, r.Min, r.Max, r.Mean, r.StdDev); err != nil {
			return eris.Wrapf(err, "scratch: insert zone %d into %s", r.ZoneID, table)
		}
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "scratch: commit")
	}
	return nil
}

// ReadZonalStatistics reads the statistics of one zone.
func (w *Workspace) ReadZonalStatistics(ctx context.Context, table string, zoneID int) (*ZonalRow, error) {
	if err := validateName(table); err != nil {
		return nil, err
	}

	row := w.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT zone_id, count, min, max, mean, std FROM %q WHERE zone_id = ?`, table), zoneID)

	var r ZonalRow
	if err := row.Scan(&r.ZoneID, &r.Count, &r.Min, &r.Max, &r.Mean, &r.StdDev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("scratch: zone %d not found in %s", zoneID, table)
		}
		return nil, eris.Wrapf(err, "scratch: read %s", table)
	}
	return &r, nil
}
