package layer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
)

// Querier is the subset of pgxpool.Pool used to read PostGIS layers.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connector opens a Querier for a connection string. The returned func
// releases it.
type Connector func(ctx context.Context, dsn string) (Querier, func(), error)

// PoolConnector connects with pgxpool.
func PoolConnector(ctx context.Context, dsn string) (Querier, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, eris.Wrap(err, "layer: connect postgis")
	}
	return pool, pool.Close, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostGISSource is a parsed postgres:// layer reference.
type PostGISSource struct {
	DSN    string
	Schema string
	Table  string
	Column string
}

// ParsePostGIS splits a postgres:// URI into a connection string and the
// layer=<schema.table> and geom=<column> query parameters.
func ParsePostGIS(source string) (*PostGISSource, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, eris.Wrap(err, "layer: parse postgis uri")
	}

	q := u.Query()
	tableRef := q.Get("layer")
	if tableRef == "" {
		return nil, eris.New("layer: postgis uri requires a layer=<schema.table> parameter")
	}
	column := q.Get("geom")
	if column == "" {
		column = "geom"
	}
	q.Del("layer")
	q.Del("geom")
	u.RawQuery = q.Encode()

	src := &PostGISSource{DSN: u.String(), Schema: "public", Table: tableRef, Column: column}
	if schema, table, ok := strings.Cut(tableRef, "."); ok {
		src.Schema, src.Table = schema, table
	}

	for _, ident := range []string{src.Schema, src.Table, src.Column} {
		if !identPattern.MatchString(ident) {
			return nil, eris.Errorf("layer: invalid identifier %q", ident)
		}
	}
	return src, nil
}

// Query returns the SQL selecting every non-null geometry as WKB.
func (s *PostGISSource) Query() string {
	col := pgx.Identifier{s.Column}.Sanitize()
	return fmt.Sprintf(
		`SELECT ST_AsBinary(%s) FROM %s WHERE %s IS NOT NULL`,
		col, pgx.Identifier{s.Schema, s.Table}.Sanitize(), col,
	)
}

func (s *PostGISSource) name() string {
	return s.Schema + "." + s.Table
}

func openPostGIS(ctx context.Context, source string, connect Connector) (*Layer, error) {
	src, err := ParsePostGIS(source)
	if err != nil {
		return nil, err
	}
	if connect == nil {
		connect = PoolConnector
	}

	q, release, err := connect(ctx, src.DSN)
	if err != nil {
		return nil, err
	}
	defer release()

	return ReadPostGIS(ctx, q, src)
}

// ReadPostGIS reads every geometry of a PostGIS table.
func ReadPostGIS(ctx context.Context, q Querier, src *PostGISSource) (*Layer, error) {
	rows, err := q.Query(ctx, src.Query())
	if err != nil {
		return nil, eris.Wrapf(err, "layer: query %s", src.name())
	}
	defer rows.Close()

	l := &Layer{Name: src.name(), Source: Redact(src.DSN)}
	var skipped int
	for i := 0; rows.Next(); i++ {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "layer: scan %s", src.name())
		}
		g, err := wkb.Unmarshal(data)
		if err != nil {
			skipped++
			continue
		}
		l.Features = append(l.Features, Feature{ID: i, Geometry: g})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "layer: read %s", src.name())
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped undecodable postgis rows",
			zap.String("table", src.name()),
			zap.Int("skipped", skipped),
		)
	}
	return l, nil
}

// Redact hides the password of URI sources so they can be logged.
func Redact(source string) string {
	if !strings.Contains(source, "://") {
		return source
	}
	u, err := url.Parse(source)
	if err != nil {
		return source
	}
	return u.Redacted()
}
