package export

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/multierr"

	"github.com/rr-wellmatch/internal/dataset"
)

const geomColumn = "geom"

// PostGISPublisher mirrors each table into schema.<table name>, replacing
// any previous copy in a single transaction.
type PostGISPublisher struct {
	db     *sql.DB
	schema string
}

// NewPostGISPublisher publishes into schema, "public" when empty.
func NewPostGISPublisher(db *sql.DB, schema string) *PostGISPublisher {
	if schema == "" {
		schema = "public"
	}
	return &PostGISPublisher{db: db, schema: schema}
}

// Publish drops, recreates and fills the table.
func (p *PostGISPublisher) Publish(ctx context.Context, t *dataset.Table) (err error) {
	if !t.Geospatial {
		return fmt.Errorf("publish %s: %w", t.Name, dataset.ErrMissingGeometry)
	}
	target := pq.QuoteIdentifier(p.schema) + "." + pq.QuoteIdentifier(t.Name)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+target); err != nil {
		return fmt.Errorf("failed to drop %s: %w", target, err)
	}
	if _, err := tx.ExecContext(ctx, createStatement(target, t)); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	insert := insertStatement(target, t)
	args := make([]any, len(t.Columns)+1)
	for i, row := range t.Rows {
		copy(args, row.Values)
		args[len(t.Columns)] = nil
		if row.Geom != nil {
			body, err := wkb.Marshal(row.Geom, binary.LittleEndian)
			if err != nil {
				return fmt.Errorf("%s row %d: %w", t.Name, i, err)
			}
			args[len(t.Columns)] = body
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("failed to insert %s row %d: %w", t.Name, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", target, err)
	}
	return nil
}

func createStatement(target string, t *dataset.Table) string {
	defs := []string{"fid SERIAL PRIMARY KEY"}
	for _, c := range t.Columns {
		defs = append(defs, pq.QuoteIdentifier(c.Name)+" "+pgType(c.Kind))
	}
	defs = append(defs, fmt.Sprintf("%s geometry(Geometry, %d)", geomColumn, t.SRID))
	return fmt.Sprintf("CREATE TABLE %s (%s)", target, strings.Join(defs, ", "))
}

func insertStatement(target string, t *dataset.Table) string {
	names := make([]string, 0, len(t.Columns)+1)
	marks := make([]string, 0, len(t.Columns)+1)
	for i, c := range t.Columns {
		names = append(names, pq.QuoteIdentifier(c.Name))
		marks = append(marks, fmt.Sprintf("$%d", i+1))
	}
	names = append(names, geomColumn)
	marks = append(marks, fmt.Sprintf("ST_SetSRID(ST_GeomFromWKB($%d), %d)", len(t.Columns)+1, t.SRID))
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, strings.Join(names, ", "), strings.Join(marks, ", "))
}

func pgType(k dataset.Kind) string {
	switch k {
	case dataset.KindInteger:
		return "BIGINT"
	case dataset.KindReal:
		return "DOUBLE PRECISION"
	case dataset.KindBool:
		return "BOOLEAN"
	case dataset.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}
