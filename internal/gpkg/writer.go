package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/geo"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10200

	geometryColumn = "geom"
)

var schema = []string{
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
	)`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES
		('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
		('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system')`,
}

// Write stores a geospatial table as a single feature layer named after the
// table, replacing any existing file at path.
func Write(ctx context.Context, path string, t *dataset.Table) (err error) {
	if !t.Geospatial {
		return fmt.Errorf("write %s: %w", t.Name, dataset.ErrMissingGeometry)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(db))

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return fmt.Errorf("failed to set application id: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", userVersion)); err != nil {
		return fmt.Errorf("failed to set user version: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreDone(tx.Rollback()))
		}
	}()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialise %s: %w", path, err)
		}
	}
	if err := insertSRS(ctx, tx, t.SRID, t.Definition); err != nil {
		return err
	}
	if err := createFeatureTable(ctx, tx, t); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// insertSRS registers srid. Known codes get their canonical WKT; others
// keep the definition they were read with.
func insertSRS(ctx context.Context, tx *sql.Tx, srid int, source string) error {
	if srid <= 0 {
		return nil
	}
	name, definition := fmt.Sprintf("EPSG:%d", srid), "undefined"
	if c, err := geo.Lookup(srid); err == nil {
		name, definition = c.Name, c.WKT
	} else if strings.TrimSpace(source) != "" {
		definition = source
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition)
		 VALUES (?, ?, 'EPSG', ?, ?)`,
		name, srid, srid, definition)
	if err != nil {
		return fmt.Errorf("failed to register EPSG:%d: %w", srid, err)
	}
	return nil
}

func createFeatureTable(ctx context.Context, tx *sql.Tx, t *dataset.Table) error {
	geomType := layerGeometryType(t)
	geomCol := geometryColumnName(t)

	defs := []string{
		`"fid" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL`,
		fmt.Sprintf("%s %s", quoteIdent(geomCol), geomType),
	}
	for _, c := range t.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Kind))
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create layer %s: %w", t.Name, err)
	}

	srid := t.SRID
	if srid < 0 {
		srid = -1
	}
	minX, minY, maxX, maxY, ok := extent(t)
	var bounds [4]any
	if ok {
		bounds = [4]any{minX, minY, maxX, maxY}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Name, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		bounds[0], bounds[1], bounds[2], bounds[3], srid)
	if err != nil {
		return fmt.Errorf("failed to register layer %s: %w", t.Name, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, ?, ?, ?, 0, 0)`,
		t.Name, geomCol, geomType, srid)
	if err != nil {
		return fmt.Errorf("failed to register geometry column of %s: %w", t.Name, err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, t *dataset.Table) (err error) {
	names := []string{quoteIdent(geometryColumnName(t))}
	marks := []string{"?"}
	for _, c := range t.Columns {
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", t.Name, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(stmt))

	args := make([]any, len(t.Columns)+1)
	for i, row := range t.Rows {
		blob, err := EncodeGeometry(row.Geom, t.SRID)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", t.Name, i, err)
		}
		if blob == nil {
			args[0] = nil
		} else {
			args[0] = blob
		}
		for j, c := range t.Columns {
			args[j+1] = toSQL(row.Values[j], c.Kind)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert %s row %d: %w", t.Name, i, err)
		}
	}
	return nil
}

func toSQL(v any, kind dataset.Kind) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return dataset.Format(x)
	case string:
		return x
	default:
		if kind == dataset.KindText {
			return dataset.Format(x)
		}
		return x
	}
}

// layerGeometryType is the single geometry type of the layer, or GEOMETRY
// when rows mix types.
func layerGeometryType(t *dataset.Table) string {
	name := ""
	for _, row := range t.Rows {
		if row.Geom == nil {
			continue
		}
		n := GeometryTypeName(row.Geom)
		switch {
		case name == "":
			name = n
		case name != n:
			return "GEOMETRY"
		}
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

func geometryColumnName(t *dataset.Table) string {
	name := geometryColumn
	for i := 1; t.Has(name) || strings.EqualFold(name, "fid"); i++ {
		name = fmt.Sprintf("%s_%d", geometryColumn, i)
	}
	return name
}

func extent(t *dataset.Table) (minX, minY, maxX, maxY float64, ok bool) {
	for _, row := range t.Rows {
		if row.Geom == nil || len(row.Geom.FlatCoords()) == 0 {
			continue
		}
		b := row.Geom.Bounds()
		if !ok {
			minX, minY, maxX, maxY, ok = b.Min(0), b.Min(1), b.Max(0), b.Max(1), true
			continue
		}
		minX = min(minX, b.Min(0))
		minY = min(minY, b.Min(1))
		maxX = max(maxX, b.Max(0))
		maxY = max(maxY, b.Max(1))
	}
	return minX, minY, maxX, maxY, ok
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
