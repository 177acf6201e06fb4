// Package export persists result tables to the output directory and,
// optionally, to PostGIS.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/gpkg"
)

// Publisher receives every geospatial table written by a Writer.
type Publisher interface {
	Publish(ctx context.Context, t *dataset.Table) error
}

// Writer saves tables under a directory, each file named after its table.
// Existing files are replaced.
type Writer struct {
	dir       string
	log       *zap.Logger
	publisher Publisher
}

// NewWriter creates a Writer. publisher may be nil.
func NewWriter(dir string, log *zap.Logger, publisher Publisher) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{dir: dir, log: log, publisher: publisher}
}

// Path is where a table named name is written with extension ext.
func (w *Writer) Path(name, ext string) string {
	return filepath.Join(w.dir, name+ext)
}

// Save writes t as a GeoPackage and hands it to the publisher, if any.
func (w *Writer) Save(ctx context.Context, t *dataset.Table) error {
	path := w.Path(t.Name, ".gpkg")
	if err := gpkg.Write(ctx, path, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.Name, err)
	}
	w.log.Info("wrote table",
		zap.String("table", t.Name),
		zap.String("path", path),
		zap.Int("rows", t.Len()))

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, t); err != nil {
			return fmt.Errorf("failed to publish %s: %w", t.Name, err)
		}
	}
	return nil
}

// SaveCSV writes t as comma-separated text with a header row. Missing
// values are empty; a geospatial table gets a trailing geometry column
// holding WKT.
func (w *Writer) SaveCSV(t *dataset.Table) (err error) {
	path := w.Path(t.Name, ".csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(file))

	if err := writeCSV(file, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.log.Info("wrote table",
		zap.String("table", t.Name),
		zap.String("path", path),
		zap.Int("rows", t.Len()))
	return nil
}

func writeCSV(file *os.File, t *dataset.Table) error {
	writer := csv.NewWriter(file)

	header := t.ColumnNames()
	if t.Geospatial {
		header = append(header, "geometry")
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range t.Rows {
		for j, v := range row.Values {
			record[j] = cell(v)
		}
		if t.Geospatial {
			record[len(record)-1] = ""
			if row.Geom != nil {
				text, err := wkt.Marshal(row.Geom)
				if err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
				record[len(record)-1] = text
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return dataset.Format(v)
}
