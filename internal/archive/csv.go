// Package archive buffers rows slated for deletion in memory during a
// batch transaction and flushes them to timestamped CSV files only after
// that transaction commits (spec §4.6, "archive-iff-commit").
package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pgretain/pgretain/internal/relgraph"
)

// tableBuffer holds one table's accumulated rows for the current batch.
type tableBuffer struct {
	columns []string
	rows    [][]interface{}
}

// Buffer is owned by the Table Cleaner for the duration of one batch; it is
// discarded (never flushed) on rollback.
type Buffer struct {
	dir     string
	tables  map[string]*tableBuffer
	qualifiedNames map[string]relgraph.QualifiedName
}

// NewBuffer returns an empty buffer writing under dir when flushed.
func NewBuffer(dir string) *Buffer {
	return &Buffer{
		dir:            dir,
		tables:         make(map[string]*tableBuffer),
		qualifiedNames: make(map[string]relgraph.QualifiedName),
	}
}

// Append records a table's pre-delete snapshot. Safe to call multiple times
// for the same table within one batch (rows accumulate).
func (b *Buffer) Append(table relgraph.QualifiedName, columns []string, rows [][]interface{}) {
	key := table.String()
	buf, ok := b.tables[key]
	if !ok {
		buf = &tableBuffer{columns: columns}
		b.tables[key] = buf
		b.qualifiedNames[key] = table
	}
	buf.rows = append(buf.rows, rows...)
}

// Empty reports whether any rows were buffered this batch.
func (b *Buffer) Empty() bool {
	return len(b.tables) == 0
}

// Flush writes one CSV file per buffered table, named
// <schema>_<table>_<YYYYMMDDhhmmss>.CSV, RFC-4180 quoted, no header row.
// Call this only after the owning transaction has committed successfully.
func (b *Buffer) Flush(now time.Time) ([]string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: creating directory %s: %w", b.dir, err)
	}

	stamp := now.Format("20060102150405")
	var written []string

	for key, buf := range b.tables {
		table := b.qualifiedNames[key]
		filename := fmt.Sprintf("%s_%s_%s.CSV", table.Schema, table.Name, stamp)
		path := filepath.Join(b.dir, filename)

		if err := writeCSV(path, buf.rows); err != nil {
			return written, fmt.Errorf("archive: writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	return written, nil
}

func writeCSV(path string, rows [][]interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatCell(v interface{}) string {
	if v == nil {
		return ""
	}
	switch vv := v.(type) {
	case []byte:
		return string(vv)
	case time.Time:
		return vv.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return vv.String()
	default:
		return fmt.Sprintf("%v", vv)
	}
}
