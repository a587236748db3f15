package archive

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgretain/pgretain/internal/relgraph"
)

func TestBufferEmpty(t *testing.T) {
	b := NewBuffer(t.TempDir())
	assert.True(t, b.Empty())

	b.Append(relgraph.ParseQualified("public.orders"), []string{"id"}, [][]interface{}{{1}})
	assert.False(t, b.Empty())
}

func TestBufferAppendAccumulatesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	b := NewBuffer(dir)
	table := relgraph.ParseQualified("public.orders")

	b.Append(table, []string{"id", "status"}, [][]interface{}{{1, "archived"}})
	b.Append(table, []string{"id", "status"}, [][]interface{}{{2, "archived"}})

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	paths, err := b.Flush(now)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	rows := readCSV(t, paths[0])
	assert.Equal(t, [][]string{{"1", "archived"}, {"2", "archived"}}, rows)
}

func TestBufferFlushNamesFilePerTable(t *testing.T) {
	dir := t.TempDir()
	b := NewBuffer(dir)

	b.Append(relgraph.ParseQualified("public.orders"), []string{"id"}, [][]interface{}{{1}})
	b.Append(relgraph.ParseQualified("billing.invoices"), []string{"id"}, [][]interface{}{{9}})

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	paths, err := b.Flush(now)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Contains(t, names, "public_orders_20260102030405.CSV")
	assert.Contains(t, names, "billing_invoices_20260102030405.CSV")
}

func TestFormatCellTypes(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "hello", formatCell([]byte("hello")))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Format(time.RFC3339Nano), formatCell(ts))
	assert.Equal(t, "42", formatCell(42))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
