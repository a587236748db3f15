package cascade

// DeleteTotals tracks two counters per table: Batch (reset every batch) and
// Run (accumulated across all batches in a table-clean pass), per spec §3.1.
type DeleteTotals struct {
	Batch map[string]int64
	Run   map[string]int64
}

// NewDeleteTotals returns an empty totals tracker.
func NewDeleteTotals() *DeleteTotals {
	return &DeleteTotals{
		Batch: make(map[string]int64),
		Run:   make(map[string]int64),
	}
}

// Add records n additional rows counted or deleted for table in both the
// current batch and the running total.
func (d *DeleteTotals) Add(table string, n int64) {
	d.Batch[table] += n
	d.Run[table] += n
}

// ResetBatch clears the per-batch counters at the start of a new batch,
// leaving the run-level accumulation untouched.
func (d *DeleteTotals) ResetBatch() {
	d.Batch = make(map[string]int64)
}
