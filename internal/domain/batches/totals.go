package batches

import (
	"log"
	"math"

	"gorm.io/gorm"
)

// CalculateTotals fills entry_count and total_amount. Persisted batches use
// a single SQL aggregate over the child rows; unsaved batches, or an
// aggregate failure, fall back to in-memory summation with the same
// semantics (NULL treated as 0, result rounded to 2 decimals).
func (b *DirectDebitBatch) CalculateTotals(db *gorm.DB) {
	if b.ID == 0 || db == nil {
		b.calculateTotalsFallback()
		return
	}

	var result struct {
		EntryCount  int
		TotalAmount float64
	}
	err := db.Raw(
		"SELECT COUNT(*) AS entry_count, COALESCE(SUM(COALESCE(amount, 0)), 0) AS total_amount FROM batch_invoices WHERE batch_id = ?",
		b.ID,
	).Scan(&result).Error

	if err != nil {
		// Totals feed the SEPA control sum, so a broken aggregate is logged
		// and recomputed rather than ignored.
		log.Printf("SQL aggregation failed for batch %d: %v", b.ID, err)
		b.calculateTotalsFallback()
		return
	}

	b.EntryCount = result.EntryCount
	b.TotalAmount = round2(result.TotalAmount)
}

func (b *DirectDebitBatch) calculateTotalsFallback() {
	b.EntryCount = len(b.Invoices)

	total := 0.0
	for _, row := range b.Invoices {
		total += row.Amount
	}
	b.TotalAmount = round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
