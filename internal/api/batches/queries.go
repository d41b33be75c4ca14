package batches

import (
	"time"

	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/schedules"

	"gorm.io/gorm"
)

// eligibleSchedules returns the dues schedules ready for invoicing: active,
// on auto-collect via direct debit, with the generation window reached and
// no invoice yet for the current coverage period.
func eligibleSchedules(db *gorm.DB, now time.Time, lookaheadDays int) ([]schedules.DuesSchedule, error) {
	horizon := now.AddDate(0, 0, lookaheadDays)

	var candidates []schedules.DuesSchedule
	err := db.
		Where("status = ?", schedules.StatusActive).
		Where("auto_collect = ?", true).
		Where("payment_method = ?", "SEPA Direct Debit").
		Where("next_invoice_date <= ?", horizon).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	out := make([]schedules.DuesSchedule, 0, len(candidates))
	for _, s := range candidates {
		generateFrom := s.NextInvoiceDate.AddDate(0, 0, -s.InvoiceDaysBefore)
		if now.Before(generateFrom) {
			continue
		}

		var existing int64
		db.Model(&invoices.SalesInvoice{}).
			Where("schedule_id = ? AND coverage_start = ?", s.ID, s.CoverageStart).
			Count(&existing)
		if existing > 0 {
			continue
		}

		out = append(out, s)
	}
	return out, nil
}

// activeMandate resolves the mandate a schedule collects against: the
// schedule's pinned mandate when set, otherwise the member's active one.
func activeMandate(db *gorm.DB, s schedules.DuesSchedule) (*mandates.SEPAMandate, error) {
	var mandate mandates.SEPAMandate

	if s.ActiveMandateID != nil {
		if err := db.First(&mandate, "id = ?", *s.ActiveMandateID).Error; err == nil &&
			mandate.Status == mandates.StatusActive {
			return &mandate, nil
		}
	}

	err := db.
		Where("member_id = ? AND status = ?", s.MemberID, mandates.StatusActive).
		Order("created_at DESC").
		First(&mandate).Error
	if err != nil {
		return nil, err
	}
	return &mandate, nil
}

func activeMandateForMember(db *gorm.DB, memberID uint) (*mandates.SEPAMandate, error) {
	var mandate mandates.SEPAMandate
	err := db.
		Where("member_id = ? AND status = ?", memberID, mandates.StatusActive).
		Order("created_at DESC").
		First(&mandate).Error
	if err != nil {
		return nil, err
	}
	return &mandate, nil
}

// collectableInvoices lists unpaid or overdue invoices not yet part of a
// pending batch row, for the batch creation picker.
func collectableInvoices(db *gorm.DB) ([]invoices.SalesInvoice, error) {
	var list []invoices.SalesInvoice
	err := db.
		Where("status IN ?", []string{invoices.StatusUnpaid, invoices.StatusOverdue}).
		Where("invoice_no NOT IN (?)",
			db.Table("batch_invoices").Select("invoice_no").Where("status = ?", "Pending"),
		).
		Order("due_date ASC").
		Find(&list).Error
	return list, err
}
