package batches

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/batches"
	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/members"
	"membership-app/internal/domain/schedules"
	"membership-app/internal/infra/metrics"
	"membership-app/internal/infra/retry"
	"membership-app/internal/infra/sepa"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// How far ahead the run looks for schedules coming due.
const collectionLookaheadDays = 45

// RunCollection executes an automated collection run: it invoices every
// eligible dues schedule, resolves the sequence type per mandate, and
// assembles a single draft batch. Validation runs in deferred mode so a
// problem row downgrades the batch instead of aborting the run; the
// operator reviews the stored result before generating the file.
func RunCollection(c *gin.Context) {
	now := time.Now()

	var (
		batch   batches.DirectDebitBatch
		skipped []gin.H
	)

	result := retry.Default.Do(c.Request.Context(), "collection_run", retry.BatchCreationConfig(), func() error {
		skipped = skipped[:0]
		batch = batches.DirectDebitBatch{
			BatchDate:   now.AddDate(0, 0, 2),
			Description: fmt.Sprintf("Automated collection run %s", now.Format("2006-01-02")),
			Currency:    "EUR",
			Status:      batches.StatusDraft,
		}

		return database.DB.Transaction(func(tx *gorm.DB) error {
			eligible, err := eligibleSchedules(tx, now, collectionLookaheadDays)
			if err != nil {
				return err
			}

			for i := range eligible {
				schedule := &eligible[i]
				row, reason, err := invoiceSchedule(tx, schedule, now)
				if err != nil {
					return err
				}
				if row == nil {
					skipped = append(skipped, gin.H{"schedule_id": schedule.ID, "reason": reason})
					continue
				}
				batch.Invoices = append(batch.Invoices, *row)
			}

			if len(batch.Invoices) == 0 {
				return nil
			}

			batch.BatchType = resolveBatchType(batch.Invoices)
			if _, err := batch.Validate(tx); err != nil {
				return err
			}
			batch.CalculateTotals(nil)
			batch.AppendLog(fmt.Sprintf("Collection run created %d invoices, %d schedules skipped",
				len(batch.Invoices), len(skipped)))

			return tx.Create(&batch).Error
		})
	})
	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.FinalErr.Error()})
		return
	}

	if len(batch.Invoices) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"message": "No schedules due for collection",
			"skipped": skipped,
		})
		return
	}

	metrics.BatchesCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"batch_id":          batch.ID,
		"entry_count":       batch.EntryCount,
		"total_amount":      batch.TotalAmount,
		"batch_type":        batch.BatchType,
		"validation_status": batch.ValidationStatus,
		"skipped":           skipped,
	})
}

// UpcomingCollections previews the schedules the next collection run would
// invoice, without creating anything.
func UpcomingCollections(c *gin.Context) {
	eligible, err := eligibleSchedules(database.DB, time.Now(), collectionLookaheadDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load schedules"})
		return
	}

	out := make([]gin.H, 0, len(eligible))
	for _, s := range eligible {
		entry := gin.H{
			"schedule_id":        s.ID,
			"member_id":          s.MemberID,
			"amount":             s.Amount,
			"billing_frequency":  s.BillingFrequency,
			"next_invoice_date":  s.NextInvoiceDate,
			"next_sequence_type": s.NextSequenceType,
		}
		if mandate, err := activeMandate(database.DB, s); err == nil {
			entry["mandate_reference"] = mandate.MandateID
		} else {
			entry["mandate_reference"] = nil
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"count": len(out), "schedules": out})
}

// invoiceSchedule creates the invoice for one schedule's coverage period and
// returns the batch row for it. A nil row with a reason means the schedule
// was skipped, not that the run failed.
func invoiceSchedule(tx *gorm.DB, schedule *schedules.DuesSchedule, now time.Time) (*batches.BatchInvoice, string, error) {
	var member members.Member
	if err := tx.First(&member, "id = ?", schedule.MemberID).Error; err != nil {
		return nil, "member not found", nil
	}
	if member.Status != members.StatusActive {
		return nil, fmt.Sprintf("member is %s", member.Status), nil
	}

	mandate, err := activeMandate(tx, *schedule)
	if err != nil {
		return nil, "no active mandate", nil
	}

	var usageRows []mandates.MandateUsage
	if err := tx.Where("mandate_id = ?", mandate.ID).
		Order("usage_date ASC").
		Find(&usageRows).Error; err != nil {
		return nil, "", err
	}
	usage := make([]sepa.UsageRecord, 0, len(usageRows))
	for _, u := range usageRows {
		usage = append(usage, sepa.UsageRecord{
			UsageDate:        u.UsageDate,
			SequenceType:     sepa.SequenceType(u.SequenceType),
			Amount:           u.Amount,
			InvoiceReference: u.InvoiceReference,
			Status:           u.Status,
		})
	}

	resolution := sepa.DetermineSequenceType(sepa.MandateInfo{
		MandateID:   mandate.MandateID,
		Status:      mandate.Status,
		MandateType: mandate.MandateType,
		SignDate:    mandate.SignDate,
		ExpiryDate:  mandate.ExpiryDate,
	}, usage, nil)
	if !resolution.Valid {
		return nil, fmt.Sprintf("mandate not usable: %v", resolution.Errors), nil
	}

	amount := schedule.Amount
	if member.FeeOverride != nil {
		amount = *member.FeeOverride
	}

	invoiceNo, err := nextInvoiceNo(tx, now)
	if err != nil {
		return nil, "", err
	}

	coverageStart := schedule.CoverageStart
	coverageEnd := schedule.CoverageEnd
	description := fmt.Sprintf("%s membership %s to %s", schedule.MembershipType,
		coverageStart.Format("2006-01-02"), coverageEnd.Format("2006-01-02"))
	invoice := invoices.SalesInvoice{
		MemberID:      member.ID,
		InvoiceNo:     invoiceNo,
		Description:   description,
		Amount:        amount,
		Currency:      "EUR",
		Status:        invoices.StatusUnpaid,
		PostingDate:   now,
		DueDate:       schedule.NextInvoiceDate,
		ScheduleID:    &schedule.ID,
		CoverageStart: &coverageStart,
		CoverageEnd:   &coverageEnd,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, "", err
	}

	lastInvoiced := now
	schedule.LastInvoiceDate = &lastInvoiced
	schedule.NextSequenceType = string(resolution.Recommended)
	schedule.ActiveMandateID = &mandate.ID
	schedule.AdvanceCoverage()
	if err := tx.Save(schedule).Error; err != nil {
		return nil, "", err
	}

	return &batches.BatchInvoice{
		InvoiceNo:        invoice.InvoiceNo,
		MemberID:         member.ID,
		MemberName:       member.FullName,
		Amount:           amount,
		Currency:         "EUR",
		IBAN:             mandate.IBAN,
		MandateReference: mandate.MandateID,
		SequenceType:     string(resolution.Recommended),
		Status:           batches.RowStatusPending,
	}, "", nil
}

// nextInvoiceNo issues MINV-<year>-<NNNNN>, sequential within the year.
// The zero-padded suffix makes the lexicographic MAX the numeric maximum,
// so numbering survives deleted invoices without reusing a number.
func nextInvoiceNo(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("MINV-%d-", now.Year())

	var last sql.NullString
	if err := tx.Model(&invoices.SalesInvoice{}).
		Where("invoice_no LIKE ?", prefix+"%").
		Select("MAX(invoice_no)").
		Scan(&last).Error; err != nil {
		return "", err
	}

	next := 1
	if last.Valid && last.String != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed invoice number %s: %w", last.String, err)
		}
		next = n + 1
	}

	return fmt.Sprintf("%s%05d", prefix, next), nil
}
