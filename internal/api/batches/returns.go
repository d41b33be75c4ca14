package batches

import (
	"fmt"
	"net/http"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/batches"
	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/schedules"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Consequences of repeated collection failures on a schedule.
const (
	failuresBeforeSuspension = 3
	gracePeriodDays          = 14
)

// Common ISO 20022 return reason codes and operator-readable descriptions.
var returnReasonDescriptions = map[string]string{
	"AC01": "Account identifier incorrect",
	"AC04": "Account closed",
	"AC06": "Account blocked",
	"AG01": "Direct debit forbidden on this account",
	"AM04": "Insufficient funds",
	"MD01": "No valid mandate",
	"MD02": "Mandate data missing or incorrect",
	"MD06": "Refund requested by debtor",
	"MD07": "Debtor deceased",
	"MS02": "Refusal by debtor",
	"MS03": "Reason not specified",
	"SL01": "Specific service offered by debtor bank",
}

// ReturnEntry is one rejected collection from the bank's return message.
type ReturnEntry struct {
	InvoiceNo  string `json:"invoice_no" binding:"required"`
	ReasonCode string `json:"reason_code"`
	Reason     string `json:"reason"`
}

// ProcessReturns applies a bank return file to a submitted batch: each
// returned row is failed, its mandate usage marked failed, and the member's
// schedule pushed towards grace period or suspension.
func ProcessReturns(c *gin.Context) {
	var input struct {
		Returns []ReturnEntry `json:"returns" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	switch batch.Status {
	case batches.StatusSubmitted, batches.StatusProcessed, batches.StatusPartiallyProcessed:
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "Batch has not been submitted", "status": batch.Status})
		return
	}

	rowByInvoice := make(map[string]*batches.BatchInvoice, len(batch.Invoices))
	for i := range batch.Invoices {
		rowByInvoice[batch.Invoices[i].InvoiceNo] = &batch.Invoices[i]
	}

	var applied, unknown int
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		for _, ret := range input.Returns {
			row, ok := rowByInvoice[ret.InvoiceNo]
			if !ok {
				unknown++
				continue
			}
			if row.Status == batches.RowStatusFailed {
				continue
			}

			reason := ret.Reason
			if reason == "" {
				reason = returnReasonDescriptions[ret.ReasonCode]
			}
			if err := applyRowFailure(tx, &batch, row, ret.ReasonCode, reason); err != nil {
				return err
			}
			applied++
		}

		batch.Status = settledBatchStatus(batch.Invoices)
		batch.AppendLog(fmt.Sprintf("Return file processed: %d returns applied, %d unknown", applied, unknown))
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&batch).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  batch.Status,
		"applied": applied,
		"unknown": unknown,
	})
}

// applyRowFailure fails one collection row: the invoice reverts to overdue,
// the mandate usage is marked failed, and the schedule's failure counter
// advances. Three consecutive failures suspend the schedule; fewer grant a
// grace period.
func applyRowFailure(tx *gorm.DB, batch *batches.DirectDebitBatch, row *batches.BatchInvoice, code, message string) error {
	row.Status = batches.RowStatusFailed
	if code != "" {
		row.ResultCode = &code
	}
	if message != "" {
		row.ResultMessage = &message
	}

	var invoice invoices.SalesInvoice
	if err := tx.Where("invoice_no = ?", row.InvoiceNo).First(&invoice).Error; err != nil {
		return fmt.Errorf("invoice %s not found", row.InvoiceNo)
	}
	// A returned collection reopens the invoice, also when it was already
	// marked paid before the return arrived.
	if invoice.Status == invoices.StatusPaid || invoice.Status == invoices.StatusUnpaid {
		if err := tx.Model(&invoice).Update("status", invoices.StatusOverdue).Error; err != nil {
			return err
		}
	}

	var mandate mandates.SEPAMandate
	if err := tx.Where("mandate_id = ?", row.MandateReference).First(&mandate).Error; err == nil {
		updates := map[string]interface{}{"status": mandates.UsageStatusFailed}
		if code != "" {
			updates["result_code"] = code
		}
		if message != "" {
			updates["result_message"] = message
		}
		if err := tx.Model(&mandates.MandateUsage{}).
			Where("mandate_id = ? AND invoice_reference = ? AND status IN ?",
				mandate.ID, row.InvoiceNo,
				[]string{mandates.UsageStatusPending, mandates.UsageStatusCollected}).
			Updates(updates).Error; err != nil {
			return err
		}
	}

	if invoice.ScheduleID != nil {
		if err := escalateScheduleFailure(tx, *invoice.ScheduleID, batch, row, code); err != nil {
			return err
		}
	}

	return nil
}

func escalateScheduleFailure(tx *gorm.DB, scheduleID uint, batch *batches.DirectDebitBatch, row *batches.BatchInvoice, code string) error {
	var schedule schedules.DuesSchedule
	if err := tx.First(&schedule, "id = ?", scheduleID).Error; err != nil {
		return nil
	}

	failures := schedule.ConsecutiveFailures + 1
	updates := map[string]interface{}{"consecutive_failures": failures}

	if failures >= failuresBeforeSuspension {
		updates["status"] = schedules.StatusSuspended
		updates["grace_period_until"] = nil
		batch.AppendLog(fmt.Sprintf("Schedule %d suspended after %d consecutive failures (invoice %s, code %s)",
			schedule.ID, failures, row.InvoiceNo, code))
	} else {
		graceUntil := time.Now().AddDate(0, 0, gracePeriodDays)
		updates["status"] = schedules.StatusGracePeriod
		updates["grace_period_until"] = graceUntil
		batch.AppendLog(fmt.Sprintf("Schedule %d in grace period until %s (invoice %s, code %s)",
			schedule.ID, graceUntil.Format("2006-01-02"), row.InvoiceNo, code))
	}

	return tx.Model(&schedule).Updates(updates).Error
}
