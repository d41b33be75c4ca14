package batches

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"membership-app/config"
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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ListBatches(c *gin.Context) {
	var list []batches.DirectDebitBatch
	query := database.DB.Order("created_at DESC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batches"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func GetBatch(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListCollectableInvoices feeds the batch creation picker.
func ListCollectableInvoices(c *gin.Context) {
	list, err := collectableInvoices(database.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invoices"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateBatch builds a draft batch from a list of invoice numbers. Each row
// is resolved against the member's active mandate, and the whole batch is
// validated immediately so the operator sees problems before generating.
func CreateBatch(c *gin.Context) {
	var input struct {
		InvoiceNos     []string `json:"invoice_nos" binding:"required"`
		CollectionDate string   `json:"collection_date"`
		Description    string   `json:"description"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(input.InvoiceNos) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one invoice is required"})
		return
	}

	collectionDate := time.Now().AddDate(0, 0, 2)
	if input.CollectionDate != "" {
		parsed, err := time.Parse("2006-01-02", input.CollectionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "collection_date must be YYYY-MM-DD"})
			return
		}
		collectionDate = parsed
	}

	var batch batches.DirectDebitBatch
	result := retry.Default.Do(c.Request.Context(), "batch_creation", retry.BatchCreationConfig(), func() error {
		batch = batches.DirectDebitBatch{
			BatchDate:   collectionDate,
			Description: input.Description,
			Currency:    "EUR",
			Status:      batches.StatusDraft,
		}

		return database.DB.Transaction(func(tx *gorm.DB) error {
			for _, invoiceNo := range input.InvoiceNos {
				row, err := buildBatchRow(tx, invoiceNo)
				if err != nil {
					return err
				}
				batch.Invoices = append(batch.Invoices, *row)
			}

			batch.BatchType = resolveBatchType(batch.Invoices)
			if _, err := batch.Validate(tx); err != nil {
				return err
			}
			batch.CalculateTotals(nil)
			batch.AppendLog(fmt.Sprintf("Batch created with %d invoices", len(batch.Invoices)))

			return tx.Create(&batch).Error
		})
	})
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.FinalErr.Error()})
		return
	}

	metrics.BatchesCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"batch":             batch,
		"validation_status": batch.ValidationStatus,
		"errors":            json.RawMessage(orNull(batch.ValidationErrors)),
		"warnings":          json.RawMessage(orNull(batch.ValidationWarnings)),
	})
}

// buildBatchRow resolves one invoice into a collection row using the
// member's active mandate.
func buildBatchRow(tx *gorm.DB, invoiceNo string) (*batches.BatchInvoice, error) {
	var invoice invoices.SalesInvoice
	if err := tx.Where("invoice_no = ?", invoiceNo).First(&invoice).Error; err != nil {
		return nil, fmt.Errorf("invoice %s not found", invoiceNo)
	}

	var member members.Member
	if err := tx.First(&member, "id = ?", invoice.MemberID).Error; err != nil {
		return nil, fmt.Errorf("member for invoice %s not found", invoiceNo)
	}

	row := batches.BatchInvoice{
		InvoiceNo:  invoice.InvoiceNo,
		MemberID:   member.ID,
		MemberName: member.FullName,
		Amount:     invoice.Amount,
		Currency:   invoice.Currency,
		Status:     batches.RowStatusPending,
	}

	mandate, err := activeMandateForMember(tx, member.ID)
	if err == nil {
		row.IBAN = mandate.IBAN
		row.MandateReference = mandate.MandateID
	}
	// A missing mandate is reported by validation, not here: the operator
	// should see every broken row at once.

	return &row, nil
}

// resolveBatchType marks the batch FRST when any row collects a first use.
func resolveBatchType(rows []batches.BatchInvoice) string {
	for _, row := range rows {
		if row.SequenceType == string(sepa.SeqFRST) {
			return string(sepa.SeqFRST)
		}
	}
	return string(sepa.SeqRCUR)
}

// ValidateBatch re-runs validation on a draft batch and persists the result.
func ValidateBatch(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	if batch.Status != batches.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Only draft batches can be validated", "status": batch.Status})
		return
	}

	result, err := batch.Validate(database.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	batch.BatchType = resolveBatchType(batch.Invoices)
	if err := database.DB.Session(&gorm.Session{FullSaveAssociations: true}).Save(&batch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save validation result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"validation_status": batch.ValidationStatus,
		"critical_errors":   result.CriticalErrors,
		"warnings":          result.Warnings,
	})
}

// GenerateBatchXML produces the pain.008 file for a validated batch. The
// generation runs under the retry manager so a transient failure does not
// leave the operator with a half-built file.
func GenerateBatchXML(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	if batch.Status != batches.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch XML can only be generated from draft", "status": batch.Status})
		return
	}

	validation, err := batch.Validate(database.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if validation.HasCritical() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           "Batch has critical validation errors",
			"critical_errors": validation.CriticalErrors,
		})
		return
	}

	batch.BatchType = resolveBatchType(batch.Invoices)
	batch.CalculateTotals(database.DB)

	txs, err := buildTransactions(database.DB, batch.Invoices)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	messageID := fmt.Sprintf("BATCH-%d-%s", batch.ID, shortID())
	paymentInfoID := fmt.Sprintf("PMT-%d-%s", batch.ID, shortID())
	now := time.Now()

	hdr := sepa.BatchHeader{
		MessageID:      messageID,
		PaymentInfoID:  paymentInfoID,
		CreatedAt:      now,
		CollectionDate: batch.BatchDate,
		SequenceType:   sepa.SequenceType(batch.BatchType),
		EntryCount:     batch.EntryCount,
		ControlSum:     batch.TotalAmount,
	}
	creditor := sepa.CreditorConfig{
		Name:          config.COMPANY_NAME,
		AccountHolder: config.COMPANY_ACCOUNT_HOLDER,
		IBAN:          config.COMPANY_IBAN,
		BIC:           config.COMPANY_BIC,
		CreditorID:    config.CREDITOR_ID,
	}

	var xmlData []byte
	result := retry.Default.Do(c.Request.Context(), "xml_generation", retry.XMLGenerationConfig(), func() error {
		var genErr error
		xmlData, genErr = sepa.GenerateXML(hdr, creditor, txs)
		return genErr
	})
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.FinalErr.Error()})
		return
	}

	batch.SEPAMessageID = &messageID
	batch.SEPAPaymentInfoID = &paymentInfoID
	batch.SEPAGeneratedAt = &now
	batch.SEPAFileGenerated = true
	batch.SEPAXML = string(xmlData)
	batch.Status = batches.StatusGenerated
	batch.AppendLog(fmt.Sprintf("SEPA XML generated (%s, %d transactions, EUR %.2f)",
		messageID, batch.EntryCount, batch.TotalAmount))

	if err := database.DB.Session(&gorm.Session{FullSaveAssociations: true}).Save(&batch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save generated batch"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id":      messageID,
		"payment_info_id": paymentInfoID,
		"entry_count":     batch.EntryCount,
		"total_amount":    batch.TotalAmount,
		"status":          batch.Status,
	})
}

// DownloadBatchXML serves the generated pain.008 file.
func DownloadBatchXML(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	if !batch.SEPAFileGenerated || batch.SEPAXML == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch has no generated XML"})
		return
	}

	filename := fmt.Sprintf("direct-debit-batch-%d.xml", batch.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/xml", []byte(batch.SEPAXML))
}

// SubmitBatch marks a generated batch as handed to the bank and opens a
// pending usage row on every mandate involved.
func SubmitBatch(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	if batch.Status != batches.StatusGenerated {
		c.JSON(http.StatusConflict, gin.H{"error": "Only generated batches can be submitted", "status": batch.Status})
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		for _, row := range batch.Invoices {
			var mandate mandates.SEPAMandate
			if err := tx.Where("mandate_id = ?", row.MandateReference).First(&mandate).Error; err != nil {
				return fmt.Errorf("mandate %s not found for invoice %s", row.MandateReference, row.InvoiceNo)
			}

			usage := mandates.MandateUsage{
				MandateID:        mandate.ID,
				UsageDate:        batch.BatchDate,
				SequenceType:     row.SequenceType,
				Amount:           row.Amount,
				InvoiceReference: row.InvoiceNo,
				TransactionID:    "E2E-" + row.InvoiceNo,
				Status:           mandates.UsageStatusPending,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		}

		batch.Status = batches.StatusSubmitted
		batch.AppendLog("Batch submitted to bank")
		return tx.Save(&batch).Error
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": batch.Status})
}

// RowResult reports the bank outcome for one batch row.
type RowResult struct {
	InvoiceNo     string `json:"invoice_no"`
	Status        string `json:"status"` // Successful or Failed
	ResultCode    string `json:"result_code"`
	ResultMessage string `json:"result_message"`
}

// MarkInvoicesPaid settles a submitted batch. Successful rows create a
// payment entry, close the pending mandate usage as collected, and flip the
// schedule from FRST to RCUR. Failed rows go through the same failure path
// as a bank return file. An empty results list settles every row.
func MarkInvoicesPaid(c *gin.Context) {
	var input struct {
		Results []RowResult `json:"results"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var batch batches.DirectDebitBatch
	if err := database.DB.Preload("Invoices").First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	if batch.Status != batches.StatusSubmitted {
		c.JSON(http.StatusConflict, gin.H{"error": "Only submitted batches can be settled", "status": batch.Status})
		return
	}

	byInvoice := make(map[string]RowResult, len(input.Results))
	for _, r := range input.Results {
		byInvoice[strings.TrimSpace(r.InvoiceNo)] = r
	}

	var processed, failed int
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		for i := range batch.Invoices {
			row := &batch.Invoices[i]
			if row.Status != batches.RowStatusPending {
				continue
			}

			res, mentioned := byInvoice[row.InvoiceNo]
			if len(input.Results) > 0 && !mentioned {
				continue
			}

			if mentioned && res.Status == batches.RowStatusFailed {
				if err := applyRowFailure(tx, &batch, row, res.ResultCode, res.ResultMessage); err != nil {
					return err
				}
				failed++
				continue
			}

			if err := settleRow(tx, &batch, row); err != nil {
				return err
			}
			processed++
		}

		batch.Status = settledBatchStatus(batch.Invoices)
		batch.AppendLog(fmt.Sprintf("Settlement recorded: %d collected, %d failed", processed, failed))
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&batch).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    batch.Status,
		"collected": processed,
		"failed":    failed,
	})
}

// settleRow records one successful collection end to end.
func settleRow(tx *gorm.DB, batch *batches.DirectDebitBatch, row *batches.BatchInvoice) error {
	var invoice invoices.SalesInvoice
	if err := tx.Where("invoice_no = ?", row.InvoiceNo).First(&invoice).Error; err != nil {
		return fmt.Errorf("invoice %s not found", row.InvoiceNo)
	}

	reference := "E2E-" + row.InvoiceNo
	entry := invoices.PaymentEntry{
		InvoiceID:     invoice.ID,
		Amount:        row.Amount,
		ModeOfPayment: "SEPA Direct Debit",
		ReferenceNo:   reference,
		ReferenceDate: batch.BatchDate,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	if err := tx.Model(&invoice).Update("status", invoices.StatusPaid).Error; err != nil {
		return err
	}

	var mandate mandates.SEPAMandate
	if err := tx.Where("mandate_id = ?", row.MandateReference).First(&mandate).Error; err != nil {
		return fmt.Errorf("mandate %s not found", row.MandateReference)
	}

	if err := tx.Model(&mandates.MandateUsage{}).
		Where("mandate_id = ? AND invoice_reference = ? AND status = ?",
			mandate.ID, row.InvoiceNo, mandates.UsageStatusPending).
		Update("status", mandates.UsageStatusCollected).Error; err != nil {
		return err
	}

	// Terminal sequence types close the mandate
	switch sepa.SequenceType(row.SequenceType) {
	case sepa.SeqOOFF:
		if err := tx.Model(&mandate).Update("status", mandates.StatusUsed).Error; err != nil {
			return err
		}
	case sepa.SeqFNAL:
		if err := tx.Model(&mandate).Update("status", mandates.StatusCompleted).Error; err != nil {
			return err
		}
	}

	if invoice.ScheduleID != nil {
		var schedule schedules.DuesSchedule
		if err := tx.First(&schedule, "id = ?", *invoice.ScheduleID).Error; err == nil {
			updates := map[string]interface{}{
				"consecutive_failures": 0,
				"grace_period_until":   nil,
			}
			if schedule.NextSequenceType == string(sepa.SeqFRST) {
				updates["next_sequence_type"] = string(sepa.SeqRCUR)
			}
			if schedule.Status == schedules.StatusGracePeriod {
				updates["status"] = schedules.StatusActive
			}
			if err := tx.Model(&schedule).Updates(updates).Error; err != nil {
				return err
			}
		}
	}

	row.Status = batches.RowStatusSuccessful
	metrics.CollectionsProcessed.Inc()
	return nil
}

func settledBatchStatus(rows []batches.BatchInvoice) string {
	var success, failed, pending int
	for _, row := range rows {
		switch row.Status {
		case batches.RowStatusSuccessful:
			success++
		case batches.RowStatusFailed:
			failed++
		default:
			pending++
		}
	}

	switch {
	case failed == 0 && pending == 0:
		return batches.StatusProcessed
	case success == 0 && pending == 0:
		return batches.StatusFailed
	case success > 0:
		return batches.StatusPartiallyProcessed
	default:
		return batches.StatusPartiallyFailed
	}
}

// CancelBatch withdraws a batch that has not been settled.
func CancelBatch(c *gin.Context) {
	var batch batches.DirectDebitBatch
	if err := database.DB.First(&batch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	switch batch.Status {
	case batches.StatusDraft, batches.StatusGenerated:
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "Batch can no longer be cancelled", "status": batch.Status})
		return
	}

	batch.Status = batches.StatusCancelled
	batch.AppendLog("Batch cancelled")
	if err := database.DB.Save(&batch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel batch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": batch.Status})
}

// buildTransactions joins rows with member addresses and mandate sign dates.
func buildTransactions(db *gorm.DB, rows []batches.BatchInvoice) ([]sepa.Transaction, error) {
	txs := make([]sepa.Transaction, 0, len(rows))
	for _, row := range rows {
		var mandate mandates.SEPAMandate
		if err := db.Where("mandate_id = ?", row.MandateReference).First(&mandate).Error; err != nil {
			return nil, fmt.Errorf("mandate %s not found for invoice %s", row.MandateReference, row.InvoiceNo)
		}
		if mandate.SignDate == nil {
			return nil, fmt.Errorf("mandate %s has no sign date", row.MandateReference)
		}

		tx := sepa.Transaction{
			InvoiceNo:  row.InvoiceNo,
			Amount:     row.Amount,
			Currency:   row.Currency,
			MandateID:  mandate.MandateID,
			SignDate:   *mandate.SignDate,
			DebtorName: row.MemberName,
			DebtorIBAN: row.IBAN,
			DebtorBIC:  mandate.BIC,
		}

		var member members.Member
		if err := db.First(&member, "id = ?", row.MemberID).Error; err == nil {
			tx.Address = &sepa.DebtorAddress{
				Country:    member.Country,
				Line1:      member.AddressLine1,
				Line2:      member.AddressLine2,
				PostalCode: member.PostalCode,
				Town:       member.City,
			}
		}

		txs = append(txs, tx)
	}
	return txs, nil
}

func shortID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
