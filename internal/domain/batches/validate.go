package batches

import (
	"encoding/json"
	"fmt"

	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/infra/metrics"
	"membership-app/internal/infra/sepa"

	"gorm.io/gorm"
)

// ValidationIssue describes one problem with a batch row.
type ValidationIssue struct {
	Invoice          string `json:"invoice"`
	Issue            string `json:"issue"`
	MandateReference string `json:"mandate_reference,omitempty"`
	Expected         string `json:"expected,omitempty"`
	Actual           string `json:"actual,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// ValidationResult separates blocking errors from advisories.
type ValidationResult struct {
	CriticalErrors []ValidationIssue `json:"critical_errors"`
	Warnings       []ValidationIssue `json:"warnings"`
}

func (r *ValidationResult) HasCritical() bool { return len(r.CriticalErrors) > 0 }

// Validate checks every row of the batch: the invoice must exist and be
// uncollected, bank details must be present, and the row's sequence type
// must agree with the mandate's usage history. Rows without a sequence type
// get the resolved one assigned.
func (b *DirectDebitBatch) Validate(db *gorm.DB) (*ValidationResult, error) {
	result := &ValidationResult{}

	if len(b.Invoices) == 0 {
		result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
			Issue: "no invoices added to batch",
		})
		b.applyValidationResult(result)
		return result, nil
	}

	// Bulk-load invoices to avoid a query per row
	invoiceNos := make([]string, 0, len(b.Invoices))
	for _, row := range b.Invoices {
		invoiceNos = append(invoiceNos, row.InvoiceNo)
	}
	var known []invoices.SalesInvoice
	if err := db.Where("invoice_no IN ?", invoiceNos).Find(&known).Error; err != nil {
		return nil, fmt.Errorf("load batch invoices: %w", err)
	}
	byNo := make(map[string]invoices.SalesInvoice, len(known))
	for _, inv := range known {
		byNo[inv.InvoiceNo] = inv
	}

	for i := range b.Invoices {
		row := &b.Invoices[i]

		inv, exists := byNo[row.InvoiceNo]
		if !exists {
			result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
				Invoice: row.InvoiceNo,
				Issue:   "invoice does not exist",
			})
			continue
		}

		if inv.Status != invoices.StatusUnpaid && inv.Status != invoices.StatusOverdue {
			result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
				Invoice: row.InvoiceNo,
				Issue:   fmt.Sprintf("invoice is not unpaid (status: %s)", inv.Status),
			})
		}

		if row.IBAN == "" {
			result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
				Invoice: row.InvoiceNo,
				Issue:   "IBAN is required",
			})
		}
		if row.MandateReference == "" {
			result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
				Invoice: row.InvoiceNo,
				Issue:   "mandate reference is required",
			})
			continue
		}

		b.validateRowSequenceType(db, row, result)
	}

	b.applyValidationResult(result)
	return result, nil
}

// validateRowSequenceType resolves the expected FRST/RCUR value from the
// mandate usage history and classifies any mismatch. Collecting RCUR on a
// mandate's first use is a SEPA compliance violation and blocks the batch;
// the reverse is only an advisory.
func (b *DirectDebitBatch) validateRowSequenceType(db *gorm.DB, row *BatchInvoice, result *ValidationResult) {
	var mandate mandates.SEPAMandate
	err := db.Where("mandate_id = ? AND status = ?", row.MandateReference, mandates.StatusActive).
		First(&mandate).Error
	if err != nil {
		result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
			Invoice:          row.InvoiceNo,
			Issue:            "no active mandate found for reference",
			MandateReference: row.MandateReference,
		})
		return
	}

	var usage []mandates.MandateUsage
	if err := db.Where("mandate_id = ?", mandate.ID).Order("usage_date ASC").Find(&usage).Error; err != nil {
		result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
			Invoice:          row.InvoiceNo,
			Issue:            fmt.Sprintf("error determining sequence type: %v", err),
			MandateReference: row.MandateReference,
		})
		return
	}

	resolution := sepa.DetermineSequenceType(mandateInfo(mandate), usageRecords(usage), nil)
	if !resolution.Valid {
		result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
			Invoice:          row.InvoiceNo,
			Issue:            fmt.Sprintf("mandate not usable: %v", resolution.Errors),
			MandateReference: row.MandateReference,
		})
		return
	}

	expected := resolution.Recommended
	if row.SequenceType == "" {
		row.SequenceType = string(expected)
		return
	}

	switch sepa.ClassifyMismatch(expected, sepa.SequenceType(row.SequenceType)) {
	case sepa.MismatchCritical:
		result.CriticalErrors = append(result.CriticalErrors, ValidationIssue{
			Invoice:  row.InvoiceNo,
			Issue:    "RCUR used for first mandate usage - SEPA compliance violation",
			Expected: string(expected),
			Actual:   row.SequenceType,
		})
	case sepa.MismatchWarning:
		result.Warnings = append(result.Warnings, ValidationIssue{
			Invoice:  row.InvoiceNo,
			Issue:    "sequence type mismatch - review recommended",
			Expected: string(expected),
			Actual:   row.SequenceType,
		})
	}
}

// applyValidationResult persists the outcome on the batch so automated runs
// can defer the decision to a notification step instead of aborting.
func (b *DirectDebitBatch) applyValidationResult(result *ValidationResult) {
	switch {
	case result.HasCritical():
		b.ValidationStatus = ValidationCritical
		b.ValidationErrors = mustJSON(result.CriticalErrors)
		b.ValidationWarnings = mustJSON(result.Warnings)
		metrics.BatchValidationFailures.Inc()
	case len(result.Warnings) > 0:
		b.ValidationStatus = ValidationWarnings
		b.ValidationErrors = ""
		b.ValidationWarnings = mustJSON(result.Warnings)
	default:
		b.ValidationStatus = ValidationPassed
		b.ValidationErrors = ""
		b.ValidationWarnings = ""
	}
}

func mandateInfo(m mandates.SEPAMandate) sepa.MandateInfo {
	return sepa.MandateInfo{
		MandateID:   m.MandateID,
		Status:      m.Status,
		MandateType: m.MandateType,
		SignDate:    m.SignDate,
		ExpiryDate:  m.ExpiryDate,
	}
}

func usageRecords(rows []mandates.MandateUsage) []sepa.UsageRecord {
	out := make([]sepa.UsageRecord, 0, len(rows))
	for _, u := range rows {
		out = append(out, sepa.UsageRecord{
			UsageDate:        u.UsageDate,
			SequenceType:     sepa.SequenceType(u.SequenceType),
			Amount:           u.Amount,
			InvoiceReference: u.InvoiceReference,
			Status:           u.Status,
		})
	}
	return out
}

func mustJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
