package batches

import (
	"testing"
	"time"

	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&invoices.SalesInvoice{},
		&mandates.SEPAMandate{},
		&mandates.MandateUsage{},
		&DirectDebitBatch{},
		&BatchInvoice{},
	))
	return db
}

func seedMandate(t *testing.T, db *gorm.DB, status string) mandates.SEPAMandate {
	t.Helper()

	signed := time.Now().AddDate(0, -2, 0)
	mandate := mandates.SEPAMandate{
		MemberID:    1,
		MandateID:   "M-1-20260101-001",
		IBAN:        "NL91ABNA0417164300",
		Status:      status,
		MandateType: "RCUR",
		SignDate:    &signed,
	}
	require.NoError(t, db.Create(&mandate).Error)
	return mandate
}

func seedInvoice(t *testing.T, db *gorm.DB, invoiceNo, status string) {
	t.Helper()
	require.NoError(t, db.Create(&invoices.SalesInvoice{
		MemberID:  1,
		InvoiceNo: invoiceNo,
		Amount:    25.50,
		Currency:  "EUR",
		Status:    status,
	}).Error)
}

func TestValidateEmptyBatch(t *testing.T) {
	db := testDB(t)

	batch := DirectDebitBatch{}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.True(t, result.HasCritical())
	assert.Equal(t, "no invoices added to batch", result.CriticalErrors[0].Issue)
	assert.Equal(t, ValidationCritical, batch.ValidationStatus)
}

func TestValidateMissingInvoice(t *testing.T) {
	db := testDB(t)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{InvoiceNo: "MINV-2026-00001"}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.True(t, result.HasCritical())
	assert.Equal(t, "invoice does not exist", result.CriticalErrors[0].Issue)
}

func TestValidatePaidInvoiceRejected(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00001", invoices.StatusPaid)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00001",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
	}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.True(t, result.HasCritical())
	assert.Contains(t, result.CriticalErrors[0].Issue, "not unpaid")
}

func TestValidateMissingBankDetails(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00001", invoices.StatusUnpaid)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{InvoiceNo: "MINV-2026-00001"}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.Len(t, result.CriticalErrors, 2)
	assert.Equal(t, "IBAN is required", result.CriticalErrors[0].Issue)
	assert.Equal(t, "mandate reference is required", result.CriticalErrors[1].Issue)
}

func TestValidateNoActiveMandate(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00001", invoices.StatusUnpaid)
	seedMandate(t, db, mandates.StatusCancelled)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00001",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
	}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.True(t, result.HasCritical())
	assert.Equal(t, "no active mandate found for reference", result.CriticalErrors[0].Issue)
}

func TestValidateAssignsSequenceType(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00001", invoices.StatusUnpaid)
	seedMandate(t, db, mandates.StatusActive)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00001",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
	}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	assert.False(t, result.HasCritical())
	assert.Empty(t, result.Warnings)
	// Unused mandate: first collection is FRST
	assert.Equal(t, "FRST", batch.Invoices[0].SequenceType)
	assert.Equal(t, ValidationPassed, batch.ValidationStatus)
}

func TestValidateRCUROnFirstUseIsCritical(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00001", invoices.StatusUnpaid)
	seedMandate(t, db, mandates.StatusActive)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00001",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
		SequenceType:     "RCUR",
	}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	require.True(t, result.HasCritical())
	assert.Contains(t, result.CriticalErrors[0].Issue, "SEPA compliance violation")
	assert.Equal(t, "FRST", result.CriticalErrors[0].Expected)
	assert.Equal(t, "RCUR", result.CriticalErrors[0].Actual)
	assert.Equal(t, ValidationCritical, batch.ValidationStatus)
	assert.NotEmpty(t, batch.ValidationErrors)
}

func TestValidateFRSTAfterCollectionIsWarning(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00002", invoices.StatusOverdue)
	mandate := seedMandate(t, db, mandates.StatusActive)

	require.NoError(t, db.Create(&mandates.MandateUsage{
		MandateID:        mandate.ID,
		UsageDate:        time.Now().AddDate(0, -1, 0),
		SequenceType:     "FRST",
		InvoiceReference: "MINV-2026-00001",
		Status:           mandates.UsageStatusCollected,
	}).Error)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00002",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
		SequenceType:     "FRST",
	}}}
	result, err := batch.Validate(db)
	require.NoError(t, err)

	assert.False(t, result.HasCritical())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "RCUR", result.Warnings[0].Expected)
	assert.Equal(t, "FRST", result.Warnings[0].Actual)
	assert.Equal(t, ValidationWarnings, batch.ValidationStatus)
	assert.NotEmpty(t, batch.ValidationWarnings)
}

func TestValidatePendingUsageDoesNotFlipToRCUR(t *testing.T) {
	db := testDB(t)
	seedInvoice(t, db, "MINV-2026-00002", invoices.StatusUnpaid)
	mandate := seedMandate(t, db, mandates.StatusActive)

	require.NoError(t, db.Create(&mandates.MandateUsage{
		MandateID:        mandate.ID,
		UsageDate:        time.Now().AddDate(0, 0, -7),
		SequenceType:     "FRST",
		InvoiceReference: "MINV-2026-00001",
		Status:           mandates.UsageStatusPending,
	}).Error)

	batch := DirectDebitBatch{Invoices: []BatchInvoice{{
		InvoiceNo:        "MINV-2026-00002",
		IBAN:             "NL91ABNA0417164300",
		MandateReference: "M-1-20260101-001",
	}}}
	_, err := batch.Validate(db)
	require.NoError(t, err)

	// Nothing collected yet, so the next attempt is still FRST
	assert.Equal(t, "FRST", batch.Invoices[0].SequenceType)
}
