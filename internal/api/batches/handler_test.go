package batches

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/batches"
	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/members"
	"membership-app/internal/domain/schedules"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&members.Member{},
		&mandates.SEPAMandate{},
		&mandates.MandateUsage{},
		&schedules.DuesSchedule{},
		&invoices.SalesInvoice{},
		&invoices.PaymentEntry{},
		&batches.DirectDebitBatch{},
		&batches.BatchInvoice{},
	))
	database.DB = db

	r := gin.New()
	r.POST("/batches/:id/submit", SubmitBatch)
	r.POST("/batches/:id/mark-paid", MarkInvoicesPaid)
	r.POST("/batches/:id/returns", ProcessReturns)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// collectionFixture is one member with an active mandate, a FRST schedule,
// and an unpaid invoice generated from it.
type collectionFixture struct {
	member   members.Member
	mandate  mandates.SEPAMandate
	schedule schedules.DuesSchedule
	invoice  invoices.SalesInvoice
}

func seedCollection(t *testing.T, n int) collectionFixture {
	t.Helper()

	member := members.Member{
		FullName: fmt.Sprintf("Member %d", n),
		Email:    fmt.Sprintf("member%d@example.org", n),
		Status:   members.StatusActive,
	}
	require.NoError(t, database.DB.Create(&member).Error)

	signed := time.Now().AddDate(0, -2, 0)
	mandate := mandates.SEPAMandate{
		MemberID:    member.ID,
		MandateID:   fmt.Sprintf("M-%d-20260101-001", member.ID),
		IBAN:        "NL91ABNA0417164300",
		Status:      mandates.StatusActive,
		MandateType: mandates.TypeRecurring,
		SignDate:    &signed,
	}
	require.NoError(t, database.DB.Create(&mandate).Error)

	schedule := schedules.DuesSchedule{
		MemberID:         member.ID,
		MembershipType:   "Regular",
		Amount:           25.50,
		BillingFrequency: "Monthly",
		Status:           schedules.StatusActive,
		AutoCollect:      true,
		PaymentMethod:    "SEPA Direct Debit",
		NextInvoiceDate:  time.Now().AddDate(0, 1, 0),
		CoverageStart:    time.Now(),
		CoverageEnd:      time.Now().AddDate(0, 1, -1),
		NextSequenceType: "FRST",
		ActiveMandateID:  &mandate.ID,
	}
	require.NoError(t, database.DB.Create(&schedule).Error)

	invoice := invoices.SalesInvoice{
		MemberID:   member.ID,
		InvoiceNo:  fmt.Sprintf("MINV-2026-%05d", n),
		Amount:     25.50,
		Currency:   "EUR",
		Status:     invoices.StatusUnpaid,
		ScheduleID: &schedule.ID,
	}
	require.NoError(t, database.DB.Create(&invoice).Error)

	return collectionFixture{member: member, mandate: mandate, schedule: schedule, invoice: invoice}
}

func seedGeneratedBatch(t *testing.T, fixtures ...collectionFixture) batches.DirectDebitBatch {
	t.Helper()

	batch := batches.DirectDebitBatch{
		BatchDate: time.Now().AddDate(0, 0, 2),
		BatchType: "FRST",
		Currency:  "EUR",
		Status:    batches.StatusGenerated,
	}
	for _, f := range fixtures {
		batch.Invoices = append(batch.Invoices, batches.BatchInvoice{
			InvoiceNo:        f.invoice.InvoiceNo,
			MemberID:         f.member.ID,
			MemberName:       f.member.FullName,
			Amount:           f.invoice.Amount,
			Currency:         "EUR",
			IBAN:             f.mandate.IBAN,
			MandateReference: f.mandate.MandateID,
			SequenceType:     "FRST",
			Status:           batches.RowStatusPending,
		})
	}
	batch.EntryCount = len(batch.Invoices)
	require.NoError(t, database.DB.Create(&batch).Error)
	return batch
}

func TestSubmitBatchOpensPendingUsage(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	batch := seedGeneratedBatch(t, f)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, database.DB.First(&batch, batch.ID).Error)
	assert.Equal(t, batches.StatusSubmitted, batch.Status)

	var usage mandates.MandateUsage
	require.NoError(t, database.DB.Where("mandate_id = ?", f.mandate.ID).First(&usage).Error)
	assert.Equal(t, mandates.UsageStatusPending, usage.Status)
	assert.Equal(t, "FRST", usage.SequenceType)
	assert.Equal(t, f.invoice.InvoiceNo, usage.InvoiceReference)
	assert.Equal(t, "E2E-"+f.invoice.InvoiceNo, usage.TransactionID)
}

func TestSubmitBatchRequiresGenerated(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	batch := seedGeneratedBatch(t, f)
	require.NoError(t, database.DB.Model(&batch).Update("status", batches.StatusDraft).Error)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarkInvoicesPaidSettlesEveryRow(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	batch := seedGeneratedBatch(t, f)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Empty body settles every pending row
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/mark-paid", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, database.DB.Preload("Invoices").First(&batch, batch.ID).Error)
	assert.Equal(t, batches.StatusProcessed, batch.Status)
	require.Len(t, batch.Invoices, 1)
	assert.Equal(t, batches.RowStatusSuccessful, batch.Invoices[0].Status)

	var invoice invoices.SalesInvoice
	require.NoError(t, database.DB.First(&invoice, f.invoice.ID).Error)
	assert.Equal(t, invoices.StatusPaid, invoice.Status)

	var entry invoices.PaymentEntry
	require.NoError(t, database.DB.Where("invoice_id = ?", invoice.ID).First(&entry).Error)
	assert.Equal(t, "SEPA Direct Debit", entry.ModeOfPayment)
	assert.Equal(t, "E2E-"+f.invoice.InvoiceNo, entry.ReferenceNo)
	assert.Equal(t, 25.50, entry.Amount)

	var usage mandates.MandateUsage
	require.NoError(t, database.DB.Where("mandate_id = ?", f.mandate.ID).First(&usage).Error)
	assert.Equal(t, mandates.UsageStatusCollected, usage.Status)

	// First successful collection flips the schedule to RCUR
	var schedule schedules.DuesSchedule
	require.NoError(t, database.DB.First(&schedule, f.schedule.ID).Error)
	assert.Equal(t, "RCUR", schedule.NextSequenceType)
	assert.Equal(t, 0, schedule.ConsecutiveFailures)
	assert.Nil(t, schedule.GracePeriodUntil)
}

func TestMarkInvoicesPaidRequiresSubmitted(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	batch := seedGeneratedBatch(t, f)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/mark-paid", batch.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarkInvoicesPaidPartialFailure(t *testing.T) {
	r := setupRouter(t)
	ok := seedCollection(t, 1)
	bad := seedCollection(t, 2)
	batch := seedGeneratedBatch(t, ok, bad)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/mark-paid", batch.ID), gin.H{
		"results": []gin.H{
			{"invoice_no": ok.invoice.InvoiceNo, "status": batches.RowStatusSuccessful},
			{"invoice_no": bad.invoice.InvoiceNo, "status": batches.RowStatusFailed,
				"result_code": "AM04", "result_message": "Insufficient funds"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, database.DB.Preload("Invoices").First(&batch, batch.ID).Error)
	assert.Equal(t, batches.StatusPartiallyProcessed, batch.Status)

	rows := make(map[string]batches.BatchInvoice, len(batch.Invoices))
	for _, row := range batch.Invoices {
		rows[row.InvoiceNo] = row
	}
	assert.Equal(t, batches.RowStatusSuccessful, rows[ok.invoice.InvoiceNo].Status)
	assert.Equal(t, batches.RowStatusFailed, rows[bad.invoice.InvoiceNo].Status)
	require.NotNil(t, rows[bad.invoice.InvoiceNo].ResultCode)
	assert.Equal(t, "AM04", *rows[bad.invoice.InvoiceNo].ResultCode)

	// The failed collection reopens the invoice as overdue
	var invoice invoices.SalesInvoice
	require.NoError(t, database.DB.First(&invoice, bad.invoice.ID).Error)
	assert.Equal(t, invoices.StatusOverdue, invoice.Status)

	var usage mandates.MandateUsage
	require.NoError(t, database.DB.Where("mandate_id = ?", bad.mandate.ID).First(&usage).Error)
	assert.Equal(t, mandates.UsageStatusFailed, usage.Status)
	require.NotNil(t, usage.ResultCode)
	assert.Equal(t, "AM04", *usage.ResultCode)

	// One failure grants a grace period, it does not suspend
	var schedule schedules.DuesSchedule
	require.NoError(t, database.DB.First(&schedule, bad.schedule.ID).Error)
	assert.Equal(t, schedules.StatusGracePeriod, schedule.Status)
	assert.Equal(t, 1, schedule.ConsecutiveFailures)
	require.NotNil(t, schedule.GracePeriodUntil)
	assert.True(t, schedule.GracePeriodUntil.After(time.Now()))
}

func TestProcessReturnsSuspendsAfterThirdFailure(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	require.NoError(t, database.DB.Model(&f.schedule).Update("consecutive_failures", 2).Error)
	batch := seedGeneratedBatch(t, f)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/returns", batch.ID), gin.H{
		"returns": []gin.H{
			{"invoice_no": f.invoice.InvoiceNo, "reason_code": "AC04"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Status  string `json:"status"`
		Applied int    `json:"applied"`
		Unknown int    `json:"unknown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, batches.StatusFailed, out.Status)
	assert.Equal(t, 1, out.Applied)
	assert.Equal(t, 0, out.Unknown)

	var invoice invoices.SalesInvoice
	require.NoError(t, database.DB.First(&invoice, f.invoice.ID).Error)
	assert.Equal(t, invoices.StatusOverdue, invoice.Status)

	// The missing reason text is filled from the AC04 code
	var usage mandates.MandateUsage
	require.NoError(t, database.DB.Where("mandate_id = ?", f.mandate.ID).First(&usage).Error)
	assert.Equal(t, mandates.UsageStatusFailed, usage.Status)
	require.NotNil(t, usage.ResultMessage)
	assert.Equal(t, "Account closed", *usage.ResultMessage)

	// Third consecutive failure suspends the schedule outright
	var schedule schedules.DuesSchedule
	require.NoError(t, database.DB.First(&schedule, f.schedule.ID).Error)
	assert.Equal(t, schedules.StatusSuspended, schedule.Status)
	assert.Equal(t, 3, schedule.ConsecutiveFailures)
	assert.Nil(t, schedule.GracePeriodUntil)
}

func TestProcessReturnsIgnoresUnknownInvoices(t *testing.T) {
	r := setupRouter(t)
	f := seedCollection(t, 1)
	batch := seedGeneratedBatch(t, f)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/submit", batch.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/batches/%d/returns", batch.ID), gin.H{
		"returns": []gin.H{
			{"invoice_no": "MINV-2026-99999", "reason_code": "MS03"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Applied int `json:"applied"`
		Unknown int `json:"unknown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 0, out.Applied)
	assert.Equal(t, 1, out.Unknown)
}

func TestNextInvoiceNoStartsAtOne(t *testing.T) {
	setupRouter(t)

	now := time.Now()
	no, err := nextInvoiceNo(database.DB, now)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("MINV-%d-00001", now.Year()), no)
}

func TestNextInvoiceNoSurvivesDeletedInvoices(t *testing.T) {
	setupRouter(t)

	now := time.Now()
	prefix := fmt.Sprintf("MINV-%d-", now.Year())
	for i := 1; i <= 2; i++ {
		require.NoError(t, database.DB.Create(&invoices.SalesInvoice{
			MemberID:  1,
			InvoiceNo: fmt.Sprintf("%s%05d", prefix, i),
			Amount:    25.50,
			Status:    invoices.StatusUnpaid,
		}).Error)
	}
	require.NoError(t, database.DB.
		Where("invoice_no = ?", prefix+"00001").
		Delete(&invoices.SalesInvoice{}).Error)

	// Numbering continues past the highest number ever issued, a deleted
	// invoice must not make the next number collide with an existing one.
	no, err := nextInvoiceNo(database.DB, now)
	require.NoError(t, err)
	assert.Equal(t, prefix+"00003", no)
}
