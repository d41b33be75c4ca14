package batches

import (
	"fmt"
	"time"
)

const (
	StatusDraft              = "Draft"
	StatusGenerated          = "Generated"
	StatusSubmitted          = "Submitted"
	StatusProcessed          = "Processed"
	StatusPartiallyProcessed = "Partially Processed"
	StatusPartiallyFailed    = "Partially Failed"
	StatusFailed             = "Failed"
	StatusCancelled          = "Cancelled"
)

const (
	ValidationPassed   = "Passed"
	ValidationWarnings = "Warnings"
	ValidationCritical = "Critical Errors"
)

const (
	RowStatusPending    = "Pending"
	RowStatusSuccessful = "Successful"
	RowStatusFailed     = "Failed"
)

type DirectDebitBatch struct {
	ID          uint `gorm:"primaryKey"`
	BatchDate   time.Time
	Description string
	BatchType   string `gorm:"type:varchar(4);default:'RCUR'"` // FRST or RCUR
	Currency    string `gorm:"type:varchar(3);default:'EUR'"`
	Status      string `gorm:"type:varchar(30);not null;default:'Draft'"`

	EntryCount  int
	TotalAmount float64

	ValidationStatus   string `gorm:"type:varchar(20)"`
	ValidationErrors   string // JSON payload, kept for automated runs
	ValidationWarnings string // JSON payload

	SEPAMessageID     *string
	SEPAPaymentInfoID *string
	SEPAGeneratedAt   *time.Time
	SEPAFileGenerated bool
	SEPAXML           string `gorm:"type:text"`

	BatchLog string `gorm:"type:text"`

	Invoices []BatchInvoice `gorm:"foreignKey:BatchID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchInvoice is one collection row in a batch.
type BatchInvoice struct {
	ID      uint `gorm:"primaryKey"`
	BatchID uint `gorm:"index"`

	InvoiceNo  string `gorm:"not null"`
	MemberID   uint
	MemberName string

	Amount   float64
	Currency string `gorm:"type:varchar(3);default:'EUR'"`

	IBAN             string
	MandateReference string
	SequenceType     string `gorm:"type:varchar(4)"`

	Status        string `gorm:"type:varchar(20);not null;default:'Pending'"`
	ResultCode    *string
	ResultMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppendLog adds a timestamped line to the batch log.
func (b *DirectDebitBatch) AppendLog(message string) {
	line := fmt.Sprintf("%s: %s\n", time.Now().Format("2006-01-02 15:04:05"), message)
	b.BatchLog += line
}
