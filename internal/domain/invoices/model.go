package invoices

import (
	"time"

	"membership-app/internal/domain/members"
)

const (
	StatusUnpaid    = "Unpaid"
	StatusOverdue   = "Overdue"
	StatusPaid      = "Paid"
	StatusCancelled = "Cancelled"
)

type SalesInvoice struct {
	ID       uint `gorm:"primaryKey"`
	MemberID uint `gorm:"index"`
	Member   members.Member

	InvoiceNo   string `gorm:"not null;uniqueIndex:idx_invoices_invoice_no"`
	Description string
	Amount      float64
	Currency    string `gorm:"type:varchar(3);default:'EUR'"`
	Status      string `gorm:"type:varchar(20);not null;default:'Unpaid'"`

	PostingDate time.Time
	DueDate     time.Time

	// Set when the invoice was generated from a dues schedule
	ScheduleID    *uint
	CoverageStart *time.Time
	CoverageEnd   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentEntry records the settlement of an invoice, one row per collection.
type PaymentEntry struct {
	ID        uint `gorm:"primaryKey"`
	InvoiceID uint `gorm:"index"`
	Invoice   SalesInvoice

	Amount        float64
	ModeOfPayment string `gorm:"type:varchar(30)"`
	ReferenceNo   string
	ReferenceDate time.Time

	CreatedAt time.Time
}
