package members

import (
	"time"
)

// Member statuses follow the lifecycle Pending -> Active -> Suspended/Terminated.
const (
	StatusPending    = "Pending"
	StatusActive     = "Active"
	StatusSuspended  = "Suspended"
	StatusTerminated = "Terminated"
)

type Member struct {
	ID       uint `gorm:"primaryKey"`
	FullName string
	Email    string `gorm:"not null;uniqueIndex:idx_members_email"`
	Tel      string
	Status   string `gorm:"type:varchar(20);not null;default:'Pending'"`

	// Optional link to the accounting customer record
	CustomerID *string `gorm:"column:customer_id;uniqueIndex:idx_members_customer_id"`

	// Banking details for SEPA Direct Debit
	PaymentMethod     string `gorm:"type:varchar(30)"`
	IBAN              string
	BIC               string
	BankAccountHolder string

	// Override of the membership-type fee, when set
	FeeOverride *float64

	// Structured address, used in pain.008 debtor blocks
	AddressLine1 string
	AddressLine2 string
	PostalCode   string
	City         string
	Country      string `gorm:"type:varchar(2);default:'NL'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IBANHistory keeps a record per bank account a member has used.
// The active row is closed whenever the IBAN changes.
type IBANHistory struct {
	ID       uint `gorm:"primaryKey"`
	MemberID uint `gorm:"index"`
	Member   Member

	IBAN     string
	BIC      string
	FromDate time.Time
	ToDate   *time.Time
	IsActive bool

	CreatedAt time.Time
}
