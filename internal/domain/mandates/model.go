package mandates

import (
	"time"

	"membership-app/internal/domain/members"
)

const (
	StatusDraft     = "Draft"
	StatusActive    = "Active"
	StatusSuspended = "Suspended"
	StatusCancelled = "Cancelled"
	StatusExpired   = "Expired"
	StatusUsed      = "Used"      // one-off mandate consumed
	StatusCompleted = "Completed" // recurring mandate closed with FNAL
)

const (
	TypeOneOff    = "OOFF"
	TypeRecurring = "RCUR"
)

type SEPAMandate struct {
	ID       uint `gorm:"primaryKey"`
	MemberID uint `gorm:"index"`
	Member   members.Member

	MandateID         string `gorm:"not null;uniqueIndex:idx_mandates_mandate_id"`
	IBAN              string `gorm:"not null"`
	BIC               string
	AccountHolderName string

	Status      string `gorm:"type:varchar(20);not null;default:'Draft'"`
	MandateType string `gorm:"type:varchar(4);not null;default:'RCUR'"`

	SignDate   *time.Time
	ExpiryDate *time.Time

	UsedForMemberships bool `gorm:"default:true"`
	UsedForDonations   bool `gorm:"default:false"`

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MandateUsage is append-only. A "Collected" row is what flips a mandate
// from FRST to RCUR territory.
const (
	UsageStatusPending   = "Pending"
	UsageStatusCollected = "Collected"
	UsageStatusFailed    = "Failed"
)

type MandateUsage struct {
	ID        uint `gorm:"primaryKey"`
	MandateID uint `gorm:"index"`
	Mandate   SEPAMandate

	UsageDate        time.Time
	SequenceType     string `gorm:"type:varchar(4)"`
	Amount           float64
	InvoiceReference string
	TransactionID    string
	Status           string `gorm:"type:varchar(20);not null;default:'Pending'"`
	ResultCode       *string
	ResultMessage    *string

	CreatedAt time.Time
}
