package schedules

import (
	"time"

	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/members"
)

const (
	StatusActive      = "Active"
	StatusGracePeriod = "Grace Period"
	StatusSuspended   = "Suspended"
	StatusCancelled   = "Cancelled"
)

// DuesSchedule drives the automated SEPA collection runs: one row per
// member describing what to invoice, how often, and with which mandate.
type DuesSchedule struct {
	ID       uint `gorm:"primaryKey"`
	MemberID uint `gorm:"index"`
	Member   members.Member

	MembershipType   string
	Amount           float64
	BillingFrequency string `gorm:"type:varchar(20)"` // Monthly, Quarterly, Annual
	Status           string `gorm:"type:varchar(20);not null;default:'Active'"`

	AutoCollect   bool   `gorm:"default:true"`
	PaymentMethod string `gorm:"type:varchar(30)"`

	NextInvoiceDate   time.Time
	InvoiceDaysBefore int `gorm:"default:30"`
	LastInvoiceDate   *time.Time

	CoverageStart time.Time
	CoverageEnd   time.Time

	// FRST until the first collection succeeds, RCUR after
	NextSequenceType string `gorm:"type:varchar(4);default:'FRST'"`

	ActiveMandateID *uint
	ActiveMandate   *mandates.SEPAMandate

	ConsecutiveFailures int `gorm:"default:0"`
	GracePeriodUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdvanceCoverage moves the schedule to the next billing period.
func (s *DuesSchedule) AdvanceCoverage() {
	months := 1
	switch s.BillingFrequency {
	case "Quarterly":
		months = 3
	case "Annual":
		months = 12
	}
	s.CoverageStart = s.CoverageEnd.AddDate(0, 0, 1)
	s.CoverageEnd = s.CoverageStart.AddDate(0, months, -1)
	s.NextInvoiceDate = s.NextInvoiceDate.AddDate(0, months, 0)
}
