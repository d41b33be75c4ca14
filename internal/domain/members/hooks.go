package members

import (
	"errors"

	"membership-app/internal/infra/sepa"

	"gorm.io/gorm"
)

// BeforeSave normalizes and validates banking details. SEPA Direct Debit
// members must carry a valid IBAN and an account holder name.
func (m *Member) BeforeSave(tx *gorm.DB) error {
	if m.PaymentMethod == "SEPA Direct Debit" {
		if m.IBAN == "" {
			return errors.New("IBAN is required for SEPA Direct Debit payment method")
		}
		if m.BankAccountHolder == "" {
			return errors.New("account holder name is required for SEPA Direct Debit payment method")
		}
	}

	if m.IBAN != "" {
		if err := sepa.ValidateIBAN(m.IBAN); err != nil {
			return err
		}
		m.IBAN = sepa.NormalizeIBAN(m.IBAN)
		if m.BIC == "" {
			m.BIC = sepa.DeriveBIC(m.IBAN)
		}
	}

	return nil
}
