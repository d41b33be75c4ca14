package sepa

import (
	"fmt"
	"time"
)

type SequenceType string

const (
	SeqFRST SequenceType = "FRST"
	SeqRCUR SequenceType = "RCUR"
	SeqOOFF SequenceType = "OOFF"
	SeqFNAL SequenceType = "FNAL"
)

// UsageKind classifies where a mandate is in its lifecycle.
type UsageKind string

const (
	UsageNeverUsed UsageKind = "never_used"
	UsageFirst     UsageKind = "first_use"
	UsageRecurring UsageKind = "recurring_use"
	UsageFinal     UsageKind = "final_use"
	UsageExpired   UsageKind = "expired_use"
)

// A mandate lapses when unused for 36 months (SEPA rulebook).
const mandateValidityMonths = 36

// MandateInfo is the slice of a mandate the resolver needs.
type MandateInfo struct {
	MandateID   string
	Status      string
	MandateType string // OOFF or RCUR
	SignDate    *time.Time
	ExpiryDate  *time.Time
}

// UsageRecord mirrors one row of the append-only usage history.
type UsageRecord struct {
	UsageDate        time.Time
	SequenceType     SequenceType
	Amount           float64
	InvoiceReference string
	Status           string // Pending, Collected, Failed
}

// TransactionContext carries per-transaction hints.
type TransactionContext struct {
	IsOneOff bool
	IsFinal  bool
}

// SequenceResolution is the resolver verdict for one upcoming collection.
type SequenceResolution struct {
	Valid         bool
	Recommended   SequenceType
	Usage         UsageKind
	LastUsageDate *time.Time
	UsageCount    int
	Warnings      []string
	Errors        []string
	NextAllowed   []SequenceType
}

// DetermineSequenceType decides FRST vs RCUR (or OOFF/FNAL) for a mandate.
// Only usages that actually collected count towards the FRST/RCUR decision.
func DetermineSequenceType(m MandateInfo, history []UsageRecord, ctx *TransactionContext) SequenceResolution {
	now := time.Now()

	var collected []UsageRecord
	for _, u := range history {
		if u.Status == "Collected" {
			collected = append(collected, u)
		}
	}

	errs := validateMandateRequirements(m, now)
	usage, recommended := analyzeUsage(m, collected, ctx, now)

	res := SequenceResolution{
		Valid:       len(errs) == 0,
		Recommended: recommended,
		Usage:       usage,
		UsageCount:  len(collected),
		Warnings:    generateWarnings(m, collected, now),
		Errors:      errs,
		NextAllowed: nextAllowedSequenceTypes(usage, recommended),
	}
	if len(collected) > 0 {
		last := collected[len(collected)-1].UsageDate
		res.LastUsageDate = &last
	}
	return res
}

func validateMandateRequirements(m MandateInfo, now time.Time) []string {
	var errs []string

	switch m.Status {
	case "Active":
	case "Used", "Completed":
		errs = append(errs, fmt.Sprintf("mandate %s has been closed and cannot be used", m.MandateID))
	default:
		errs = append(errs, fmt.Sprintf("mandate %s is not active (status: %s)", m.MandateID, m.Status))
	}

	if m.SignDate == nil {
		errs = append(errs, fmt.Sprintf("mandate %s has no sign date", m.MandateID))
	}
	if m.ExpiryDate != nil && m.ExpiryDate.Before(now) {
		errs = append(errs, fmt.Sprintf("mandate %s expired on %s", m.MandateID, m.ExpiryDate.Format("2006-01-02")))
	}

	return errs
}

func analyzeUsage(m MandateInfo, collected []UsageRecord, ctx *TransactionContext, now time.Time) (UsageKind, SequenceType) {
	// One-off mandates collect exactly once
	if m.MandateType == string(SeqOOFF) || (ctx != nil && ctx.IsOneOff) {
		if len(collected) > 0 {
			return UsageExpired, SeqOOFF
		}
		return UsageFirst, SeqOOFF
	}

	if ctx != nil && ctx.IsFinal {
		if len(collected) > 0 {
			return UsageFinal, SeqFNAL
		}
		return UsageFirst, SeqFRST
	}

	if len(collected) == 0 {
		return UsageNeverUsed, SeqFRST
	}

	last := collected[len(collected)-1]
	if last.SequenceType == SeqFNAL {
		return UsageExpired, SeqRCUR
	}

	if monthsBetween(last.UsageDate, now) > mandateValidityMonths {
		// Lapsed through non-use: the next collection starts over as FRST
		return UsageExpired, SeqFRST
	}

	return UsageRecurring, SeqRCUR
}

func nextAllowedSequenceTypes(usage UsageKind, current SequenceType) []SequenceType {
	switch usage {
	case UsageNeverUsed:
		return []SequenceType{SeqFRST, SeqOOFF}
	case UsageFirst:
		if current == SeqOOFF {
			return nil
		}
		return []SequenceType{SeqRCUR, SeqFNAL}
	case UsageRecurring:
		return []SequenceType{SeqRCUR, SeqFNAL}
	default:
		return nil
	}
}

func generateWarnings(m MandateInfo, collected []UsageRecord, now time.Time) []string {
	var warnings []string

	if m.SignDate != nil {
		if age := monthsBetween(*m.SignDate, now); age > 30 {
			warnings = append(warnings, fmt.Sprintf("mandate is %d months old, consider renewal", age))
		}
	}

	if len(collected) > 0 {
		last := collected[len(collected)-1]
		if days := int(now.Sub(last.UsageDate).Hours() / 24); days > 365 {
			warnings = append(warnings, fmt.Sprintf("mandate not used for %d days, validate with debtor", days))
		}
		if len(collected) > 50 {
			warnings = append(warnings, "high frequency mandate usage, monitor for potential issues")
		}
	}

	if m.ExpiryDate != nil {
		if days := int(m.ExpiryDate.Sub(now).Hours() / 24); days > 0 && days <= 30 {
			warnings = append(warnings, fmt.Sprintf("mandate expires in %d days, arrange renewal", days))
		}
	}

	return warnings
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// MismatchSeverity classifies a sequence-type mismatch between what the
// usage history requires and what a batch row carries.
type MismatchSeverity int

const (
	MismatchNone MismatchSeverity = iota
	// MismatchWarning is advisory: review recommended, batch may proceed.
	MismatchWarning
	// MismatchCritical blocks the batch: collecting RCUR on a mandate's
	// first use violates the SEPA rulebook.
	MismatchCritical
)

func ClassifyMismatch(expected, actual SequenceType) MismatchSeverity {
	if expected == actual {
		return MismatchNone
	}
	if expected == SeqFRST && actual == SeqRCUR {
		return MismatchCritical
	}
	return MismatchWarning
}
