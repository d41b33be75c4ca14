package sepa

import (
	"fmt"
	"math/big"
	"strings"
)

// Country-specific IBAN lengths for the countries we collect from.
var ibanLengths = map[string]int{
	"AT": 20,
	"BE": 16,
	"DE": 22,
	"ES": 24,
	"FR": 27,
	"IE": 22,
	"IT": 27,
	"LU": 20,
	"NL": 18,
	"PT": 25,
}

// Bank code position within the IBAN per country: offset and length.
var ibanBankCodes = map[string][2]int{
	"NL": {4, 4},
	"BE": {4, 3},
	"DE": {4, 8},
	"AT": {4, 5},
	"FR": {4, 5},
}

// Known bank-code to BIC mappings for Dutch and German banks.
var bankCodeToBIC = map[string]string{
	"ABNA": "ABNANL2A",
	"RABO": "RABONL2U",
	"INGB": "INGBNL2A",
	"SNSB": "SNSBNL2A",
	"TRIO": "TRIONL2U",
	"BUNQ": "BUNQNL2A",
	"ASNB": "ASNBNL21",

	"10010010": "PBNKDEFF",
	"37040044": "COBADEFF",
	"50010517": "INGDDEFF",
	"70020270": "HYVEDEMM",
}

// NormalizeIBAN strips spaces and uppercases.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
}

// ValidateIBAN checks character set, country length and the mod-97 checksum.
func ValidateIBAN(iban string) error {
	iban = NormalizeIBAN(iban)

	if len(iban) < 4 {
		return fmt.Errorf("IBAN is too short")
	}

	for _, c := range iban {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return fmt.Errorf("IBAN contains invalid characters")
		}
	}

	country := iban[:2]
	if expected, ok := ibanLengths[country]; ok && len(iban) != expected {
		return fmt.Errorf("%s IBAN must be %d characters, got %d", country, expected, len(iban))
	}
	if len(iban) < 8 {
		return fmt.Errorf("IBAN is too short")
	}

	// mod-97: move the first four characters to the end, map letters to 10..35
	rearranged := iban[4:] + iban[:4]
	var sb strings.Builder
	for _, c := range rearranged {
		if c >= 'A' && c <= 'Z' {
			sb.WriteString(fmt.Sprintf("%d", c-'A'+10))
		} else {
			sb.WriteRune(c)
		}
	}

	n := new(big.Int)
	if _, ok := n.SetString(sb.String(), 10); !ok {
		return fmt.Errorf("IBAN contains invalid characters")
	}
	if new(big.Int).Mod(n, big.NewInt(97)).Int64() != 1 {
		return fmt.Errorf("invalid IBAN checksum")
	}

	return nil
}

// FormatIBAN returns the IBAN in groups of four for display.
func FormatIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	var groups []string
	for i := 0; i < len(iban); i += 4 {
		end := i + 4
		if end > len(iban) {
			end = len(iban)
		}
		groups = append(groups, iban[i:end])
	}
	return strings.Join(groups, " ")
}

// DeriveBIC derives the BIC from the bank code embedded in the IBAN.
// Returns "" when the country or bank is unknown and no fallback applies.
func DeriveBIC(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) < 8 {
		return ""
	}

	country := iban[:2]
	pos, ok := ibanBankCodes[country]
	if !ok {
		return ""
	}
	start, length := pos[0], pos[1]
	if len(iban) < start+length {
		return ""
	}

	bankCode := iban[start : start+length]
	if bic, ok := bankCodeToBIC[bankCode]; ok {
		return bic
	}

	// Generic fallback for alphabetic bank codes
	if len(bankCode) >= 4 {
		alpha := true
		for _, c := range bankCode[:4] {
			if c < 'A' || c > 'Z' {
				alpha = false
				break
			}
		}
		if alpha {
			return bankCode[:4] + country + "X"
		}
	}

	return ""
}
