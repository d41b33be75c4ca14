package sepa

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"
)

// pain.008.001.08 (2019) customer direct debit initiation, as accepted by
// Dutch banks. Structured debtor addresses are included when complete.

const painNamespace = "urn:iso:std:iso:20022:tech:xsd:pain.008.001.08"

// CreditorConfig holds the collecting party's settings.
type CreditorConfig struct {
	Name          string
	AccountHolder string
	IBAN          string
	BIC           string
	CreditorID    string
}

// DebtorAddress is the structured postal address of a debtor. Town and
// country are mandatory; an incomplete address is omitted entirely.
type DebtorAddress struct {
	Country    string
	Line1      string
	Line2      string
	PostalCode string
	Town       string
}

// Transaction is one direct debit in the batch.
type Transaction struct {
	InvoiceNo  string
	Amount     float64
	Currency   string
	MandateID  string
	SignDate   time.Time
	DebtorName string
	DebtorIBAN string
	DebtorBIC  string
	Address    *DebtorAddress
}

// BatchHeader carries the batch-level identifiers and sums.
type BatchHeader struct {
	MessageID      string
	PaymentInfoID  string
	CreatedAt      time.Time
	CollectionDate time.Time
	SequenceType   SequenceType
	EntryCount     int
	ControlSum     float64
}

type document struct {
	XMLName        xml.Name `xml:"Document"`
	Xmlns          string   `xml:"xmlns,attr"`
	XmlnsXsi       string   `xml:"xmlns:xsi,attr"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr"`
	Initiation     initiation
}

type initiation struct {
	XMLName     xml.Name    `xml:"CstmrDrctDbtInitn"`
	GroupHeader groupHeader `xml:"GrpHdr"`
	PaymentInfo paymentInfo `xml:"PmtInf"`
}

type groupHeader struct {
	MessageID       string `xml:"MsgId"`
	CreatedDateTime string `xml:"CreDtTm"`
	NumberOfTxs     string `xml:"NbOfTxs"`
	ControlSum      string `xml:"CtrlSum"`
	InitiatingParty party  `xml:"InitgPty"`
}

type party struct {
	Name string `xml:"Nm"`
}

type paymentInfo struct {
	PaymentInfoID   string          `xml:"PmtInfId"`
	PaymentMethod   string          `xml:"PmtMtd"`
	BatchBooking    string          `xml:"BtchBookg"`
	NumberOfTxs     string          `xml:"NbOfTxs"`
	ControlSum      string          `xml:"CtrlSum"`
	PaymentTypeInfo paymentTypeInfo `xml:"PmtTpInf"`
	CollectionDate  string          `xml:"ReqdColltnDt"`
	Creditor        party           `xml:"Cdtr"`
	CreditorAccount account         `xml:"CdtrAcct"`
	CreditorAgent   agent           `xml:"CdtrAgt"`
	CreditorScheme  creditorScheme  `xml:"CdtrSchmeId"`
	Transactions    []transactionInfo
}

type paymentTypeInfo struct {
	ServiceLevel    code   `xml:"SvcLvl"`
	LocalInstrument code   `xml:"LclInstrm"`
	SequenceType    string `xml:"SeqTp"`
}

type code struct {
	Code string `xml:"Cd"`
}

type account struct {
	ID accountID `xml:"Id"`
}

type accountID struct {
	IBAN string `xml:"IBAN"`
}

type agent struct {
	FinInstnID finInstnID `xml:"FinInstnId"`
}

type finInstnID struct {
	BIC string `xml:"BIC"`
}

type creditorScheme struct {
	ID schemeID `xml:"Id"`
}

type schemeID struct {
	PrivateID privateID `xml:"PrvtId"`
}

type privateID struct {
	Other otherID `xml:"Othr"`
}

type otherID struct {
	ID       string     `xml:"Id"`
	SchemeNm schemeName `xml:"SchmeNm"`
}

type schemeName struct {
	Proprietary string `xml:"Prtry"`
}

type transactionInfo struct {
	XMLName       xml.Name       `xml:"DrctDbtTxInf"`
	PaymentID     paymentID      `xml:"PmtId"`
	Amount        instructedAmt  `xml:"InstdAmt"`
	DirectDebitTx directDebitTx  `xml:"DrctDbtTx"`
	DebtorAgent   agent          `xml:"DbtrAgt"`
	Debtor        debtor         `xml:"Dbtr"`
	DebtorAccount account        `xml:"DbtrAcct"`
	Remittance    remittanceInfo `xml:"RmtInf"`
}

type paymentID struct {
	EndToEndID string `xml:"EndToEndId"`
}

type instructedAmt struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type directDebitTx struct {
	MandateInfo mandateRelatedInfo `xml:"MndtRltdInf"`
}

type mandateRelatedInfo struct {
	MandateID string `xml:"MndtId"`
	SignDate  string `xml:"DtOfSgntr"`
}

type debtor struct {
	Name    string         `xml:"Nm"`
	Address *postalAddress `xml:"PstlAdr,omitempty"`
}

type postalAddress struct {
	Country    string   `xml:"Ctry,omitempty"`
	AddrLines  []string `xml:"AdrLine,omitempty"`
	PostalCode string   `xml:"PstCd,omitempty"`
	Town       string   `xml:"TwnNm,omitempty"`
}

type remittanceInfo struct {
	Unstructured string `xml:"Ustrd"`
}

// GenerateXML serializes the batch into a pain.008.001.08 document. The
// creditor must have IBAN, creditor ID and account holder configured; the
// BIC is derived from the IBAN when missing.
func GenerateXML(hdr BatchHeader, creditor CreditorConfig, txs []Transaction) ([]byte, error) {
	if creditor.IBAN == "" {
		return nil, fmt.Errorf("company IBAN is not configured")
	}
	if creditor.CreditorID == "" {
		return nil, fmt.Errorf("creditor ID (incassant ID) is not configured")
	}
	creditorName := creditor.AccountHolder
	if creditorName == "" {
		creditorName = creditor.Name
	}
	if creditorName == "" {
		return nil, fmt.Errorf("company account holder is not configured")
	}

	bic := creditor.BIC
	if bic == "" {
		bic = DeriveBIC(creditor.IBAN)
		if bic == "" {
			return nil, fmt.Errorf("company BIC is not configured and could not be derived from IBAN")
		}
	}

	doc := document{
		Xmlns:          painNamespace,
		XmlnsXsi:       "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: painNamespace + " pain.008.001.08.xsd",
		Initiation: initiation{
			GroupHeader: groupHeader{
				MessageID:       hdr.MessageID,
				CreatedDateTime: hdr.CreatedAt.Format("2006-01-02T15:04:05"),
				NumberOfTxs:     fmt.Sprintf("%d", hdr.EntryCount),
				ControlSum:      formatAmount(hdr.ControlSum),
				InitiatingParty: party{Name: creditorName},
			},
			PaymentInfo: paymentInfo{
				PaymentInfoID: hdr.PaymentInfoID,
				PaymentMethod: "DD",
				BatchBooking:  "true",
				NumberOfTxs:   fmt.Sprintf("%d", hdr.EntryCount),
				ControlSum:    formatAmount(hdr.ControlSum),
				PaymentTypeInfo: paymentTypeInfo{
					ServiceLevel:    code{Code: "SEPA"},
					LocalInstrument: code{Code: "CORE"},
					SequenceType:    string(hdr.SequenceType),
				},
				CollectionDate:  hdr.CollectionDate.Format("2006-01-02"),
				Creditor:        party{Name: creditorName},
				CreditorAccount: account{ID: accountID{IBAN: NormalizeIBAN(creditor.IBAN)}},
				CreditorAgent:   agent{FinInstnID: finInstnID{BIC: bic}},
				CreditorScheme: creditorScheme{
					ID: schemeID{PrivateID: privateID{Other: otherID{
						ID:       creditor.CreditorID,
						SchemeNm: schemeName{Proprietary: "SEPA"},
					}}},
				},
			},
		},
	}

	for _, tx := range txs {
		debtorBIC := tx.DebtorBIC
		if debtorBIC == "" {
			debtorBIC = DeriveBIC(tx.DebtorIBAN)
		}
		if debtorBIC == "" {
			debtorBIC = "INGBNL2A"
		}

		info := transactionInfo{
			PaymentID: paymentID{EndToEndID: "E2E-" + tx.InvoiceNo},
			Amount: instructedAmt{
				Currency: tx.Currency,
				Value:    formatAmount(tx.Amount),
			},
			DirectDebitTx: directDebitTx{MandateInfo: mandateRelatedInfo{
				MandateID: tx.MandateID,
				SignDate:  tx.SignDate.Format("2006-01-02"),
			}},
			DebtorAgent:   agent{FinInstnID: finInstnID{BIC: debtorBIC}},
			Debtor:        debtor{Name: tx.DebtorName, Address: structuredAddress(tx.Address)},
			DebtorAccount: account{ID: accountID{IBAN: NormalizeIBAN(tx.DebtorIBAN)}},
			Remittance:    remittanceInfo{Unstructured: fmt.Sprintf("Invoice %s for %s", tx.InvoiceNo, tx.DebtorName)},
		}
		doc.Initiation.PaymentInfo.Transactions = append(doc.Initiation.PaymentInfo.Transactions, info)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pain.008 document: %w", err)
	}
	out = append([]byte(xml.Header), out...)

	// Well-formedness re-parse in place of XSD validation
	if err := checkWellFormed(out); err != nil {
		return nil, fmt.Errorf("generated XML is not well-formed: %w", err)
	}

	return out, nil
}

// structuredAddress maps to the pain.008.001.08 postal address block.
// Town name and country are mandatory; without them the block is dropped.
func structuredAddress(a *DebtorAddress) *postalAddress {
	if a == nil || a.Town == "" || a.Country == "" {
		return nil
	}
	addr := &postalAddress{
		Country:    a.Country,
		PostalCode: a.PostalCode,
		Town:       a.Town,
	}
	if a.Line1 != "" {
		addr.AddrLines = append(addr.AddrLines, truncate(a.Line1, 70))
	}
	if a.Line2 != "" {
		addr.AddrLines = append(addr.AddrLines, truncate(a.Line2, 70))
	}
	return addr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func checkWellFormed(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
