package mollie

import (
	"context"
)

type Chargeback struct {
	ID               string  `json:"id"`
	PaymentID        string  `json:"paymentId"`
	Amount           Amount  `json:"amount"`
	SettlementAmount *Amount `json:"settlementAmount,omitempty"`
	Reason           *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"reason,omitempty"`
	CreatedAt  string `json:"createdAt"`
	ReversedAt string `json:"reversedAt"`
}

type chargebacksPage struct {
	Embedded struct {
		Chargebacks []Chargeback `json:"chargebacks"`
	} `json:"_embedded"`
	Links listLinks `json:"_links"`
}

// ListChargebacks fetches all chargebacks across payments.
func (c *Client) ListChargebacks(ctx context.Context) ([]Chargeback, error) {
	var all []Chargeback
	var page chargebacksPage
	if err := c.get(ctx, "/chargebacks", nil, &page); err != nil {
		return nil, err
	}
	all = append(all, page.Embedded.Chargebacks...)

	for page.Links.Next != nil && page.Links.Next.Href != "" {
		next := page.Links.Next.Href
		page = chargebacksPage{}
		if err := c.getURL(ctx, next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Embedded.Chargebacks...)
	}
	return all, nil
}

// ListPaymentChargebacks fetches the chargebacks of a single payment.
func (c *Client) ListPaymentChargebacks(ctx context.Context, paymentID string) ([]Chargeback, error) {
	var page chargebacksPage
	if err := c.get(ctx, "/payments/"+paymentID+"/chargebacks", nil, &page); err != nil {
		return nil, err
	}
	return page.Embedded.Chargebacks, nil
}
