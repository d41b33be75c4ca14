package mollie

import (
	"context"
)

type Balance struct {
	ID                string `json:"id"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	AvailableAmount   Amount `json:"availableAmount"`
	PendingAmount     Amount `json:"pendingAmount"`
	TransferFrequency string `json:"transferFrequency"`
}

type balancesPage struct {
	Embedded struct {
		Balances []Balance `json:"balances"`
	} `json:"_embedded"`
	Links listLinks `json:"_links"`
}

// ListBalances fetches all balances for the organization.
func (c *Client) ListBalances(ctx context.Context) ([]Balance, error) {
	var all []Balance
	var page balancesPage
	if err := c.get(ctx, "/balances", nil, &page); err != nil {
		return nil, err
	}
	all = append(all, page.Embedded.Balances...)

	for page.Links.Next != nil && page.Links.Next.Href != "" {
		next := page.Links.Next.Href
		page = balancesPage{}
		if err := c.getURL(ctx, next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Embedded.Balances...)
	}
	return all, nil
}

// GetBalance fetches one balance; "primary" selects the main balance.
func (c *Client) GetBalance(ctx context.Context, id string) (*Balance, error) {
	var b Balance
	if err := c.get(ctx, "/balances/"+id, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
