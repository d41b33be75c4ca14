package mollie

import (
	"context"
	"net/url"
	"strconv"
)

type Settlement struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"` // open, pending, paidout, failed
	Amount    Amount `json:"amount"`
	CreatedAt string `json:"createdAt"`
	SettledAt string `json:"settledAt"`
}

type settlementsPage struct {
	Embedded struct {
		Settlements []Settlement `json:"settlements"`
	} `json:"_embedded"`
	Links listLinks `json:"_links"`
}

// ListSettlements fetches all settlements, following cursor pagination.
func (c *Client) ListSettlements(ctx context.Context, limit int) ([]Settlement, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var all []Settlement
	var page settlementsPage
	if err := c.get(ctx, "/settlements", query, &page); err != nil {
		return nil, err
	}
	all = append(all, page.Embedded.Settlements...)

	for page.Links.Next != nil && page.Links.Next.Href != "" {
		next := page.Links.Next.Href
		page = settlementsPage{}
		if err := c.getURL(ctx, next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Embedded.Settlements...)
	}
	return all, nil
}

// GetSettlement fetches one settlement by id. The special ids "next" and
// "open" are accepted by the API as well.
func (c *Client) GetSettlement(ctx context.Context, id string) (*Settlement, error) {
	var s Settlement
	if err := c.get(ctx, "/settlements/"+id, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// NextSettlement fetches the upcoming settlement.
func (c *Client) NextSettlement(ctx context.Context) (*Settlement, error) {
	return c.GetSettlement(ctx, "next")
}
