package mollie

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSettlementsFollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("from") == "stl_2" {
			fmt.Fprint(w, `{
				"_embedded": {"settlements": [
					{"id": "stl_2", "reference": "1234.5678.02", "status": "paidout",
					 "amount": {"value": "250.00", "currency": "EUR"}}
				]},
				"_links": {}
			}`)
			return
		}
		fmt.Fprintf(w, `{
			"_embedded": {"settlements": [
				{"id": "stl_1", "reference": "1234.5678.01", "status": "paidout",
				 "amount": {"value": "100.00", "currency": "EUR"}}
			]},
			"_links": {"next": {"href": "%s/settlements?from=stl_2"}}
		}`, server.URL)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test_key")
	settlements, err := client.ListSettlements(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, settlements, 2)
	assert.Equal(t, "stl_1", settlements[0].ID)
	assert.Equal(t, "stl_2", settlements[1].ID)
	assert.Equal(t, "250.00", settlements[1].Amount.Value)
}

func TestListSettlementsPassesLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"_embedded": {"settlements": []}, "_links": {}}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "test_key").ListSettlements(context.Background(), 5)
	require.NoError(t, err)
}

func TestNextSettlement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/settlements/next", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "stl_next", "status": "open",
			"amount": {"value": "42.00", "currency": "EUR"}}`)
	}))
	defer server.Close()

	settlement, err := NewClient(server.URL, "test_key").NextSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stl_next", settlement.ID)
	assert.Equal(t, "open", settlement.Status)
}

func TestGetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balances/primary", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "bal_1", "currency": "EUR", "status": "active",
			"availableAmount": {"value": "905.25", "currency": "EUR"},
			"pendingAmount": {"value": "100.00", "currency": "EUR"},
			"transferFrequency": "twice-a-month"}`)
	}))
	defer server.Close()

	balance, err := NewClient(server.URL, "test_key").GetBalance(context.Background(), "primary")
	require.NoError(t, err)
	assert.Equal(t, "bal_1", balance.ID)
	assert.Equal(t, "905.25", balance.AvailableAmount.Value)
}

func TestListChargebacksDecodesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"_embedded": {"chargebacks": [
				{"id": "chb_1", "paymentId": "tr_1",
				 "amount": {"value": "25.00", "currency": "EUR"},
				 "reason": {"code": "AM04", "description": "Insufficient funds"}}
			]},
			"_links": {}
		}`)
	}))
	defer server.Close()

	chargebacks, err := NewClient(server.URL, "test_key").ListChargebacks(context.Background())
	require.NoError(t, err)
	require.Len(t, chargebacks, 1)
	require.NotNil(t, chargebacks[0].Reason)
	assert.Equal(t, "AM04", chargebacks[0].Reason.Code)
}

func TestAPIErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status": 404, "title": "Not Found", "detail": "No settlement exists with token stl_x."}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "test_key").GetSettlement(context.Background(), "stl_x")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "No settlement exists")
}
