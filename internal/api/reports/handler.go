package reports

import (
	"errors"
	"net/http"
	"strconv"

	"membership-app/config"
	"membership-app/internal/infra/mollie"

	"github.com/gin-gonic/gin"
)

func client() *mollie.Client {
	return mollie.NewClient(config.MOLLIE_API_URL, config.MOLLIE_API_KEY)
}

func requireAPIKey(c *gin.Context) bool {
	if config.MOLLIE_API_KEY == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Mollie API key is not configured"})
		return false
	}
	return true
}

func renderError(c *gin.Context, err error) {
	var apiErr *mollie.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Detail, "title": apiErr.Title})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func ListSettlements(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	settlements, err := client().ListSettlements(c.Request.Context(), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlements)
}

func GetSettlement(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	settlement, err := client().GetSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func NextSettlement(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	settlement, err := client().NextSettlement(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func ListBalances(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	balances, err := client().ListBalances(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func GetBalance(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	balance, err := client().GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func ListChargebacks(c *gin.Context) {
	if !requireAPIKey(c) {
		return
	}

	chargebacks, err := client().ListChargebacks(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, chargebacks)
}
