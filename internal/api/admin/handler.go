package admin

import (
	"net/http"

	"membership-app/config"
	"membership-app/database"
	"membership-app/internal/domain/batches"
	"membership-app/internal/domain/members"
	"membership-app/internal/domain/schedules"
	"membership-app/internal/infra/retry"
	"membership-app/internal/infra/sepa"

	"github.com/gin-gonic/gin"
)

// Dashboard summarizes the member base and batch pipeline for the admin UI.
func Dashboard(c *gin.Context) {
	memberCounts, err := countByStatus(&members.Member{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load member counts"})
		return
	}
	batchCounts, err := countByStatus(&batches.DirectDebitBatch{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch counts"})
		return
	}
	scheduleCounts, err := countByStatus(&schedules.DuesSchedule{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load schedule counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members_by_status":   memberCounts,
		"batches_by_status":   batchCounts,
		"schedules_by_status": scheduleCounts,
	})
}

func countByStatus(model interface{}) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := database.DB.Model(model).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// RetryStats exposes the retry manager's failure statistics, optionally for
// a single operation id.
func RetryStats(c *gin.Context) {
	c.JSON(http.StatusOK, retry.Default.Stats(c.Query("operation")))
}

func BreakerStates(c *gin.Context) {
	c.JSON(http.StatusOK, retry.Default.BreakerStates())
}

func ResetBreaker(c *gin.Context) {
	operation := c.Param("operation")
	if !retry.Default.ResetBreaker(operation) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown operation", "operation": operation})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": operation, "state": "closed"})
}

// ValidateSEPAConfig checks the creditor settings batches depend on, without
// touching any batch.
func ValidateSEPAConfig(c *gin.Context) {
	var problems []string

	if config.COMPANY_IBAN == "" {
		problems = append(problems, "COMPANY_IBAN is not set")
	} else if err := sepa.ValidateIBAN(config.COMPANY_IBAN); err != nil {
		problems = append(problems, "COMPANY_IBAN is invalid: "+err.Error())
	}

	if config.CREDITOR_ID == "" {
		problems = append(problems, "CREDITOR_ID (incassant ID) is not set")
	}
	if config.COMPANY_ACCOUNT_HOLDER == "" && config.COMPANY_NAME == "" {
		problems = append(problems, "COMPANY_ACCOUNT_HOLDER or COMPANY_NAME must be set")
	}

	bic := config.COMPANY_BIC
	if bic == "" && config.COMPANY_IBAN != "" {
		bic = sepa.DeriveBIC(config.COMPANY_IBAN)
		if bic == "" {
			problems = append(problems, "COMPANY_BIC is not set and could not be derived from the IBAN")
		}
	}

	if len(problems) > 0 {
		c.JSON(http.StatusOK, gin.H{"valid": false, "problems": problems})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"iban":  sepa.FormatIBAN(config.COMPANY_IBAN),
		"bic":   bic,
	})
}
