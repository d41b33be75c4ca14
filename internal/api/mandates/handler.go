package mandates

import (
	"fmt"
	"net/http"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/members"
	"membership-app/internal/infra/sepa"

	"github.com/gin-gonic/gin"
)

func ListMemberMandates(c *gin.Context) {
	var list []mandates.SEPAMandate
	if err := database.DB.
		Where("member_id = ?", c.Param("id")).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load mandates"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateMandate creates and activates a mandate for a member. A member can
// hold only one active mandate; creating a new one requires cancelling the
// current one first.
func CreateMandate(c *gin.Context) {
	var input struct {
		IBAN              string `json:"iban"`
		BIC               string `json:"bic"`
		AccountHolderName string `json:"account_holder_name"`
		MandateType       string `json:"mandate_type"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var member members.Member
	if err := database.DB.First(&member, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	var activeCount int64
	database.DB.Model(&mandates.SEPAMandate{}).
		Where("member_id = ? AND status = ?", member.ID, mandates.StatusActive).
		Count(&activeCount)
	if activeCount > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Member already has an active mandate"})
		return
	}

	iban := input.IBAN
	if iban == "" {
		iban = member.IBAN
	}
	if iban == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "IBAN is required"})
		return
	}
	if err := sepa.ValidateIBAN(iban); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	iban = sepa.NormalizeIBAN(iban)

	bic := input.BIC
	if bic == "" {
		bic = sepa.DeriveBIC(iban)
	}

	holder := input.AccountHolderName
	if holder == "" {
		holder = member.BankAccountHolder
	}
	if holder == "" {
		holder = member.FullName
	}

	mandateType := input.MandateType
	if mandateType == "" {
		mandateType = mandates.TypeRecurring
	}

	now := time.Now()
	mandate := mandates.SEPAMandate{
		MemberID:           member.ID,
		MandateID:          generateMandateReference(member.ID, now),
		IBAN:               iban,
		BIC:                bic,
		AccountHolderName:  holder,
		Status:             mandates.StatusActive,
		MandateType:        mandateType,
		SignDate:           &now,
		UsedForMemberships: true,
		Notes:              fmt.Sprintf("Created for member %d on %s", member.ID, now.Format("2006-01-02")),
	}

	if err := database.DB.Create(&mandate).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create mandate"})
		return
	}

	c.JSON(http.StatusCreated, mandate)
}

// generateMandateReference builds M-<member>-<date>-<seq>, unique per day.
func generateMandateReference(memberID uint, now time.Time) string {
	dateStr := now.Format("20060102")
	prefix := fmt.Sprintf("M-%d-%s", memberID, dateStr)

	var count int64
	database.DB.Model(&mandates.SEPAMandate{}).
		Where("mandate_id LIKE ?", prefix+"%").
		Count(&count)

	return fmt.Sprintf("%s-%03d", prefix, count+1)
}

func CancelMandate(c *gin.Context) {
	var mandate mandates.SEPAMandate
	if err := database.DB.First(&mandate, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mandate not found"})
		return
	}

	if mandate.Status != mandates.StatusActive && mandate.Status != mandates.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Mandate is not active", "status": mandate.Status})
		return
	}

	if err := database.DB.Model(&mandate).Update("status", mandates.StatusCancelled).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel mandate"})
		return
	}

	mandate.Status = mandates.StatusCancelled
	c.JSON(http.StatusOK, mandate)
}

// SequencePreview reports which sequence type the next collection on this
// mandate would get, with lifecycle warnings.
func SequencePreview(c *gin.Context) {
	var mandate mandates.SEPAMandate
	if err := database.DB.First(&mandate, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mandate not found"})
		return
	}

	var usage []mandates.MandateUsage
	if err := database.DB.
		Where("mandate_id = ?", mandate.ID).
		Order("usage_date ASC").
		Find(&usage).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage history"})
		return
	}

	records := make([]sepa.UsageRecord, 0, len(usage))
	for _, u := range usage {
		records = append(records, sepa.UsageRecord{
			UsageDate:        u.UsageDate,
			SequenceType:     sepa.SequenceType(u.SequenceType),
			Amount:           u.Amount,
			InvoiceReference: u.InvoiceReference,
			Status:           u.Status,
		})
	}

	resolution := sepa.DetermineSequenceType(sepa.MandateInfo{
		MandateID:   mandate.MandateID,
		Status:      mandate.Status,
		MandateType: mandate.MandateType,
		SignDate:    mandate.SignDate,
		ExpiryDate:  mandate.ExpiryDate,
	}, records, nil)

	c.JSON(http.StatusOK, resolution)
}

func ListMandateUsage(c *gin.Context) {
	var usage []mandates.MandateUsage
	if err := database.DB.
		Where("mandate_id = ?", c.Param("id")).
		Order("usage_date ASC").
		Find(&usage).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage history"})
		return
	}
	c.JSON(http.StatusOK, usage)
}
