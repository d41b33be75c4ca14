package members

import (
	"net/http"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/members"

	"github.com/gin-gonic/gin"
)

func ListMembers(c *gin.Context) {
	var list []members.Member
	query := database.DB.Order("created_at DESC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load members"})
		return
	}

	c.JSON(http.StatusOK, list)
}

func GetMember(c *gin.Context) {
	var member members.Member
	if err := database.DB.First(&member, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}
	c.JSON(http.StatusOK, member)
}

func CreateMember(c *gin.Context) {
	var input struct {
		FullName          string   `json:"full_name" binding:"required"`
		Email             string   `json:"email" binding:"required,email"`
		Tel               string   `json:"tel"`
		PaymentMethod     string   `json:"payment_method"`
		IBAN              string   `json:"iban"`
		BIC               string   `json:"bic"`
		BankAccountHolder string   `json:"bank_account_holder"`
		FeeOverride       *float64 `json:"fee_override"`
		AddressLine1      string   `json:"address_line_1"`
		AddressLine2      string   `json:"address_line_2"`
		PostalCode        string   `json:"postal_code"`
		City              string   `json:"city"`
		Country           string   `json:"country"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member := members.Member{
		FullName:          input.FullName,
		Email:             input.Email,
		Tel:               input.Tel,
		Status:            members.StatusPending,
		PaymentMethod:     input.PaymentMethod,
		IBAN:              input.IBAN,
		BIC:               input.BIC,
		BankAccountHolder: input.BankAccountHolder,
		FeeOverride:       input.FeeOverride,
		AddressLine1:      input.AddressLine1,
		AddressLine2:      input.AddressLine2,
		PostalCode:        input.PostalCode,
		City:              input.City,
		Country:           input.Country,
	}
	if member.Country == "" {
		member.Country = "NL"
	}

	if err := database.DB.Create(&member).Error; err != nil {
		// BeforeSave rejects malformed IBANs with a descriptive message
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if member.IBAN != "" {
		history := members.IBANHistory{
			MemberID: member.ID,
			IBAN:     member.IBAN,
			BIC:      member.BIC,
			FromDate: time.Now(),
			IsActive: true,
		}
		if err := database.DB.Create(&history).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record IBAN history"})
			return
		}
	}

	c.JSON(http.StatusCreated, member)
}

// Allowed status transitions: Pending -> Active, Active <-> Suspended,
// any -> Terminated. Terminated is final.
var statusTransitions = map[string][]string{
	members.StatusPending:   {members.StatusActive, members.StatusTerminated},
	members.StatusActive:    {members.StatusSuspended, members.StatusTerminated},
	members.StatusSuspended: {members.StatusActive, members.StatusTerminated},
}

func UpdateMemberStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
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

	allowed := false
	for _, next := range statusTransitions[member.Status] {
		if next == input.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid status transition", "from": member.Status, "to": input.Status})
		return
	}

	if err := database.DB.Model(&member).Update("status", input.Status).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	member.Status = input.Status
	c.JSON(http.StatusOK, member)
}

// UpdateBankDetails replaces the member's IBAN and closes the previous
// IBAN history row.
func UpdateBankDetails(c *gin.Context) {
	var input struct {
		IBAN              string `json:"iban" binding:"required"`
		BIC               string `json:"bic"`
		BankAccountHolder string `json:"bank_account_holder"`
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

	oldIBAN := member.IBAN
	member.IBAN = input.IBAN
	member.BIC = input.BIC
	if input.BankAccountHolder != "" {
		member.BankAccountHolder = input.BankAccountHolder
	}

	if err := database.DB.Save(&member).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if oldIBAN != member.IBAN {
		now := time.Now()
		database.DB.Model(&members.IBANHistory{}).
			Where("member_id = ? AND is_active = ?", member.ID, true).
			Updates(map[string]interface{}{"is_active": false, "to_date": now})

		history := members.IBANHistory{
			MemberID: member.ID,
			IBAN:     member.IBAN,
			BIC:      member.BIC,
			FromDate: now,
			IsActive: true,
		}
		if err := database.DB.Create(&history).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record IBAN history"})
			return
		}
	}

	c.JSON(http.StatusOK, member)
}
