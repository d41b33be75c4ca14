package schedules

import (
	"net/http"
	"time"

	"membership-app/database"
	"membership-app/internal/domain/members"
	"membership-app/internal/domain/schedules"

	"github.com/gin-gonic/gin"
)

func ListSchedules(c *gin.Context) {
	var list []schedules.DuesSchedule
	query := database.DB.Order("next_invoice_date ASC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if memberID := c.Query("member_id"); memberID != "" {
		query = query.Where("member_id = ?", memberID)
	}

	if err := query.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load schedules"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func GetSchedule(c *gin.Context) {
	var schedule schedules.DuesSchedule
	if err := database.DB.First(&schedule, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func CreateSchedule(c *gin.Context) {
	var input struct {
		MemberID         uint    `json:"member_id" binding:"required"`
		MembershipType   string  `json:"membership_type" binding:"required"`
		Amount           float64 `json:"amount" binding:"required"`
		BillingFrequency string  `json:"billing_frequency" binding:"required"`
		AutoCollect      *bool   `json:"auto_collect"`
		PaymentMethod    string  `json:"payment_method"`
		CoverageStart    string  `json:"coverage_start" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch input.BillingFrequency {
	case "Monthly", "Quarterly", "Annual":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "billing_frequency must be Monthly, Quarterly or Annual"})
		return
	}

	coverageStart, err := time.Parse("2006-01-02", input.CoverageStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coverage_start must be YYYY-MM-DD"})
		return
	}

	var member members.Member
	if err := database.DB.First(&member, "id = ?", input.MemberID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	months := 1
	switch input.BillingFrequency {
	case "Quarterly":
		months = 3
	case "Annual":
		months = 12
	}

	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = member.PaymentMethod
	}

	autoCollect := true
	if input.AutoCollect != nil {
		autoCollect = *input.AutoCollect
	}

	schedule := schedules.DuesSchedule{
		MemberID:         member.ID,
		MembershipType:   input.MembershipType,
		Amount:           input.Amount,
		BillingFrequency: input.BillingFrequency,
		Status:           schedules.StatusActive,
		AutoCollect:      autoCollect,
		PaymentMethod:    paymentMethod,
		NextInvoiceDate:  coverageStart,
		CoverageStart:    coverageStart,
		CoverageEnd:      coverageStart.AddDate(0, months, -1),
		NextSequenceType: "FRST",
	}

	if err := database.DB.Create(&schedule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create schedule"})
		return
	}

	c.JSON(http.StatusCreated, schedule)
}

// UpdateScheduleStatus moves a schedule between Active, Suspended and
// Cancelled. Reactivating clears the failure counter and grace period.
func UpdateScheduleStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch input.Status {
	case schedules.StatusActive, schedules.StatusSuspended, schedules.StatusCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule status"})
		return
	}

	var schedule schedules.DuesSchedule
	if err := database.DB.First(&schedule, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}

	if schedule.Status == schedules.StatusCancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "Cancelled schedules cannot be changed"})
		return
	}

	updates := map[string]interface{}{"status": input.Status}
	if input.Status == schedules.StatusActive {
		updates["consecutive_failures"] = 0
		updates["grace_period_until"] = nil
	}

	if err := database.DB.Model(&schedule).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule"})
		return
	}

	schedule.Status = input.Status
	c.JSON(http.StatusOK, schedule)
}
