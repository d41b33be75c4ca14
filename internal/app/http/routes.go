package routes

import (
	adminapi "membership-app/internal/api/admin"
	authapi "membership-app/internal/api/auth"
	batchapi "membership-app/internal/api/batches"
	mandateapi "membership-app/internal/api/mandates"
	memberapi "membership-app/internal/api/members"
	"membership-app/internal/api/reports"
	scheduleapi "membership-app/internal/api/schedules"
	"membership-app/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ✅ Apply input sanitization to public routes only
	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/register", authapi.Register)
	public.POST("/login", authapi.Login)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware())
	auth.POST("/change-password", authapi.ChangePassword)

	auth.GET("/members", memberapi.ListMembers)
	auth.POST("/members", memberapi.CreateMember)
	auth.GET("/members/:id", memberapi.GetMember)
	auth.PUT("/members/:id/status", memberapi.UpdateMemberStatus)
	auth.PUT("/members/:id/bank-details", memberapi.UpdateBankDetails)

	auth.GET("/members/:id/mandates", mandateapi.ListMemberMandates)
	auth.POST("/members/:id/mandates", mandateapi.CreateMandate)
	auth.POST("/mandates/:id/cancel", mandateapi.CancelMandate)
	auth.GET("/mandates/:id/sequence-preview", mandateapi.SequencePreview)
	auth.GET("/mandates/:id/usage", mandateapi.ListMandateUsage)

	auth.GET("/schedules", scheduleapi.ListSchedules)
	auth.POST("/schedules", scheduleapi.CreateSchedule)
	auth.GET("/schedules/:id", scheduleapi.GetSchedule)
	auth.PUT("/schedules/:id/status", scheduleapi.UpdateScheduleStatus)

	auth.GET("/batches", batchapi.ListBatches)
	auth.POST("/batches", batchapi.CreateBatch)
	auth.GET("/batches/collectable-invoices", batchapi.ListCollectableInvoices)
	auth.GET("/batches/upcoming-collections", batchapi.UpcomingCollections)
	auth.GET("/batches/:id", batchapi.GetBatch)
	auth.POST("/batches/:id/validate", batchapi.ValidateBatch)
	auth.POST("/batches/:id/generate-xml", batchapi.GenerateBatchXML)
	auth.GET("/batches/:id/xml", batchapi.DownloadBatchXML)
	auth.POST("/batches/:id/submit", batchapi.SubmitBatch)
	auth.POST("/batches/:id/mark-paid", batchapi.MarkInvoicesPaid)
	auth.POST("/batches/:id/returns", batchapi.ProcessReturns)
	auth.POST("/batches/:id/cancel", batchapi.CancelBatch)

	auth.GET("/reports/settlements", reports.ListSettlements)
	auth.GET("/reports/settlements/next", reports.NextSettlement)
	auth.GET("/reports/settlements/:id", reports.GetSettlement)
	auth.GET("/reports/balances", reports.ListBalances)
	auth.GET("/reports/balances/:id", reports.GetBalance)
	auth.GET("/reports/chargebacks", reports.ListChargebacks)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole("admin"))
	admin.GET("/dashboard", adminapi.Dashboard)
	// External-scheduler entry point for the automated run
	admin.POST("/collection-run", batchapi.RunCollection)
	admin.GET("/retry-stats", adminapi.RetryStats)
	admin.GET("/circuit-breakers", adminapi.BreakerStates)
	admin.POST("/circuit-breakers/:operation/reset", adminapi.ResetBreaker)
	admin.GET("/sepa-config", adminapi.ValidateSEPAConfig)
}
