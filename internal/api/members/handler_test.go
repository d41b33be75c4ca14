package members

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"membership-app/database"
	"membership-app/internal/domain/members"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&members.Member{}, &members.IBANHistory{}))
	database.DB = db

	r := gin.New()
	r.GET("/members", ListMembers)
	r.POST("/members", CreateMember)
	r.GET("/members/:id", GetMember)
	r.PUT("/members/:id/status", UpdateMemberStatus)
	r.PUT("/members/:id/bank-details", UpdateBankDetails)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateMemberStartsPending(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/members", gin.H{
		"full_name": "Jan Jansen",
		"email":     "jan@example.org",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var member members.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, members.StatusPending, member.Status)
	assert.Equal(t, "NL", member.Country)
}

func TestCreateMemberRejectsBadIBAN(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/members", gin.H{
		"full_name":           "Jan Jansen",
		"email":               "jan@example.org",
		"payment_method":      "SEPA Direct Debit",
		"iban":                "NL91ABNA0417164301", // bad checksum
		"bank_account_holder": "J. Jansen",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "checksum")
}

func TestCreateMemberDerivesBICAndRecordsHistory(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/members", gin.H{
		"full_name":           "Jan Jansen",
		"email":               "jan@example.org",
		"payment_method":      "SEPA Direct Debit",
		"iban":                "nl91 abna 0417 1643 00",
		"bank_account_holder": "J. Jansen",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var member members.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, "NL91ABNA0417164300", member.IBAN)
	assert.Equal(t, "ABNANL2A", member.BIC)

	var history []members.IBANHistory
	require.NoError(t, database.DB.Where("member_id = ?", member.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsActive)
}

func TestStatusTransitions(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/members", gin.H{
		"full_name": "Jan Jansen",
		"email":     "jan@example.org",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var member members.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))

	// Pending -> Suspended is not allowed
	w = doJSON(t, r, http.MethodPut, "/members/1/status", gin.H{"status": members.StatusSuspended})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Pending -> Active -> Suspended -> Active -> Terminated
	for _, status := range []string{
		members.StatusActive,
		members.StatusSuspended,
		members.StatusActive,
		members.StatusTerminated,
	} {
		w = doJSON(t, r, http.MethodPut, "/members/1/status", gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code, status)
	}

	// Terminated is final
	w = doJSON(t, r, http.MethodPut, "/members/1/status", gin.H{"status": members.StatusActive})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateBankDetailsRollsHistory(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/members", gin.H{
		"full_name":           "Jan Jansen",
		"email":               "jan@example.org",
		"payment_method":      "SEPA Direct Debit",
		"iban":                "NL91ABNA0417164300",
		"bank_account_holder": "J. Jansen",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPut, "/members/1/bank-details", gin.H{
		"iban": "NL39RABO0300065264",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var member members.Member
	require.NoError(t, database.DB.First(&member, 1).Error)
	assert.Equal(t, "NL39RABO0300065264", member.IBAN)
	assert.Equal(t, "RABONL2U", member.BIC)

	var history []members.IBANHistory
	require.NoError(t, database.DB.Where("member_id = ?", 1).Order("id ASC").Find(&history).Error)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	require.NotNil(t, history[0].ToDate)
	assert.True(t, history[1].IsActive)
	assert.Equal(t, "NL39RABO0300065264", history[1].IBAN)
}

func TestListMembersFiltersByStatus(t *testing.T) {
	r := setupRouter(t)

	for _, m := range []members.Member{
		{FullName: "A", Email: "a@example.org", Status: members.StatusActive},
		{FullName: "B", Email: "b@example.org", Status: members.StatusPending},
	} {
		require.NoError(t, database.DB.Create(&m).Error)
	}

	w := doJSON(t, r, http.MethodGet, "/members?status=Active", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []members.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].FullName)
}
