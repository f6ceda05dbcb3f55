package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
)

func TestContractHandler_CreateContract_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ContractHandler{}
	r.POST("/contracts", handler.CreateContract)

	req, _ := http.NewRequest("POST", "/contracts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestContractHandler_GetContract_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ContractHandler{}
	r.GET("/contracts/:id", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.GetContract(c)
	})

	req, _ := http.NewRequest("GET", "/contracts/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContractHandler_Fund_MissingBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ContractHandler{}
	r.POST("/contracts/:id/fund", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.Fund(c)
	})

	req, _ := http.NewRequest("POST", "/contracts/"+uuid.NewString()+"/fund", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContractHandler_ReleaseMilestone_InvalidIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ContractHandler{}
	r.POST("/contracts/:id/milestones/:index/release", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.ReleaseMilestone(c)
	})

	body := strings.NewReader(`{"wallet":"0xabc","chain_id":11155111}`)
	req, _ := http.NewRequest("POST", "/contracts/"+uuid.NewString()+"/milestones/first/release", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
