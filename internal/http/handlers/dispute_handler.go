package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(s *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: s}
}

// RaiseDispute POST /contracts/:id/disputes
func (h *DisputeHandler) RaiseDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason      string `json:"reason" binding:"required"`
		Description string `json:"description" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.Raise(c.Request.Context(), service.RaiseDisputeInput{
		ContractID:  contractID,
		RaisedBy:    userID,
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.GetDispute(c.Request.Context(), id, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ListDisputes GET /disputes — свои споры, админ видит все.
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	limit, offset := common.GetPagination(c)
	status := c.Query("status")

	disputes, err := h.svc.ListDisputes(c.Request.Context(), userID, role, status, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, disputes)
}

// ReviewDispute POST /admin/disputes/:id/review — взять спор в работу.
func (h *DisputeHandler) ReviewDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.Review(c.Request.Context(), id, adminID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ResolveDispute POST /admin/disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Type   string           `json:"type" binding:"required"`
		Amount *decimal.Decimal `json:"amount"`
		Notes  string           `json:"notes"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	input := service.ResolveDisputeInput{Type: req.Type, Notes: req.Notes}
	if req.Amount != nil {
		input.Amount = decimal.NewNullDecimal(*req.Amount)
	}

	dispute, err := h.svc.Resolve(c.Request.Context(), id, adminID, input)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// CloseDispute POST /admin/disputes/:id/close
func (h *DisputeHandler) CloseDispute(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.Close(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
