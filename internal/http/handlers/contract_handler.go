package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type ContractHandler struct {
	contracts   *service.ContractService
	negotiation *service.NegotiationService
	escrow      *service.EscrowService
	reviews     *service.ReviewService
}

func NewContractHandler(
	contracts *service.ContractService,
	negotiation *service.NegotiationService,
	escrow *service.EscrowService,
	reviews *service.ReviewService,
) *ContractHandler {
	return &ContractHandler{
		contracts:   contracts,
		negotiation: negotiation,
		escrow:      escrow,
		reviews:     reviews,
	}
}

type milestoneRequest struct {
	Description string          `json:"description" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

type createContractRequest struct {
	FreelancerID      uuid.UUID          `json:"freelancer_id" binding:"required"`
	ClientWallet      string             `json:"client_wallet" binding:"required"`
	FreelancerWallet  string             `json:"freelancer_wallet" binding:"required"`
	ScopeOfWork       string             `json:"scope_of_work" binding:"required"`
	Deliverables      []string           `json:"deliverables"`
	TerminationPolicy string             `json:"termination_policy"`
	Confidentiality   bool               `json:"confidentiality"`
	OwnershipTransfer string             `json:"ownership_transfer"`
	AllowedRevisions  int                `json:"allowed_revisions"`
	Milestones        []milestoneRequest `json:"milestones" binding:"required"`
}

// CreateContract POST /contracts
func (h *ContractHandler) CreateContract(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req createContractRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	input := service.CreateContractInput{
		ClientID:          userID,
		ClientWallet:      req.ClientWallet,
		FreelancerID:      req.FreelancerID,
		FreelancerWallet:  req.FreelancerWallet,
		ScopeOfWork:       req.ScopeOfWork,
		Deliverables:      req.Deliverables,
		TerminationPolicy: req.TerminationPolicy,
		Confidentiality:   req.Confidentiality,
		OwnershipTransfer: req.OwnershipTransfer,
		AllowedRevisions:  req.AllowedRevisions,
		Milestones:        toMilestoneInputs(req.Milestones),
	}

	contract, err := h.contracts.CreateContract(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// GetContract GET /contracts/:id
func (h *ContractHandler) GetContract(c *gin.Context) {
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

	contract, err := h.contracts.GetContract(c.Request.Context(), id, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// ListContracts GET /contracts
func (h *ContractHandler) ListContracts(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	contracts, err := h.contracts.ListUserContracts(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contracts)
}

// Accept POST /contracts/:id/accept — фрилансер принимает условия.
func (h *ContractHandler) Accept(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	contract, err := h.negotiation.Accept(c.Request.Context(), id, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Reject POST /contracts/:id/reject
func (h *ContractHandler) Reject(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	contract, err := h.negotiation.Reject(c.Request.Context(), id, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// RequestRevision POST /contracts/:id/request-revision
func (h *ContractHandler) RequestRevision(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req struct {
		Feedback string `json:"feedback" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.negotiation.RequestRevision(c.Request.Context(), id, userID, req.Feedback)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

type editTermsRequest struct {
	ScopeOfWork       string             `json:"scope_of_work" binding:"required"`
	Deliverables      []string           `json:"deliverables"`
	TerminationPolicy string             `json:"termination_policy"`
	Confidentiality   bool               `json:"confidentiality"`
	OwnershipTransfer string             `json:"ownership_transfer"`
	AllowedRevisions  int                `json:"allowed_revisions"`
	Milestones        []milestoneRequest `json:"milestones" binding:"required"`
}

// EditTerms PUT /contracts/:id/terms — клиент правит условия до принятия.
func (h *ContractHandler) EditTerms(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req editTermsRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.negotiation.EditTerms(c.Request.Context(), id, userID, service.EditTermsInput{
		ScopeOfWork:       req.ScopeOfWork,
		Deliverables:      req.Deliverables,
		TerminationPolicy: req.TerminationPolicy,
		Confidentiality:   req.Confidentiality,
		OwnershipTransfer: req.OwnershipTransfer,
		AllowedRevisions:  req.AllowedRevisions,
		Milestones:        toMilestoneInputs(req.Milestones),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Publish POST /contracts/:id/publish — регистрация контракта on-chain.
func (h *ContractHandler) Publish(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req struct {
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.escrow.Publish(c.Request.Context(), id, userID, req.Wallet)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

type chainActionRequest struct {
	Wallet  string `json:"wallet" binding:"required"`
	ChainID int64  `json:"chain_id" binding:"required"`
}

// Fund POST /contracts/:id/fund — депозит полной суммы в escrow.
func (h *ContractHandler) Fund(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req chainActionRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.escrow.Fund(c.Request.Context(), id, userID, req.Wallet, req.ChainID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// ReleaseMilestone POST /contracts/:id/milestones/:index/release
func (h *ContractHandler) ReleaseMilestone(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	idx, err := parseMilestoneIndex(c)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req chainActionRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.escrow.Release(c.Request.Context(), id, idx, userID, req.Wallet, req.ChainID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Sync POST /contracts/:id/sync — принудительная сверка с блокчейном.
func (h *ContractHandler) Sync(c *gin.Context) {
	_, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	contract, err := h.escrow.Sync(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// SubmitReview POST /contracts/:id/reviews
func (h *ContractHandler) SubmitReview(c *gin.Context) {
	userID, id, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req struct {
		Rating  int     `json:"rating" binding:"required"`
		Comment *string `json:"comment"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.reviews.SubmitReview(c.Request.Context(), id, userID, req.Rating, req.Comment)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (h *ContractHandler) authAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func parseMilestoneIndex(c *gin.Context) (int, error) {
	raw := c.Param("index")
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("некорректный индекс этапа: %s", raw)
	}
	return idx, nil
}

func toMilestoneInputs(reqs []milestoneRequest) []service.MilestoneInput {
	inputs := make([]service.MilestoneInput, 0, len(reqs))
	for _, m := range reqs {
		inputs = append(inputs, service.MilestoneInput{
			Description: m.Description,
			Amount:      m.Amount,
		})
	}
	return inputs
}
