package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
)

// HTTP 处理器
// 负责结算引擎的运维与交易入口
type EngineHandler struct {
	engineService *application.EngineAppService
}

func NewEngineHandler(engineService *application.EngineAppService) *EngineHandler {
	return &EngineHandler{
		engineService: engineService,
	}
}

// 注册路由
func (h *EngineHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/engine")
	{
		api.POST("/accounts", h.CreateAccount)
		api.GET("/accounts/:id", h.GetAccount)
		api.GET("/accounts/:id/effects", h.GetEffects)
		api.POST("/accounts/:id/deposit", h.Deposit)
		api.POST("/accounts/:id/withdraw", h.Withdraw)
		api.POST("/accounts/:id/bonus", h.AddBonus)
		api.DELETE("/accounts/:id/bonus", h.RemoveBonus)
		api.POST("/accounts/:id/status", h.SetAccountStatus)
		api.POST("/accounts/:id/policies", h.UpdatePolicies)
		api.POST("/accounts/:id/prices", h.UpdatePrices)
		api.POST("/accounts/:id/positions", h.OpenPosition)
		api.POST("/accounts/:id/positions/:pid/close", h.ClosePosition)
		api.POST("/accounts/:id/positions/:pid/cancel", h.CancelPending)
		api.PUT("/accounts/:id/positions/:pid/stop-loss", h.UpdateStopLoss)
		api.PUT("/accounts/:id/positions/:pid/take-profit", h.UpdateTakeProfit)
	}
}

// writeResult 校验拒绝映射为 422，不变量破坏映射为 500。
func (h *EngineHandler) writeResult(c *gin.Context, res domain.Result, err error) {
	if err == nil {
		response.Success(c, gin.H{
			"account": res.State.Account,
			"effects": res.Effects,
		})
		return
	}
	var rej *application.RejectionError
	if errors.As(err, &rej) {
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, string(rej.Rejection.Code), rej.Rejection.Message)
		return
	}
	if errors.Is(err, application.ErrAccountNotFound) {
		response.ErrorWithStatus(c, http.StatusNotFound, "account not found", "")
		return
	}
	logging.Error(c.Request.Context(), "Failed to apply event", "error", err)
	response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
}

func optDec(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

type createAccountRequest struct {
	AccountID    string               `json:"account_id" binding:"required"`
	Balance      decimal.Decimal      `json:"balance"`
	MaxPositions int                  `json:"max_positions"`
	Markets      []marketRequest      `json:"markets" binding:"required"`
	Policy       *domain.Policy       `json:"policy"`
}

type marketRequest struct {
	MarketID    string            `json:"market_id" binding:"required"`
	Symbol      string            `json:"symbol" binding:"required"`
	AssetClass  domain.AssetClass `json:"asset_class" binding:"required"`
	MarkPrice   decimal.Decimal   `json:"mark_price"`
	MinSize     decimal.Decimal   `json:"min_size"`
	MaxSize     decimal.Decimal   `json:"max_size"`
	MaxLeverage decimal.Decimal   `json:"max_leverage"`
}

func (h *EngineHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	markets := make([]domain.MarketState, 0, len(req.Markets))
	for _, m := range req.Markets {
		markets = append(markets, domain.MarketState{
			MarketID:    m.MarketID,
			Symbol:      m.Symbol,
			AssetClass:  m.AssetClass,
			MarkPrice:   m.MarkPrice,
			MinSize:     m.MinSize,
			MaxSize:     m.MaxSize,
			MaxLeverage: m.MaxLeverage,
		})
	}

	state, err := h.engineService.CreateAccount(c.Request.Context(), application.CreateAccountCommand{
		AccountID:    req.AccountID,
		Balance:      req.Balance,
		MaxPositions: req.MaxPositions,
		Markets:      markets,
		Policy:       req.Policy,
	})
	if err != nil {
		if errors.Is(err, application.ErrAccountExists) {
			response.ErrorWithStatus(c, http.StatusConflict, "account already exists", "")
			return
		}
		logging.Error(c.Request.Context(), "Failed to create account", "account_id", req.AccountID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, state)
}

func (h *EngineHandler) GetAccount(c *gin.Context) {
	state, err := h.engineService.GetState(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, application.ErrAccountNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, "account not found", "")
			return
		}
		logging.Error(c.Request.Context(), "Failed to load account", "account_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, state)
}

func (h *EngineHandler) GetEffects(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", "")
		return
	}
	entries, err := h.engineService.ListEffects(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list effects", "account_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, entries)
}

type amountRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	AdminUserID string          `json:"admin_user_id"`
	Reason      string          `json:"reason"`
}

func (r amountRequest) adjustment() application.FundAdjustment {
	return application.FundAdjustment{AdminUserID: r.AdminUserID, Reason: r.Reason}
}

func (h *EngineHandler) Deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.Deposit(c.Request.Context(), c.Param("id"), req.Amount, req.adjustment())
	h.writeResult(c, res, err)
}

func (h *EngineHandler) Withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.Withdraw(c.Request.Context(), c.Param("id"), req.Amount, req.adjustment())
	h.writeResult(c, res, err)
}

func (h *EngineHandler) AddBonus(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.AddBonus(c.Request.Context(), c.Param("id"), req.Amount, req.adjustment())
	h.writeResult(c, res, err)
}

func (h *EngineHandler) RemoveBonus(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.RemoveBonus(c.Request.Context(), c.Param("id"), req.Amount, req.adjustment())
	h.writeResult(c, res, err)
}

type setStatusRequest struct {
	Status      domain.AccountStatus `json:"status" binding:"required"`
	AdminUserID string               `json:"admin_user_id" binding:"required"`
}

func (h *EngineHandler) SetAccountStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.SetAccountStatus(c.Request.Context(), c.Param("id"), req.Status, req.AdminUserID)
	h.writeResult(c, res, err)
}

type updatePoliciesRequest struct {
	Policy       *domain.Policy `json:"policy"`
	MaxPositions *int           `json:"max_positions"`
	AdminUserID  string         `json:"admin_user_id" binding:"required"`
	Reason       string         `json:"reason"`
}

func (h *EngineHandler) UpdatePolicies(c *gin.Context) {
	var req updatePoliciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	var policy domain.Policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	res, err := h.engineService.UpdatePolicies(c.Request.Context(), application.UpdatePoliciesCommand{
		AccountID:    c.Param("id"),
		Policy:       policy,
		MaxPositions: req.MaxPositions,
		AdminUserID:  req.AdminUserID,
		Reason:       req.Reason,
	})
	h.writeResult(c, res, err)
}

type updatePricesRequest struct {
	Updates []struct {
		MarketID string          `json:"market_id" binding:"required"`
		Price    decimal.Decimal `json:"price"`
	} `json:"updates" binding:"required"`
}

func (h *EngineHandler) UpdatePrices(c *gin.Context) {
	var req updatePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	updates := make([]domain.PriceUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, domain.PriceUpdate{MarketID: u.MarketID, Price: u.Price})
	}
	res, err := h.engineService.UpdatePrices(c.Request.Context(), c.Param("id"), updates)
	h.writeResult(c, res, err)
}

type openPositionRequest struct {
	PositionID     string           `json:"position_id"`
	MarketID       string           `json:"market_id" binding:"required"`
	Side           domain.Side      `json:"side" binding:"required"`
	Size           decimal.Decimal  `json:"size"`
	Leverage       decimal.Decimal  `json:"leverage"`
	OrderType      domain.OrderType `json:"order_type"`
	ExecutionPrice decimal.Decimal  `json:"execution_price"`
	StopLoss       *decimal.Decimal `json:"stop_loss"`
	TakeProfit     *decimal.Decimal `json:"take_profit"`
	Commission     *decimal.Decimal `json:"commission"`
}

func (h *EngineHandler) OpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.OpenPosition(c.Request.Context(), application.OpenPositionCommand{
		AccountID:      c.Param("id"),
		PositionID:     req.PositionID,
		MarketID:       req.MarketID,
		Side:           req.Side,
		Size:           req.Size,
		Leverage:       req.Leverage,
		OrderType:      req.OrderType,
		ExecutionPrice: req.ExecutionPrice,
		StopLoss:       optDec(req.StopLoss),
		TakeProfit:     optDec(req.TakeProfit),
		Commission:     optDec(req.Commission),
	})
	h.writeResult(c, res, err)
}

type closePositionRequest struct {
	ClosePrice   decimal.Decimal `json:"close_price"`
	ClosedBy     string          `json:"closed_by"`
	AdminUserID  string          `json:"admin_user_id"`
	AdminComment string          `json:"admin_comment"`
}

func (h *EngineHandler) ClosePosition(c *gin.Context) {
	var req closePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.ClosePosition(c.Request.Context(), application.ClosePositionCommand{
		AccountID:    c.Param("id"),
		PositionID:   c.Param("pid"),
		ClosePrice:   req.ClosePrice,
		ClosedBy:     domain.CloseReason(req.ClosedBy),
		AdminUserID:  req.AdminUserID,
		AdminComment: req.AdminComment,
	})
	h.writeResult(c, res, err)
}

func (h *EngineHandler) CancelPending(c *gin.Context) {
	res, err := h.engineService.CancelPending(c.Request.Context(), c.Param("id"), c.Param("pid"))
	h.writeResult(c, res, err)
}

type stopOrderRequest struct {
	Value *decimal.Decimal `json:"value"`
}

func (h *EngineHandler) UpdateStopLoss(c *gin.Context) {
	var req stopOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.UpdateStopLoss(c.Request.Context(), c.Param("id"), c.Param("pid"), optDec(req.Value))
	h.writeResult(c, res, err)
}

func (h *EngineHandler) UpdateTakeProfit(c *gin.Context) {
	var req stopOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	res, err := h.engineService.UpdateTakeProfit(c.Request.Context(), c.Param("id"), c.Param("pid"), optDec(req.Value))
	h.writeResult(c, res, err)
}
