package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memewars/internal/service"
)

type ProtocolHandler struct {
	Service *service.BattleService
}

func (h *ProtocolHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/protocol", h.get)
	g.POST("/protocol/init", h.init)
	g.PUT("/protocol", h.update)
	g.POST("/accounts/:user/credit", h.credit)
	g.GET("/me/account", h.account)
	g.POST("/yield/retry", h.retryForwards)
}

// @Summary Protocol configuration and totals
// @Tags protocol
// @Produce json
// @Success 200 {object} protocolView
// @Router /api/v1/protocol [get]
func (h *ProtocolHandler) get(c *gin.Context) {
	p, err := h.Service.GetProtocol(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toProtocolView(*p), nil)
}

type initProtocolRequest struct {
	Treasury string `json:"treasury"`
}

// @Summary Initialize the protocol with the caller as authority
// @Tags protocol
// @Accept json
// @Produce json
// @Param body body initProtocolRequest false "treasury"
// @Success 200 {object} protocolView
// @Router /api/v1/protocol/init [post]
func (h *ProtocolHandler) init(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req initProtocolRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	p, err := h.Service.InitProtocol(c.Request.Context(), user, req.Treasury)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toProtocolView(*p), nil)
}

type updateProtocolRequest struct {
	Authority  *string `json:"authority"`
	Treasury   *string `json:"treasury"`
	ForwardBps *uint64 `json:"forward_bps"`
}

// @Summary Update protocol authority, treasury or forward share
// @Tags protocol
// @Accept json
// @Produce json
// @Param body body updateProtocolRequest true "fields to change"
// @Success 200 {object} protocolView
// @Router /api/v1/protocol [put]
func (h *ProtocolHandler) update(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req updateProtocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	p, err := h.Service.UpdateProtocol(c.Request.Context(), user, service.UpdateProtocolInput{
		Authority:  req.Authority,
		Treasury:   req.Treasury,
		ForwardBps: req.ForwardBps,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toProtocolView(*p), nil)
}

type creditRequest struct {
	Amount uint64 `json:"amount"`
}

// @Summary Credit a user account
// @Tags accounts
// @Accept json
// @Produce json
// @Param user path string true "user id"
// @Param body body creditRequest true "amount"
// @Success 200 {object} map[string]any
// @Router /api/v1/accounts/{user}/credit [post]
func (h *ProtocolHandler) credit(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	acct, err := h.Service.CreditAccount(c.Request.Context(), user, strings.TrimSpace(c.Param("user")), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{"user_id": acct.UserID, "balance": acct.Balance}, nil)
}

// @Summary Caller balance and recent ledger entries
// @Tags accounts
// @Produce json
// @Param limit query int false "ledger entries"
// @Success 200 {object} map[string]any
// @Router /api/v1/me/account [get]
func (h *ProtocolHandler) account(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	view, err := h.Service.GetAccount(c.Request.Context(), user, intQuery(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	ledger := make([]ledgerView, 0, len(view.Ledger))
	for _, e := range view.Ledger {
		ledger = append(ledger, toLedgerView(e))
	}
	Ok(c, gin.H{
		"user_id": view.Account.UserID,
		"balance": view.Account.Balance,
		"ledger":  ledger,
	}, nil)
}

// @Summary Replay pending yield forwards now
// @Tags protocol
// @Produce json
// @Param limit query int false "batch size"
// @Success 200 {object} map[string]int
// @Router /api/v1/yield/retry [post]
func (h *ProtocolHandler) retryForwards(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	if err := h.Service.Authorize(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	n, err := h.Service.RetryYieldForwards(c.Request.Context(), intQuery(c, "limit", 0))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{"delegated": n}, nil)
}
