package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"memewars/internal/battle"
	"memewars/internal/repository"
	"memewars/internal/service"
)

type BattleHandler struct {
	Service *service.BattleService
}

func (h *BattleHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/battles")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.POST("/:id/deposit", h.deposit)
	g.POST("/:id/settle", h.settle)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/claim", h.claim)
	g.POST("/:id/withdraw", h.withdraw)
	g.GET("/:id/positions", h.positions)
	g.GET("/:id/positions/:user", h.position)
	r.GET("/api/v1/me/positions", h.myPositions)
}

type createBattleRequest struct {
	ID              uint64 `json:"id"`
	TokenA          string `json:"token_a"`
	TokenB          string `json:"token_b"`
	PriceFeedA      string `json:"price_feed_a"`
	PriceFeedB      string `json:"price_feed_b"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// @Summary Create battle
// @Tags battles
// @Accept json
// @Produce json
// @Param body body createBattleRequest true "battle"
// @Success 200 {object} battleView
// @Router /api/v1/battles [post]
func (h *BattleHandler) create(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req createBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	b, err := h.Service.CreateBattle(c.Request.Context(), user, service.CreateBattleInput{
		ID:         req.ID,
		TokenA:     req.TokenA,
		TokenB:     req.TokenB,
		PriceFeedA: req.PriceFeedA,
		PriceFeedB: req.PriceFeedB,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toBattleView(*b, nil), nil)
}

// @Summary List battles
// @Tags battles
// @Produce json
// @Param status query string false "ACTIVE|SETTLED|CANCELLED"
// @Param authority query string false "creator"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param order_by query string false "id|end_time|created_at"
// @Param asc query bool false "ascending"
// @Success 200 {array} battleView
// @Router /api/v1/battles [get]
func (h *BattleHandler) list(c *gin.Context) {
	params := repository.ListBattlesParams{
		Limit:     intQuery(c, "limit", 50),
		Offset:    intQuery(c, "offset", 0),
		Authority: stringQueryPtr(c, "authority"),
		OrderBy:   parseOrder(c.Query("order_by"), map[string]string{"id": "id", "end_time": "end_time", "created_at": "created_at"}),
		Asc:       boolQueryPtr(c, "asc"),
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		st, err := battle.ParseStatus(v)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		params.Status = &st
	}
	items, total, err := h.Service.ListBattles(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]battleView, 0, len(items))
	for _, b := range items {
		out = append(out, toBattleView(b, nil))
	}
	Ok(c, out, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get battle with its vaults
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Success 200 {object} battleView
// @Router /api/v1/battles/{id} [get]
func (h *BattleHandler) get(c *gin.Context) {
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	detail, err := h.Service.GetBattle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toBattleView(detail.Battle, detail.Vaults), nil)
}

type depositRequest struct {
	Team   string `json:"team"`
	Amount uint64 `json:"amount"`
	Vault  string `json:"vault"`
}

// @Summary Deposit into a team vault
// @Tags battles
// @Accept json
// @Produce json
// @Param id path int true "battle id"
// @Param body body depositRequest true "deposit"
// @Success 200 {object} map[string]any
// @Router /api/v1/battles/{id}/deposit [post]
func (h *BattleHandler) deposit(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	team, err := battle.ParseTeam(req.Team)
	if err != nil {
		fail(c, err)
		return
	}
	out, err := h.Service.Deposit(c.Request.Context(), service.DepositInput{
		UserID:   user,
		BattleID: id,
		Team:     team,
		Amount:   req.Amount,
		VaultRef: strings.TrimSpace(req.Vault),
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{
		"battle":   toBattleView(out.Battle, nil),
		"vault":    toVaultView(out.Vault),
		"position": toPositionView(out.Position),
		"forward":  toForwardView(out.Forward),
	}, nil)
}

// @Summary Settle an ended battle
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Success 200 {object} map[string]any
// @Router /api/v1/battles/{id}/settle [post]
func (h *BattleHandler) settle(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	out, err := h.Service.Settle(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{
		"battle":  toBattleView(out.Battle, nil),
		"outcome": toOutcomeView(out.Outcome),
	}, nil)
}

// @Summary Cancel an active battle
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Success 200 {object} battleView
// @Router /api/v1/battles/{id}/cancel [post]
func (h *BattleHandler) cancel(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	b, err := h.Service.Cancel(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toBattleView(*b, nil), nil)
}

// @Summary Claim a settled position
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Success 200 {object} map[string]any
// @Router /api/v1/battles/{id}/claim [post]
func (h *BattleHandler) claim(c *gin.Context) {
	h.payout(c, h.Service.Claim)
}

// @Summary Withdraw principal, with a penalty while the battle is active
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Success 200 {object} map[string]any
// @Router /api/v1/battles/{id}/withdraw [post]
func (h *BattleHandler) withdraw(c *gin.Context) {
	h.payout(c, h.Service.Withdraw)
}

func (h *BattleHandler) payout(c *gin.Context, op func(ctx context.Context, userID string, battleID uint64) (*service.PayoutResult, error)) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	out, err := op(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{
		"amount":   out.Amount,
		"penalty":  out.Penalty,
		"position": toPositionView(out.Position),
	}, nil)
}

// @Summary List positions of a battle
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Param claimed query bool false "claimed filter"
// @Success 200 {array} positionView
// @Router /api/v1/battles/{id}/positions [get]
func (h *BattleHandler) positions(c *gin.Context) {
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	h.listPositions(c, repository.ListStakePositionsParams{BattleID: &id})
}

// @Summary List the caller's positions
// @Tags battles
// @Produce json
// @Success 200 {array} positionView
// @Router /api/v1/me/positions [get]
func (h *BattleHandler) myPositions(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	h.listPositions(c, repository.ListStakePositionsParams{UserID: &user})
}

func (h *BattleHandler) listPositions(c *gin.Context, params repository.ListStakePositionsParams) {
	params.Limit = intQuery(c, "limit", 50)
	params.Offset = intQuery(c, "offset", 0)
	params.Claimed = boolQueryPtr(c, "claimed")
	params.OrderBy = parseOrder(c.Query("order_by"), map[string]string{"amount": "amount_staked", "stake_time": "stake_time"})
	params.Asc = boolQueryPtr(c, "asc")
	items, total, err := h.Service.ListPositions(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]positionView, 0, len(items))
	for _, p := range items {
		out = append(out, toPositionView(p))
	}
	Ok(c, out, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one position with its receipt balance
// @Tags battles
// @Produce json
// @Param id path int true "battle id"
// @Param user path string true "user id"
// @Success 200 {object} positionView
// @Router /api/v1/battles/{id}/positions/{user} [get]
func (h *BattleHandler) position(c *gin.Context) {
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid battle id", nil)
		return
	}
	user := strings.TrimSpace(c.Param("user"))
	pos, err := h.Service.GetPosition(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	view := toPositionView(*pos)
	if held, err := h.Service.ReceiptBalance(c.Request.Context(), id, pos.Team, user); err == nil {
		view.Receipts = &held
	}
	Ok(c, view, nil)
}
