package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type PriceReader interface {
	ReadPrice(ctx context.Context, feedID string, now time.Time) (int64, error)
}

type OracleHandler struct {
	Reader PriceReader
}

func (h *OracleHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/oracle/prices/:feed", h.price)
}

// @Summary Current validated price of a feed
// @Tags oracle
// @Produce json
// @Param feed path string true "feed id"
// @Success 200 {object} map[string]any
// @Router /api/v1/oracle/prices/{feed} [get]
func (h *OracleHandler) price(c *gin.Context) {
	feed := strings.TrimSpace(c.Param("feed"))
	now := time.Now().UTC()
	price, err := h.Reader.ReadPrice(c.Request.Context(), feed, now)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{
		"feed":  feed,
		"price": price,
		"value": priceString(price),
		"at":    now,
	}, nil)
}
