package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memewars/internal/service"
)

type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
	Battles  *service.BattleService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/system-settings")
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
}

// @Summary List feature switches
// @Tags system
// @Produce json
// @Success 200 {array} service.Switch
// @Router /api/v1/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.ListSwitches(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func switchKey(c *gin.Context) (string, string, bool) {
	name := strings.TrimSpace(c.Param("name"))
	key := "feature." + name
	if name == "" || !service.IsKnownSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return "", "", false
	}
	return name, key, true
}

// @Summary Get one feature switch
// @Tags system
// @Produce json
// @Param name path string true "switch name, e.g. yield_forwarding"
// @Success 200 {object} map[string]any
// @Router /api/v1/system-settings/switches/{name} [get]
func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	name, key, ok := switchKey(c)
	if !ok {
		return
	}
	enabled := h.Settings.IsEnabled(c.Request.Context(), key, service.DefaultFeatureSwitches()[key])
	Ok(c, gin.H{"name": name, "key": key, "enabled": enabled}, nil)
}

type putSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Flip a feature switch (protocol authority)
// @Tags system
// @Accept json
// @Produce json
// @Param name path string true "switch name"
// @Param body body putSwitchRequest true "state"
// @Success 200 {object} map[string]any
// @Router /api/v1/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	name, key, ok := switchKey(c)
	if !ok {
		return
	}
	if err := h.Battles.Authorize(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled, user); err != nil {
		fail(c, err)
		return
	}
	Ok(c, gin.H{"name": name, "key": key, "enabled": req.Enabled}, nil)
}
