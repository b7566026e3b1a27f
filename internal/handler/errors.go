package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"memewars/internal/auth"
	"memewars/internal/battle"
)

func statusFor(err error) int {
	switch battle.KindOf(err) {
	case battle.KindValidation:
		return http.StatusBadRequest
	case battle.KindState:
		return http.StatusConflict
	case battle.KindArithmetic, battle.KindFunds:
		return http.StatusUnprocessableEntity
	case battle.KindOracle, battle.KindExternal:
		return http.StatusServiceUnavailable
	case battle.KindAuthorization:
		return http.StatusForbidden
	case battle.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its code name and retry hint in meta.
func fail(c *gin.Context, err error) {
	Error(c, statusFor(err), err.Error(), map[string]any{
		"error":     battle.CodeOf(err),
		"retryable": battle.Retryable(err),
	})
}

// caller returns the authenticated user id or writes 401.
func caller(c *gin.Context) (string, bool) {
	id := auth.Caller(c)
	if id == "" {
		Error(c, http.StatusUnauthorized, "missing bearer token", map[string]any{"error": "Unauthenticated"})
		return "", false
	}
	return id, true
}
