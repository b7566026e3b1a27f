package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Hour}
	tok, exp, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleUser, claims.Role)
	assert.Equal(t, "memewars", claims.Issuer)

	_, err = JWT{Secret: []byte("other")}.Verify(tok)
	assert.Error(t, err)
	_, err = JWT{Secret: []byte("s3cret"), Issuer: "elsewhere"}.Verify(tok)
	assert.Error(t, err)
}

func TestSignRequiresSubject(t *testing.T) {
	_, _, err := JWT{Secret: []byte("x"), TokenTTL: time.Minute}.Sign(Claims{})
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	j := JWT{Secret: []byte("s3cret")}
	past := time.Now().Add(-time.Hour)
	tok, _, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(past),
	}})
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.Error(t, err)
}

func newRouter(j JWT, disabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireBearer(j, disabled))
	r.GET("/api/v1/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Caller(c))
	})
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRequireBearer(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Hour}
	r := newRouter(j, false)
	tok, _, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"valid token", "/api/v1/whoami", "Bearer " + tok, http.StatusOK, "bob"},
		{"anonymous", "/api/v1/whoami", "", http.StatusOK, ""},
		{"bad token", "/api/v1/whoami", "Bearer nope", http.StatusUnauthorized, ""},
		{"infra open", "/healthz", "Bearer nope", http.StatusOK, "ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestDisabledUsesHeader(t *testing.T) {
	r := newRouter(JWT{}, true)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set(UserHeader, "carol")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", rec.Body.String())
}
