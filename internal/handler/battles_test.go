package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memewars/internal/auth"
	"memewars/internal/config"
	"memewars/internal/db"
	"memewars/internal/oracle"
	"memewars/internal/receipt"
	gormrepository "memewars/internal/repository/gorm"
	"memewars/internal/service"
	"memewars/internal/yield"
)

const ops = "ops"

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Meta      map[string]any  `json:"meta"`
	RequestID string          `json:"request_id"`
}

type apiEnv struct {
	engine *gin.Engine
	svc    *service.BattleService
	feed   *oracle.StaticFeed
	now    time.Time
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	database, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	require.NoError(t, db.AutoMigrate(database))

	env := &apiEnv{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }
	store := gormrepository.New(database.Gorm)
	env.feed = oracle.NewStaticFeed(true)
	env.feed.Now = clock
	env.feed.Set(oracle.Observation{FeedID: "feed-a", Price: 100_000_000_000, Exponent: oracle.TargetExponent})
	env.feed.Set(oracle.Observation{FeedID: "feed-b", Price: 100_000_000_000, Exponent: oracle.TargetExponent})
	reader := oracle.NewReader(env.feed, nil)

	settings := &service.SystemSettingsService{Repo: store}
	env.svc = &service.BattleService{
		Repo:     store,
		Oracle:   reader,
		Yield:    yield.None{},
		Receipts: receipt.NewLedger(store),
		Flags:    settings,
		Now:      clock,
	}
	_, err = env.svc.InitProtocol(context.Background(), ops, "treasury")
	require.NoError(t, err)

	env.engine = gin.New()
	env.engine.Use(auth.RequireBearer(auth.JWT{}, true))
	(&BattleHandler{Service: env.svc}).Register(env.engine)
	(&ProtocolHandler{Service: env.svc}).Register(env.engine)
	(&OracleHandler{Reader: reader}).Register(env.engine)
	(&SystemSettingsHandler{Settings: settings, Battles: env.svc}).Register(env.engine)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path, user string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (e *apiEnv) createBattle(t *testing.T) {
	t.Helper()
	code, out := e.do(t, http.MethodPost, "/api/v1/battles", ops, gin.H{
		"token_a": "BONK", "token_b": "WIF",
		"price_feed_a": "feed-a", "price_feed_b": "feed-b",
		"duration_seconds": 86400,
	})
	require.Equal(t, http.StatusOK, code, out.Message)
}

func TestCreateAndGetBattle(t *testing.T) {
	env := newAPIEnv(t)
	env.createBattle(t)

	code, out := env.do(t, http.MethodGet, "/api/v1/battles/1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var view battleView
	require.NoError(t, json.Unmarshal(out.Data, &view))
	assert.Equal(t, uint64(1), view.ID)
	assert.Equal(t, ops, view.Authority)
	assert.Equal(t, "1000", view.InitialPriceA)

	code, out = env.do(t, http.MethodGet, "/api/v1/battles", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out.Meta["total"])
}

func TestDepositFlowOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	env.createBattle(t)

	code, out := env.do(t, http.MethodPost, "/api/v1/accounts/alice/credit", ops, gin.H{"amount": 5000})
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = env.do(t, http.MethodPost, "/api/v1/battles/1/deposit", "alice", gin.H{"team": "A", "amount": 1000})
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = env.do(t, http.MethodGet, "/api/v1/battles/1/positions/alice", "", nil)
	require.Equal(t, http.StatusOK, code)
	var pos positionView
	require.NoError(t, json.Unmarshal(out.Data, &pos))
	assert.Equal(t, uint64(1000), pos.AmountStaked)
	require.NotNil(t, pos.Receipts)
	assert.Equal(t, uint64(1000), *pos.Receipts)

	code, out = env.do(t, http.MethodPost, "/api/v1/battles/1/withdraw", "alice", nil)
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = env.do(t, http.MethodGet, "/api/v1/me/account", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var acct map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &acct))
	assert.EqualValues(t, 4990, acct["balance"])
}

func TestErrorStatusMapping(t *testing.T) {
	env := newAPIEnv(t)
	env.createBattle(t)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"settle before end", http.MethodPost, "/api/v1/battles/1/settle", ops, nil, http.StatusConflict, "BattleNotEnded"},
		{"settle by stranger", http.MethodPost, "/api/v1/battles/1/settle", "mallory", nil, http.StatusForbidden, "Unauthorized"},
		{"unknown battle", http.MethodGet, "/api/v1/battles/99", "", nil, http.StatusNotFound, "BattleNotFound"},
		{"bad team", http.MethodPost, "/api/v1/battles/1/deposit", "alice", gin.H{"team": "C", "amount": 10}, http.StatusBadRequest, "InvalidTeam"},
		{"unfunded deposit", http.MethodPost, "/api/v1/battles/1/deposit", "alice", gin.H{"team": "B", "amount": 10}, http.StatusUnprocessableEntity, "InsufficientFunds"},
		{"claim before settle", http.MethodPost, "/api/v1/battles/1/claim", "alice", nil, http.StatusNotFound, "PositionNotFound"},
		{"unknown feed", http.MethodGet, "/api/v1/oracle/prices/nope", "", nil, http.StatusServiceUnavailable, "InvalidPriceFeed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := env.do(t, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, code, out.Message)
			assert.Equal(t, tc.code, out.Meta["error"])
		})
	}
}

func TestWritesRequireCaller(t *testing.T) {
	env := newAPIEnv(t)
	code, out := env.do(t, http.MethodPost, "/api/v1/battles", "", gin.H{"token_a": "BONK"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthenticated", out.Meta["error"])
}

func TestSwitchesRequireAuthority(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.do(t, http.MethodPut, "/api/v1/system-settings/switches/yield_forwarding", "alice", gin.H{"enabled": false})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPut, "/api/v1/system-settings/switches/unknown", ops, gin.H{"enabled": false})
	assert.Equal(t, http.StatusNotFound, code)

	code, out := env.do(t, http.MethodPut, "/api/v1/system-settings/switches/yield_forwarding", ops, gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = env.do(t, http.MethodGet, "/api/v1/system-settings/switches/yield_forwarding", "", nil)
	require.Equal(t, http.StatusOK, code)
	var sw map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &sw))
	assert.Equal(t, false, sw["enabled"])

	code, out = env.do(t, http.MethodGet, "/api/v1/system-settings/switches", "", nil)
	require.Equal(t, http.StatusOK, code)
	var items []service.Switch
	require.NoError(t, json.Unmarshal(out.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, service.FeatureYieldForwarding, items[0].Key)
	assert.Equal(t, ops, items[0].UpdatedBy)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newAPIEnv(t)
	engine := gin.New()
	engine.Use(RequestLog(nil))
	(&ProtocolHandler{Service: env.svc}).Register(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/protocol", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "req-1", out.RequestID)
}
