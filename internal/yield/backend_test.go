package yield

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"memewars/internal/config"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewSelectsBackend(t *testing.T) {
	for kind, want := range map[string]Kind{"": KindNone, "none": KindNone, "Marginfi": KindMarginfi, "kamino": KindKamino, "marinade": KindMarinade} {
		b, err := New(config.YieldConfig{Kind: kind}, nil)
		require.NoError(t, err)
		require.Equal(t, want, b.Kind())
	}
	_, err := New(config.YieldConfig{Kind: "solend"}, nil)
	require.Error(t, err)

	_, err = New(config.YieldConfig{Kind: "marginfi", Marginfi: config.AccrualConfig{APY: "-1"}}, nil)
	require.Error(t, err)
}

func TestNoneBackend(t *testing.T) {
	_, err := None{}.Delegate(context.Background(), DelegateRequest{Amount: 1})
	require.ErrorIs(t, err, ErrDisabled)

	red, err := None{}.Redeem(context.Background(), Position{Amount: 7}, t0)
	require.NoError(t, err)
	require.Equal(t, Redemption{Principal: 7}, red)
}

func TestSimpleAccrual(t *testing.T) {
	b, err := NewAccrual(KindMarginfi, config.AccrualConfig{APY: "0.0365"}, false)
	require.NoError(t, err)

	rc, err := b.Delegate(context.Background(), DelegateRequest{Key: "k1", Amount: 1_000_000, At: t0})
	require.NoError(t, err)
	require.Equal(t, "marginfi:k1", rc.Ref)

	pos := Position{Ref: rc.Ref, Amount: 1_000_000, EntryRate: rc.EntryRate, DelegatedAt: t0}
	red, err := b.Redeem(context.Background(), pos, t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), red.Principal)
	require.Equal(t, uint64(1_000), red.Yield)

	red, err = b.Redeem(context.Background(), pos, t0.Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, red.Yield)
}

func TestCompoundingAccrual(t *testing.T) {
	b, err := NewAccrual(KindKamino, config.AccrualConfig{APY: "0.365"}, true)
	require.NoError(t, err)
	pos := Position{Amount: 1_000_000, EntryRate: decimal.RequireFromString("0.365"), DelegatedAt: t0}

	red, err := b.Redeem(context.Background(), pos, t0.Add(36*time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), red.Yield)

	red, err = b.Redeem(context.Background(), pos, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(2_001), red.Yield)
}

func TestMarinadeExchangeRate(t *testing.T) {
	var calls atomic.Int32
	rates := []string{"1.25", "1.30", "1.20"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(calls.Add(1)) - 1
		_, _ = w.Write([]byte(rates[i%len(rates)]))
	}))
	defer srv.Close()

	m := NewMarinade(config.MarinadeConfig{PriceURL: srv.URL}, srv.Client())
	rc, err := m.Delegate(context.Background(), DelegateRequest{Key: "k", Amount: 1_000_000})
	require.NoError(t, err)
	require.True(t, rc.EntryRate.Equal(decimal.RequireFromString("1.25")))

	pos := Position{Amount: 1_000_000, EntryRate: rc.EntryRate}
	red, err := m.Redeem(context.Background(), pos, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(40_000), red.Yield)

	red, err = m.Redeem(context.Background(), pos, t0)
	require.NoError(t, err)
	require.Zero(t, red.Yield)
	require.Equal(t, uint64(1_000_000), red.Principal)
}

func TestMarinadeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewMarinade(config.MarinadeConfig{PriceURL: srv.URL}, srv.Client())
	_, err := m.Delegate(context.Background(), DelegateRequest{Key: "k", Amount: 1})
	require.Error(t, err)
}
