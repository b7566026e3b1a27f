package oracle

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memewars/internal/battle"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	base := Observation{Price: 10_000, Confidence: 500, Exponent: -8, PublishTime: now.Add(-10 * time.Second)}
	require.NoError(t, Validate(base, now, DefaultMaxAge, DefaultMaxConfidenceBps))

	wide := base
	wide.Confidence = 501
	require.ErrorIs(t, Validate(wide, now, DefaultMaxAge, DefaultMaxConfidenceBps), battle.ErrLowPriceConfidence)

	negative := base
	negative.Price = -10_000
	require.NoError(t, Validate(negative, now, DefaultMaxAge, DefaultMaxConfidenceBps))

	zero := base
	zero.Price = 0
	zero.Confidence = math.MaxUint64
	require.NoError(t, Validate(zero, now, DefaultMaxAge, DefaultMaxConfidenceBps))

	edge := base
	edge.PublishTime = now.Add(-60 * time.Second)
	require.NoError(t, Validate(edge, now, DefaultMaxAge, DefaultMaxConfidenceBps))

	stale := base
	stale.PublishTime = now.Add(-61 * time.Second)
	require.ErrorIs(t, Validate(stale, now, DefaultMaxAge, DefaultMaxConfidenceBps), battle.ErrStalePriceFeed)

	minPrice := base
	minPrice.Price = math.MinInt64
	minPrice.Confidence = 0
	require.NoError(t, Validate(minPrice, now, DefaultMaxAge, DefaultMaxConfidenceBps))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(12_345, -8)
	require.NoError(t, err)
	require.Equal(t, int64(12_345), got)

	got, err = Normalize(150, 0)
	require.NoError(t, err)
	require.Equal(t, int64(15_000_000_000), got)

	got, err = Normalize(123_456_789, -10)
	require.NoError(t, err)
	require.Equal(t, int64(1_234_567), got)

	got, err = Normalize(-5, -6)
	require.NoError(t, err)
	require.Equal(t, int64(-500), got)

	_, err = Normalize(math.MaxInt64/10, 0)
	require.ErrorIs(t, err, battle.ErrOverflow)

	_, err = Normalize(1, 12)
	require.ErrorIs(t, err, battle.ErrOverflow)

	_, err = Normalize(1, -40)
	require.ErrorIs(t, err, battle.ErrOverflow)
}

func TestCodec(t *testing.T) {
	obs := Observation{FeedID: "abc", Price: -42, Confidence: 7, Exponent: -5, PublishTime: now}
	got, err := DecodeObservation(EncodeObservation(obs))
	require.NoError(t, err)
	require.Equal(t, obs, got)

	_, err = DecodeObservation(make([]byte, ObservationSize-1))
	require.ErrorIs(t, err, battle.ErrInvalidPriceFeed)

	_, err = DecodeObservation(make([]byte, ObservationSize))
	require.ErrorIs(t, err, battle.ErrInvalidPriceFeed)
}

func TestReaderStatic(t *testing.T) {
	feed := NewStaticFeed(false)
	feed.Set(Observation{FeedID: "0xAA", Price: 150, Exponent: 0, PublishTime: now})
	feed.Set(Observation{FeedID: "bb", Price: 150, Exponent: 0, PublishTime: now.Add(-2 * time.Minute)})
	r := NewReader(feed, nil)

	price, err := r.ReadPrice(context.Background(), "aa", now)
	require.NoError(t, err)
	require.Equal(t, int64(15_000_000_000), price)

	_, err = r.ReadPrice(context.Background(), "bb", now)
	require.ErrorIs(t, err, battle.ErrStalePriceFeed)

	_, err = r.ReadPrice(context.Background(), "cc", now)
	require.ErrorIs(t, err, battle.ErrInvalidPriceFeed)
}

func TestHermesClientRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("ids[]") {
		case "0xfeed":
			_, _ = w.Write([]byte(`{"binary":{"encoding":"hex","data":[]},"parsed":[{"id":"feed","price":{"price":"6140993501000","conf":"3287933190","expo":-8,"publish_time":1772366400}}]}`))
		case "partial":
			_, _ = w.Write([]byte(`{"parsed":[{"id":"partial","price":{"price":"1","conf":"0"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`price ids not found`))
		}
	}))
	defer srv.Close()

	c := NewHermesClient(srv.Client(), srv.URL)
	obs, err := c.Read(context.Background(), "0xfeed")
	require.NoError(t, err)
	require.Equal(t, int64(6140993501000), obs.Price)
	require.Equal(t, uint64(3287933190), obs.Confidence)
	require.Equal(t, int32(-8), obs.Exponent)
	require.Equal(t, time.Unix(1772366400, 0).UTC(), obs.PublishTime)

	_, err = c.Read(context.Background(), "partial")
	require.ErrorIs(t, err, battle.ErrInvalidPriceFeed)

	_, err = c.Read(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestHermesStreamHandle(t *testing.T) {
	s := NewHermesStream(StreamOptions{FeedIDs: []string{"0xfeed"}})
	_, err := s.Read(context.Background(), "0xfeed")
	require.ErrorIs(t, err, battle.ErrInvalidPriceFeed)

	s.handle([]byte(`{"type":"response","status":"success"}`))
	s.handle([]byte(`{"type":"price_update","price_feed":{"id":"feed","price":{"price":"200","conf":"1","expo":-2,"publish_time":1772366400}}}`))
	s.handle([]byte(`{"type":"price_update","price_feed":{"id":"feed","price":{"price":"100","conf":"1","expo":-2,"publish_time":1772366300}}}`))

	obs, err := s.Read(context.Background(), "0xFEED")
	require.NoError(t, err)
	require.Equal(t, int64(200), obs.Price)
}
