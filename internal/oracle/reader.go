package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"memewars/internal/battle"
	"memewars/internal/settlement"
)

const (
	// TargetExponent is the fixed-point scale every stored price uses.
	TargetExponent int32 = -8

	DefaultMaxAge           = 60 * time.Second
	DefaultMaxConfidenceBps = uint64(500)
)

// Observation is one raw oracle sample.
type Observation struct {
	FeedID      string
	Price       int64
	Confidence  uint64
	Exponent    int32
	PublishTime time.Time
}

// Feed returns the latest observation for a feed id without validating it.
type Feed interface {
	Read(ctx context.Context, feedID string) (Observation, error)
}

// Reader validates observations and normalizes them to TargetExponent.
type Reader struct {
	Feed             Feed
	MaxAge           time.Duration
	MaxConfidenceBps uint64
	Logger           *zap.Logger
}

func NewReader(feed Feed, logger *zap.Logger) *Reader {
	return &Reader{
		Feed:             feed,
		MaxAge:           DefaultMaxAge,
		MaxConfidenceBps: DefaultMaxConfidenceBps,
		Logger:           logger,
	}
}

func (r *Reader) ReadPrice(ctx context.Context, feedID string, now time.Time) (int64, error) {
	if r == nil || r.Feed == nil {
		return 0, fmt.Errorf("%w: no feed configured", battle.ErrInvalidPriceFeed)
	}
	obs, err := r.Feed.Read(ctx, feedID)
	if err != nil {
		return 0, err
	}
	if err := Validate(obs, now, r.MaxAge, r.MaxConfidenceBps); err != nil {
		if r.Logger != nil {
			r.Logger.Warn("oracle observation rejected",
				zap.String("feed", feedID),
				zap.Int64("price", obs.Price),
				zap.Uint64("conf", obs.Confidence),
				zap.Time("publish_time", obs.PublishTime),
				zap.Error(err),
			)
		}
		return 0, err
	}
	return Normalize(obs.Price, obs.Exponent)
}

// Validate checks confidence and staleness. The confidence bound is skipped
// for a zero price.
func Validate(obs Observation, now time.Time, maxAge time.Duration, maxConfBps uint64) error {
	if obs.Price != 0 {
		abs := uint64(obs.Price)
		if obs.Price < 0 {
			abs = uint64(-(obs.Price + 1)) + 1
		}
		limit, err := settlement.MulDiv(abs, maxConfBps, battle.BpsDivisor)
		if err != nil {
			return err
		}
		if obs.Confidence > limit {
			return fmt.Errorf("%w: conf %d exceeds %d", battle.ErrLowPriceConfidence, obs.Confidence, limit)
		}
	}
	if now.Sub(obs.PublishTime) > maxAge {
		return fmt.Errorf("%w: published %s", battle.ErrStalePriceFeed, obs.PublishTime.UTC().Format(time.RFC3339))
	}
	return nil
}

// Normalize rescales price from expo to TargetExponent.
func Normalize(price int64, expo int32) (int64, error) {
	switch {
	case expo == TargetExponent:
		return price, nil
	case expo < TargetExponent:
		scale, err := pow10(int64(TargetExponent) - int64(expo))
		if err != nil {
			return 0, err
		}
		return price / scale, nil
	default:
		scale, err := pow10(int64(expo) - int64(TargetExponent))
		if err != nil {
			return 0, err
		}
		out := price * scale
		if out/scale != price {
			return 0, battle.ErrOverflow
		}
		return out, nil
	}
}

func pow10(n int64) (int64, error) {
	out := int64(1)
	for i := int64(0); i < n; i++ {
		if out > (1<<63-1)/10 {
			return 0, battle.ErrOverflow
		}
		out *= 10
	}
	return out, nil
}
