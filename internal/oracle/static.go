package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memewars/internal/battle"
)

// StaticFeed serves fixed prices. With Fresh set, every read is stamped with
// the current time so observations never go stale; used for local runs.
type StaticFeed struct {
	Fresh bool
	Now   func() time.Time

	mu     sync.RWMutex
	prices map[string]Observation
}

func NewStaticFeed(fresh bool) *StaticFeed {
	return &StaticFeed{Fresh: fresh, Now: time.Now, prices: make(map[string]Observation)}
}

func (f *StaticFeed) Set(obs Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[normalizeFeedID(obs.FeedID)] = obs
}

func (f *StaticFeed) Read(_ context.Context, feedID string) (Observation, error) {
	f.mu.RLock()
	obs, ok := f.prices[normalizeFeedID(feedID)]
	f.mu.RUnlock()
	if !ok {
		return Observation{}, fmt.Errorf("%w: unknown feed %s", battle.ErrInvalidPriceFeed, feedID)
	}
	if f.Fresh {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		obs.PublishTime = now().UTC()
	}
	return obs, nil
}
