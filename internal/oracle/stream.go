package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"memewars/internal/battle"
)

const DefaultHermesStreamURL = "wss://hermes.pyth.network/ws"

type subscribeRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type streamEnvelope struct {
	Type      string           `json:"type"`
	Status    string           `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
	PriceFeed *hermesPriceFeed `json:"price_feed,omitempty"`
}

type StreamOptions struct {
	URL               string
	FeedIDs           []string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// HermesStream keeps the latest observation of each subscribed feed in memory
// and serves reads from it. Run must be running for the cache to fill.
type HermesStream struct {
	opts StreamOptions

	mu     sync.RWMutex
	latest map[string]Observation
}

func NewHermesStream(opts StreamOptions) *HermesStream {
	if opts.URL == "" {
		opts.URL = DefaultHermesStreamURL
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &HermesStream{opts: opts, latest: make(map[string]Observation)}
}

func (s *HermesStream) Read(ctx context.Context, feedID string) (Observation, error) {
	if s == nil {
		return Observation{}, fmt.Errorf("stream is nil")
	}
	s.mu.RLock()
	obs, ok := s.latest[normalizeFeedID(feedID)]
	s.mu.RUnlock()
	if !ok {
		return Observation{}, fmt.Errorf("%w: no observation for %s yet", battle.ErrInvalidPriceFeed, feedID)
	}
	return obs, nil
}

func (s *HermesStream) store(obs Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeFeedID(obs.FeedID)
	if prev, ok := s.latest[key]; ok && prev.PublishTime.After(obs.PublishTime) {
		return
	}
	s.latest[key] = obs
}

// Run connects, subscribes and consumes updates until ctx is done,
// reconnecting with jittered backoff.
func (s *HermesStream) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	if len(s.opts.FeedIDs) == 0 {
		return fmt.Errorf("hermes stream: no feeds to subscribe")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			s.warn("hermes ws connect failed", err)
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(1 << 20)
		if err := s.subscribe(ctx, conn); err != nil {
			s.warn("hermes ws subscribe failed", err)
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Info("hermes ws subscribed", zap.Int("feeds", len(s.opts.FeedIDs)))
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *HermesStream) subscribe(ctx context.Context, conn *websocket.Conn) error {
	ids := make([]string, 0, len(s.opts.FeedIDs))
	for _, id := range s.opts.FeedIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	payload, err := json.Marshal(subscribeRequest{Type: "subscribe", IDs: ids})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (s *HermesStream) consume(ctx context.Context, conn *websocket.Conn) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.warn("hermes ws read failed", err)
			}
			return err
		}
		s.handle(data)
	}
}

func (s *HermesStream) handle(data []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.warn("hermes ws bad message", err)
		return
	}
	switch env.Type {
	case "price_update":
		if env.PriceFeed == nil {
			return
		}
		obs, err := env.PriceFeed.observation()
		if err != nil {
			s.warn("hermes ws bad price update", err)
			return
		}
		s.store(obs)
	case "response":
		if env.Status != "success" && s.opts.Logger != nil {
			s.opts.Logger.Warn("hermes ws request rejected", zap.String("error", env.Error))
		}
	}
}

func (s *HermesStream) warn(msg string, err error) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, zap.Error(err))
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
