package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"memewars/internal/battle"
)

const DefaultHermesURL = "https://hermes.pyth.network"

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hermes API error (%d): %s", e.Status, e.Body)
}

// HermesClient reads the latest parsed price update for a feed over REST.
type HermesClient struct {
	host       string
	httpClient *http.Client
}

func NewHermesClient(httpClient *http.Client, host string) *HermesClient {
	if host == "" {
		host = DefaultHermesURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HermesClient{host: strings.TrimRight(host, "/"), httpClient: httpClient}
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        *int32 `json:"expo"`
	PublishTime *int64 `json:"publish_time"`
}

type hermesPriceFeed struct {
	ID    string       `json:"id"`
	Price *hermesPrice `json:"price"`
}

type hermesLatestResponse struct {
	Parsed []hermesPriceFeed `json:"parsed"`
}

func (c *HermesClient) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *HermesClient) Read(ctx context.Context, feedID string) (Observation, error) {
	if c == nil {
		return Observation{}, fmt.Errorf("hermes client is nil")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return Observation{}, fmt.Errorf("%w: empty feed id", battle.ErrInvalidPriceFeed)
	}
	query := url.Values{}
	query.Add("ids[]", feedID)
	query.Set("parsed", "true")
	query.Set("encoding", "hex")
	body, err := c.doRequest(ctx, "/v2/updates/price/latest", query)
	if err != nil {
		return Observation{}, err
	}
	var resp hermesLatestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Observation{}, fmt.Errorf("%w: %v", battle.ErrInvalidPriceFeed, err)
	}
	for _, feed := range resp.Parsed {
		if sameFeedID(feed.ID, feedID) {
			return feed.observation()
		}
	}
	return Observation{}, fmt.Errorf("%w: feed %s not in response", battle.ErrInvalidPriceFeed, feedID)
}

func (f hermesPriceFeed) observation() (Observation, error) {
	p := f.Price
	if p == nil || p.Expo == nil || p.PublishTime == nil || p.Price == "" {
		return Observation{}, fmt.Errorf("%w: feed %s missing fields", battle.ErrInvalidPriceFeed, f.ID)
	}
	price, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: price %q", battle.ErrInvalidPriceFeed, p.Price)
	}
	conf, err := strconv.ParseUint(p.Conf, 10, 64)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: conf %q", battle.ErrInvalidPriceFeed, p.Conf)
	}
	return Observation{
		FeedID:      normalizeFeedID(f.ID),
		Price:       price,
		Confidence:  conf,
		Exponent:    *p.Expo,
		PublishTime: time.Unix(*p.PublishTime, 0).UTC(),
	}, nil
}

func normalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

func sameFeedID(a, b string) bool {
	return normalizeFeedID(a) == normalizeFeedID(b)
}
