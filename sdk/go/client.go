package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"reputationkit/core"
	"reputationkit/leaderboard"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the reputation HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Register creates an account. referralCode may be empty.
func (c *Client) Register(ctx context.Context, userID, referralCode string) (Registration, error) {
	var out Registration
	if strings.TrimSpace(userID) == "" {
		return out, ErrEmptyUserID
	}
	body := map[string]string{}
	if referralCode != "" {
		body["referral_code"] = referralCode
	}
	err := c.do(ctx, http.MethodPost, c.userPath(userID, ""), body, &out)
	return out, err
}

// GetUser fetches the current snapshot for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (core.Snapshot, error) {
	var snap core.Snapshot
	if strings.TrimSpace(userID) == "" {
		return snap, ErrEmptyUserID
	}
	err := c.do(ctx, http.MethodGet, c.userPath(userID, ""), nil, &snap)
	return snap, err
}

// RecordActivity applies one activity for a user.
func (c *Client) RecordActivity(ctx context.Context, userID string, a core.Activity) (Mutation, error) {
	var out Mutation
	if strings.TrimSpace(userID) == "" {
		return out, ErrEmptyUserID
	}
	err := c.do(ctx, http.MethodPost, c.userPath(userID, "/activity"), a, &out)
	return out, err
}

// Spend deducts amount from the user's spendable balance.
func (c *Client) Spend(ctx context.Context, userID string, amount int64, reason string) (Mutation, error) {
	var out Mutation
	if strings.TrimSpace(userID) == "" {
		return out, ErrEmptyUserID
	}
	body := map[string]any{"amount": amount, "reason": reason}
	err := c.do(ctx, http.MethodPost, c.userPath(userID, "/spend"), body, &out)
	return out, err
}

// Leaderboard returns the top limit users by metric. An empty metric means points_total.
func (c *Client) Leaderboard(ctx context.Context, metric leaderboard.Metric, limit int) (Leaderboard, error) {
	q := url.Values{}
	if metric != "" {
		q.Set("metric", string(metric))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/leaderboard"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out Leaderboard
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Level looks up the level for a points total.
func (c *Client) Level(ctx context.Context, points int64) (core.LevelInfo, error) {
	var out core.LevelInfo
	err := c.do(ctx, http.MethodGet, "/levels/"+strconv.FormatInt(points, 10), nil, &out)
	return out, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// EventFilter narrows the WebSocket stream server-side.
type EventFilter struct {
	UserID string
	Types  []core.EventType
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if filter.UserID != "" {
		q.Set("user", filter.UserID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var evt core.Event
			if err := json.Unmarshal(msg, &evt); err != nil {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) userPath(userID, suffix string) string {
	return "/users/" + url.PathEscape(userID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}
	var req *http.Request
	var err error
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
