package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinfall/client/internal/game"
	"coinfall/client/internal/telemetry"
)

// Config tunes the backend client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     telemetry.Logger
}

// Client talks to the game backend. It is safe for concurrent use; the bearer
// token may be swapped at any time via SetToken.
type Client struct {
	baseURL string
	client  *http.Client
	logger  telemetry.Logger
	session string

	mu    sync.RWMutex
	token string
}

// NewClient constructs a backend client with a per-process session id.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		logger:  cfg.Logger,
		session: uuid.NewString(),
	}
}

// SetToken installs a fresh bearer token, resuming authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SessionID reports the per-process session identifier attached to requests.
func (c *Client) SessionID() string {
	return c.session
}

// Authenticate exchanges the Telegram identity for a bearer token and
// installs it on the client.
func (c *Client) Authenticate(ctx context.Context, identity TelegramIdentity) (AuthResult, error) {
	var response authResponse
	if err := c.post(ctx, "/auth/telegram-user", identity, &response, false); err != nil {
		return AuthResult{}, fmt.Errorf("authenticate: %w", err)
	}
	c.SetToken(response.Token)
	return AuthResult{Token: response.Token, FirstLogin: response.FirstLogin}, nil
}

// FetchState loads the authoritative player snapshot that seeds the local
// store on session open.
func (c *Client) FetchState(ctx context.Context) (game.ServerSnapshot, error) {
	var response syncResponse
	if err := c.get(ctx, "/clicker/sync", &response); err != nil {
		return game.ServerSnapshot{}, fmt.Errorf("fetch state: %w", err)
	}
	return response.snapshot(), nil
}

// PushDeltas flushes a frozen batch of pending deltas. The returned snapshot
// is valid even when the error is game.ErrSyncRejected: the server refuses
// the batch but still reports its authoritative state.
func (c *Client) PushDeltas(ctx context.Context, batch game.Batch) (game.ServerSnapshot, error) {
	request := syncRequest{BatchID: batch.ID, Deltas: make([]deltaPayload, 0, len(batch.Deltas))}
	for _, d := range batch.Deltas {
		request.Deltas = append(request.Deltas, deltaPayload{
			Seq:         d.Seq,
			Taps:        d.Taps,
			CoinsEarned: d.CoinsEarned,
			EnergySpent: d.EnergySpent,
			ClientTS:    d.ClientTime.UnixMilli(),
		})
	}
	var response syncResponse
	if err := c.post(ctx, "/clicker/sync", request, &response, true); err != nil {
		return game.ServerSnapshot{}, fmt.Errorf("push deltas: %w", err)
	}
	if response.Rejected {
		return response.snapshot(), fmt.Errorf("batch %s (%s): %w", batch.ID, response.RejectReason, game.ErrSyncRejected)
	}
	return response.snapshot(), nil
}

// BuyBooster purchases a booster; the response snapshot reflects the spend
// and the activated booster.
func (c *Client) BuyBooster(ctx context.Context, boosterType string) (game.ServerSnapshot, error) {
	var response syncResponse
	if err := c.post(ctx, "/clicker/buy-booster", buyBoosterRequest{BoosterType: boosterType}, &response, true); err != nil {
		return game.ServerSnapshot{}, fmt.Errorf("buy booster %s: %w", boosterType, err)
	}
	return response.snapshot(), nil
}

// UseDailyBooster triggers the special-cased immediate booster.
func (c *Client) UseDailyBooster(ctx context.Context) (DailyBoosterResult, error) {
	var response dailyBoosterResponse
	if err := c.post(ctx, "/clicker/use-daily-booster", struct{}{}, &response, true); err != nil {
		return DailyBoosterResult{}, fmt.Errorf("use daily booster: %w", err)
	}
	result := DailyBoosterResult{
		CurrentEnergy:    response.CurrentEnergy,
		DailyBoosterUses: response.DailyBoosterUses,
	}
	if response.NextAvailableAt != "" {
		parsed, err := time.Parse(time.RFC3339, response.NextAvailableAt)
		if err != nil {
			return DailyBoosterResult{}, fmt.Errorf("use daily booster: parse next_available_at: %w", err)
		}
		result.NextAvailableAt = parsed
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target, true)
}

func (c *Client) post(ctx context.Context, path string, payload any, target any, authed bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target, authed)
}

func (c *Client) do(req *http.Request, target any, authed bool) error {
	if authed {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == "" {
			return game.ErrAuthExpired
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Session-ID", c.session)

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		if c.logger != nil {
			c.logger.Printf("auth token rejected for %s", req.URL.Path)
		}
		return game.ErrAuthExpired
	case res.StatusCode >= 400:
		var failure errorResponse
		if decodeErr := decodeJSON(res.Body, &failure); decodeErr == nil && failure.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, failure.Error, res.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, res.StatusCode)
	}
	if target == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeJSON(res.Body, target)
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
