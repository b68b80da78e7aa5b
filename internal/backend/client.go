// Package backend is the HTTP client for the application backend that issues
// RTC join tokens and numeric user mappings before a channel join.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client implements rtc.TokenProvider over the backend's HTTP API.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	log       *zerolog.Logger
}

// New creates a backend client. baseURL is the backend root, e.g.
// "https://app.example.com".
func New(baseURL string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger,
	}
}

// SetAuthToken attaches a bearer token to subsequent requests. Call it after
// login and again whenever the session token is refreshed.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

type tokenRequest struct {
	AppKey    string `json:"app_key"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userMapResponse struct {
	Users map[string]int `json:"users"`
}

// RequestRTCToken fetches a join token for the given channel and user.
func (c *Client) RequestRTCToken(ctx context.Context, appKey, channelID, userID string) (string, error) {
	var resp tokenResponse
	if err := c.post(ctx, "/api/rtc/token", tokenRequest{AppKey: appKey, ChannelID: channelID, UserID: userID}, &resp); err != nil {
		return "", fmt.Errorf("request rtc token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("request rtc token: backend returned empty token")
	}
	return resp.Token, nil
}

// RequestUserMap fetches the numeric uid mapping for the given channel and user.
func (c *Client) RequestUserMap(ctx context.Context, appKey, channelID, userID string) (map[string]int, error) {
	var resp userMapResponse
	if err := c.post(ctx, "/api/rtc/usermap", tokenRequest{AppKey: appKey, ChannelID: channelID, UserID: userID}, &resp); err != nil {
		return nil, fmt.Errorf("request user map: %w", err)
	}
	return resp.Users, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("backend request failed")
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
