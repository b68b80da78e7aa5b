// Package livekit implements rtc.TokenProvider against a LiveKit deployment.
// It is used by the relay server's token endpoint and can be wired directly
// into a call manager for single-process setups.
package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/vovakirdan/wirecall/internal/rtc"
)

// Provider mints LiveKit join tokens for call channels.
type Provider struct {
	apiKey    string
	apiSecret string
	wsURL     string
	tokenTTL  time.Duration
}

// New creates a Provider with the given LiveKit credentials.
func New(apiKey, apiSecret, wsURL string) *Provider {
	return &Provider{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		tokenTTL:  time.Hour,
	}
}

// WSURL returns the LiveKit websocket endpoint clients should dial.
func (p *Provider) WSURL() string {
	return p.wsURL
}

// RoomName maps a call channel id onto a LiveKit room name.
// LiveKit creates rooms on demand when the first user joins.
func RoomName(appKey, channelID string) string {
	return fmt.Sprintf("wirecall-%s-%s", appKey, channelID)
}

// RequestRTCToken mints a join token granting access to the channel's room.
func (p *Provider) RequestRTCToken(_ context.Context, appKey, channelID, userID string) (string, error) {
	if channelID == "" || userID == "" {
		return "", fmt.Errorf("livekit: channel id and user id are required")
	}

	at := auth.NewAccessToken(p.apiKey, p.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     RoomName(appKey, channelID),
	}
	at.AddGrant(grant).
		SetIdentity(userID).
		SetValidFor(p.tokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("livekit: generate token: %w", err)
	}
	return token, nil
}

// RequestUserMap returns a deterministic numeric mapping for the user.
// LiveKit addresses participants by string identity, so the mapping is
// derived locally rather than fetched.
func (p *Provider) RequestUserMap(_ context.Context, _, _ string, userID string) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("livekit: user id is required")
	}
	return map[string]int{userID: rtc.NumericUID(userID)}, nil
}

var _ rtc.TokenProvider = (*Provider)(nil)
