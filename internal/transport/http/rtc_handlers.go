package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/rtc"
)

// RTCHandlers provides HTTP handlers for RTC credential endpoints. The
// request and response shapes mirror what the kit's backend client sends.
type RTCHandlers struct {
	tokens rtc.TokenProvider
	log    *zerolog.Logger
}

// NewRTCHandlers creates a new RTC handlers instance. tokens may be nil when
// no media backend is configured; the endpoints then report unavailable.
func NewRTCHandlers(tokens rtc.TokenProvider, logger *zerolog.Logger) *RTCHandlers {
	return &RTCHandlers{
		tokens: tokens,
		log:    logger,
	}
}

// TokenRequest represents the request body for RTC credential endpoints.
type TokenRequest struct {
	AppKey    string `json:"app_key" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
}

// TokenResponse represents the token response body.
type TokenResponse struct {
	Token string `json:"token"`
}

// UserMapResponse represents the numeric uid mapping response body.
type UserMapResponse struct {
	Users map[string]int `json:"users"`
}

// Token handles minting an RTC join token for a call channel.
// POST /api/rtc/token
func (h *RTCHandlers) Token(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "media backend is not configured"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.tokens.RequestRTCToken(c.Request.Context(), req.AppKey, req.ChannelID, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", req.ChannelID).Str("user_id", req.UserID).Msg("failed to mint rtc token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Str("channel_id", req.ChannelID).Str("user_id", req.UserID).Msg("rtc token minted")
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// UserMap handles resolving numeric uids for channel participants.
// POST /api/rtc/usermap
func (h *RTCHandlers) UserMap(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "media backend is not configured"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid usermap request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	users, err := h.tokens.RequestUserMap(c.Request.Context(), req.AppKey, req.ChannelID, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", req.ChannelID).Str("user_id", req.UserID).Msg("failed to resolve user map")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UserMapResponse{Users: users})
}
