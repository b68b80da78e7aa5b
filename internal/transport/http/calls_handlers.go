package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CallsHandlers provides HTTP handlers for call history endpoints.
type CallsHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewCallsHandlers creates a new calls handlers instance.
func NewCallsHandlers(st store.Store, logger *zerolog.Logger) *CallsHandlers {
	return &CallsHandlers{
		store: st,
		log:   logger,
	}
}

// CallParticipantPayload is one roster member in report and history bodies.
type CallParticipantPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// CallReportRequest represents a finished call reported by a client kit.
type CallReportRequest struct {
	CallID       string                   `json:"call_id" binding:"required"`
	ChannelID    string                   `json:"channel_id" binding:"required"`
	Media        string                   `json:"media" binding:"required"`
	Multi        bool                     `json:"multi"`
	InviterID    string                   `json:"inviter_id" binding:"required"`
	Reason       string                   `json:"reason"`
	CreatedAt    time.Time                `json:"created_at"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	EndedAt      *time.Time               `json:"ended_at,omitempty"`
	Participants []CallParticipantPayload `json:"participants"`
}

// CallRecordResponse represents a call in history responses.
type CallRecordResponse struct {
	CallID       string                   `json:"call_id"`
	ChannelID    string                   `json:"channel_id"`
	Media        string                   `json:"media"`
	Multi        bool                     `json:"multi"`
	InviterID    string                   `json:"inviter_id"`
	Reason       string                   `json:"reason"`
	CreatedAt    time.Time                `json:"created_at"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	EndedAt      *time.Time               `json:"ended_at,omitempty"`
	Participants []CallParticipantPayload `json:"participants"`
}

func recordToResponse(rec *store.CallRecord) CallRecordResponse {
	resp := CallRecordResponse{
		CallID:    rec.ID,
		ChannelID: rec.ChannelID,
		Media:     rec.Media,
		Multi:     rec.Multi,
		InviterID: rec.InviterID,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
	for _, p := range rec.Participants {
		resp.Participants = append(resp.Participants, CallParticipantPayload{UserID: p.UserID, Status: p.Status})
	}
	return resp
}

// Report handles a client kit uploading a finished call record.
// POST /api/calls/report
func (h *CallsHandlers) Report(c *gin.Context) {
	username, ok := usernameFromContext(c, h.log)
	if !ok {
		return
	}

	var req CallReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid call report request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// Only calls the reporter took part in are accepted.
	involved := req.InviterID == username
	for _, p := range req.Participants {
		if p.UserID == username {
			involved = true
			break
		}
	}
	if !involved {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant in this call"})
		return
	}

	rec := &store.CallRecord{
		ID:        req.CallID,
		ChannelID: req.ChannelID,
		Media:     req.Media,
		Multi:     req.Multi,
		InviterID: req.InviterID,
		Reason:    req.Reason,
		CreatedAt: req.CreatedAt,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	for _, p := range req.Participants {
		rec.Participants = append(rec.Participants, store.CallParticipant{UserID: p.UserID, Status: p.Status})
	}

	if err := h.store.SaveCall(c.Request.Context(), rec); err != nil {
		h.log.Error().Err(err).Str("call_id", req.CallID).Msg("failed to save call report")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("call_id", req.CallID).Str("reporter", username).Msg("call report saved")
	c.JSON(http.StatusOK, gin.H{"message": "call recorded"})
}

// History handles listing the current user's past calls.
// GET /api/calls/history?limit=50
func (h *CallsHandlers) History(c *gin.Context) {
	username, ok := usernameFromContext(c, h.log)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	records, err := h.store.ListCallsForUser(c.Request.Context(), username, limit)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to list call history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]CallRecordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, recordToResponse(rec))
	}

	c.JSON(http.StatusOK, response)
}
