package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/relay"
)

// WSHandler upgrades HTTP connections and bridges them to relay clients.
type WSHandler struct {
	hub  *relay.Hub
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *relay.Hub, authService *auth.Service, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, auth: authService, log: logger}
}

// Handle authenticates and serves one signaling connection.
// GET /ws?token=<jwt>
func (h *WSHandler) Handle(c *gin.Context) {
	// Browsers can't set headers on websocket dials, so the token rides
	// in the query string.
	claims, err := h.auth.ValidateToken(c.Query("token"))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := relay.NewClient(claims.Username)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.log.Info().Str("user", client.UserID).Msg("signaling connection opened")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("user", client.UserID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().Str("user", client.UserID).Msg("signaling connection closed")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *relay.Client) error {
	for {
		var env relay.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		if env.To == "" || len(env.Payload) == 0 {
			h.log.Debug().Str("user", client.UserID).Msg("dropping malformed envelope")
			continue
		}
		// The sender field is always the authenticated identity, whatever
		// the client put there.
		env.From = client.UserID
		h.hub.Route(env)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *relay.Client) error {
	for {
		select {
		case env, ok := <-client.Out:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Error().Err(err).Str("user", client.UserID).Msg("write ws envelope")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
