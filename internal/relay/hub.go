// Package relay routes signaling envelopes between connected users. It is
// the IM-transport stand-in the call kit speaks over in integration and
// demo setups: delivery is at-most-once per connected recipient, ordered
// per sender-recipient pair.
package relay

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub owns the connected-client table. All mutation happens on the Run
// goroutine; the exported methods only post to its channels.
type Hub struct {
	log *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	envelopes  chan Envelope

	// Loop-owned. One connection per user; a newer connection replaces
	// the older one.
	clients map[string]*Client
}

// NewHub creates a hub. Call Run to start routing.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		log:        logger,
		register:   make(chan *Client, 8),
		unregister: make(chan *Client, 8),
		envelopes:  make(chan Envelope, 64),
		clients:    make(map[string]*Client),
	}
}

// RegisterClient attaches a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient detaches a client. Safe to call for a client that was
// already replaced by a newer connection.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Route queues an envelope for delivery. Undeliverable envelopes are
// dropped: signaling is fire-and-forget and offline recipients simply miss
// the ring.
func (h *Hub) Route(env Envelope) {
	h.envelopes <- env
}

// Run processes hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				close(c.Out)
			}
			h.clients = make(map[string]*Client)
			return
		case c := <-h.register:
			if old, ok := h.clients[c.UserID]; ok && old != c {
				close(old.Out)
				h.log.Debug().Str("user", c.UserID).Msg("replacing existing connection")
			}
			h.clients[c.UserID] = c
			h.log.Debug().Str("user", c.UserID).Msg("client registered")
		case c := <-h.unregister:
			if cur, ok := h.clients[c.UserID]; ok && cur == c {
				delete(h.clients, c.UserID)
				close(c.Out)
				h.log.Debug().Str("user", c.UserID).Msg("client unregistered")
			}
		case env := <-h.envelopes:
			target, ok := h.clients[env.To]
			if !ok {
				h.log.Debug().Str("from", env.From).Str("to", env.To).Msg("dropping envelope for offline user")
				continue
			}
			select {
			case target.Out <- env:
			default:
				// Drop if slow consumer.
				h.log.Warn().Str("to", env.To).Msg("dropping envelope for slow consumer")
			}
		}
	}
}
