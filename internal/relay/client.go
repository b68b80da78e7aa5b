package relay

import "encoding/json"

// Envelope is one signaling payload in flight between two users. The
// payload itself is opaque to the relay; only the kit endpoints decode it.
type Envelope struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one connected user as seen by the relay.
type Client struct {
	UserID string
	Out    chan Envelope
}

// NewClient constructs a client with an initialized delivery channel.
func NewClient(userID string) *Client {
	return &Client{
		UserID: userID,
		Out:    make(chan Envelope, 16),
	}
}
