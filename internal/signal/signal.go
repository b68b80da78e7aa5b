// Package signal defines the call-control messages exchanged over the IM
// transport and their JSON wire codec.
//
// The transport envelope (delivery, retry, encryption) is owned by the
// messaging layer; this package only shapes the payload. Signaling is
// fire-and-forget: a payload that fails to decode is dropped by the caller
// after logging, never retried.
package signal

import "fmt"

// Message type tags on the wire.
const (
	TypeInvite = "invite"
	TypeAlive  = "alive"
	TypeAccept = "accept"
	TypeRefuse = "refuse"
	TypeCancel = "cancel"
	TypeHangUp = "hangup"
	TypeBusy   = "busy"
)

// Media values used in invite payloads.
const (
	MediaAudio = "audio"
	MediaVideo = "video"
)

// Action is a decoded call-control message. Concrete types are Invite,
// Alive, Accept, Refuse, Cancel, HangUp and Busy.
type Action interface {
	Type() string
}

// Invite asks one or more users to join a call. The channel id is created by
// the inviter before any signaling is sent; invitees learn it from here.
type Invite struct {
	CallID     string   `json:"call_id"`
	ChannelID  string   `json:"channel_id"`
	Media      string   `json:"media"`
	Multi      bool     `json:"multi"`
	InviterID  string   `json:"inviter_id"`
	InviteeIDs []string `json:"invitee_ids"`
	TS         int64    `json:"ts"`
}

// Alive is the invitee's ringing heartbeat: it tells the inviter the invite
// was delivered and the remote device is ringing.
type Alive struct {
	CallID string `json:"call_id"`
}

// Accept confirms an invite.
type Accept struct {
	CallID string `json:"call_id"`
}

// Refuse declines an invite.
type Refuse struct {
	CallID string `json:"call_id"`
}

// Cancel withdraws an invite before it was answered.
type Cancel struct {
	CallID string `json:"call_id"`
}

// HangUp terminates an established call.
type HangUp struct {
	CallID string `json:"call_id"`
}

// Busy tells an inviter the recipient is already in another call.
type Busy struct {
	CallID string `json:"call_id"`
}

func (Invite) Type() string { return TypeInvite }
func (Alive) Type() string  { return TypeAlive }
func (Accept) Type() string { return TypeAccept }
func (Refuse) Type() string { return TypeRefuse }
func (Cancel) Type() string { return TypeCancel }
func (HangUp) Type() string { return TypeHangUp }
func (Busy) Type() string   { return TypeBusy }

// CallID returns the call reference carried by any non-invite action.
// For invites the call id is part of the payload struct itself.
func CallIDOf(a Action) string {
	switch v := a.(type) {
	case Invite:
		return v.CallID
	case Alive:
		return v.CallID
	case Accept:
		return v.CallID
	case Refuse:
		return v.CallID
	case Cancel:
		return v.CallID
	case HangUp:
		return v.CallID
	case Busy:
		return v.CallID
	default:
		return ""
	}
}

// ProtocolError reports a malformed or unrecognized signaling message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "signal: " + e.Reason
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
