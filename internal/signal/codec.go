package signal

import "encoding/json"

// Envelope is the payload shape carried by the IM transport.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps an action into an envelope and marshals it.
func Encode(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, protocolErrorf("marshal %s body: %v", a.Type(), err)
	}
	return json.Marshal(Envelope{Type: a.Type(), Data: body})
}

// Decode parses an envelope and returns the typed action it carries.
// Unknown types and malformed bodies fail with *ProtocolError.
func Decode(data []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, protocolErrorf("malformed envelope: %v", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope returns the typed action carried by an already-parsed envelope.
func DecodeEnvelope(env Envelope) (Action, error) {
	switch env.Type {
	case TypeInvite:
		var a Invite
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, protocolErrorf("malformed invite: %v", err)
		}
		if a.CallID == "" || a.ChannelID == "" || a.InviterID == "" {
			return nil, protocolErrorf("invite missing call_id, channel_id or inviter_id")
		}
		if a.Media != MediaAudio && a.Media != MediaVideo {
			return nil, protocolErrorf("invite has unknown media %q", a.Media)
		}
		return a, nil
	case TypeAlive:
		return decodeRef[Alive](env)
	case TypeAccept:
		return decodeRef[Accept](env)
	case TypeRefuse:
		return decodeRef[Refuse](env)
	case TypeCancel:
		return decodeRef[Cancel](env)
	case TypeHangUp:
		return decodeRef[HangUp](env)
	case TypeBusy:
		return decodeRef[Busy](env)
	default:
		return nil, protocolErrorf("unknown message type %q", env.Type)
	}
}

// decodeRef parses the single-field call reference bodies (everything but invite).
func decodeRef[T Action](env Envelope) (Action, error) {
	var a T
	if err := json.Unmarshal(env.Data, &a); err != nil {
		return nil, protocolErrorf("malformed %s: %v", env.Type, err)
	}
	if CallIDOf(a) == "" {
		return nil, protocolErrorf("%s missing call_id", env.Type)
	}
	return a, nil
}
