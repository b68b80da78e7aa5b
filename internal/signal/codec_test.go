package signal

import (
	"errors"
	"testing"
)

func TestEncodeDecodeInvite(t *testing.T) {
	in := Invite{
		CallID:     "k1",
		ChannelID:  "c1",
		Media:      MediaVideo,
		Multi:      false,
		InviterID:  "alice",
		InviteeIDs: []string{"bob"},
		TS:         1700000000,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, ok := out.(Invite)
	if !ok {
		t.Fatalf("expected Invite, got %T", out)
	}
	if got.CallID != "k1" || got.ChannelID != "c1" || got.Media != MediaVideo {
		t.Fatalf("unexpected invite: %+v", got)
	}
	if len(got.InviteeIDs) != 1 || got.InviteeIDs[0] != "bob" {
		t.Fatalf("unexpected invitees: %v", got.InviteeIDs)
	}
}

func TestEncodeDecodeCallRefs(t *testing.T) {
	actions := []Action{
		Alive{CallID: "k1"},
		Accept{CallID: "k1"},
		Refuse{CallID: "k1"},
		Cancel{CallID: "k1"},
		HangUp{CallID: "k1"},
		Busy{CallID: "k1"},
	}

	for _, a := range actions {
		data, err := Encode(a)
		if err != nil {
			t.Fatalf("encode %s: %v", a.Type(), err)
		}
		out, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", a.Type(), err)
		}
		if out.Type() != a.Type() {
			t.Fatalf("type mismatch: sent %s, got %s", a.Type(), out.Type())
		}
		if CallIDOf(out) != "k1" {
			t.Fatalf("%s lost call id: %+v", a.Type(), out)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"unknown type":    `{"type":"transfer","data":{}}`,
		"missing call id": `{"type":"accept","data":{}}`,
		"invite no chan":  `{"type":"invite","data":{"call_id":"k1","inviter_id":"a","media":"audio"}}`,
		"invite media":    `{"type":"invite","data":{"call_id":"k1","channel_id":"c1","inviter_id":"a","media":"hologram"}}`,
		"bad body":        `{"type":"busy","data":[1,2,3]}`,
	}

	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected ProtocolError, got %T (%v)", name, err, err)
		}
	}
}
