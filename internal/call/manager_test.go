package call

import (
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirecall/internal/rtc"
	"github.com/vovakirdan/wirecall/internal/signal"
)

func TestOneToOneVideoHappyPath(t *testing.T) {
	rig := newTestRig(t, "alice")

	snap, err := rig.mgr.StartCall(KindVideo, []string{"bob"})
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if snap.State != StateConnecting || snap.Role != RoleInviter {
		t.Fatalf("unexpected start snapshot: %+v", snap)
	}
	if snap.CallID != "k1" || snap.ChannelID != "c1" {
		t.Fatalf("unexpected ids: %+v", snap)
	}

	invites := rig.sender.ofType(signal.TypeInvite)
	if len(invites) != 1 || invites[0].to != "bob" {
		t.Fatalf("expected one invite to bob, got %+v", invites)
	}

	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitSnapshot(t, rig.snaps, "calling", func(s Snapshot) bool { return s.State == StateCalling })

	// Accept triggers the credential fetch and channel join.
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	rig.mgr.SelfJoined("c1", 7, 0)
	rig.mgr.RemoteUserJoined("c1", "bob", 8)
	waitSnapshot(t, rig.snaps, "bob joined", func(s Snapshot) bool {
		return len(s.Roster) == 1 && s.Roster[0].UserID == "bob" && s.Roster[0].Status == StatusJoined
	})

	if err := rig.mgr.HangUpActive(); err != nil {
		t.Fatalf("hang up: %v", err)
	}

	hangups := rig.sender.ofType(signal.TypeHangUp)
	if len(hangups) != 1 || hangups[0].to != "bob" {
		t.Fatalf("expected one hang-up to bob, got %+v", hangups)
	}
	if got := rig.adapter.leaveCount(); got != 1 {
		t.Fatalf("expected one leave, got %d", got)
	}
	if got := rig.mgr.Snapshot(); got.State != StateIdle {
		t.Fatalf("expected idle after hang-up, got %+v", got)
	}
}

func TestHangUpIsIdempotent(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	if err := rig.mgr.HangUpActive(); err != nil {
		t.Fatalf("first hang up: %v", err)
	}
	if err := rig.mgr.HangUpActive(); !errors.Is(err, ErrStaleCall) {
		t.Fatalf("second hang up: expected ErrStaleCall, got %v", err)
	}

	if got := len(rig.sender.ofType(signal.TypeHangUp)); got != 1 {
		t.Fatalf("expected exactly one outbound hang-up, got %d", got)
	}
	if got := rig.adapter.leaveCount(); got != 1 {
		t.Fatalf("expected exactly one leave, got %d", got)
	}
}

func TestSecondStartCallIsBusy(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if _, err := rig.mgr.StartCall(KindAudio, []string{"carol"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestInboundInviteWhileActiveAnswersBusy(t *testing.T) {
	rig := newTestRig(t, "alice")

	// Get alice into a Calling session k1 with bob.
	mustDeliver(t, rig.mgr, "bob", signal.Invite{
		CallID: "k1", ChannelID: "cb1", Media: signal.MediaAudio, InviterID: "bob", InviteeIDs: []string{"alice"},
	})
	if err := rig.mgr.AcceptActive(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitSnapshot(t, rig.snaps, "calling", func(s Snapshot) bool { return s.State == StateCalling })

	// Carol invites while k1 is live.
	payload, _ := signal.Encode(signal.Invite{
		CallID: "k3", ChannelID: "cc1", Media: signal.MediaVideo, InviterID: "carol", InviteeIDs: []string{"alice"},
	})
	if err := rig.mgr.Deliver("carol", payload); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	busies := rig.sender.ofType(signal.TypeBusy)
	if len(busies) != 1 || busies[0].to != "carol" || signal.CallIDOf(busies[0].action) != "k3" {
		t.Fatalf("expected busy for k3 to carol, got %+v", busies)
	}

	snap := rig.mgr.Snapshot()
	if snap.CallID != "k1" || snap.State != StateCalling {
		t.Fatalf("active session disturbed by busy invite: %+v", snap)
	}
}

func TestStaleCallReferencesAreIgnored(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	before := rig.mgr.Snapshot()

	for _, a := range []signal.Action{
		signal.Accept{CallID: "k9"},
		signal.Refuse{CallID: "k9"},
		signal.Cancel{CallID: "k9"},
		signal.HangUp{CallID: "k9"},
	} {
		payload, _ := signal.Encode(a)
		if err := rig.mgr.Deliver("bob", payload); !errors.Is(err, ErrStaleCall) {
			t.Fatalf("%s: expected ErrStaleCall, got %v", a.Type(), err)
		}
	}

	after := rig.mgr.Snapshot()
	if after.State != before.State || after.CallID != before.CallID {
		t.Fatalf("stale references changed session: before %+v after %+v", before, after)
	}
}

func TestMalformedSignalingIsDropped(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}

	var perr *signal.ProtocolError
	if err := rig.mgr.Deliver("bob", []byte(`{"type":"explode"}`)); !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}

	if snap := rig.mgr.Snapshot(); snap.State != StateConnecting {
		t.Fatalf("malformed message changed session: %+v", snap)
	}
}

func TestRingTimeoutAbandonsInvite(t *testing.T) {
	rig := newTestRig(t, "alice")

	mustDeliver(t, rig.mgr, "bob", signal.Invite{
		CallID: "k2", ChannelID: "cb2", Media: signal.MediaAudio, InviterID: "bob", InviteeIDs: []string{"alice"},
	})

	// The ringing heartbeat goes out immediately.
	alives := rig.sender.ofType(signal.TypeAlive)
	if len(alives) != 1 || alives[0].to != "bob" {
		t.Fatalf("expected alive to bob, got %+v", alives)
	}

	waitSnapshot(t, rig.snaps, "timeout", func(s Snapshot) bool {
		return s.State == StateIdle && s.Reason == ReasonTimeout
	})

	// Silent abandon: no refuse, cancel or hang-up went out.
	for _, typ := range []string{signal.TypeRefuse, signal.TypeCancel, signal.TypeHangUp} {
		if msgs := rig.sender.ofType(typ); len(msgs) != 0 {
			t.Fatalf("ring timeout sent %s: %+v", typ, msgs)
		}
	}

	if err := rig.mgr.AcceptActive(); !errors.Is(err, ErrStaleCall) {
		t.Fatalf("accept after timeout: expected ErrStaleCall, got %v", err)
	}
}

func TestNoAnswerTimeoutCancels(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}

	waitSnapshot(t, rig.snaps, "timeout", func(s Snapshot) bool {
		return s.State == StateIdle && s.Reason == ReasonTimeout
	})

	cancels := rig.sender.ofType(signal.TypeCancel)
	if len(cancels) != 1 || cancels[0].to != "bob" {
		t.Fatalf("expected cancel to bob, got %+v", cancels)
	}
}

func TestInviteeAcceptFlow(t *testing.T) {
	rig := newTestRig(t, "bob")

	mustDeliver(t, rig.mgr, "alice", signal.Invite{
		CallID: "k1", ChannelID: "ca1", Media: signal.MediaVideo, InviterID: "alice", InviteeIDs: []string{"bob"},
	})
	snap := rig.mgr.Snapshot()
	if snap.Role != RoleInvitee || snap.State != StateConnecting || snap.ChannelID != "ca1" {
		t.Fatalf("unexpected invitee snapshot: %+v", snap)
	}

	if err := rig.mgr.AcceptActive(); err != nil {
		t.Fatalf("accept: %v", err)
	}

	accepts := rig.sender.ofType(signal.TypeAccept)
	if len(accepts) != 1 || accepts[0].to != "alice" || signal.CallIDOf(accepts[0].action) != "k1" {
		t.Fatalf("expected accept for k1 to alice, got %+v", accepts)
	}
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	// Ring timer is cancelled by accept: well past the window, still Calling.
	time.Sleep(120 * time.Millisecond)
	if snap := rig.mgr.Snapshot(); snap.State != StateCalling {
		t.Fatalf("expected calling after accept, got %+v", snap)
	}
}

func TestInviteeRefuse(t *testing.T) {
	rig := newTestRig(t, "bob")

	mustDeliver(t, rig.mgr, "alice", signal.Invite{
		CallID: "k1", ChannelID: "ca1", Media: signal.MediaAudio, InviterID: "alice", InviteeIDs: []string{"bob"},
	})
	if err := rig.mgr.RefuseActive(); err != nil {
		t.Fatalf("refuse: %v", err)
	}

	refuses := rig.sender.ofType(signal.TypeRefuse)
	if len(refuses) != 1 || refuses[0].to != "alice" {
		t.Fatalf("expected refuse to alice, got %+v", refuses)
	}
	if snap := rig.mgr.Snapshot(); snap.State != StateIdle {
		t.Fatalf("expected idle after refuse, got %+v", snap)
	}
}

func TestRemoteRefuseEndsOutgoingCall(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Refuse{CallID: "k1"})

	snap := waitSnapshot(t, rig.snaps, "refused", func(s Snapshot) bool { return s.State == StateIdle })
	if snap.Reason != ReasonRefused {
		t.Fatalf("expected refused reason, got %+v", snap)
	}
}

func TestPeerLeavingEndsOneToOneCall(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	rig.mgr.SelfJoined("c1", 7, 0)
	rig.mgr.RemoteUserJoined("c1", "bob", 8)
	waitSnapshot(t, rig.snaps, "bob joined", func(s Snapshot) bool {
		return len(s.Roster) == 1 && s.Roster[0].Status == StatusJoined
	})

	rig.mgr.RemoteUserLeft("c1", "bob", 8)
	snap := waitSnapshot(t, rig.snaps, "peer left", func(s Snapshot) bool { return s.State == StateIdle })
	if snap.Reason != ReasonPeerLeft {
		t.Fatalf("expected peer_left reason, got %+v", snap)
	}
	if got := rig.adapter.leaveCount(); got != 1 {
		t.Fatalf("expected one leave, got %d", got)
	}
	// Locally initiated teardown it is not: no hang-up went out.
	if msgs := rig.sender.ofType(signal.TypeHangUp); len(msgs) != 0 {
		t.Fatalf("peer-left teardown sent hang-up: %+v", msgs)
	}
}

func TestEngineErrorEndsCall(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindVideo, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	rig.mgr.EngineError("c1", errors.New("ice failure"))
	snap := waitSnapshot(t, rig.snaps, "engine error", func(s Snapshot) bool { return s.State == StateIdle })
	if snap.Reason != ReasonError {
		t.Fatalf("expected error reason, got %+v", snap)
	}
}

func TestTokenFailureAbortsJoin(t *testing.T) {
	rig := newTestRig(t, "alice")
	rig.tokens.fail = true

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})

	snap := waitSnapshot(t, rig.snaps, "token failure", func(s Snapshot) bool { return s.State == StateIdle })
	if snap.Reason != ReasonError {
		t.Fatalf("expected error reason, got %+v", snap)
	}
	if got := rig.adapter.joinCount(); got != 0 {
		t.Fatalf("join dispatched despite token failure: %d", got)
	}
}

func TestLateJoinCredentialsAreDiscarded(t *testing.T) {
	rig := newTestRig(t, "alice")
	rig.tokens.gate = make(chan struct{})

	if _, err := rig.mgr.StartCall(KindAudio, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitSnapshot(t, rig.snaps, "calling", func(s Snapshot) bool { return s.State == StateCalling })

	// Hang up while the token fetch is still in flight.
	if err := rig.mgr.HangUpActive(); err != nil {
		t.Fatalf("hang up: %v", err)
	}
	close(rig.tokens.gate)

	// The late credentials must not revive the session or join the channel.
	time.Sleep(50 * time.Millisecond)
	if got := rig.adapter.joinCount(); got != 0 {
		t.Fatalf("late credentials joined channel: %d", got)
	}
	if snap := rig.mgr.Snapshot(); snap.State != StateIdle {
		t.Fatalf("late credentials revived session: %+v", snap)
	}
}

func TestMuteTogglesKeepStateAndNotify(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindVideo, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}

	if err := rig.mgr.SetMediaFlag(rtc.TrackAudio, true); err != nil {
		t.Fatalf("mute audio: %v", err)
	}
	snap := waitSnapshot(t, rig.snaps, "audio muted", func(s Snapshot) bool { return s.Self.AudioMuted })
	if snap.State != StateConnecting {
		t.Fatalf("mute changed lifecycle state: %+v", snap)
	}

	if err := rig.mgr.SetMediaFlag(rtc.TrackVideo, true); err != nil {
		t.Fatalf("mute video: %v", err)
	}
	waitSnapshot(t, rig.snaps, "video muted", func(s Snapshot) bool { return s.Self.VideoMuted })

	rig.adapter.mu.Lock()
	audio, video := len(rig.adapter.audioMutes), len(rig.adapter.videoMutes)
	rig.adapter.mu.Unlock()
	if audio != 1 || video != 1 {
		t.Fatalf("expected one mute dispatch per track, got audio=%d video=%d", audio, video)
	}
}

func TestRemoteMuteUpdatesRoster(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindVideo, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })
	rig.mgr.RemoteUserJoined("c1", "bob", 8)

	rig.mgr.RemoteMuteChanged("bob", rtc.TrackVideo, true)
	waitSnapshot(t, rig.snaps, "bob video muted", func(s Snapshot) bool {
		return len(s.Roster) == 1 && s.Roster[0].Muted.VideoMuted
	})
}

func TestMultiPartyRefusalsDrainRoster(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindMultiAudio, []string{"bob", "carol"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if got := len(rig.sender.ofType(signal.TypeInvite)); got != 2 {
		t.Fatalf("expected two invites, got %d", got)
	}

	mustDeliver(t, rig.mgr, "bob", signal.Refuse{CallID: "k1"})
	if snap := rig.mgr.Snapshot(); snap.State != StateConnecting {
		t.Fatalf("single refusal ended multi-party call: %+v", snap)
	}

	mustDeliver(t, rig.mgr, "carol", signal.Busy{CallID: "k1"})
	snap := waitSnapshot(t, rig.snaps, "drained", func(s Snapshot) bool { return s.State == StateIdle })
	if snap.State != StateIdle {
		t.Fatalf("expected idle after roster drained, got %+v", snap)
	}
}

func TestMultiPartyStaysCallingWhileAnyPeerJoined(t *testing.T) {
	rig := newTestRig(t, "alice")

	if _, err := rig.mgr.StartCall(KindMultiVideo, []string{"bob", "carol"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })

	rig.mgr.SelfJoined("c1", 1, 0)
	rig.mgr.RemoteUserJoined("c1", "bob", 2)
	rig.mgr.RemoteUserJoined("c1", "carol", 3)
	waitSnapshot(t, rig.snaps, "both joined", func(s Snapshot) bool {
		joined := 0
		for _, p := range s.Roster {
			if p.Status == StatusJoined {
				joined++
			}
		}
		return joined == 2
	})

	rig.mgr.RemoteUserLeft("c1", "bob", 2)
	waitSnapshot(t, rig.snaps, "bob left", func(s Snapshot) bool {
		for _, p := range s.Roster {
			if p.UserID == "bob" && p.Status == StatusLeft {
				return true
			}
		}
		return false
	})
	if snap := rig.mgr.Snapshot(); snap.State != StateCalling {
		t.Fatalf("call ended while carol still joined: %+v", snap)
	}

	rig.mgr.RemoteUserLeft("c1", "carol", 3)
	waitSnapshot(t, rig.snaps, "roster drained", func(s Snapshot) bool { return s.State == StateIdle })
}

func TestHistoryRecordedOnTeardown(t *testing.T) {
	rig := newTestRig(t, "alice")

	records := make(chan *Record, 1)
	rig.mgr.SetHistory(historyFunc(func(rec *Record) error {
		records <- rec
		return nil
	}))

	if _, err := rig.mgr.StartCall(KindVideo, []string{"bob"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	mustDeliver(t, rig.mgr, "bob", signal.Accept{CallID: "k1"})
	waitFor(t, "channel join", func() bool { return rig.adapter.joinCount() == 1 })
	if err := rig.mgr.HangUpActive(); err != nil {
		t.Fatalf("hang up: %v", err)
	}

	select {
	case rec := <-records:
		if rec.CallID != "k1" || rec.Reason != ReasonHangUp || rec.Media != "video" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("history record never written")
	}
}
