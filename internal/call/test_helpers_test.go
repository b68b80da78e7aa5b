package call

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/rtc"
	"github.com/vovakirdan/wirecall/internal/signal"
)

// historyFunc adapts a function to HistoryRecorder.
type historyFunc func(rec *Record) error

func (f historyFunc) RecordCall(_ context.Context, rec *Record) error { return f(rec) }

// fakeAdapter records media-engine dispatches.
type fakeAdapter struct {
	mu          sync.Mutex
	channelSeq  int
	joins       []string
	leaves      int
	audioMutes  []bool
	videoMutes  []bool
	cameraFlips int
}

func (f *fakeAdapter) CreateChannelID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelSeq++
	return fmt.Sprintf("c%d", f.channelSeq)
}

func (f *fakeAdapter) JoinChannel(channelID, token, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, channelID)
	return nil
}

func (f *fakeAdapter) LeaveChannel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeAdapter) EnableAudio() error { return nil }
func (f *fakeAdapter) EnableVideo() error { return nil }

func (f *fakeAdapter) MuteLocalAudio(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioMutes = append(f.audioMutes, muted)
	return nil
}

func (f *fakeAdapter) MuteLocalVideo(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoMutes = append(f.videoMutes, muted)
	return nil
}

func (f *fakeAdapter) SwitchCamera() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cameraFlips++
	return nil
}

func (f *fakeAdapter) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeAdapter) leaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves
}

// fakeTokens resolves credentials immediately, or blocks on gate when set.
type fakeTokens struct {
	gate chan struct{}
	fail bool
}

func (f *fakeTokens) RequestRTCToken(ctx context.Context, appKey, channelID, userID string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail {
		return "", fmt.Errorf("token backend unavailable")
	}
	return "tok-" + channelID, nil
}

func (f *fakeTokens) RequestUserMap(ctx context.Context, appKey, channelID, userID string) (map[string]int, error) {
	if f.fail {
		return nil, fmt.Errorf("user map backend unavailable")
	}
	return map[string]int{userID: rtc.NumericUID(userID)}, nil
}

// sentMessage is one outbound signaling message captured by fakeSender.
type sentMessage struct {
	to     string
	action signal.Action
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(_ context.Context, toUserID string, payload []byte) error {
	action, err := signal.Decode(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: toUserID, action: action})
	return nil
}

func (f *fakeSender) ofType(typ string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, msg := range f.sent {
		if msg.action.Type() == typ {
			out = append(out, msg)
		}
	}
	return out
}

// testRig wires a manager to fakes with fast timers and predictable ids.
type testRig struct {
	mgr     *Manager
	adapter *fakeAdapter
	tokens  *fakeTokens
	sender  *fakeSender
	snaps   chan Snapshot
	cancel  context.CancelFunc
}

func newTestRig(t *testing.T, selfID string) *testRig {
	t.Helper()

	adapter := &fakeAdapter{}
	tokens := &fakeTokens{}
	sender := &fakeSender{}
	logger := zerolog.Nop()

	callSeq := 0
	mgr := NewManager(Config{
		SelfID:          selfID,
		AppKey:          "test-app",
		RingTimeout:     80 * time.Millisecond,
		NoAnswerTimeout: 80 * time.Millisecond,
		NewCallID: func() string {
			callSeq++
			return fmt.Sprintf("k%d", callSeq)
		},
	}, adapter, tokens, sender, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	t.Cleanup(cancel)

	snaps := make(chan Snapshot, 64)
	mgr.Subscribe(ListenerFunc(func(snap Snapshot) {
		select {
		case snaps <- snap:
		default:
			// Drop if the test is not consuming.
		}
	}))

	return &testRig{mgr: mgr, adapter: adapter, tokens: tokens, sender: sender, snaps: snaps, cancel: cancel}
}

// waitSnapshot consumes snapshots until one satisfies the predicate.
func waitSnapshot(t *testing.T, ch <-chan Snapshot, desc string, pred func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot: %s", desc)
			return Snapshot{}
		}
	}
}

// waitFor polls a condition until it holds.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func mustDeliver(t *testing.T, mgr *Manager, from string, a signal.Action) {
	t.Helper()
	payload, err := signal.Encode(a)
	if err != nil {
		t.Fatalf("encode %s: %v", a.Type(), err)
	}
	if err := mgr.Deliver(from, payload); err != nil {
		t.Fatalf("deliver %s: %v", a.Type(), err)
	}
}
