package rtc

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// Loopback is an Adapter without a media pipeline: joins complete
// immediately and remote peers never appear unless injected via the Peer*
// methods. It backs the demo CLI and integration tests, where the
// coordination protocol matters and the media does not.
type Loopback struct {
	mu      sync.Mutex
	events  Events
	joined  bool
	channel string
	userID  string
}

// NewLoopback builds a loopback engine pushing into the given sink. The
// sink may be nil at construction and set later with SetEvents, which
// breaks the cycle when the sink itself needs the adapter to exist first.
func NewLoopback(events Events) *Loopback {
	return &Loopback{events: events}
}

// SetEvents replaces the event sink. Must be called before the first join.
func (l *Loopback) SetEvents(events Events) {
	l.mu.Lock()
	l.events = events
	l.mu.Unlock()
}

func (l *Loopback) CreateChannelID() string {
	return uuid.NewString()
}

func (l *Loopback) JoinChannel(channelID, token, userID string) error {
	if token == "" {
		return fmt.Errorf("loopback: empty token")
	}

	l.mu.Lock()
	if l.joined {
		l.mu.Unlock()
		return fmt.Errorf("loopback: already joined %s", l.channel)
	}
	l.joined = true
	l.channel = channelID
	l.userID = userID
	l.mu.Unlock()

	go l.events.SelfJoined(channelID, NumericUID(userID), 0)
	return nil
}

func (l *Loopback) LeaveChannel() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joined = false
	l.channel = ""
	return nil
}

func (l *Loopback) EnableAudio() error             { return nil }
func (l *Loopback) EnableVideo() error             { return nil }
func (l *Loopback) MuteLocalAudio(muted bool) error { return nil }
func (l *Loopback) MuteLocalVideo(muted bool) error { return nil }
func (l *Loopback) SwitchCamera() error            { return nil }

// PeerJoined injects a remote-join event, as if the engine reported a peer
// entering the current channel.
func (l *Loopback) PeerJoined(userID string) {
	l.mu.Lock()
	channel := l.channel
	l.mu.Unlock()
	if channel == "" {
		return
	}
	l.events.RemoteUserJoined(channel, userID, NumericUID(userID))
}

// PeerLeft injects a remote-leave event.
func (l *Loopback) PeerLeft(userID string) {
	l.mu.Lock()
	channel := l.channel
	l.mu.Unlock()
	if channel == "" {
		return
	}
	l.events.RemoteUserLeft(channel, userID, NumericUID(userID))
}

// Joined reports whether a join completed without a matching leave.
func (l *Loopback) Joined() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.joined
}

var _ Adapter = (*Loopback)(nil)

// NumericUID derives a stable numeric uid from a string user id, for engines
// and backends that address participants by number.
func NumericUID(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	// Keep it positive and out of the reserved low range.
	return int(h.Sum32()&0x7fffffff)%1_000_000_000 + 1000
}
