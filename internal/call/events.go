package call

import (
	"time"

	"github.com/vovakirdan/wirecall/internal/rtc"
	"github.com/vovakirdan/wirecall/internal/signal"
)

// event is one unit of work for the manager's serialized queue. User
// actions, inbound signaling, RTC engine callbacks and timer fires all
// become events; the loop processes them one at a time, so session state is
// never mutated concurrently.
type event interface {
	isEvent()
}

type startReply struct {
	snap Snapshot
	err  error
}

// Local user actions. Each carries a reply channel so the public API stays
// synchronous from the caller's point of view.
type cmdStart struct {
	kind     Kind
	invitees []string
	reply    chan startReply
}

type cmdAccept struct{ reply chan error }
type cmdRefuse struct{ reply chan error }
type cmdCancel struct{ reply chan error }
type cmdHangUp struct{ reply chan error }

type cmdSetMedia struct {
	track rtc.Track
	muted bool
	reply chan error
}

type cmdSwitchCamera struct{ reply chan error }

type cmdSubscribe struct{ listener Listener }

type cmdSnapshot struct{ reply chan Snapshot }

// cmdDeliver is an inbound signaling payload from the IM transport.
type cmdDeliver struct {
	from   string
	action signal.Action
	reply  chan error
}

// Results of asynchronous work, re-queued for serialized processing.

// evJoinReady reports the outcome of the token/user-map requests issued
// before a channel join.
type evJoinReady struct {
	callID string
	token  string
	uids   map[string]int
	err    error
}

// RTC engine callbacks.
type evSelfJoined struct {
	channelID string
	uid       int
	elapsed   time.Duration
}

type evRemoteJoined struct {
	channelID string
	userID    string
	uid       int
}

type evRemoteLeft struct {
	channelID string
	userID    string
	uid       int
}

type evRemoteMute struct {
	userID string
	track  rtc.Track
	muted  bool
}

type evEngineError struct {
	channelID string
	err       error
}

// Timers.
type timerKind int

const (
	timerRing timerKind = iota
	timerNoAnswer
)

// evTimer fires with the callID the timer was armed for; a fired timer that
// no longer matches the active session is a no-op.
type evTimer struct {
	callID string
	kind   timerKind
}

func (cmdStart) isEvent()        {}
func (cmdAccept) isEvent()       {}
func (cmdRefuse) isEvent()       {}
func (cmdCancel) isEvent()       {}
func (cmdHangUp) isEvent()       {}
func (cmdSetMedia) isEvent()     {}
func (cmdSwitchCamera) isEvent() {}
func (cmdSubscribe) isEvent()    {}
func (cmdSnapshot) isEvent()     {}
func (cmdDeliver) isEvent()      {}
func (evJoinReady) isEvent()     {}
func (evSelfJoined) isEvent()    {}
func (evRemoteJoined) isEvent()  {}
func (evRemoteLeft) isEvent()    {}
func (evRemoteMute) isEvent()    {}
func (evEngineError) isEvent()   {}
func (evTimer) isEvent()         {}
