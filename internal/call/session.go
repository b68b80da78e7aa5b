package call

import (
	"sort"
	"time"

	"github.com/vovakirdan/wirecall/internal/signal"
)

// Role fixes which side of the call this process is on. Assigned at session
// creation and never mutated.
type Role int

const (
	RoleInviter Role = iota
	RoleInvitee
)

func (r Role) String() string {
	if r == RoleInvitee {
		return "invitee"
	}
	return "inviter"
}

// Media is the call's media profile.
type Media int

const (
	MediaAudio Media = iota
	MediaVideo
)

func (m Media) String() string {
	if m == MediaVideo {
		return signal.MediaVideo
	}
	return signal.MediaAudio
}

// Kind combines the media profile with the party scope.
type Kind struct {
	Media Media
	Multi bool
}

// Common kinds.
var (
	KindAudio      = Kind{Media: MediaAudio}
	KindVideo      = Kind{Media: MediaVideo}
	KindMultiAudio = Kind{Media: MediaAudio, Multi: true}
	KindMultiVideo = Kind{Media: MediaVideo, Multi: true}
)

func mediaFromWire(s string) Media {
	if s == signal.MediaVideo {
		return MediaVideo
	}
	return MediaAudio
}

// State is the session lifecycle state. Transitions are monotonic:
// Connecting -> Calling -> Ending -> Idle, with Calling optionally skipped.
// Idle doubles as the absence-of-session state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateCalling
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateCalling:
		return "calling"
	case StateEnding:
		return "ending"
	default:
		return "idle"
	}
}

// JoinStatus tracks a roster member's presence.
type JoinStatus int

const (
	StatusInvited JoinStatus = iota
	StatusJoined
	StatusLeft
)

func (s JoinStatus) String() string {
	switch s {
	case StatusJoined:
		return "joined"
	case StatusLeft:
		return "left"
	default:
		return "invited"
	}
}

// MediaFlags is the mute state of a participant's tracks.
type MediaFlags struct {
	AudioMuted bool
	VideoMuted bool
}

// Participant is one remote roster member.
type Participant struct {
	UserID string
	Status JoinStatus
	UID    int
	Muted  MediaFlags
}

// End reasons surfaced in terminal snapshots.
const (
	ReasonHangUp   = "hangup"
	ReasonCancel   = "cancelled"
	ReasonRefused  = "refused"
	ReasonBusy     = "busy"
	ReasonTimeout  = "timeout"
	ReasonPeerLeft = "peer_left"
	ReasonError    = "error"
	ReasonShutdown = "shutdown"
)

// session is the single authoritative call state. It is only ever touched by
// the manager's event loop goroutine.
type session struct {
	callID    string
	channelID string
	role      Role
	kind      Kind
	state     State
	inviterID string

	roster map[string]*Participant

	selfFlags MediaFlags
	selfUID   int

	// delivered is set when the invitee's ringing heartbeat arrives.
	delivered bool

	// joinRequested flips when credentials are being fetched for a channel
	// join; leftRTC guards LeaveChannel against duplicate invocation.
	joinRequested bool
	joinedRTC     bool
	leftRTC       bool
	// peerEverJoined distinguishes "nobody arrived yet" from "everyone left"
	// when deciding whether a multi-party roster has drained.
	peerEverJoined bool

	ringTimer   *time.Timer
	answerTimer *time.Timer

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	endReason string
}

func (s *session) stopTimers() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}
}

func (s *session) joinedPeerCount() int {
	n := 0
	for _, p := range s.roster {
		if p.Status == StatusJoined {
			n++
		}
	}
	return n
}

// Snapshot is an immutable copy of the session pushed to listeners. The
// presentation layer consumes snapshots and never mutates session state.
type Snapshot struct {
	CallID    string
	ChannelID string
	Role      Role
	Kind      Kind
	State     State
	InviterID string
	Delivered bool
	Self      MediaFlags
	SelfUID   int
	Roster    []Participant
	StartedAt time.Time
	Reason    string
}

// Active reports whether the snapshot describes a live session.
func (s Snapshot) Active() bool {
	return s.State != StateIdle
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		CallID:    s.callID,
		ChannelID: s.channelID,
		Role:      s.role,
		Kind:      s.kind,
		State:     s.state,
		InviterID: s.inviterID,
		Delivered: s.delivered,
		Self:      s.selfFlags,
		SelfUID:   s.selfUID,
		StartedAt: s.startedAt,
		Reason:    s.endReason,
	}
	for _, p := range s.roster {
		snap.Roster = append(snap.Roster, *p)
	}
	sort.Slice(snap.Roster, func(i, j int) bool {
		return snap.Roster[i].UserID < snap.Roster[j].UserID
	})
	return snap
}
