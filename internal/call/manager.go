// Package call implements the call-session state machine and the manager
// that drives it: inbound signaling, RTC engine callbacks, timer fires and
// local user actions converge on one serialized event queue, which is the
// sole place session state is mutated.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/rtc"
	"github.com/vovakirdan/wirecall/internal/signal"
)

// SignalSender delivers an encoded signaling payload to a user over the IM
// transport. Implementations must not block the caller for long: buffer and
// drop on overload rather than stall the event loop. Signaling is
// fire-and-forget; a failed send is logged, never retried.
type SignalSender interface {
	Send(ctx context.Context, toUserID string, payload []byte) error
}

// Listener receives a session snapshot after every state, roster or media
// mutation. Callbacks run on the event loop goroutine and must return
// promptly.
type Listener interface {
	OnSessionChanged(snap Snapshot)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(snap Snapshot)

func (f ListenerFunc) OnSessionChanged(snap Snapshot) { f(snap) }

// Config tunes a Manager.
type Config struct {
	// SelfID is the local user's identifier on the IM transport.
	SelfID string
	// AppKey identifies the deployment towards the application backend.
	AppKey string
	// RingTimeout bounds how long an incoming invite rings before it is
	// abandoned. NoAnswerTimeout is the inviter-side equivalent.
	RingTimeout     time.Duration
	NoAnswerTimeout time.Duration
	// NewCallID overrides call id allocation. Defaults to uuid.
	NewCallID func() string
}

const defaultTimeout = 30 * time.Second

// Manager owns zero or one active call session and routes every event
// source to it. All public operations are synchronous from the caller's
// point of view; RTC join/leave completes asynchronously and is fed back in
// as engine events.
type Manager struct {
	cfg     Config
	adapter rtc.Adapter
	tokens  rtc.TokenProvider
	sender  SignalSender
	log     *zerolog.Logger

	historyMu sync.Mutex
	history   HistoryRecorder

	events chan event
	done   chan struct{}

	// Loop-owned state. Never touched outside Run.
	sess      *session
	listeners []Listener
}

// NewManager builds a manager. Call Run to start processing.
func NewManager(cfg Config, adapter rtc.Adapter, tokens rtc.TokenProvider, sender SignalSender, logger *zerolog.Logger) *Manager {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = defaultTimeout
	}
	if cfg.NoAnswerTimeout <= 0 {
		cfg.NoAnswerTimeout = defaultTimeout
	}
	if cfg.NewCallID == nil {
		cfg.NewCallID = uuid.NewString
	}
	return &Manager{
		cfg:     cfg,
		adapter: adapter,
		tokens:  tokens,
		sender:  sender,
		log:     logger,
		events:  make(chan event, 128),
		done:    make(chan struct{}),
	}
}

// SetHistory attaches a call-history recorder.
func (m *Manager) SetHistory(h HistoryRecorder) {
	m.historyMu.Lock()
	m.history = h
	m.historyMu.Unlock()
}

// Run processes the event queue until ctx is cancelled. The active session,
// if any, is forced to Idle on the way out.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.teardown(ReasonShutdown)
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// submit enqueues an event and blocks until the loop picks it up or the
// manager stops.
func (m *Manager) submit(ev event) error {
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrStopped
	}
}

// postAsync enqueues a fire-and-forget event (engine callbacks, timers).
// Dropping on overload is safe: RTC events are advisory.
func (m *Manager) postAsync(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	default:
		m.log.Warn().Msg("event queue full, dropping async event")
	}
}

// StartCall creates an inviter session, sends invites and arms the
// no-answer timer. Fails with ErrBusy if a session is already active.
func (m *Manager) StartCall(kind Kind, inviteeIDs []string) (Snapshot, error) {
	reply := make(chan startReply, 1)
	if err := m.submit(cmdStart{kind: kind, invitees: inviteeIDs, reply: reply}); err != nil {
		return Snapshot{}, err
	}
	r := <-reply
	return r.snap, r.err
}

// Deliver feeds an inbound signaling payload into the manager. Malformed
// payloads fail with *signal.ProtocolError and change nothing; stale call
// references fail with ErrStaleCall and change nothing.
func (m *Manager) Deliver(from string, payload []byte) error {
	action, err := signal.Decode(payload)
	if err != nil {
		m.log.Warn().Err(err).Str("from", from).Msg("dropping malformed signaling message")
		return err
	}
	return m.DeliverAction(from, action)
}

// DeliverAction is Deliver for an already-decoded action.
//
// Known limitation: actions are processed strictly in arrival order. The
// transport is assumed ordered per conversation; if an accept overtakes its
// invite across conversations, whichever arrives first wins.
func (m *Manager) DeliverAction(from string, action signal.Action) error {
	reply := make(chan error, 1)
	if err := m.submit(cmdDeliver{from: from, action: action, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// AcceptActive accepts the ringing incoming call.
func (m *Manager) AcceptActive() error { return m.roundTrip(func(r chan error) event { return cmdAccept{reply: r} }) }

// RefuseActive declines the ringing incoming call.
func (m *Manager) RefuseActive() error { return m.roundTrip(func(r chan error) event { return cmdRefuse{reply: r} }) }

// CancelActive withdraws an outgoing call that has not been answered.
func (m *Manager) CancelActive() error { return m.roundTrip(func(r chan error) event { return cmdCancel{reply: r} }) }

// HangUpActive terminates the active call. During Connecting it degrades to
// cancel (inviter) or refuse (invitee). A second invocation finds no active
// session and fails with ErrStaleCall without further side effects.
func (m *Manager) HangUpActive() error { return m.roundTrip(func(r chan error) event { return cmdHangUp{reply: r} }) }

// SetMediaFlag mutes or unmutes a local track. The session state does not
// change; the mute propagates through the RTC engine and a fresh snapshot
// is pushed to listeners.
func (m *Manager) SetMediaFlag(track rtc.Track, muted bool) error {
	return m.roundTrip(func(r chan error) event { return cmdSetMedia{track: track, muted: muted, reply: r} })
}

// SwitchCamera flips the capture device on a video call.
func (m *Manager) SwitchCamera() error {
	return m.roundTrip(func(r chan error) event { return cmdSwitchCamera{reply: r} })
}

func (m *Manager) roundTrip(build func(chan error) event) error {
	reply := make(chan error, 1)
	if err := m.submit(build(reply)); err != nil {
		return err
	}
	return <-reply
}

// Subscribe registers a listener for session snapshots.
func (m *Manager) Subscribe(l Listener) {
	_ = m.submit(cmdSubscribe{listener: l})
}

// Snapshot returns the current session snapshot, or an Idle snapshot when
// no session is active.
func (m *Manager) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if err := m.submit(cmdSnapshot{reply: reply}); err != nil {
		return Snapshot{State: StateIdle}
	}
	return <-reply
}

// rtc.Events implementation: engine callbacks become queued events and are
// judged against the active session when processed, not when delivered.

func (m *Manager) SelfJoined(channelID string, uid int, elapsed time.Duration) {
	m.postAsync(evSelfJoined{channelID: channelID, uid: uid, elapsed: elapsed})
}

func (m *Manager) RemoteUserJoined(channelID, userID string, uid int) {
	m.postAsync(evRemoteJoined{channelID: channelID, userID: userID, uid: uid})
}

func (m *Manager) RemoteUserLeft(channelID, userID string, uid int) {
	m.postAsync(evRemoteLeft{channelID: channelID, userID: userID, uid: uid})
}

func (m *Manager) RemoteMuteChanged(userID string, track rtc.Track, muted bool) {
	m.postAsync(evRemoteMute{userID: userID, track: track, muted: muted})
}

func (m *Manager) EngineError(channelID string, err error) {
	m.postAsync(evEngineError{channelID: channelID, err: err})
}

var _ rtc.Events = (*Manager)(nil)

func (m *Manager) handle(ev event) {
	switch e := ev.(type) {
	case cmdStart:
		snap, err := m.handleStart(e.kind, e.invitees)
		e.reply <- startReply{snap: snap, err: err}
	case cmdDeliver:
		e.reply <- m.handleDeliver(e.from, e.action)
	case cmdAccept:
		e.reply <- m.handleAccept()
	case cmdRefuse:
		e.reply <- m.handleRefuse()
	case cmdCancel:
		e.reply <- m.handleCancel()
	case cmdHangUp:
		e.reply <- m.handleHangUp()
	case cmdSetMedia:
		e.reply <- m.handleSetMedia(e.track, e.muted)
	case cmdSwitchCamera:
		e.reply <- m.handleSwitchCamera()
	case cmdSubscribe:
		m.listeners = append(m.listeners, e.listener)
	case cmdSnapshot:
		e.reply <- m.currentSnapshot()
	case evJoinReady:
		m.handleJoinReady(e)
	case evSelfJoined:
		m.handleSelfJoined(e)
	case evRemoteJoined:
		m.handleRemoteJoined(e)
	case evRemoteLeft:
		m.handleRemoteLeft(e)
	case evRemoteMute:
		m.handleRemoteMute(e)
	case evEngineError:
		m.handleEngineError(e)
	case evTimer:
		m.handleTimer(e)
	}
}

func (m *Manager) currentSnapshot() Snapshot {
	if m.sess == nil {
		return Snapshot{State: StateIdle}
	}
	return m.sess.snapshot()
}

func (m *Manager) notify() {
	snap := m.currentSnapshot()
	for _, l := range m.listeners {
		l.OnSessionChanged(snap)
	}
}

func (m *Manager) handleStart(kind Kind, inviteeIDs []string) (Snapshot, error) {
	if m.sess != nil {
		return Snapshot{}, ErrBusy
	}
	if len(inviteeIDs) == 0 {
		return Snapshot{}, &signal.ProtocolError{Reason: "start call without invitees"}
	}

	s := &session{
		callID:    m.cfg.NewCallID(),
		channelID: m.adapter.CreateChannelID(),
		role:      RoleInviter,
		kind:      kind,
		state:     StateConnecting,
		inviterID: m.cfg.SelfID,
		roster:    make(map[string]*Participant, len(inviteeIDs)),
		createdAt: time.Now(),
	}
	for _, id := range inviteeIDs {
		s.roster[id] = &Participant{UserID: id, Status: StatusInvited}
	}
	m.sess = s

	m.enableMedia(kind)

	invite := signal.Invite{
		CallID:     s.callID,
		ChannelID:  s.channelID,
		Media:      kind.Media.String(),
		Multi:      kind.Multi,
		InviterID:  m.cfg.SelfID,
		InviteeIDs: inviteeIDs,
		TS:         s.createdAt.UnixMilli(),
	}
	for _, id := range inviteeIDs {
		m.send(id, invite)
	}

	s.answerTimer = m.armTimer(s.callID, timerNoAnswer, m.cfg.NoAnswerTimeout)

	m.log.Info().Str("call_id", s.callID).Str("channel_id", s.channelID).
		Str("media", kind.Media.String()).Bool("multi", kind.Multi).
		Msg("outgoing call started")
	m.notify()
	return s.snapshot(), nil
}

func (m *Manager) handleDeliver(from string, action signal.Action) error {
	switch a := action.(type) {
	case signal.Invite:
		return m.deliverInvite(from, a)
	case signal.Alive:
		return m.deliverAlive(from, a)
	case signal.Accept:
		return m.deliverAccept(from, a)
	case signal.Refuse:
		return m.deliverRefuse(from, a)
	case signal.Cancel:
		return m.deliverCancel(from, a)
	case signal.HangUp:
		return m.deliverHangUp(from, a)
	case signal.Busy:
		return m.deliverBusy(from, a)
	default:
		return &signal.ProtocolError{Reason: "unhandled action"}
	}
}

func (m *Manager) deliverInvite(from string, a signal.Invite) error {
	if m.sess != nil {
		// The active session is untouched; the new inviter gets a busy
		// answer for the call it tried to start.
		m.log.Info().Str("call_id", a.CallID).Str("from", from).
			Str("active_call_id", m.sess.callID).Msg("busy: refusing second invite")
		m.send(a.InviterID, signal.Busy{CallID: a.CallID})
		return ErrBusy
	}
	if a.InviterID == m.cfg.SelfID {
		return &signal.ProtocolError{Reason: "invite from self"}
	}

	kind := Kind{Media: mediaFromWire(a.Media), Multi: a.Multi}
	s := &session{
		callID:    a.CallID,
		channelID: a.ChannelID,
		role:      RoleInvitee,
		kind:      kind,
		state:     StateConnecting,
		inviterID: a.InviterID,
		roster:    make(map[string]*Participant),
		createdAt: time.Now(),
	}
	s.roster[a.InviterID] = &Participant{UserID: a.InviterID, Status: StatusInvited}
	for _, id := range a.InviteeIDs {
		if id == m.cfg.SelfID || id == a.InviterID {
			continue
		}
		s.roster[id] = &Participant{UserID: id, Status: StatusInvited}
	}
	m.sess = s

	m.enableMedia(kind)
	m.send(a.InviterID, signal.Alive{CallID: s.callID})
	s.ringTimer = m.armTimer(s.callID, timerRing, m.cfg.RingTimeout)

	m.log.Info().Str("call_id", s.callID).Str("inviter", a.InviterID).
		Str("media", a.Media).Msg("incoming call ringing")
	m.notify()
	return nil
}

func (m *Manager) deliverAlive(from string, a signal.Alive) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.role != RoleInviter || s.state != StateConnecting {
		return ErrStaleCall
	}
	if !s.delivered {
		s.delivered = true
		m.log.Debug().Str("call_id", s.callID).Str("from", from).Msg("invite delivered, remote ringing")
		m.notify()
	}
	return nil
}

func (m *Manager) deliverAccept(from string, a signal.Accept) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.role != RoleInviter {
		return ErrStaleCall
	}
	if s.state == StateCalling {
		// Additional accepts on a multi-party call; the roster updates as
		// peers actually join the channel.
		return nil
	}
	if s.state != StateConnecting {
		return ErrStaleCall
	}

	s.stopTimers()
	s.state = StateCalling
	m.log.Info().Str("call_id", s.callID).Str("from", from).Msg("call accepted, joining channel")
	m.beginJoin(s)
	m.notify()
	return nil
}

func (m *Manager) deliverRefuse(from string, a signal.Refuse) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.role != RoleInviter {
		return ErrStaleCall
	}
	m.markLeft(s, from)
	if !s.kind.Multi || m.rosterDrained(s) {
		m.log.Info().Str("call_id", s.callID).Str("from", from).Msg("call refused")
		m.teardown(ReasonRefused)
		return nil
	}
	m.notify()
	return nil
}

func (m *Manager) deliverCancel(from string, a signal.Cancel) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.role != RoleInvitee || from != s.inviterID {
		return ErrStaleCall
	}
	m.log.Info().Str("call_id", s.callID).Msg("call cancelled by inviter")
	m.teardown(ReasonCancel)
	return nil
}

func (m *Manager) deliverHangUp(from string, a signal.HangUp) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.kind.Multi {
		m.markLeft(s, from)
		if !m.rosterDrained(s) {
			m.notify()
			return nil
		}
	}
	m.log.Info().Str("call_id", s.callID).Str("from", from).Msg("remote hang-up")
	m.teardown(ReasonHangUp)
	return nil
}

func (m *Manager) deliverBusy(from string, a signal.Busy) error {
	s, err := m.activeCall(a.CallID)
	if err != nil {
		return err
	}
	if s.role != RoleInviter {
		return ErrStaleCall
	}
	m.markLeft(s, from)
	if !s.kind.Multi || m.rosterDrained(s) {
		m.log.Info().Str("call_id", s.callID).Str("from", from).Msg("remote busy")
		m.teardown(ReasonBusy)
		return nil
	}
	m.notify()
	return nil
}

func (m *Manager) handleAccept() error {
	s := m.sess
	if s == nil || s.role != RoleInvitee || s.state != StateConnecting {
		return ErrStaleCall
	}

	s.stopTimers()
	s.state = StateCalling
	m.send(s.inviterID, signal.Accept{CallID: s.callID})
	m.log.Info().Str("call_id", s.callID).Msg("accepted incoming call, joining channel")
	m.beginJoin(s)
	m.notify()
	return nil
}

func (m *Manager) handleRefuse() error {
	s := m.sess
	if s == nil || s.role != RoleInvitee || s.state != StateConnecting {
		return ErrStaleCall
	}
	m.send(s.inviterID, signal.Refuse{CallID: s.callID})
	m.teardown(ReasonRefused)
	return nil
}

func (m *Manager) handleCancel() error {
	s := m.sess
	if s == nil || s.role != RoleInviter || s.state != StateConnecting {
		return ErrStaleCall
	}
	m.broadcastToRoster(s, signal.Cancel{CallID: s.callID})
	m.teardown(ReasonCancel)
	return nil
}

func (m *Manager) handleHangUp() error {
	s := m.sess
	if s == nil {
		return ErrStaleCall
	}

	switch s.state {
	case StateConnecting:
		// Hanging up before the call connects degrades to cancel or refuse.
		if s.role == RoleInviter {
			return m.handleCancel()
		}
		return m.handleRefuse()
	case StateCalling:
		m.broadcastToRoster(s, signal.HangUp{CallID: s.callID})
		m.teardown(ReasonHangUp)
		return nil
	default:
		return ErrStaleCall
	}
}

func (m *Manager) handleSetMedia(track rtc.Track, muted bool) error {
	s := m.sess
	if s == nil {
		return ErrStaleCall
	}

	var err error
	switch track {
	case rtc.TrackVideo:
		err = m.adapter.MuteLocalVideo(muted)
		s.selfFlags.VideoMuted = muted
	default:
		err = m.adapter.MuteLocalAudio(muted)
		s.selfFlags.AudioMuted = muted
	}
	if err != nil {
		m.log.Warn().Err(err).Str("track", track.String()).Msg("mute dispatch failed")
	}
	m.notify()
	return nil
}

func (m *Manager) handleSwitchCamera() error {
	s := m.sess
	if s == nil {
		return ErrStaleCall
	}
	if s.kind.Media != MediaVideo {
		return ErrStaleCall
	}
	return m.adapter.SwitchCamera()
}

// beginJoin fetches credentials off the loop and feeds the result back as an
// event, so a join completing after the session ended is discarded by the
// call-id check instead of reviving it.
func (m *Manager) beginJoin(s *session) {
	if s.joinRequested {
		return
	}
	s.joinRequested = true
	callID, channelID := s.callID, s.channelID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		token, err := m.tokens.RequestRTCToken(ctx, m.cfg.AppKey, channelID, m.cfg.SelfID)
		if err != nil {
			m.postAsync(evJoinReady{callID: callID, err: err})
			return
		}
		uids, err := m.tokens.RequestUserMap(ctx, m.cfg.AppKey, channelID, m.cfg.SelfID)
		if err != nil {
			m.postAsync(evJoinReady{callID: callID, err: err})
			return
		}
		m.postAsync(evJoinReady{callID: callID, token: token, uids: uids})
	}()
}

func (m *Manager) handleJoinReady(e evJoinReady) {
	s := m.sess
	if s == nil || s.callID != e.callID {
		m.log.Debug().Str("call_id", e.callID).Msg("discarding join credentials for ended call")
		return
	}
	if e.err != nil {
		m.log.Error().Err(e.err).Str("call_id", s.callID).Msg("token request failed, aborting join")
		m.teardown(ReasonError)
		return
	}

	if uid, ok := e.uids[m.cfg.SelfID]; ok {
		s.selfUID = uid
	}
	for userID, uid := range e.uids {
		if p, ok := s.roster[userID]; ok {
			p.UID = uid
		}
	}

	if err := m.adapter.JoinChannel(s.channelID, e.token, m.cfg.SelfID); err != nil {
		m.log.Error().Err(err).Str("call_id", s.callID).Msg("channel join dispatch failed")
		m.teardown(ReasonError)
	}
}

func (m *Manager) handleSelfJoined(e evSelfJoined) {
	s := m.sess
	if s == nil || s.channelID != e.channelID || s.state != StateCalling {
		m.log.Debug().Str("channel_id", e.channelID).Msg("discarding stale self-join")
		return
	}
	s.joinedRTC = true
	if e.uid != 0 {
		s.selfUID = e.uid
	}
	// Elapsed-time origin for the joining side.
	s.startedAt = time.Now().Add(-e.elapsed)
	m.log.Info().Str("call_id", s.callID).Int("uid", s.selfUID).Msg("joined media channel")
	m.notify()
}

func (m *Manager) handleRemoteJoined(e evRemoteJoined) {
	s := m.sess
	if s == nil || s.channelID != e.channelID || s.state != StateCalling {
		return
	}
	p, ok := s.roster[e.userID]
	if !ok {
		// Multi-party calls may grow beyond the original invite list.
		p = &Participant{UserID: e.userID}
		s.roster[e.userID] = p
	}
	p.Status = StatusJoined
	if e.uid != 0 {
		p.UID = e.uid
	}
	s.peerEverJoined = true
	m.log.Info().Str("call_id", s.callID).Str("user", e.userID).Msg("peer joined media channel")
	m.notify()
}

func (m *Manager) handleRemoteLeft(e evRemoteLeft) {
	s := m.sess
	if s == nil || s.channelID != e.channelID {
		return
	}
	p, ok := s.roster[e.userID]
	if !ok {
		return
	}
	p.Status = StatusLeft

	if !s.kind.Multi {
		m.log.Info().Str("call_id", s.callID).Str("user", e.userID).Msg("peer left, ending call")
		m.teardown(ReasonPeerLeft)
		return
	}
	if s.peerEverJoined && s.joinedPeerCount() == 0 {
		m.log.Info().Str("call_id", s.callID).Msg("roster drained, ending call")
		m.teardown(ReasonPeerLeft)
		return
	}
	m.notify()
}

func (m *Manager) handleRemoteMute(e evRemoteMute) {
	s := m.sess
	if s == nil {
		return
	}
	p, ok := s.roster[e.userID]
	if !ok {
		return
	}
	if e.track == rtc.TrackVideo {
		p.Muted.VideoMuted = e.muted
	} else {
		p.Muted.AudioMuted = e.muted
	}
	m.notify()
}

func (m *Manager) handleEngineError(e evEngineError) {
	s := m.sess
	if s == nil || (e.channelID != "" && s.channelID != e.channelID) {
		return
	}
	m.log.Error().Err(e.err).Str("call_id", s.callID).Msg("media engine error, ending call")
	m.teardown(ReasonError)
}

func (m *Manager) handleTimer(e evTimer) {
	s := m.sess
	// Stale timers are judged by call id, never by timer identity.
	if s == nil || s.callID != e.callID {
		return
	}

	switch e.kind {
	case timerRing:
		if s.role != RoleInvitee || s.state != StateConnecting {
			return
		}
		// Abandoned ring: forced to Idle with no outbound message; the
		// inviter's own no-answer timer converges the other side.
		m.log.Info().Str("call_id", s.callID).Msg("ring timeout, abandoning invite")
		m.teardown(ReasonTimeout)
	case timerNoAnswer:
		if s.role != RoleInviter || s.state != StateConnecting {
			return
		}
		m.log.Info().Str("call_id", s.callID).Msg("no answer, cancelling call")
		m.broadcastToRoster(s, signal.Cancel{CallID: s.callID})
		m.teardown(ReasonTimeout)
	}
}

// teardown drives Ending -> Idle exactly once: timers stopped, the channel
// left if it was ever joined, listeners notified with the terminal reason,
// history recorded, session discarded.
func (m *Manager) teardown(reason string) {
	s := m.sess
	if s == nil {
		return
	}
	s.stopTimers()
	s.state = StateEnding
	s.endReason = reason

	if s.joinRequested && !s.leftRTC {
		s.leftRTC = true
		if err := m.adapter.LeaveChannel(); err != nil {
			m.log.Warn().Err(err).Str("call_id", s.callID).Msg("leave channel failed")
		}
	}
	m.notify()

	s.state = StateIdle
	s.endedAt = time.Now()
	m.notify()

	m.recordHistory(s)
	m.log.Info().Str("call_id", s.callID).Str("reason", reason).Msg("call ended")
	m.sess = nil
}

// activeCall resolves a call reference against the active session.
func (m *Manager) activeCall(callID string) (*session, error) {
	if m.sess == nil || m.sess.callID != callID {
		m.log.Debug().Str("call_id", callID).Msg("ignoring signaling for non-active call")
		return nil, ErrStaleCall
	}
	return m.sess, nil
}

func (m *Manager) markLeft(s *session, userID string) {
	if p, ok := s.roster[userID]; ok {
		p.Status = StatusLeft
	}
}

// rosterDrained reports whether every roster member has refused, left or
// gone busy.
func (m *Manager) rosterDrained(s *session) bool {
	for _, p := range s.roster {
		if p.Status != StatusLeft {
			return false
		}
	}
	return true
}

func (m *Manager) enableMedia(kind Kind) {
	if err := m.adapter.EnableAudio(); err != nil {
		m.log.Warn().Err(err).Msg("enable audio failed")
	}
	if kind.Media == MediaVideo {
		if err := m.adapter.EnableVideo(); err != nil {
			m.log.Warn().Err(err).Msg("enable video failed")
		}
	}
}

func (m *Manager) send(toUserID string, a signal.Action) {
	payload, err := signal.Encode(a)
	if err != nil {
		m.log.Error().Err(err).Str("type", a.Type()).Msg("encode signaling message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.sender.Send(ctx, toUserID, payload); err != nil {
		m.log.Warn().Err(err).Str("to", toUserID).Str("type", a.Type()).Msg("signaling send failed")
	}
}

func (m *Manager) broadcastToRoster(s *session, a signal.Action) {
	for _, p := range s.roster {
		if p.Status == StatusLeft {
			continue
		}
		m.send(p.UserID, a)
	}
}

func (m *Manager) armTimer(callID string, kind timerKind, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		m.postAsync(evTimer{callID: callID, kind: kind})
	})
}
