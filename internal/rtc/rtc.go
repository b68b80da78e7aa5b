// Package rtc defines the contract the call core requires from a media
// engine. The core is agnostic to which engine implements it; it only
// consumes the channel join/leave/mute surface and the pushed events.
//
// Every RTC event is advisory input to the call state machine, never the
// source of truth for call existence: signaling governs call existence,
// RTC governs media presence within an existing call.
package rtc

import (
	"context"
	"time"
)

// Track identifies a media track for mute operations and mute events.
type Track int

const (
	TrackAudio Track = iota
	TrackVideo
)

func (t Track) String() string {
	if t == TrackVideo {
		return "video"
	}
	return "audio"
}

// Adapter is the operation surface of the media engine. Methods return an
// error only when the operation cannot be dispatched; results of join and
// leave are delivered later through Events. Join, leave and mute must be
// idempotent and report completion exactly once.
type Adapter interface {
	// CreateChannelID allocates a new collision-free channel identifier
	// locally, without touching the network.
	CreateChannelID() string

	JoinChannel(channelID, token, userID string) error
	LeaveChannel() error

	EnableAudio() error
	EnableVideo() error

	MuteLocalAudio(muted bool) error
	MuteLocalVideo(muted bool) error
	SwitchCamera() error
}

// Events is the sink an engine pushes into. Implementations must not block;
// the call core queues each event for serialized processing.
type Events interface {
	SelfJoined(channelID string, uid int, elapsed time.Duration)
	RemoteUserJoined(channelID, userID string, uid int)
	RemoteUserLeft(channelID, userID string, uid int)
	RemoteMuteChanged(userID string, track Track, muted bool)
	EngineError(channelID string, err error)
}

// TokenProvider resolves join credentials and numeric user mappings from the
// application backend before a channel join. Failure of either request
// aborts the join.
type TokenProvider interface {
	RequestRTCToken(ctx context.Context, appKey, channelID, userID string) (string, error)
	RequestUserMap(ctx context.Context, appKey, channelID, userID string) (map[string]int, error)
}
