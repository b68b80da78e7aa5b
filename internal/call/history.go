package call

import (
	"context"
	"time"
)

// Record is the terminal summary of a finished call, written once when the
// session reaches Idle.
type Record struct {
	CallID    string
	ChannelID string
	Media     string
	Multi     bool
	Role      string
	InviterID string
	Reason    string
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
	Roster    []RecordParticipant
}

// RecordParticipant is one roster member's final status.
type RecordParticipant struct {
	UserID string
	Status string
}

// HistoryRecorder persists finished calls. Recording is best effort and must
// never block or fail the event loop.
type HistoryRecorder interface {
	RecordCall(ctx context.Context, rec *Record) error
}

func (m *Manager) recordHistory(s *session) {
	m.historyMu.Lock()
	recorder := m.history
	m.historyMu.Unlock()
	if recorder == nil {
		return
	}

	rec := &Record{
		CallID:    s.callID,
		ChannelID: s.channelID,
		Media:     s.kind.Media.String(),
		Multi:     s.kind.Multi,
		Role:      s.role.String(),
		InviterID: s.inviterID,
		Reason:    s.endReason,
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
	for _, p := range s.roster {
		rec.Roster = append(rec.Roster, RecordParticipant{UserID: p.UserID, Status: p.Status.String()})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.RecordCall(ctx, rec); err != nil {
			m.log.Warn().Err(err).Str("call_id", rec.CallID).Msg("record call history failed")
		}
	}()
}
