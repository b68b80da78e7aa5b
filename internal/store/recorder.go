package store

import (
	"context"

	"github.com/vovakirdan/wirecall/internal/call"
)

// Recorder adapts a Store to call.HistoryRecorder for single-process
// deployments where the call manager and the store live together.
type Recorder struct {
	st Store
}

// NewRecorder wraps a store.
func NewRecorder(st Store) *Recorder {
	return &Recorder{st: st}
}

// RecordCall maps a terminal call record onto store rows.
func (r *Recorder) RecordCall(ctx context.Context, rec *call.Record) error {
	return r.st.SaveCall(ctx, FromCallRecord(rec))
}

// FromCallRecord converts the call package's terminal record into the
// persisted shape. Zero start/end times become NULLs.
func FromCallRecord(rec *call.Record) *CallRecord {
	out := &CallRecord{
		ID:        rec.CallID,
		ChannelID: rec.ChannelID,
		Media:     rec.Media,
		Multi:     rec.Multi,
		InviterID: rec.InviterID,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
	if !rec.StartedAt.IsZero() {
		t := rec.StartedAt
		out.StartedAt = &t
	}
	if !rec.EndedAt.IsZero() {
		t := rec.EndedAt
		out.EndedAt = &t
	}
	for _, p := range rec.Roster {
		out.Participants = append(out.Participants, CallParticipant{UserID: p.UserID, Status: p.Status})
	}
	return out
}

var _ call.HistoryRecorder = (*Recorder)(nil)
