// Package audit provides the best-effort audit trail recorder. Append
// failures are logged and swallowed: the trail exists for dispute
// resolution and must never block or fail game progress.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"trivia-game-bot/internal/model"
)

// Sink is the durable append-only store behind the recorder.
type Sink interface {
	Append(ctx context.Context, e *model.AuditEvent) error
	GetBySession(ctx context.Context, sessionID string) ([]*model.AuditEvent, error)
	GetByPlayer(ctx context.Context, playerID int64, from, to time.Time) ([]*model.AuditEvent, error)
}

// Recorder appends one event per meaningful session decision.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a Recorder over sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record appends an event. Failures are swallowed after logging.
func (r *Recorder) Record(ctx context.Context, sessionID string, playerID int64, eventType string, payload map[string]any) {
	err := r.sink.Append(ctx, &model.AuditEvent{
		SessionID: sessionID,
		PlayerID:  playerID,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Int64("player_id", playerID).
			Str("event_type", eventType).
			Msg("Failed to append audit event")
	}
}

// SessionTrail returns a session's trail in chronological order.
func (r *Recorder) SessionTrail(ctx context.Context, sessionID string) ([]*model.AuditEvent, error) {
	return r.sink.GetBySession(ctx, sessionID)
}

// PlayerTrail returns a player's trail within [from, to).
func (r *Recorder) PlayerTrail(ctx context.Context, playerID int64, from, to time.Time) ([]*model.AuditEvent, error) {
	return r.sink.GetByPlayer(ctx, playerID, from, to)
}
