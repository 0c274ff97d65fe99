package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trivia-game-bot/internal/model"
)

// AuditRepository handles the append-only audit trail. Rows are never
// updated or deleted here; retention is an operational concern.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository instance.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts one audit event.
func (r *AuditRepository) Append(ctx context.Context, e *model.AuditEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_events (session_id, player_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	if _, err := r.pool.Exec(ctx, query, e.SessionID, e.PlayerID, e.EventType, payload); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// GetBySession returns a session's trail in chronological order.
func (r *AuditRepository) GetBySession(ctx context.Context, sessionID string) ([]*model.AuditEvent, error) {
	query := `
		SELECT id, session_id, player_id, event_type, payload, created_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session trail: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

// GetByPlayer returns a player's trail within [from, to), newest first.
func (r *AuditRepository) GetByPlayer(ctx context.Context, playerID int64, from, to time.Time) ([]*model.AuditEvent, error) {
	query := `
		SELECT id, session_id, player_id, event_type, payload, created_at
		FROM audit_events
		WHERE player_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY id DESC`

	rows, err := r.pool.Query(ctx, query, playerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get player trail: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

type auditRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAuditEvents(rows auditRows) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.PlayerID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit payload: %w", err)
			}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}
