package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trivia-game-bot/internal/model"
)

const sessionColumns = `id, player_id, mode, tournament_id, question_index, score, safe_floor,
	fifty_fifty_used, skip_used, status, perfect, started_at, last_activity_at, completed_at`

// SessionRepository handles durable game session persistence. The partial
// unique index on (player_id) for live statuses enforces the single active
// session invariant at the database level.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.GameSession, error) {
	var s model.GameSession
	err := row.Scan(
		&s.ID,
		&s.PlayerID,
		&s.Mode,
		&s.TournamentID,
		&s.QuestionIndex,
		&s.Score,
		&s.SafeFloor,
		&s.FiftyFiftyUsed,
		&s.SkipUsed,
		&s.Status,
		&s.Perfect,
		&s.StartedAt,
		&s.LastActivityAt,
		&s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session in ready status. Returns
// ErrActiveSessionExists if the player already has a live session.
func (r *SessionRepository) Create(ctx context.Context, s *model.GameSession) (*model.GameSession, error) {
	query := `
		INSERT INTO game_sessions (id, player_id, mode, tournament_id, question_index, score, safe_floor,
			fifty_fifty_used, skip_used, status, perfect, started_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.ID, s.PlayerID, s.Mode, s.TournamentID, s.QuestionIndex, s.Score, s.SafeFloor,
		s.FiftyFiftyUsed, s.SkipUsed, s.Status, s.Perfect,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetActiveByPlayer returns the player's live (ready or active) session, or
// ErrSessionNotFound when there is none.
func (r *SessionRepository) GetActiveByPlayer(ctx context.Context, playerID int64) (*model.GameSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE player_id = $1 AND status IN ('ready', 'active')`

	s, err := scanSession(r.pool.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// Update writes the session's mutable fields. It refuses to touch a row that
// has already reached a terminal status, which is what makes the
// first-committer-wins race resolution safe: the loser's update hits zero
// rows and returns ErrSessionImmutable.
func (r *SessionRepository) Update(ctx context.Context, s *model.GameSession) (*model.GameSession, error) {
	query := `
		UPDATE game_sessions
		SET question_index = $2, score = $3, safe_floor = $4,
		    fifty_fifty_used = $5, skip_used = $6, status = $7, perfect = $8,
		    last_activity_at = NOW(),
		    completed_at = CASE WHEN $7 IN ('completed', 'cancelled', 'timeout') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status IN ('ready', 'active')
		RETURNING ` + sessionColumns

	updated, err := scanSession(r.pool.QueryRow(ctx, query,
		s.ID, s.QuestionIndex, s.Score, s.SafeFloor,
		s.FiftyFiftyUsed, s.SkipUsed, s.Status, s.Perfect,
	))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionImmutable
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return updated, nil
}

// RecordAnswer appends the per-question record for a session.
func (r *SessionRepository) RecordAnswer(ctx context.Context, a *model.SessionAnswer) error {
	query := `
		INSERT INTO session_answers (session_id, question_index, question_id, chosen_option,
			correct, latency_ms, lifeline_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := r.pool.Exec(ctx, query,
		a.SessionID, a.QuestionIndex, a.QuestionID, a.ChosenOption,
		a.Correct, a.LatencyMs, a.LifelineUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	return nil
}

// GetAnswers returns a session's per-question records in question order.
func (r *SessionRepository) GetAnswers(ctx context.Context, sessionID string) ([]*model.SessionAnswer, error) {
	query := `
		SELECT id, session_id, question_index, question_id, chosen_option,
			correct, latency_ms, lifeline_used, created_at
		FROM session_answers
		WHERE session_id = $1
		ORDER BY question_index ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	defer rows.Close()

	var answers []*model.SessionAnswer
	for rows.Next() {
		var a model.SessionAnswer
		err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.QuestionIndex,
			&a.QuestionID,
			&a.ChosenOption,
			&a.Correct,
			&a.LatencyMs,
			&a.LifelineUsed,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}
	return answers, nil
}
