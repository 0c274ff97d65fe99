package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trivia-game-bot/internal/model"
)

// ErrNoQuestionAvailable is returned when the bank has no unseen question
// for the requested difficulty.
var ErrNoQuestionAvailable = errors.New("no question available")

// QuestionRepository implements the question supplier over the question
// bank: least-exposed unseen question per difficulty, with exposure
// counters recorded after each ask.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository instance.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// NextQuestion picks an unseen question at the given difficulty for the
// player, preferring the least-exposed ones to spread the bank evenly.
func (r *QuestionRepository) NextQuestion(ctx context.Context, difficulty int, playerID int64) (*model.Question, error) {
	query := `
		SELECT q.id, q.text, q.option_a, q.option_b, q.option_c, q.option_d,
			q.correct_option, q.category, q.difficulty
		FROM questions q
		WHERE q.difficulty = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM session_answers sa
			JOIN game_sessions gs ON gs.id = sa.session_id
			WHERE gs.player_id = $2 AND sa.question_id = q.id
		  )
		ORDER BY q.times_shown ASC, random()
		LIMIT 1`

	var q model.Question
	var a, b, c, d string
	err := r.pool.QueryRow(ctx, query, difficulty, playerID).Scan(
		&q.ID, &q.Text, &a, &b, &c, &d, &q.CorrectOption, &q.Category, &q.Difficulty,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoQuestionAvailable
		}
		return nil, fmt.Errorf("failed to pick question: %w", err)
	}

	q.Options = []string{a, b, c, d}
	return &q, nil
}

// RecordExposure bumps the question's exposure counters.
func (r *QuestionRepository) RecordExposure(ctx context.Context, questionID int64, wasCorrect bool) error {
	query := `
		UPDATE questions
		SET times_shown = times_shown + 1,
		    times_correct = times_correct + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, questionID, wasCorrect); err != nil {
		return fmt.Errorf("failed to record exposure: %w", err)
	}
	return nil
}
