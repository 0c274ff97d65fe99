// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trivia-game-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrActiveSessionExists = errors.New("player already has an active session")
	ErrSessionImmutable    = errors.New("session is in a terminal status")
)

const playerColumns = "id, display_name, games_played, total_winnings, highest_index, flagged, created_at, updated_at"

// PlayerRepository handles player persistence.
type PlayerRepository struct {
	pool *pgxpool.Pool
}

// NewPlayerRepository creates a new PlayerRepository instance.
func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var p model.Player
	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.GamesPlayed,
		&p.TotalWinnings,
		&p.HighestIndex,
		&p.Flagged,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create creates a new player record.
func (r *PlayerRepository) Create(ctx context.Context, id int64, displayName string) (*model.Player, error) {
	query := `
		INSERT INTO players (id, display_name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + playerColumns

	p, err := scanPlayer(r.pool.QueryRow(ctx, query, id, displayName))
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return p, nil
}

// GetByID retrieves a player by ID. Returns ErrPlayerNotFound if absent.
func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// GetOrCreate retrieves a player, creating the record on first contact.
func (r *PlayerRepository) GetOrCreate(ctx context.Context, id int64, displayName string) (*model.Player, bool, error) {
	p, err := r.GetByID(ctx, id)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, false, err
	}

	p, err = r.Create(ctx, id, displayName)
	if err != nil {
		// Another message for the same player may have created the row.
		p, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return p, false, nil
	}
	return p, true, nil
}

// RecordOutcome bumps the player's aggregates at session completion:
// games played, winnings, and the highest question index reached.
func (r *PlayerRepository) RecordOutcome(ctx context.Context, id int64, winnings int64, highestIndex int) (*model.Player, error) {
	query := `
		UPDATE players
		SET games_played = games_played + 1,
		    total_winnings = total_winnings + $2,
		    highest_index = GREATEST(highest_index, $3),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + playerColumns

	p, err := scanPlayer(r.pool.QueryRow(ctx, query, id, winnings, highestIndex))
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}
	return p, nil
}

// Flag marks the player for moderation review. The flag is permanent; only
// an external moderation action clears it.
func (r *PlayerRepository) Flag(ctx context.Context, id int64) error {
	query := `UPDATE players SET flagged = TRUE, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to flag player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// UpdateDisplayName updates a player's display name.
func (r *PlayerRepository) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	query := `UPDATE players SET display_name = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, displayName)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
