// Package game implements the session state machine: question sequencing,
// prize ladder scoring, lifelines, timers, and anti-cheat orchestration.
package game

import (
	"context"
	"errors"
	"time"

	"trivia-game-bot/internal/model"
	"trivia-game-bot/internal/pkg/timer"
	"trivia-game-bot/internal/state"
)

// User-facing errors. The router turns these into guidance messages; none
// of them represents a state transition.
var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSuspended       = errors.New("player is suspended")
	ErrUnknownMode     = errors.New("unknown game mode")
	ErrTournamentID    = errors.New("tournament mode requires a tournament id")
	ErrLifelineUsed    = errors.New("lifeline already used")
	ErrInvalidAnswer   = errors.New("invalid answer")
)

// Sender is the channel-neutral outbound message transport.
type Sender interface {
	SendText(identifier int64, text string) error
	SendImage(identifier int64, path, caption string) error
}

// SessionStore is the durable game session record store.
type SessionStore interface {
	Create(ctx context.Context, s *model.GameSession) (*model.GameSession, error)
	GetByID(ctx context.Context, id string) (*model.GameSession, error)
	GetActiveByPlayer(ctx context.Context, playerID int64) (*model.GameSession, error)
	Update(ctx context.Context, s *model.GameSession) (*model.GameSession, error)
	RecordAnswer(ctx context.Context, a *model.SessionAnswer) error
}

// PlayerStore is the durable player record store.
type PlayerStore interface {
	GetOrCreate(ctx context.Context, id int64, displayName string) (*model.Player, bool, error)
	GetByID(ctx context.Context, id int64) (*model.Player, error)
	RecordOutcome(ctx context.Context, id int64, winnings int64, highestIndex int) (*model.Player, error)
	Flag(ctx context.Context, id int64) error
}

// QuestionSupplier provides unused questions by difficulty and records
// exposure counters.
type QuestionSupplier interface {
	NextQuestion(ctx context.Context, difficulty int, playerID int64) (*model.Question, error)
	RecordExposure(ctx context.Context, questionID int64, wasCorrect bool) error
}

// StateStore is the ephemeral TTL-keyed store: session scratch, Q1 streaks,
// suspensions, and conversation cleanup on session end.
type StateStore interface {
	GetScratch(ctx context.Context, sessionID string) (*state.SessionScratch, error)
	SetScratch(ctx context.Context, sessionID string, sc *state.SessionScratch) error
	ClearScratch(ctx context.Context, sessionID string) error
	ClearConversation(ctx context.Context, playerID int64) error
	IncrQ1Streak(ctx context.Context, playerID int64) (int, error)
	ResetQ1Streak(ctx context.Context, playerID int64) error
	Suspend(ctx context.Context, playerID int64, ttl time.Duration) error
	IsSuspended(ctx context.Context, playerID int64) (bool, error)
}

// Recorder is the best-effort audit trail.
type Recorder interface {
	Record(ctx context.Context, sessionID string, playerID int64, eventType string, payload map[string]any)
}

// Scheduler arms and disarms the session timers.
type Scheduler interface {
	Arm(sessionID string, purpose timer.Purpose, delay time.Duration, fn func())
	Disarm(sessionID string, purpose timer.Purpose)
	DisarmAll(sessionID string)
}
