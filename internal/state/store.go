// Package state implements the ephemeral store: conversation state with a
// sliding TTL, per-session scratch (pending question, anti-cheat counters,
// active challenge), per-player Q1 timeout streaks, and play suspensions.
//
// Everything here is disposable. The durable session row is the source of
// truth; an expired conversation or scratch entry must never lose a game's
// score or status.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"trivia-game-bot/internal/anticheat"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("state not found")

// Conversation state tags.
const (
	ConvSelectMode = "SELECT_GAME_MODE"
	ConvInGame     = "IN_GAME"
)

// ConversationState is the router-owned per-player conversation position.
type ConversationState struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// PendingQuestion is the question currently awaiting an answer, including
// the correct option. It never leaves the process except through the
// formatted outbound message.
type PendingQuestion struct {
	QuestionID    int64     `json:"question_id"`
	QuestionIndex int       `json:"question_index"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"` // reduced to two after fifty-fifty
	CorrectOption string    `json:"correct_option"`
	AskedAt       time.Time `json:"asked_at"`
}

// SessionScratch is the per-session ephemeral payload: the pending question
// or challenge plus the anti-cheat counters. Cleared when the session ends.
type SessionScratch struct {
	Question  *PendingQuestion     `json:"question,omitempty"`
	Challenge *anticheat.Challenge `json:"challenge,omitempty"`
	AntiCheat anticheat.State      `json:"anticheat"`
}

const (
	convKeyPrefix     = "trivia:conv:"
	scratchKeyPrefix  = "trivia:scratch:"
	q1StreakKeyPrefix = "trivia:q1_streak:"
	suspendKeyPrefix  = "trivia:suspended:"

	// scratchTTL outlives the 5 minute session timeout by a wide margin;
	// terminal transitions delete the key explicitly.
	scratchTTL = time.Hour
)

// Store is the Redis-backed ephemeral state store.
type Store struct {
	client  goredis.UniversalClient
	convTTL time.Duration
}

// NewStore creates a Store. convTTL is the sliding conversation expiry.
func NewStore(client goredis.UniversalClient, convTTL time.Duration) *Store {
	if convTTL <= 0 {
		convTTL = 30 * time.Minute
	}
	return &Store{client: client, convTTL: convTTL}
}

func convKey(playerID int64) string {
	return fmt.Sprintf("%s%d", convKeyPrefix, playerID)
}

func scratchKey(sessionID string) string {
	return scratchKeyPrefix + sessionID
}

func q1StreakKey(playerID int64) string {
	return fmt.Sprintf("%s%d", q1StreakKeyPrefix, playerID)
}

func suspendKey(playerID int64) string {
	return fmt.Sprintf("%s%d", suspendKeyPrefix, playerID)
}

// GetConversation returns the player's conversation state and refreshes its
// TTL, so activity keeps the conversation alive.
func (s *Store) GetConversation(ctx context.Context, playerID int64) (*ConversationState, error) {
	data, err := s.client.GetEx(ctx, convKey(playerID), s.convTTL).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}

	var cs ConversationState
	if err := json.Unmarshal([]byte(data), &cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &cs, nil
}

// SetConversation stores the player's conversation state with the sliding TTL.
func (s *Store) SetConversation(ctx context.Context, playerID int64, cs *ConversationState) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	if err := s.client.Set(ctx, convKey(playerID), data, s.convTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation state: %w", err)
	}
	return nil
}

// ClearConversation removes the player's conversation state.
func (s *Store) ClearConversation(ctx context.Context, playerID int64) error {
	if err := s.client.Del(ctx, convKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	return nil
}

// GetScratch returns the session's ephemeral payload.
func (s *Store) GetScratch(ctx context.Context, sessionID string) (*SessionScratch, error) {
	data, err := s.client.Get(ctx, scratchKey(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session scratch: %w", err)
	}

	var sc SessionScratch
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session scratch: %w", err)
	}
	return &sc, nil
}

// SetScratch stores the session's ephemeral payload.
func (s *Store) SetScratch(ctx context.Context, sessionID string, sc *SessionScratch) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal session scratch: %w", err)
	}
	if err := s.client.Set(ctx, scratchKey(sessionID), data, scratchTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session scratch: %w", err)
	}
	return nil
}

// ClearScratch removes the session's ephemeral payload.
func (s *Store) ClearScratch(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, scratchKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session scratch: %w", err)
	}
	return nil
}

// IncrQ1Streak increments the player's consecutive-Q1-timeout streak and
// returns the new value. The streak persists across sessions until reset.
func (s *Store) IncrQ1Streak(ctx context.Context, playerID int64) (int, error) {
	n, err := s.client.Incr(ctx, q1StreakKey(playerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment q1 streak: %w", err)
	}
	return int(n), nil
}

// ResetQ1Streak clears the player's Q1 timeout streak. Called on any
// non-timeout resolution of question 1.
func (s *Store) ResetQ1Streak(ctx context.Context, playerID int64) error {
	if err := s.client.Del(ctx, q1StreakKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to reset q1 streak: %w", err)
	}
	return nil
}

// Suspend bars the player from starting sessions for ttl.
func (s *Store) Suspend(ctx context.Context, playerID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, suspendKey(playerID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to suspend player: %w", err)
	}
	return nil
}

// IsSuspended reports whether the player is currently suspended.
func (s *Store) IsSuspended(ctx context.Context, playerID int64) (bool, error) {
	n, err := s.client.Exists(ctx, suspendKey(playerID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check suspension: %w", err)
	}
	return n > 0, nil
}
