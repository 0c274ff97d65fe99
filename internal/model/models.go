// Package model defines the data models for the trivia game bot.
package model

import "time"

// Player represents a registered player. The ID is channel-neutral: the
// transport layer maps its own identifiers (e.g. Telegram user IDs) onto it.
type Player struct {
	ID            int64     `db:"id"`
	DisplayName   string    `db:"display_name"`
	GamesPlayed   int64     `db:"games_played"`
	TotalWinnings int64     `db:"total_winnings"`
	HighestIndex  int       `db:"highest_index"`
	Flagged       bool      `db:"flagged"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Game modes.
const (
	ModePractice   = "practice"
	ModeClassic    = "classic"
	ModeTournament = "tournament"
)

// Session statuses. A session in a terminal status (completed, cancelled,
// timeout) is immutable.
const (
	StatusReady     = "ready"
	StatusActive    = "active"
	StatusTimeout   = "timeout"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// GameSession is the durable record of one game, from mode selection to a
// terminal outcome. It is the source of truth for score and status; the
// ephemeral conversation state may expire mid-game without losing it.
type GameSession struct {
	ID             string     `db:"id"`
	PlayerID       int64      `db:"player_id"`
	Mode           string     `db:"mode"`
	TournamentID   *string    `db:"tournament_id"`
	QuestionIndex  int        `db:"question_index"`
	Score          int64      `db:"score"`
	SafeFloor      int64      `db:"safe_floor"`
	FiftyFiftyUsed bool       `db:"fifty_fifty_used"`
	SkipUsed       bool       `db:"skip_used"`
	Status         string     `db:"status"`
	Perfect        bool       `db:"perfect"`
	StartedAt      time.Time  `db:"started_at"`
	LastActivityAt time.Time  `db:"last_activity_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// IsTerminal reports whether the session has reached a terminal status.
func (s *GameSession) IsTerminal() bool {
	switch s.Status {
	case StatusTimeout, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// SessionAnswer is the per-question record within a session.
type SessionAnswer struct {
	ID            int64     `db:"id"`
	SessionID     string    `db:"session_id"`
	QuestionIndex int       `db:"question_index"`
	QuestionID    int64     `db:"question_id"`
	ChosenOption  *string   `db:"chosen_option"`
	Correct       bool      `db:"correct"`
	LatencyMs     int64     `db:"latency_ms"`
	LifelineUsed  *string   `db:"lifeline_used"`
	CreatedAt     time.Time `db:"created_at"`
}

// Lifeline names recorded on SessionAnswer.LifelineUsed.
const (
	LifelineFiftyFifty = "fifty_fifty"
	LifelineSkip       = "skip"
)

// Question is a single trivia question with four options.
type Question struct {
	ID            int64    `db:"id"`
	Text          string   `db:"text"`
	Options       []string `db:"-"` // A..D, in display order
	CorrectOption string   `db:"correct_option"`
	Category      string   `db:"category"`
	Difficulty    int      `db:"difficulty"`
}

// AuditEvent is one append-only entry in the session audit trail.
type AuditEvent struct {
	ID        int64          `db:"id"`
	SessionID string         `db:"session_id"`
	PlayerID  int64          `db:"player_id"`
	EventType string         `db:"event_type"`
	Payload   map[string]any `db:"payload"`
	CreatedAt time.Time      `db:"created_at"`
}

// Audit event types for categorizing session decisions.
const (
	EventSessionStarted    = "SESSION_STARTED"
	EventQuestionAsked     = "QUESTION_ASKED"
	EventAnswerCorrect     = "ANSWER_CORRECT"
	EventAnswerWrong       = "ANSWER_WRONG"
	EventQuestionTimeout   = "QUESTION_TIMEOUT"
	EventLifelineUsed      = "LIFELINE_USED"
	EventChallengeIssued   = "CHALLENGE_ISSUED"
	EventChallengePassed   = "CHALLENGE_PASSED"
	EventChallengeFailed   = "CHALLENGE_FAILED"
	EventSessionCompleted  = "SESSION_COMPLETED"
	EventSessionCancelled  = "SESSION_CANCELLED"
	EventSessionTimeout    = "SESSION_TIMEOUT"
	EventSessionTerminated = "SESSION_TERMINATED"
	EventPerfectGame       = "PERFECT_GAME_FLAGGED"
	EventQ1StreakWarning   = "Q1_STREAK_WARNING"
	EventPlayerSuspended   = "PLAYER_SUSPENDED"
)
