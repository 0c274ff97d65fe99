// Package anticheat implements the heuristics that police a game session:
// fast-answer streak detection, the escalating verification ladder
// (speed -> captcha -> photo -> terminate), and the per-player Q1 timeout
// streak used to catch scripted session churn.
//
// Every function here is a pure decision over (state, event); all state
// mutation and messaging happen in the game engine.
package anticheat

import "time"

// Stage is the active verification stage for a session. Stages are mutually
// exclusive and escalate in order; there is no de-escalation.
type Stage string

// Verification stages.
const (
	StageNone    Stage = "none"
	StageSpeed   Stage = "speed"
	StageCaptcha Stage = "captcha"
	StagePhoto   Stage = "photo"
)

// Config holds the heuristics thresholds. Zero values are replaced by the
// reference defaults.
type Config struct {
	FastLatency       time.Duration // answers faster than this count toward the streak
	SpeedStreak       int           // consecutive fast correct answers before escalation
	ChallengeAttempts int           // failed attempts allowed per stage
	Q1WarnStreak      int           // consecutive Q1 timeouts before a warning
	Q1SuspendStreak   int           // consecutive Q1 timeouts before suspension
}

// Default thresholds.
const (
	DefaultFastLatency       = 2500 * time.Millisecond
	DefaultSpeedStreak       = 3
	DefaultChallengeAttempts = 2
	DefaultQ1WarnStreak      = 3
	DefaultQ1SuspendStreak   = 5
)

// withDefaults fills zero fields with the reference thresholds.
func (c Config) withDefaults() Config {
	if c.FastLatency <= 0 {
		c.FastLatency = DefaultFastLatency
	}
	if c.SpeedStreak <= 0 {
		c.SpeedStreak = DefaultSpeedStreak
	}
	if c.ChallengeAttempts <= 0 {
		c.ChallengeAttempts = DefaultChallengeAttempts
	}
	if c.Q1WarnStreak <= 0 {
		c.Q1WarnStreak = DefaultQ1WarnStreak
	}
	if c.Q1SuspendStreak <= 0 {
		c.Q1SuspendStreak = DefaultQ1SuspendStreak
	}
	return c
}

// State is the per-session ephemeral counter set. It lives in the ephemeral
// store alongside the pending question and is cleared when the session ends.
type State struct {
	FastStreak int   `json:"fast_streak"`
	Stage      Stage `json:"stage"`
	Attempts   int   `json:"attempts"` // failed attempts in the current stage
}

// NewState returns a clean state for a new session.
func NewState() State {
	return State{Stage: StageNone}
}

// AnswerEvent describes one answered (or timed-out) question.
type AnswerEvent struct {
	QuestionIndex int
	Correct       bool
	TimedOut      bool
	Latency       time.Duration
}

// AnswerAction is the decision returned for an answer event.
type AnswerAction int

// Answer decisions.
const (
	AnswerActionNone AnswerAction = iota
	// AnswerActionEnterSpeed arms speed mode: shortened question timers and a
	// pre-question challenge from the next question on.
	AnswerActionEnterSpeed
)

// EvaluateAnswer consumes one answer event and returns the updated state and
// the decision. A wrong, slow, or timed-out answer resets the fast streak.
func EvaluateAnswer(cfg Config, st State, ev AnswerEvent) (State, AnswerAction) {
	cfg = cfg.withDefaults()

	if ev.Correct && !ev.TimedOut && ev.Latency < cfg.FastLatency {
		st.FastStreak++
	} else {
		st.FastStreak = 0
	}

	if st.Stage == StageNone && st.FastStreak >= cfg.SpeedStreak {
		st.Stage = StageSpeed
		st.Attempts = 0
		return st, AnswerActionEnterSpeed
	}

	return st, AnswerActionNone
}

// ChallengeAction is the decision returned for a challenge outcome.
type ChallengeAction int

// Challenge decisions.
const (
	// ChallengeActionProceed lets the real question through.
	ChallengeActionProceed ChallengeAction = iota
	// ChallengeActionRetry re-issues a challenge at the same stage.
	ChallengeActionRetry
	// ChallengeActionEscalate moves to the next stage (captcha or photo).
	ChallengeActionEscalate
	// ChallengeActionTerminate ends the session and flags the player.
	ChallengeActionTerminate
)

// EvaluateChallenge consumes a challenge outcome. Passing clears the failure
// counter but keeps the session in its stage: speed mode persists for the
// rest of the session. Exhausting the attempts of a stage escalates, and
// exhausting photo verification terminates.
func EvaluateChallenge(cfg Config, st State, passed bool) (State, ChallengeAction) {
	cfg = cfg.withDefaults()

	if passed {
		st.Attempts = 0
		return st, ChallengeActionProceed
	}

	st.Attempts++
	if st.Attempts < cfg.ChallengeAttempts {
		return st, ChallengeActionRetry
	}

	st.Attempts = 0
	switch st.Stage {
	case StageSpeed:
		st.Stage = StageCaptcha
		return st, ChallengeActionEscalate
	case StageCaptcha:
		st.Stage = StagePhoto
		return st, ChallengeActionEscalate
	default:
		return st, ChallengeActionTerminate
	}
}

// Q1Action is the decision for a player's consecutive-Q1-timeout streak.
type Q1Action int

// Q1 streak decisions.
const (
	Q1ActionNone Q1Action = iota
	Q1ActionWarn
	Q1ActionSuspend
)

// EvaluateQ1Streak maps a player's consecutive Q1 timeout count to a
// decision. The streak is tracked per player across sessions and reset by
// any non-timeout outcome on question 1.
func EvaluateQ1Streak(cfg Config, streak int) Q1Action {
	cfg = cfg.withDefaults()

	switch {
	case streak >= cfg.Q1SuspendStreak:
		return Q1ActionSuspend
	case streak >= cfg.Q1WarnStreak:
		return Q1ActionWarn
	default:
		return Q1ActionNone
	}
}
