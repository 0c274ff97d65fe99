package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"trivia-game-bot/internal/anticheat"
	"trivia-game-bot/internal/ladder"
	"trivia-game-bot/internal/model"
	"trivia-game-bot/internal/pkg/lock"
	"trivia-game-bot/internal/pkg/timer"
	"trivia-game-bot/internal/repository"
	"trivia-game-bot/internal/state"
)

// Config holds the session mechanics settings.
type Config struct {
	QuestionTimeout      time.Duration
	SpeedQuestionTimeout time.Duration
	SessionTimeout       time.Duration
	ChallengeTimeout     time.Duration
	SuspensionTTL        time.Duration
	StartToken           string
	VictoryImagePath     string
}

func (c Config) withDefaults() Config {
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = 12 * time.Second
	}
	if c.SpeedQuestionTimeout <= 0 {
		c.SpeedQuestionTimeout = 10 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 5 * time.Minute
	}
	if c.ChallengeTimeout <= 0 {
		c.ChallengeTimeout = 15 * time.Second
	}
	if c.SuspensionTTL <= 0 {
		c.SuspensionTTL = 24 * time.Hour
	}
	if c.StartToken == "" {
		c.StartToken = "GO"
	}
	return c
}

// Dependencies holds everything the engine needs.
type Dependencies struct {
	Config    Config
	AntiCheat anticheat.Config
	Ladder    *ladder.Ladder
	Sessions  SessionStore
	Players   PlayerStore
	Questions QuestionSupplier
	States    StateStore
	Audit     Recorder
	Timers    Scheduler
	Sender    Sender
	Locks     *lock.PlayerLock
}

// Engine is the game session state machine. Every entrypoint (inbound input,
// session start, cancellation, timer callbacks) serializes through the
// per-player lock, so a timer fire and a late answer can never both commit
// for the same question: whichever transitions the session first wins and
// the loser re-validates into a no-op.
type Engine struct {
	cfg       Config
	acCfg     anticheat.Config
	ladder    *ladder.Ladder
	sessions  SessionStore
	players   PlayerStore
	questions QuestionSupplier
	states    StateStore
	audit     Recorder
	timers    Scheduler
	sender    Sender
	locks     *lock.PlayerLock

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

// NewEngine creates an Engine from its dependencies.
func NewEngine(deps *Dependencies) *Engine {
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewPlayerLock()
	}
	l := deps.Ladder
	if l == nil {
		l = ladder.Default()
	}
	return &Engine{
		cfg:       deps.Config.withDefaults(),
		acCfg:     deps.AntiCheat,
		ladder:    l,
		sessions:  deps.Sessions,
		players:   deps.Players,
		questions: deps.Questions,
		states:    deps.States,
		audit:     deps.Audit,
		timers:    deps.Timers,
		sender:    deps.Sender,
		locks:     locks,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// StartSession creates a ready session for the player. It is rejected when
// the player is suspended or already has a live session.
func (e *Engine) StartSession(ctx context.Context, playerID int64, displayName, mode string, tournamentID *string) (*model.GameSession, error) {
	switch mode {
	case model.ModePractice, model.ModeClassic:
	case model.ModeTournament:
		if tournamentID == nil || *tournamentID == "" {
			return nil, ErrTournamentID
		}
	default:
		return nil, ErrUnknownMode
	}

	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	suspended, err := e.states.IsSuspended(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check suspension: %w", err)
	}
	if suspended {
		return nil, ErrSuspended
	}

	if _, _, err := e.players.GetOrCreate(ctx, playerID, displayName); err != nil {
		return nil, fmt.Errorf("failed to ensure player: %w", err)
	}

	s := &model.GameSession{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		Mode:          mode,
		TournamentID:  tournamentID,
		QuestionIndex: 1,
		Status:        model.StatusReady,
	}
	created, err := e.sessions.Create(ctx, s)
	if err != nil {
		return nil, err
	}

	if err := e.states.SetScratch(ctx, created.ID, &state.SessionScratch{AntiCheat: anticheat.NewState()}); err != nil {
		log.Error().Err(err).Str("session_id", created.ID).Msg("Failed to seed session scratch")
	}

	e.timers.Arm(created.ID, timer.PurposeSession, e.cfg.SessionTimeout, func() {
		e.onSessionTimeout(playerID, created.ID)
	})

	e.audit.Record(ctx, created.ID, playerID, model.EventSessionStarted, map[string]any{
		"mode": mode,
	})

	e.send(playerID, startInstructions(mode, e.cfg.StartToken)+practiceNote(mode))

	log.Info().
		Str("session_id", created.ID).
		Int64("player_id", playerID).
		Str("mode", mode).
		Msg("Session created")

	return created, nil
}

// GetActiveSession returns the player's live session, or nil when none.
func (e *Engine) GetActiveSession(ctx context.Context, playerID int64) (*model.GameSession, error) {
	s, err := e.sessions.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// PlayerStats returns the player's aggregate record.
func (e *Engine) PlayerStats(ctx context.Context, playerID int64) (*model.Player, error) {
	return e.players.GetByID(ctx, playerID)
}

// HandleInput processes one inbound text for a player with a live session.
// Returns ErrNoActiveSession when there is nothing to route to.
func (e *Engine) HandleInput(ctx context.Context, playerID int64, text string) error {
	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	s, err := e.sessions.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNoActiveSession
		}
		return err
	}

	input := strings.TrimSpace(text)

	switch s.Status {
	case model.StatusReady:
		if strings.EqualFold(input, e.cfg.StartToken) {
			return e.activate(ctx, s)
		}
		e.send(playerID, awaitingStartText(e.cfg.StartToken))
		return nil

	case model.StatusActive:
		return e.handleActiveInput(ctx, s, input)
	}

	return nil
}

// activate moves ready -> active and delivers the first question.
func (e *Engine) activate(ctx context.Context, s *model.GameSession) error {
	s.Status = model.StatusActive
	updated, err := e.sessions.Update(ctx, s)
	if err != nil {
		if errors.Is(err, repository.ErrSessionImmutable) {
			return nil
		}
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}
	return e.askQuestion(ctx, updated)
}

// handleActiveInput dispatches an answer, lifeline, or challenge response.
func (e *Engine) handleActiveInput(ctx context.Context, s *model.GameSession, input string) error {
	sc, err := e.states.GetScratch(ctx, s.ID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			// Ephemeral state expired mid-game. The durable row is the
			// truth: recover by re-asking the current question.
			log.Warn().Str("session_id", s.ID).Msg("Session scratch lost, re-asking question")
			return e.askQuestion(ctx, s)
		}
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}

	if sc.Challenge != nil {
		return e.handleChallengeInput(ctx, s, sc, input)
	}
	if sc.Question == nil {
		return e.askQuestion(ctx, s)
	}

	upper := strings.ToUpper(input)
	switch upper {
	case "50", "5050", "50/50":
		return e.applyFiftyFifty(ctx, s, sc)
	case "SKIP":
		return e.applySkip(ctx, s, sc)
	}

	for i, letter := range optionLetters {
		if upper == letter {
			if sc.Question.Options[i] == "" {
				// Option removed by fifty-fifty.
				e.send(s.PlayerID, invalidAnswerText())
				return nil
			}
			return e.scoreAnswer(ctx, s, sc, letter)
		}
	}

	e.send(s.PlayerID, invalidAnswerText())
	return nil
}

// askQuestion fetches a question for the session's current index, stores it
// as the pending question, arms the question timer, and delivers it.
func (e *Engine) askQuestion(ctx context.Context, s *model.GameSession) error {
	sc, err := e.states.GetScratch(ctx, s.ID)
	if err != nil {
		sc = &state.SessionScratch{AntiCheat: anticheat.NewState()}
	}

	q, err := e.questions.NextQuestion(ctx, s.QuestionIndex, s.PlayerID)
	if err != nil {
		e.send(s.PlayerID, "We couldn't fetch your next question. Please send any message to retry.")
		return fmt.Errorf("failed to fetch question: %w", err)
	}

	pending := e.buildPending(q, s.QuestionIndex)
	sc.Question = pending
	sc.Challenge = nil
	if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
		e.send(s.PlayerID, "Something went wrong. Please send any message to retry.")
		return fmt.Errorf("failed to store pending question: %w", err)
	}

	timeout := e.cfg.QuestionTimeout
	if sc.AntiCheat.Stage != anticheat.StageNone {
		timeout = e.cfg.SpeedQuestionTimeout
	}

	playerID, sessionID, index := s.PlayerID, s.ID, s.QuestionIndex
	e.timers.Arm(sessionID, timer.PurposeQuestion, timeout, func() {
		e.onQuestionTimeout(playerID, sessionID, index)
	})

	prize := e.ladder.Prize(s.QuestionIndex)
	e.audit.Record(ctx, s.ID, s.PlayerID, model.EventQuestionAsked, map[string]any{
		"question_index": s.QuestionIndex,
		"question_id":    q.ID,
		"prize_at_stake": prize,
	})

	e.send(s.PlayerID, formatQuestion(pending, prize))
	return nil
}

// buildPending shuffles the question's options and records where the
// correct one landed.
func (e *Engine) buildPending(q *model.Question, index int) *state.PendingQuestion {
	correctIdx := 0
	for i, letter := range optionLetters {
		if letter == q.CorrectOption {
			correctIdx = i
			break
		}
	}

	e.rngMu.Lock()
	perm := e.rng.Perm(len(q.Options))
	e.rngMu.Unlock()

	options := make([]string, len(q.Options))
	correct := q.CorrectOption
	for i, from := range perm {
		options[i] = q.Options[from]
		if from == correctIdx {
			correct = optionLetters[i]
		}
	}

	return &state.PendingQuestion{
		QuestionID:    q.ID,
		QuestionIndex: index,
		Text:          q.Text,
		Options:       options,
		CorrectOption: correct,
		AskedAt:       e.now(),
	}
}

// scoreAnswer applies a chosen option to the pending question.
func (e *Engine) scoreAnswer(ctx context.Context, s *model.GameSession, sc *state.SessionScratch, letter string) error {
	q := sc.Question
	latency := e.now().Sub(q.AskedAt)
	correct := letter == q.CorrectOption
	index := q.QuestionIndex

	chosen := letter
	if err := e.sessions.RecordAnswer(ctx, &model.SessionAnswer{
		SessionID:     s.ID,
		QuestionIndex: index,
		QuestionID:    q.QuestionID,
		ChosenOption:  &chosen,
		Correct:       correct,
		LatencyMs:     latency.Milliseconds(),
	}); err != nil {
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}
	if err := e.questions.RecordExposure(ctx, q.QuestionID, correct); err != nil {
		log.Error().Err(err).Int64("question_id", q.QuestionID).Msg("Failed to record exposure")
	}

	// Any answered Q1 breaks the scripted-restart streak.
	if index == 1 {
		if err := e.states.ResetQ1Streak(ctx, s.PlayerID); err != nil {
			log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to reset q1 streak")
		}
	}

	if !correct {
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventAnswerWrong, map[string]any{
			"question_index": index,
			"chosen":         letter,
			"latency_ms":     latency.Milliseconds(),
		})
		s.Score = s.SafeFloor
		msg := wrongAnswerText(q.CorrectOption, s.SafeFloor) + practiceNote(s.Mode)
		e.finalize(ctx, s, model.StatusCompleted, model.EventSessionCompleted, map[string]any{
			"outcome":     "wrong_answer",
			"final_score": s.SafeFloor,
		}, msg, index-1)
		return nil
	}

	e.audit.Record(ctx, s.ID, s.PlayerID, model.EventAnswerCorrect, map[string]any{
		"question_index": index,
		"latency_ms":     latency.Milliseconds(),
	})

	acState, action := anticheat.EvaluateAnswer(e.acCfg, sc.AntiCheat, anticheat.AnswerEvent{
		QuestionIndex: index,
		Correct:       true,
		Latency:       latency,
	})
	sc.AntiCheat = acState

	if index == e.ladder.Len() {
		return e.completeMaxWin(ctx, s)
	}

	if e.ladder.IsSafe(index) {
		s.SafeFloor = e.ladder.Prize(index)
		s.Score = s.SafeFloor
	}
	s.QuestionIndex = index + 1

	updated, err := e.sessions.Update(ctx, s)
	if err != nil {
		if errors.Is(err, repository.ErrSessionImmutable) {
			return nil
		}
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}

	e.send(s.PlayerID, correctAnswerText(index, 0, updated.SafeFloor, false))

	sc.Question = nil
	if action == anticheat.AnswerActionEnterSpeed || sc.AntiCheat.Stage != anticheat.StageNone {
		return e.issueChallenge(ctx, updated, sc)
	}
	if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to store scratch")
	}
	return e.askQuestion(ctx, updated)
}

// completeMaxWin handles a correct answer on the final question.
func (e *Engine) completeMaxWin(ctx context.Context, s *model.GameSession) error {
	top := e.ladder.TopPrize()
	s.Score = top
	s.Perfect = !s.SkipUsed

	if s.Perfect {
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventPerfectGame, map[string]any{
			"prize": top,
		})
	}

	msg := correctAnswerText(e.ladder.Len(), top, s.SafeFloor, true) + practiceNote(s.Mode)
	e.finalize(ctx, s, model.StatusCompleted, model.EventSessionCompleted, map[string]any{
		"outcome":     "max_win",
		"final_score": top,
		"perfect":     s.Perfect,
	}, msg, e.ladder.Len())

	if e.cfg.VictoryImagePath != "" {
		if err := e.sender.SendImage(s.PlayerID, e.cfg.VictoryImagePath, "Champion! "+formatNaira(top)); err != nil {
			log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to send victory image")
		}
	}
	return nil
}

// applyFiftyFifty removes two wrong options from the pending question.
func (e *Engine) applyFiftyFifty(ctx context.Context, s *model.GameSession, sc *state.SessionScratch) error {
	if s.FiftyFiftyUsed {
		e.send(s.PlayerID, lifelineUsedText("50/50"))
		return ErrLifelineUsed
	}

	s.FiftyFiftyUsed = true
	if _, err := e.sessions.Update(ctx, s); err != nil {
		if errors.Is(err, repository.ErrSessionImmutable) {
			return nil
		}
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}

	q := sc.Question
	var wrong []int
	for i, letter := range optionLetters {
		if letter != q.CorrectOption && q.Options[i] != "" {
			wrong = append(wrong, i)
		}
	}
	e.rngMu.Lock()
	e.rng.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	e.rngMu.Unlock()
	for _, i := range wrong[:2] {
		q.Options[i] = ""
	}

	if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to store scratch")
	}

	e.audit.Record(ctx, s.ID, s.PlayerID, model.EventLifelineUsed, map[string]any{
		"lifeline":       model.LifelineFiftyFifty,
		"question_index": q.QuestionIndex,
	})

	e.send(s.PlayerID, fiftyFiftyText())
	e.send(s.PlayerID, formatQuestion(q, e.ladder.Prize(q.QuestionIndex)))
	return nil
}

// applySkip advances past the pending question without scoring it. The safe
// floor is untouched in either direction.
func (e *Engine) applySkip(ctx context.Context, s *model.GameSession, sc *state.SessionScratch) error {
	if s.SkipUsed {
		e.send(s.PlayerID, lifelineUsedText("SKIP"))
		return ErrLifelineUsed
	}

	q := sc.Question
	index := q.QuestionIndex

	lifeline := model.LifelineSkip
	if err := e.sessions.RecordAnswer(ctx, &model.SessionAnswer{
		SessionID:     s.ID,
		QuestionIndex: index,
		QuestionID:    q.QuestionID,
		Correct:       false,
		LatencyMs:     e.now().Sub(q.AskedAt).Milliseconds(),
		LifelineUsed:  &lifeline,
	}); err != nil {
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}
	if err := e.questions.RecordExposure(ctx, q.QuestionID, false); err != nil {
		log.Error().Err(err).Int64("question_id", q.QuestionID).Msg("Failed to record exposure")
	}

	if index == 1 {
		if err := e.states.ResetQ1Streak(ctx, s.PlayerID); err != nil {
			log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to reset q1 streak")
		}
	}

	e.audit.Record(ctx, s.ID, s.PlayerID, model.EventLifelineUsed, map[string]any{
		"lifeline":       model.LifelineSkip,
		"question_index": index,
	})

	s.SkipUsed = true

	if index == e.ladder.Len() {
		// Skipping the last question ends the game at the current score.
		msg := skipText(index) + "\n" + cancelledText(s.Score) + practiceNote(s.Mode)
		e.finalize(ctx, s, model.StatusCompleted, model.EventSessionCompleted, map[string]any{
			"outcome":     "skipped_final",
			"final_score": s.Score,
		}, msg, index-1)
		return nil
	}

	s.QuestionIndex = index + 1
	updated, err := e.sessions.Update(ctx, s)
	if err != nil {
		if errors.Is(err, repository.ErrSessionImmutable) {
			return nil
		}
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return err
	}

	sc.Question = nil
	if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to store scratch")
	}

	e.send(s.PlayerID, skipText(index))
	return e.askQuestion(ctx, updated)
}

// issueChallenge generates and delivers a verification challenge for the
// session's current anti-cheat stage, replacing the question timer with the
// challenge timer.
func (e *Engine) issueChallenge(ctx context.Context, s *model.GameSession, sc *state.SessionScratch) error {
	e.rngMu.Lock()
	ch := anticheat.NewChallenge(e.rng, sc.AntiCheat.Stage)
	e.rngMu.Unlock()

	sc.Challenge = &ch
	sc.Question = nil
	if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	e.timers.Disarm(s.ID, timer.PurposeQuestion)
	playerID, sessionID := s.PlayerID, s.ID
	e.timers.Arm(sessionID, timer.PurposeChallenge, e.cfg.ChallengeTimeout, func() {
		e.onChallengeTimeout(playerID, sessionID)
	})

	e.audit.Record(ctx, s.ID, s.PlayerID, model.EventChallengeIssued, map[string]any{
		"stage": string(ch.Stage),
	})

	e.send(s.PlayerID, ch.Prompt)
	return nil
}

// handleChallengeInput evaluates a text reply to the active challenge.
func (e *Engine) handleChallengeInput(ctx context.Context, s *model.GameSession, sc *state.SessionScratch, input string) error {
	ch := sc.Challenge

	if ch.Stage == anticheat.StagePhoto {
		// Photo proof is reviewed out-of-band; text neither passes nor
		// fails it.
		e.send(s.PlayerID, "Thanks, your submission is under review. Please wait.")
		return nil
	}

	passed := ch.CheckAnswer(input)
	return e.resolveChallenge(ctx, s, sc, passed, "answer")
}

// resolveChallenge applies a challenge outcome: proceed, retry, escalate,
// or terminate.
func (e *Engine) resolveChallenge(ctx context.Context, s *model.GameSession, sc *state.SessionScratch, passed bool, via string) error {
	stage := sc.Challenge.Stage
	acState, action := anticheat.EvaluateChallenge(e.acCfg, sc.AntiCheat, passed)
	sc.AntiCheat = acState

	if passed {
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventChallengePassed, map[string]any{
			"stage": string(stage),
		})
	} else {
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventChallengeFailed, map[string]any{
			"stage": string(stage),
			"via":   via,
		})
	}

	switch action {
	case anticheat.ChallengeActionProceed:
		e.timers.Disarm(s.ID, timer.PurposeChallenge)
		sc.Challenge = nil
		if err := e.states.SetScratch(ctx, s.ID, sc); err != nil {
			log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to store scratch")
		}
		return e.askQuestion(ctx, s)

	case anticheat.ChallengeActionRetry:
		e.send(s.PlayerID, challengeRetryText())
		return e.issueChallenge(ctx, s, sc)

	case anticheat.ChallengeActionEscalate:
		return e.issueChallenge(ctx, s, sc)

	default: // ChallengeActionTerminate
		if err := e.players.Flag(ctx, s.PlayerID); err != nil {
			log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to flag player")
		}
		s.Score = s.SafeFloor
		e.finalize(ctx, s, model.StatusCancelled, model.EventSessionTerminated, map[string]any{
			"stage":       string(stage),
			"final_score": s.Score,
		}, terminatedText(), s.QuestionIndex-1)
		return nil
	}
}

// CancelSession cancels the player's live session: explicit player reset or
// an administrative action.
func (e *Engine) CancelSession(ctx context.Context, playerID int64, byAdmin bool) error {
	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	s, err := e.sessions.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNoActiveSession
		}
		return err
	}

	by := "player"
	if byAdmin {
		by = "admin"
	}
	s.Score = s.SafeFloor
	e.finalize(ctx, s, model.StatusCancelled, model.EventSessionCancelled, map[string]any{
		"by":          by,
		"final_score": s.Score,
	}, cancelledText(s.Score)+practiceNote(s.Mode), s.QuestionIndex-1)
	return nil
}

// onQuestionTimeout fires when the question timer for (session, index)
// elapses. It re-validates status and index under the player lock before
// committing, so a just-processed answer makes this a no-op.
func (e *Engine) onQuestionTimeout(playerID int64, sessionID string, index int) {
	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	ctx := context.Background()
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil || s.Status != model.StatusActive || s.QuestionIndex != index {
		return
	}

	var questionID int64
	if sc, err := e.states.GetScratch(ctx, sessionID); err == nil && sc.Question != nil {
		questionID = sc.Question.QuestionID
		if err := e.questions.RecordExposure(ctx, questionID, false); err != nil {
			log.Error().Err(err).Int64("question_id", questionID).Msg("Failed to record exposure")
		}
	}

	if err := e.sessions.RecordAnswer(ctx, &model.SessionAnswer{
		SessionID:     sessionID,
		QuestionIndex: index,
		QuestionID:    questionID,
		Correct:       false,
	}); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to record timeout answer")
	}

	e.audit.Record(ctx, sessionID, playerID, model.EventQuestionTimeout, map[string]any{
		"question_index": index,
	})

	if index == 1 {
		e.bumpQ1Streak(ctx, s)
	}

	s.Score = s.SafeFloor
	e.finalize(ctx, s, model.StatusCompleted, model.EventSessionCompleted, map[string]any{
		"outcome":     "question_timeout",
		"final_score": s.Score,
	}, questionTimeoutText(s.Score)+practiceNote(s.Mode), index-1)
}

// bumpQ1Streak increments the per-player consecutive-Q1-timeout streak and
// applies the warn/suspend policy.
func (e *Engine) bumpQ1Streak(ctx context.Context, s *model.GameSession) {
	streak, err := e.states.IncrQ1Streak(ctx, s.PlayerID)
	if err != nil {
		log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to bump q1 streak")
		return
	}

	switch anticheat.EvaluateQ1Streak(e.acCfg, streak) {
	case anticheat.Q1ActionWarn:
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventQ1StreakWarning, map[string]any{
			"streak": streak,
		})
	case anticheat.Q1ActionSuspend:
		if err := e.states.Suspend(ctx, s.PlayerID, e.cfg.SuspensionTTL); err != nil {
			log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to suspend player")
			return
		}
		e.audit.Record(ctx, s.ID, s.PlayerID, model.EventPlayerSuspended, map[string]any{
			"streak":        streak,
			"suspended_for": e.cfg.SuspensionTTL.String(),
		})
	}
}

// onSessionTimeout fires when the total-session timer elapses.
func (e *Engine) onSessionTimeout(playerID int64, sessionID string) {
	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	ctx := context.Background()
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil || s.IsTerminal() {
		return
	}

	s.Score = s.SafeFloor
	e.finalize(ctx, s, model.StatusTimeout, model.EventSessionTimeout, map[string]any{
		"final_score": s.Score,
	}, sessionTimeoutText(s.Score)+practiceNote(s.Mode), s.QuestionIndex-1)
}

// onChallengeTimeout fires when a verification challenge elapses unanswered;
// it counts as a failed attempt.
func (e *Engine) onChallengeTimeout(playerID int64, sessionID string) {
	e.locks.Lock(playerID)
	defer e.locks.Unlock(playerID)

	ctx := context.Background()
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil || s.Status != model.StatusActive {
		return
	}
	sc, err := e.states.GetScratch(ctx, sessionID)
	if err != nil || sc.Challenge == nil {
		return
	}

	_ = e.resolveChallenge(ctx, s, sc, false, "timeout")
}

// finalize commits a terminal transition. The repository refuses terminal
// rows, so whichever of two racing paths reaches it first wins and the
// other silently drops out.
func (e *Engine) finalize(ctx context.Context, s *model.GameSession, status, eventType string, payload map[string]any, msg string, highestIndex int) {
	s.Status = status
	if _, err := e.sessions.Update(ctx, s); err != nil {
		if errors.Is(err, repository.ErrSessionImmutable) {
			return
		}
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to finalize session")
		e.send(s.PlayerID, "Something went wrong. Please try again.")
		return
	}

	e.timers.DisarmAll(s.ID)

	e.audit.Record(ctx, s.ID, s.PlayerID, eventType, payload)

	if err := e.states.ClearScratch(ctx, s.ID); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to clear scratch")
	}
	if err := e.states.ClearConversation(ctx, s.PlayerID); err != nil {
		log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to clear conversation")
	}

	winnings := s.Score
	if s.Mode == model.ModePractice {
		winnings = 0
	}
	if highestIndex < 0 {
		highestIndex = 0
	}
	if _, err := e.players.RecordOutcome(ctx, s.PlayerID, winnings, highestIndex); err != nil {
		log.Error().Err(err).Int64("player_id", s.PlayerID).Msg("Failed to record player outcome")
	}

	e.send(s.PlayerID, msg)

	log.Info().
		Str("session_id", s.ID).
		Int64("player_id", s.PlayerID).
		Str("status", status).
		Int64("score", s.Score).
		Msg("Session ended")
}

func (e *Engine) send(playerID int64, text string) {
	if err := e.sender.SendText(playerID, text); err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("Failed to send message")
	}
}
