package game

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-game-bot/internal/anticheat"
	"trivia-game-bot/internal/ladder"
	"trivia-game-bot/internal/model"
	"trivia-game-bot/internal/pkg/timer"
	"trivia-game-bot/internal/repository"
	"trivia-game-bot/internal/state"
)

// ---- fakes ----

type fakeSessions struct {
	mu      sync.Mutex
	rows    map[string]*model.GameSession
	answers []*model.SessionAnswer
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*model.GameSession{}}
}

func copySession(s *model.GameSession) *model.GameSession {
	out := *s
	return &out
}

func (f *fakeSessions) Create(_ context.Context, s *model.GameSession) (*model.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.PlayerID == s.PlayerID && !row.IsTerminal() {
			return nil, repository.ErrActiveSessionExists
		}
	}
	row := copySession(s)
	row.StartedAt = time.Now()
	f.rows[row.ID] = row
	return copySession(row), nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*model.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return copySession(row), nil
}

func (f *fakeSessions) GetActiveByPlayer(_ context.Context, playerID int64) (*model.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.PlayerID == playerID && !row.IsTerminal() {
			return copySession(row), nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessions) Update(_ context.Context, s *model.GameSession) (*model.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[s.ID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	if row.IsTerminal() {
		return nil, repository.ErrSessionImmutable
	}
	updated := copySession(s)
	f.rows[s.ID] = updated
	return copySession(updated), nil
}

func (f *fakeSessions) RecordAnswer(_ context.Context, a *model.SessionAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.answers = append(f.answers, &cp)
	return nil
}

type fakePlayers struct {
	mu      sync.Mutex
	rows    map[int64]*model.Player
	flagged map[int64]bool
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{rows: map[int64]*model.Player{}, flagged: map[int64]bool{}}
}

func (f *fakePlayers) GetOrCreate(_ context.Context, id int64, displayName string) (*model.Player, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[id]; ok {
		cp := *p
		return &cp, false, nil
	}
	p := &model.Player{ID: id, DisplayName: displayName}
	f.rows[id] = p
	cp := *p
	return &cp, true, nil
}

func (f *fakePlayers) GetByID(_ context.Context, id int64) (*model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlayers) RecordOutcome(_ context.Context, id int64, winnings int64, highestIndex int) (*model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	p.GamesPlayed++
	p.TotalWinnings += winnings
	if highestIndex > p.HighestIndex {
		p.HighestIndex = highestIndex
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlayers) Flag(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged[id] = true
	if p, ok := f.rows[id]; ok {
		p.Flagged = true
	}
	return nil
}

type fakeQuestions struct {
	mu     sync.Mutex
	serial int64
	shown  map[int64]int
}

func newFakeQuestions() *fakeQuestions {
	return &fakeQuestions{shown: map[int64]int{}}
}

func (f *fakeQuestions) NextQuestion(_ context.Context, difficulty int, _ int64) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial++
	return &model.Question{
		ID:   f.serial,
		Text: fmt.Sprintf("Question at difficulty %d", difficulty),
		Options: []string{
			"right answer",
			fmt.Sprintf("wrong %d-1", difficulty),
			fmt.Sprintf("wrong %d-2", difficulty),
			fmt.Sprintf("wrong %d-3", difficulty),
		},
		CorrectOption: "A",
		Difficulty:    difficulty,
	}, nil
}

func (f *fakeQuestions) RecordExposure(_ context.Context, questionID int64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown[questionID]++
	return nil
}

// fakeStates round-trips scratch through JSON the way the real store does.
type fakeStates struct {
	mu          sync.Mutex
	scratch     map[string][]byte
	streaks     map[int64]int
	suspended   map[int64]bool
	convCleared map[int64]int
}

func newFakeStates() *fakeStates {
	return &fakeStates{
		scratch:     map[string][]byte{},
		streaks:     map[int64]int{},
		suspended:   map[int64]bool{},
		convCleared: map[int64]int{},
	}
}

func (f *fakeStates) GetScratch(_ context.Context, sessionID string) (*state.SessionScratch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.scratch[sessionID]
	if !ok {
		return nil, state.ErrNotFound
	}
	var sc state.SessionScratch
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (f *fakeStates) SetScratch(_ context.Context, sessionID string, sc *state.SessionScratch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	f.scratch[sessionID] = data
	return nil
}

func (f *fakeStates) ClearScratch(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scratch, sessionID)
	return nil
}

func (f *fakeStates) ClearConversation(_ context.Context, playerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCleared[playerID]++
	return nil
}

func (f *fakeStates) IncrQ1Streak(_ context.Context, playerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaks[playerID]++
	return f.streaks[playerID], nil
}

func (f *fakeStates) ResetQ1Streak(_ context.Context, playerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streaks, playerID)
	return nil
}

func (f *fakeStates) Suspend(_ context.Context, playerID int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspended[playerID] = true
	return nil
}

func (f *fakeStates) IsSuspended(_ context.Context, playerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspended[playerID], nil
}

type recordedEvent struct {
	SessionID string
	EventType string
	Payload   map[string]any
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) Record(_ context.Context, sessionID string, _ int64, eventType string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{SessionID: sessionID, EventType: eventType, Payload: payload})
}

func (f *fakeRecorder) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func (f *fakeRecorder) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeSender struct {
	mu     sync.Mutex
	texts  []string
	images []string
}

func (f *fakeSender) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) SendImage(_ int64, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, path)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeSender) contains(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

// fakeScheduler captures callbacks so tests fire deadlines deterministically.
type fakeScheduler struct {
	mu    sync.Mutex
	armed map[string]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{armed: map[string]func(){}}
}

func schedKey(sessionID string, purpose timer.Purpose) string {
	return sessionID + "/" + string(purpose)
}

func (f *fakeScheduler) Arm(sessionID string, purpose timer.Purpose, _ time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[schedKey(sessionID, purpose)] = fn
}

func (f *fakeScheduler) Disarm(sessionID string, purpose timer.Purpose) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, schedKey(sessionID, purpose))
}

func (f *fakeScheduler) DisarmAll(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.armed {
		if strings.HasPrefix(k, sessionID+"/") {
			delete(f.armed, k)
		}
	}
}

func (f *fakeScheduler) isArmed(sessionID string, purpose timer.Purpose) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[schedKey(sessionID, purpose)]
	return ok
}

// take removes and returns the armed callback without firing it.
func (f *fakeScheduler) take(t *testing.T, sessionID string, purpose timer.Purpose) func() {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	fn, ok := f.armed[schedKey(sessionID, purpose)]
	require.True(t, ok, "expected %s timer armed for %s", purpose, sessionID)
	delete(f.armed, schedKey(sessionID, purpose))
	return fn
}

func (f *fakeScheduler) fire(t *testing.T, sessionID string, purpose timer.Purpose) {
	t.Helper()
	f.take(t, sessionID, purpose)()
}

// ---- fixture ----

type fixture struct {
	engine    *Engine
	sessions  *fakeSessions
	players   *fakePlayers
	questions *fakeQuestions
	states    *fakeStates
	audit     *fakeRecorder
	timers    *fakeScheduler
	sender    *fakeSender

	mu    sync.Mutex
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:  newFakeSessions(),
		players:   newFakePlayers(),
		questions: newFakeQuestions(),
		states:    newFakeStates(),
		audit:     &fakeRecorder{},
		timers:    newFakeScheduler(),
		sender:    &fakeSender{},
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(&Dependencies{
		Config:    Config{VictoryImagePath: "assets/victory.jpg"},
		Ladder:    ladder.Default(),
		Sessions:  f.sessions,
		Players:   f.players,
		Questions: f.questions,
		States:    f.states,
		Audit:     f.audit,
		Timers:    f.timers,
		Sender:    f.sender,
	})
	f.engine.now = func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.clock
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(d)
}

func (f *fixture) session(t *testing.T, id string) *model.GameSession {
	t.Helper()
	s, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) scratch(t *testing.T, sessionID string) *state.SessionScratch {
	t.Helper()
	sc, err := f.states.GetScratch(context.Background(), sessionID)
	require.NoError(t, err)
	return sc
}

// correctOption reads the shuffled correct letter for the pending question.
func (f *fixture) correctOption(t *testing.T, sessionID string) string {
	t.Helper()
	sc := f.scratch(t, sessionID)
	require.NotNil(t, sc.Question)
	return sc.Question.CorrectOption
}

func (f *fixture) wrongOption(t *testing.T, sessionID string) string {
	t.Helper()
	correct := f.correctOption(t, sessionID)
	for _, letter := range optionLetters {
		if letter != correct {
			return letter
		}
	}
	t.Fatal("no wrong option")
	return ""
}

const testPlayer int64 = 777

func startActive(t *testing.T, f *fixture, mode string) *model.GameSession {
	t.Helper()
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, testPlayer, "Ada", mode, nil)
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, s.Status)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "go"))
	return f.session(t, s.ID)
}

// answerCorrectly answers n questions correctly with a comfortable latency.
func answerCorrectly(t *testing.T, f *fixture, n int) {
	t.Helper()
	ctx := context.Background()
	s, err := f.engine.GetActiveSession(ctx, testPlayer)
	require.NoError(t, err)
	require.NotNil(t, s)
	for i := 0; i < n; i++ {
		f.advance(4 * time.Second)
		require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	}
}

// ---- tests ----

func TestStartSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeClassic, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, s.Status)
	assert.Equal(t, 1, s.QuestionIndex)
	assert.True(t, f.timers.isArmed(s.ID, timer.PurposeSession))
	assert.False(t, f.timers.isArmed(s.ID, timer.PurposeQuestion))
	assert.True(t, f.sender.contains("GO"))

	// Anything but the start token keeps the session in ready.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "hello?"))
	assert.Equal(t, model.StatusReady, f.session(t, s.ID).Status)

	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "GO"))
	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.True(t, f.timers.isArmed(s.ID, timer.PurposeQuestion))
	assert.True(t, f.audit.has(model.EventSessionStarted))
	assert.True(t, f.audit.has(model.EventQuestionAsked))
	assert.True(t, f.sender.contains("Question 1"))
}

func TestStartSessionRejectsSecondLiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeClassic, nil)
	require.NoError(t, err)

	_, err = f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeClassic, nil)
	assert.ErrorIs(t, err, repository.ErrActiveSessionExists)
}

func TestStartSessionModeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.StartSession(ctx, testPlayer, "Ada", "speedrun", nil)
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeTournament, nil)
	assert.ErrorIs(t, err, ErrTournamentID)

	tid := "summer-cup"
	s, err := f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeTournament, &tid)
	require.NoError(t, err)
	require.NotNil(t, s.TournamentID)
	assert.Equal(t, tid, *s.TournamentID)
}

func TestFullGameMaxWin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 15)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 50_000, got.Score)
	assert.True(t, got.Perfect)
	assert.True(t, f.audit.has(model.EventPerfectGame))
	assert.True(t, f.sender.contains("₦50,000"))
	assert.Len(t, f.sender.images, 1)

	p, err := f.engine.PlayerStats(ctx, testPlayer)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.GamesPlayed)
	assert.EqualValues(t, 50_000, p.TotalWinnings)
	assert.Equal(t, 15, p.HighestIndex)

	// Terminal session accepts no further input.
	assert.ErrorIs(t, f.engine.HandleInput(ctx, testPlayer, "A"), ErrNoActiveSession)
	assert.False(t, f.timers.isArmed(s.ID, timer.PurposeSession))
}

func TestWrongAnswerFallsToSafeFloor(t *testing.T) {
	f := newFixture(t)

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 6) // past the Q5 checkpoint

	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(context.Background(), testPlayer, f.wrongOption(t, s.ID)))

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 1_000, got.Score)
	assert.EqualValues(t, 1_000, got.SafeFloor)
	assert.True(t, f.audit.has(model.EventAnswerWrong))

	p, err := f.engine.PlayerStats(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, p.TotalWinnings)
	assert.Equal(t, 6, p.HighestIndex)
}

func TestWrongAnswerBeforeAnyCheckpointPaysNothing(t *testing.T) {
	f := newFixture(t)

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 2)

	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(context.Background(), testPlayer, f.wrongOption(t, s.ID)))

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Zero(t, got.Score)
}

func TestPracticeModePaysNothing(t *testing.T) {
	f := newFixture(t)

	s := startActive(t, f, model.ModePractice)
	answerCorrectly(t, f, 15)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 50_000, got.Score)

	p, err := f.engine.PlayerStats(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.GamesPlayed)
	assert.Zero(t, p.TotalWinnings)
}

func TestQuestionTimeoutEndsGame(t *testing.T) {
	f := newFixture(t)

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 10) // Q10 checkpoint banked

	f.timers.fire(t, s.ID, timer.PurposeQuestion)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 10_000, got.Score)
	assert.True(t, f.audit.has(model.EventQuestionTimeout))
	assert.True(t, f.sender.contains("Time's up"))
}

func TestSessionTimeout(t *testing.T) {
	f := newFixture(t)

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 5)

	f.timers.fire(t, s.ID, timer.PurposeSession)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusTimeout, got.Status)
	assert.EqualValues(t, 1_000, got.Score)
	assert.True(t, f.audit.has(model.EventSessionTimeout))
}

func TestStaleQuestionTimeoutIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)

	// Capture the Q1 deadline, then answer before it fires.
	stale := f.timers.take(t, s.ID, timer.PurposeQuestion)
	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	require.Equal(t, 2, f.session(t, s.ID).QuestionIndex)

	stale()

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 2, got.QuestionIndex)
	assert.False(t, f.audit.has(model.EventQuestionTimeout))
}

func TestQ1TimeoutStreakWarnsThenSuspends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s := startActive(t, f, model.ModeClassic)
		f.timers.fire(t, s.ID, timer.PurposeQuestion)
	}

	assert.True(t, f.audit.has(model.EventQ1StreakWarning))
	assert.True(t, f.audit.has(model.EventPlayerSuspended))

	_, err := f.engine.StartSession(ctx, testPlayer, "Ada", model.ModeClassic, nil)
	assert.ErrorIs(t, err, ErrSuspended)
}

func TestQ1StreakResetByAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s := startActive(t, f, model.ModeClassic)
		f.timers.fire(t, s.ID, timer.PurposeQuestion)
	}

	// Answering Q1, even wrongly, breaks the streak.
	s := startActive(t, f, model.ModeClassic)
	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.wrongOption(t, s.ID)))

	for i := 0; i < 2; i++ {
		s := startActive(t, f, model.ModeClassic)
		f.timers.fire(t, s.ID, timer.PurposeQuestion)
	}

	assert.False(t, f.audit.has(model.EventQ1StreakWarning))
	assert.False(t, f.states.suspended[testPlayer])
}

func TestFiftyFiftyRemovesTwoWrongOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "50"))

	sc := f.scratch(t, s.ID)
	require.NotNil(t, sc.Question)
	var remaining []string
	for i, opt := range sc.Question.Options {
		if opt != "" {
			remaining = append(remaining, optionLetters[i])
		}
	}
	assert.Len(t, remaining, 2)
	assert.Contains(t, remaining, sc.Question.CorrectOption)
	assert.True(t, f.session(t, s.ID).FiftyFiftyUsed)
	assert.True(t, f.audit.has(model.EventLifelineUsed))

	// A removed letter is rejected without ending the game.
	var removed string
	for _, letter := range optionLetters {
		found := false
		for _, r := range remaining {
			if r == letter {
				found = true
			}
		}
		if !found {
			removed = letter
			break
		}
	}
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, removed))
	assert.Equal(t, model.StatusActive, f.session(t, s.ID).Status)

	// Second use is refused.
	err := f.engine.HandleInput(ctx, testPlayer, "50")
	assert.ErrorIs(t, err, ErrLifelineUsed)

	// The game continues normally on the reduced question.
	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	assert.Equal(t, 2, f.session(t, s.ID).QuestionIndex)
}

func TestSkipAdvancesWithoutScoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 5)

	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "SKIP"))

	got := f.session(t, s.ID)
	assert.Equal(t, 7, got.QuestionIndex)
	assert.True(t, got.SkipUsed)
	assert.EqualValues(t, 1_000, got.SafeFloor) // unchanged

	err := f.engine.HandleInput(ctx, testPlayer, "skip")
	assert.ErrorIs(t, err, ErrLifelineUsed)
}

func TestSkipDisqualifiesPerfectGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 3)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "SKIP"))
	answerCorrectly(t, f, 11)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 50_000, got.Score)
	assert.False(t, got.Perfect)
	assert.False(t, f.audit.has(model.EventPerfectGame))
}

func TestSkipOnFinalQuestionEndsAtCurrentScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 14)

	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "SKIP"))

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.EqualValues(t, 10_000, got.Score)
	assert.False(t, got.Perfect)
}

func TestFastAnswersTriggerSpeedChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	for i := 0; i < 3; i++ {
		f.advance(time.Second)
		require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	}

	sc := f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
	assert.Equal(t, anticheat.StageSpeed, sc.Challenge.Stage)
	assert.Nil(t, sc.Question)
	assert.True(t, f.audit.has(model.EventChallengeIssued))
	assert.True(t, f.timers.isArmed(s.ID, timer.PurposeChallenge))
	assert.False(t, f.timers.isArmed(s.ID, timer.PurposeQuestion))

	// Passing the challenge delivers the next question; speed mode persists.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, sc.Challenge.Answer))
	sc = f.scratch(t, s.ID)
	assert.Nil(t, sc.Challenge)
	require.NotNil(t, sc.Question)
	assert.Equal(t, 4, sc.Question.QuestionIndex)
	assert.Equal(t, anticheat.StageSpeed, sc.AntiCheat.Stage)
	assert.True(t, f.audit.has(model.EventChallengePassed))

	// Next correct answer gets another pre-question challenge.
	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	sc = f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
}

func TestChallengeEscalationToTermination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	for i := 0; i < 3; i++ {
		f.advance(time.Second)
		require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	}

	// Two failed speed attempts escalate to captcha.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "not a number"))
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "still wrong"))
	sc := f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
	assert.Equal(t, anticheat.StageCaptcha, sc.Challenge.Stage)

	// Two failed captcha attempts escalate to photo.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "nope"))
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "nope"))
	sc = f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
	assert.Equal(t, anticheat.StagePhoto, sc.Challenge.Stage)

	// Text during photo review is acknowledged, not counted as an attempt.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "here you go"))
	assert.Equal(t, model.StatusActive, f.session(t, s.ID).Status)

	// Two photo timeouts terminate the session and flag the player.
	f.timers.fire(t, s.ID, timer.PurposeChallenge)
	f.timers.fire(t, s.ID, timer.PurposeChallenge)

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.True(t, f.audit.has(model.EventSessionTerminated))
	assert.True(t, f.players.flagged[testPlayer])
	assert.True(t, f.sender.contains("Verification failed"))
	// The outbound message never names the heuristic that fired.
	assert.False(t, f.sender.contains("speed"))
	assert.False(t, f.sender.contains("streak"))
}

func TestChallengePassClearsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	for i := 0; i < 3; i++ {
		f.advance(time.Second)
		require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	}

	// One miss, then a pass: the failure counter must clear, so a later
	// single miss retries instead of escalating.
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "wrong"))
	sc := f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
	assert.Equal(t, anticheat.StageSpeed, sc.Challenge.Stage)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, sc.Challenge.Answer))

	f.advance(4 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "wrong"))

	sc = f.scratch(t, s.ID)
	require.NotNil(t, sc.Challenge)
	assert.Equal(t, anticheat.StageSpeed, sc.Challenge.Stage)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 5)

	require.NoError(t, f.engine.CancelSession(ctx, testPlayer, false))

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.EqualValues(t, 1_000, got.Score)
	assert.True(t, f.audit.has(model.EventSessionCancelled))
	assert.False(t, f.timers.isArmed(s.ID, timer.PurposeSession))

	assert.ErrorIs(t, f.engine.CancelSession(ctx, testPlayer, false), ErrNoActiveSession)
}

func TestInvalidInputDuringQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "E"))
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "what do I do"))

	got := f.session(t, s.ID)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 1, got.QuestionIndex)
	assert.Contains(t, f.sender.last(), "A, B, C or D")
}

func TestScratchLossRecoversByReasking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	answerCorrectly(t, f, 3)

	// Simulate ephemeral store loss mid-game.
	require.NoError(t, f.states.ClearScratch(ctx, s.ID))

	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, "A"))

	sc := f.scratch(t, s.ID)
	require.NotNil(t, sc.Question)
	assert.Equal(t, 4, sc.Question.QuestionIndex)
	assert.Equal(t, model.StatusActive, f.session(t, s.ID).Status)
}

func TestGetActiveSessionNilWhenNone(t *testing.T) {
	f := newFixture(t)

	s, err := f.engine.GetActiveSession(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAnswerLatencyRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := startActive(t, f, model.ModeClassic)
	f.advance(7 * time.Second)
	require.NoError(t, f.engine.HandleInput(ctx, testPlayer, f.correctOption(t, s.ID)))

	require.NotEmpty(t, f.sessions.answers)
	first := f.sessions.answers[0]
	assert.EqualValues(t, 7000, first.LatencyMs)
	assert.True(t, first.Correct)
}
