// Package router maps inbound player messages onto game engine calls. It
// owns the conversation state (mode selection, in-game) kept in the
// ephemeral store; the durable session row stays the source of truth, so a
// lost conversation entry degrades to a hint, never to a lost game.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"trivia-game-bot/internal/game"
	"trivia-game-bot/internal/model"
	"trivia-game-bot/internal/repository"
	"trivia-game-bot/internal/state"
)

// Game is the engine surface the router drives.
type Game interface {
	StartSession(ctx context.Context, playerID int64, displayName, mode string, tournamentID *string) (*model.GameSession, error)
	HandleInput(ctx context.Context, playerID int64, text string) error
	CancelSession(ctx context.Context, playerID int64, byAdmin bool) error
	GetActiveSession(ctx context.Context, playerID int64) (*model.GameSession, error)
	PlayerStats(ctx context.Context, playerID int64) (*model.Player, error)
}

// ConversationStore keeps the per-player conversation position.
type ConversationStore interface {
	GetConversation(ctx context.Context, playerID int64) (*state.ConversationState, error)
	SetConversation(ctx context.Context, playerID int64, cs *state.ConversationState) error
	ClearConversation(ctx context.Context, playerID int64) error
}

// Router dispatches commands and free text for one player at a time.
type Router struct {
	game   Game
	conv   ConversationStore
	sender game.Sender
}

// New creates a Router.
func New(g Game, conv ConversationStore, sender game.Sender) *Router {
	return &Router{game: g, conv: conv, sender: sender}
}

// HandleStart greets the player and points them at /play.
func (r *Router) HandleStart(ctx context.Context, playerID int64, displayName string) error {
	r.send(playerID, welcomeText(displayName))
	return nil
}

// HandlePlay begins the mode selection flow, unless a game is already live.
func (r *Router) HandlePlay(ctx context.Context, playerID int64) error {
	s, err := r.game.GetActiveSession(ctx, playerID)
	if err != nil {
		r.send(playerID, errorText())
		return err
	}
	if s != nil {
		r.send(playerID, alreadyInGameText())
		return nil
	}

	if err := r.conv.SetConversation(ctx, playerID, &state.ConversationState{State: state.ConvSelectMode}); err != nil {
		r.send(playerID, errorText())
		return err
	}
	r.send(playerID, modeMenuText())
	return nil
}

// HandleReset cancels the player's live game, if any.
func (r *Router) HandleReset(ctx context.Context, playerID int64) error {
	err := r.game.CancelSession(ctx, playerID, false)
	if errors.Is(err, game.ErrNoActiveSession) {
		if clearErr := r.conv.ClearConversation(ctx, playerID); clearErr != nil {
			log.Error().Err(clearErr).Int64("player_id", playerID).Msg("Failed to clear conversation")
		}
		r.send(playerID, noGameText())
		return nil
	}
	return err
}

// HandleStats sends the player's aggregate record.
func (r *Router) HandleStats(ctx context.Context, playerID int64) error {
	p, err := r.game.PlayerStats(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			r.send(playerID, noStatsText())
			return nil
		}
		r.send(playerID, errorText())
		return err
	}
	r.send(playerID, statsText(p))
	return nil
}

// HandleText routes non-command text by conversation position.
func (r *Router) HandleText(ctx context.Context, playerID int64, displayName, text string) error {
	cs, err := r.conv.GetConversation(ctx, playerID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		r.send(playerID, errorText())
		return err
	}

	if cs != nil && cs.State == state.ConvSelectMode {
		return r.handleModeSelection(ctx, playerID, displayName, text)
	}

	// Default to the game: the durable session outlives a lost
	// conversation entry.
	err = r.game.HandleInput(ctx, playerID, text)
	switch {
	case errors.Is(err, game.ErrNoActiveSession):
		r.send(playerID, noGameText())
		return nil
	case errors.Is(err, game.ErrLifelineUsed):
		return nil
	}
	return err
}

// handleModeSelection parses a mode choice and starts the session.
func (r *Router) handleModeSelection(ctx context.Context, playerID int64, displayName, text string) error {
	mode, tournamentID, ok := parseModeChoice(text)
	if !ok {
		r.send(playerID, modeMenuText())
		return nil
	}

	s, err := r.game.StartSession(ctx, playerID, displayName, mode, tournamentID)
	switch {
	case errors.Is(err, game.ErrSuspended):
		if clearErr := r.conv.ClearConversation(ctx, playerID); clearErr != nil {
			log.Error().Err(clearErr).Int64("player_id", playerID).Msg("Failed to clear conversation")
		}
		r.send(playerID, suspendedText())
		return nil
	case errors.Is(err, game.ErrTournamentID):
		r.send(playerID, tournamentIDText())
		return nil
	case errors.Is(err, repository.ErrActiveSessionExists):
		r.send(playerID, alreadyInGameText())
		return nil
	case err != nil:
		r.send(playerID, errorText())
		return err
	}

	if err := r.conv.SetConversation(ctx, playerID, &state.ConversationState{
		State:     state.ConvInGame,
		SessionID: s.ID,
	}); err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("Failed to set conversation")
	}
	return nil
}

// parseModeChoice accepts menu numbers or mode names; tournament entries
// carry the tournament identifier after the choice.
func parseModeChoice(text string) (mode string, tournamentID *string, ok bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return "", nil, false
	}

	switch fields[0] {
	case "1", model.ModePractice:
		return model.ModePractice, nil, true
	case "2", model.ModeClassic:
		return model.ModeClassic, nil, true
	case "3", model.ModeTournament:
		if len(fields) < 2 {
			return model.ModeTournament, nil, true
		}
		id := fields[1]
		return model.ModeTournament, &id, true
	}
	return "", nil, false
}

func (r *Router) send(playerID int64, text string) {
	if err := r.sender.SendText(playerID, text); err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("Failed to send message")
	}
}

func welcomeText(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "player"
	}
	return fmt.Sprintf("👋 Welcome, %s!\nAnswer 15 questions, climb the prize ladder, and take home up to ₦50,000.\n\n/play - start a game\n/stats - your record\n/reset - cancel your current game", name)
}

func modeMenuText() string {
	return "Choose a game mode:\n1. Practice - no payouts, no pressure\n2. Classic - play for real winnings\n3. Tournament - reply: 3 <tournament-id>"
}

func alreadyInGameText() string {
	return "You already have a game in progress. Finish it or /reset first."
}

func noGameText() string {
	return "No game in progress. Send /play to start one."
}

func noStatsText() string {
	return "You haven't played yet. Send /play to start your first game."
}

func suspendedText() string {
	return "🚫 You can't start a game right now. Please try again later."
}

func tournamentIDText() string {
	return "Tournament mode needs an id. Reply: 3 <tournament-id>"
}

func errorText() string {
	return "Something went wrong. Please try again."
}

func statsText(p *model.Player) string {
	return fmt.Sprintf(
		"📊 %s\nGames played: %d\nTotal winnings: ₦%d\nBest question reached: %d of 15",
		p.DisplayName, p.GamesPlayed, p.TotalWinnings, p.HighestIndex)
}
