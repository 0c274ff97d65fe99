package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"trivia-game-bot/internal/audit"
	"trivia-game-bot/internal/config"
	"trivia-game-bot/internal/game"
	"trivia-game-bot/internal/router"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	router *router.Router
	engine *game.Engine
	audit  *audit.Recorder
}

// New creates a Bot over the Telegram API. Handlers are registered by Bind
// once the engine and router exist; they need the bot's Sender first.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{bot: teleBot, cfg: cfg}, nil
}

// Bind attaches the application layers and registers middleware and handlers.
func (b *Bot) Bind(r *router.Router, e *game.Engine, a *audit.Recorder) {
	b.router = r
	b.engine = e
	b.audit = a

	b.registerMiddleware()
	b.registerHandlers()
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/play", b.handlePlay)
	b.bot.Handle("/reset", b.handleReset)
	b.bot.Handle("/stats", b.handleStats)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/cancel_session", b.handleAdminCancel)
	adminGroup.Handle("/trail", b.handleAdminTrail)

	b.bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return b.router.HandleStart(context.Background(), sender.ID, displayName(sender))
}

func (b *Bot) handlePlay(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return b.router.HandlePlay(context.Background(), sender.ID)
}

func (b *Bot) handleReset(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return b.router.HandleReset(context.Background(), sender.ID)
}

func (b *Bot) handleStats(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return b.router.HandleStats(context.Background(), sender.ID)
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return b.router.HandleText(context.Background(), sender.ID, displayName(sender), c.Text())
}

// handleAdminCancel cancels another player's live session: /cancel_session <player_id>
func (b *Bot) handleAdminCancel(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /cancel_session <player_id>")
	}
	playerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("Invalid player id.")
	}

	err = b.engine.CancelSession(context.Background(), playerID, true)
	if errors.Is(err, game.ErrNoActiveSession) {
		return c.Reply("That player has no game in progress.")
	}
	if err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("Admin cancel failed")
		return c.Reply("Failed to cancel the session.")
	}
	return c.Reply(fmt.Sprintf("Session for player %d cancelled.", playerID))
}

// handleAdminTrail prints a session's audit trail: /trail <session_id>
func (b *Bot) handleAdminTrail(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /trail <session_id>")
	}

	events, err := b.audit.SessionTrail(context.Background(), args[0])
	if err != nil {
		log.Error().Err(err).Str("session_id", args[0]).Msg("Failed to load audit trail")
		return c.Reply("Failed to load the trail.")
	}
	if len(events) == 0 {
		return c.Reply("No events for that session.")
	}

	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "%s %s\n", e.CreatedAt.Format(time.RFC3339), e.EventType)
	}
	return c.Reply(sb.String())
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// Start starts the bot polling loop.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Sender returns the outbound transport over this bot.
func (b *Bot) Sender() *Sender {
	return NewSender(b.bot)
}
