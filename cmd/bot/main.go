// Package main is the entry point for the trivia game bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trivia-game-bot/internal/anticheat"
	"trivia-game-bot/internal/audit"
	"trivia-game-bot/internal/bot"
	"trivia-game-bot/internal/config"
	"trivia-game-bot/internal/game"
	"trivia-game-bot/internal/ladder"
	"trivia-game-bot/internal/pkg/db"
	"trivia-game-bot/internal/pkg/lock"
	redisclient "trivia-game-bot/internal/pkg/redis"
	"trivia-game-bot/internal/pkg/timer"
	"trivia-game-bot/internal/repository"
	"trivia-game-bot/internal/router"
	"trivia-game-bot/internal/state"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Seed the question bank on first boot
	if err := seedQuestions(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed question bank")
	}

	// Initialize the ephemeral state store
	redisClient, err := redisclient.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer redisClient.Close()

	stateStore := state.NewStore(redisClient, cfg.Game.ConversationTTL)

	// Initialize repositories
	playerRepo := repository.NewPlayerRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	questionRepo := repository.NewQuestionRepository(dbPool.Pool)
	auditRepo := repository.NewAuditRepository(dbPool.Pool)

	recorder := audit.NewRecorder(auditRepo)

	// The bot is created before the engine: the engine sends through it.
	telegramBot, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	scheduler := timer.NewScheduler()
	defer scheduler.Stop()

	engine := game.NewEngine(&game.Dependencies{
		Config: game.Config{
			QuestionTimeout:      cfg.Game.QuestionTimeout,
			SpeedQuestionTimeout: cfg.Game.SpeedQuestionTimeout,
			SessionTimeout:       cfg.Game.SessionTimeout,
			ChallengeTimeout:     cfg.Game.ChallengeTimeout,
			SuspensionTTL:        cfg.AntiCheat.SuspensionTTL,
			StartToken:           cfg.Game.StartToken,
			VictoryImagePath:     cfg.Game.VictoryImage,
		},
		AntiCheat: anticheat.Config{
			FastLatency:       cfg.AntiCheat.FastLatency,
			SpeedStreak:       cfg.AntiCheat.SpeedStreak,
			ChallengeAttempts: cfg.AntiCheat.ChallengeAttempts,
			Q1WarnStreak:      cfg.AntiCheat.Q1WarnStreak,
			Q1SuspendStreak:   cfg.AntiCheat.Q1SuspendStreak,
		},
		Ladder:    ladder.Default(),
		Sessions:  sessionRepo,
		Players:   playerRepo,
		Questions: questionRepo,
		States:    stateStore,
		Audit:     recorder,
		Timers:    scheduler,
		Sender:    telegramBot.Sender(),
		Locks:     lock.NewPlayerLock(),
	})

	messageRouter := router.New(engine, stateStore, telegramBot.Sender())

	telegramBot.Bind(messageRouter, engine, recorder)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: players table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS players (
			id BIGINT PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			games_played BIGINT NOT NULL DEFAULT 0,
			total_winnings BIGINT NOT NULL DEFAULT 0,
			highest_index INT NOT NULL DEFAULT 0,
			flagged BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: players table created")

	// Migration 2: game_sessions table. The partial unique index enforces
	// at most one live session per player.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_sessions (
			id UUID PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			mode VARCHAR(20) NOT NULL,
			tournament_id VARCHAR(64),
			question_index INT NOT NULL DEFAULT 1,
			score BIGINT NOT NULL DEFAULT 0,
			safe_floor BIGINT NOT NULL DEFAULT 0,
			fifty_fifty_used BOOLEAN NOT NULL DEFAULT FALSE,
			skip_used BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(20) NOT NULL DEFAULT 'ready',
			perfect BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_game_sessions_one_live
			ON game_sessions(player_id) WHERE status IN ('ready', 'active');
		CREATE INDEX IF NOT EXISTS idx_game_sessions_player_time
			ON game_sessions(player_id, started_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: game_sessions table created")

	// Migration 3: session_answers table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_answers (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES game_sessions(id) ON DELETE CASCADE,
			question_index INT NOT NULL,
			question_id BIGINT NOT NULL,
			chosen_option VARCHAR(1),
			correct BOOLEAN NOT NULL,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			lifeline_used VARCHAR(20),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_session_answers_session
			ON session_answers(session_id, question_index);
		CREATE INDEX IF NOT EXISTS idx_session_answers_question
			ON session_answers(question_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: session_answers table created")

	// Migration 4: audit_events table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL,
			player_id BIGINT NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_player_time
			ON audit_events(player_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: audit_events table created")

	// Migration 5: questions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS questions (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			option_a TEXT NOT NULL,
			option_b TEXT NOT NULL,
			option_c TEXT NOT NULL,
			option_d TEXT NOT NULL,
			correct_option VARCHAR(1) NOT NULL,
			category VARCHAR(50) NOT NULL DEFAULT 'general',
			difficulty INT NOT NULL,
			times_shown BIGINT NOT NULL DEFAULT 0,
			times_correct BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty, times_shown);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: questions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}

// seedQuestions loads a starter question per difficulty so a fresh install
// can play a full game. Real deployments bulk-load the bank separately.
func seedQuestions(ctx context.Context, pool *db.Pool) error {
	var count int64
	if err := pool.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log.Info().Msg("Seeding starter question bank...")

	type seed struct {
		text       string
		options    [4]string
		correct    string
		category   string
		difficulty int
	}

	seeds := []seed{
		{"What is the capital of Nigeria?", [4]string{"Abuja", "Lagos", "Kano", "Ibadan"}, "A", "geography", 1},
		{"How many days are in a leap year?", [4]string{"366", "365", "364", "367"}, "A", "general", 2},
		{"Which ocean lies on Nigeria's southern coast?", [4]string{"Atlantic", "Pacific", "Indian", "Arctic"}, "A", "geography", 3},
		{"What color do you get by mixing blue and yellow?", [4]string{"Green", "Purple", "Orange", "Brown"}, "A", "general", 4},
		{"Which planet is known as the Red Planet?", [4]string{"Mars", "Venus", "Jupiter", "Mercury"}, "A", "science", 5},
		{"In what year did Nigeria gain independence?", [4]string{"1960", "1957", "1963", "1966"}, "A", "history", 6},
		{"What is the largest mammal on Earth?", [4]string{"Blue whale", "African elephant", "Giraffe", "Hippopotamus"}, "A", "science", 7},
		{"Which river is the longest in Africa?", [4]string{"Nile", "Niger", "Congo", "Zambezi"}, "A", "geography", 8},
		{"Who wrote the novel Things Fall Apart?", [4]string{"Chinua Achebe", "Wole Soyinka", "Chimamanda Adichie", "Ben Okri"}, "A", "literature", 9},
		{"What is the chemical symbol for gold?", [4]string{"Au", "Ag", "Go", "Gd"}, "A", "science", 10},
		{"Which country hosted the 2010 FIFA World Cup?", [4]string{"South Africa", "Brazil", "Germany", "Ghana"}, "A", "sport", 11},
		{"What is the square root of 1,764?", [4]string{"42", "38", "44", "46"}, "A", "mathematics", 12},
		{"Which gas makes up about 78% of Earth's atmosphere?", [4]string{"Nitrogen", "Oxygen", "Carbon dioxide", "Argon"}, "A", "science", 13},
		{"In which year was the Berlin Wall torn down?", [4]string{"1989", "1991", "1987", "1990"}, "A", "history", 14},
		{"Who was the first Nigerian to win the Nobel Prize in Literature?", [4]string{"Wole Soyinka", "Chinua Achebe", "Flora Nwapa", "Cyprian Ekwensi"}, "A", "literature", 15},
	}

	for _, s := range seeds {
		_, err := pool.Exec(ctx, `
			INSERT INTO questions (text, option_a, option_b, option_c, option_d, correct_option, category, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.text, s.options[0], s.options[1], s.options[2], s.options[3], s.correct, s.category, s.difficulty,
		)
		if err != nil {
			return err
		}
	}

	log.Info().Int("count", len(seeds)).Msg("Question bank seeded")
	return nil
}
