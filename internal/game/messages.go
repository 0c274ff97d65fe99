package game

import (
	"fmt"
	"strings"

	"trivia-game-bot/internal/model"
	"trivia-game-bot/internal/state"
)

// Option letters in display order. Answers are matched against these.
var optionLetters = []string{"A", "B", "C", "D"}

// formatNaira renders a prize amount.
func formatNaira(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "₦" + b.String()
}

func startInstructions(mode string, startToken string) string {
	return fmt.Sprintf(
		"🎮 %s game ready!\n15 questions, rising prizes, safe checkpoints at Q5 and Q10.\n"+
			"Lifelines: 50 (drop two wrong options), SKIP (pass one question).\n"+
			"⏱ 12 seconds per question. Reply %s to begin.",
		capitalize(mode), startToken)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatQuestion(q *state.PendingQuestion, prize int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ Question %d (%s at stake)\n\n%s\n\n", q.QuestionIndex, formatNaira(prize), q.Text)
	for i, opt := range q.Options {
		if opt == "" {
			continue // removed by fifty-fifty
		}
		fmt.Fprintf(&b, "%s. %s\n", optionLetters[i], opt)
	}
	b.WriteString("\nReply with A, B, C or D.")
	return b.String()
}

func correctAnswerText(index int, prize, floor int64, final bool) string {
	if final {
		return fmt.Sprintf("🏆 CORRECT! You answered all 15 questions and won %s!\nYour win is being reviewed for payout.", formatNaira(prize))
	}
	msg := fmt.Sprintf("✅ Correct! Question %d secured.", index)
	if floor > 0 {
		msg += fmt.Sprintf(" Guaranteed winnings: %s.", formatNaira(floor))
	}
	return msg
}

func wrongAnswerText(correctOption string, score int64) string {
	return fmt.Sprintf("❌ Wrong! The answer was %s.\nGame over. You take home %s.", correctOption, formatNaira(score))
}

func questionTimeoutText(score int64) string {
	return fmt.Sprintf("⏰ Time's up!\nGame over. You take home %s.", formatNaira(score))
}

func sessionTimeoutText(score int64) string {
	return fmt.Sprintf("⏰ Your session expired.\nYou take home %s.", formatNaira(score))
}

func cancelledText(score int64) string {
	return fmt.Sprintf("🛑 Game cancelled. You take home %s.", formatNaira(score))
}

// terminatedText is deliberately generic: the heuristic that fired is never
// disclosed.
func terminatedText() string {
	return "🚫 Verification failed. This game has been ended and your account is under review."
}

func practiceNote(mode string) string {
	if mode == model.ModePractice {
		return "\n(Practice game: prizes shown are not paid out.)"
	}
	return ""
}

func fiftyFiftyText() string {
	return "🔎 50/50 used: two wrong options removed."
}

func skipText(index int) string {
	return fmt.Sprintf("⏭ Question %d skipped. No prize for it, your guarantee is unchanged.", index)
}

func lifelineUsedText(name string) string {
	return fmt.Sprintf("⚠️ You've already used %s this game.", name)
}

func invalidAnswerText() string {
	return "Please reply with A, B, C or D, or 50 / SKIP to use a lifeline."
}

func awaitingStartText(startToken string) string {
	return fmt.Sprintf("Reply %s to start your game, or /reset to cancel.", startToken)
}

func challengeRetryText() string {
	return "That's not right. One more try:"
}
