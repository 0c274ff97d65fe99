package anticheat

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/samber/lo"
)

// Challenge is a verification task inserted before question delivery.
// Answer is empty for stages whose resolution is out-of-band (photo).
type Challenge struct {
	Stage  Stage  `json:"stage"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// captchaAlphabet avoids ambiguous glyphs (0/O, 1/I/L).
const captchaAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// NewChallenge generates a challenge for the given stage using r as the
// randomness source.
func NewChallenge(r *rand.Rand, stage Stage) Challenge {
	switch stage {
	case StageCaptcha:
		return newCaptchaChallenge()
	case StagePhoto:
		return newPhotoChallenge()
	default:
		return newSpeedChallenge(r)
	}
}

// newSpeedChallenge builds a short arithmetic task.
func newSpeedChallenge(r *rand.Rand) Challenge {
	a := r.Intn(9) + 1
	b := r.Intn(9) + 1
	if r.Intn(2) == 0 {
		return Challenge{
			Stage:  StageSpeed,
			Prompt: fmt.Sprintf("Quick check before your next question: what is %d + %d?", a, b),
			Answer: fmt.Sprintf("%d", a+b),
		}
	}
	// Keep subtraction non-negative.
	if a < b {
		a, b = b, a
	}
	return Challenge{
		Stage:  StageSpeed,
		Prompt: fmt.Sprintf("Quick check before your next question: what is %d - %d?", a, b),
		Answer: fmt.Sprintf("%d", a-b),
	}
}

// newCaptchaChallenge builds a type-this-code task.
func newCaptchaChallenge() Challenge {
	code := string(lo.Samples([]rune(captchaAlphabet), 5))
	return Challenge{
		Stage:  StageCaptcha,
		Prompt: fmt.Sprintf("Verification required. Type this code exactly: %s", code),
		Answer: code,
	}
}

// newPhotoChallenge has no text answer; it resolves via review or timeout.
func newPhotoChallenge() Challenge {
	return Challenge{
		Stage:  StagePhoto,
		Prompt: "Final verification: reply with a live photo of yourself holding today's date on paper. A reviewer will check it shortly.",
	}
}

// CheckAnswer reports whether text answers the challenge. Comparison is
// case-insensitive and ignores surrounding whitespace. Photo challenges are
// never answered by text.
func (c Challenge) CheckAnswer(text string) bool {
	if c.Answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(text), c.Answer)
}
