package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Sender adapts the telebot API to the channel-neutral outbound transport
// used by the game engine and router.
type Sender struct {
	bot *tele.Bot
}

// NewSender creates a Sender over b.
func NewSender(b *tele.Bot) *Sender {
	return &Sender{bot: b}
}

// SendText delivers a plain text message to the player's private chat.
func (s *Sender) SendText(identifier int64, text string) error {
	if _, err := s.bot.Send(&tele.User{ID: identifier}, text); err != nil {
		return fmt.Errorf("failed to send text to %d: %w", identifier, err)
	}
	return nil
}

// SendImage delivers an image from disk with a caption.
func (s *Sender) SendImage(identifier int64, path, caption string) error {
	photo := &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	if _, err := s.bot.Send(&tele.User{ID: identifier}, photo); err != nil {
		return fmt.Errorf("failed to send image to %d: %w", identifier, err)
	}
	return nil
}
