package bot

import (
	"context"
	"log/slog"

	tgbot "github.com/go-telegram/bot"

	"github.com/usmnv/gdbot/internal/database"
)

const broadcastPrefix = "📢 Сообщение от Golden Dragon:\n\n"

// MessageSender abstracts direct message delivery so the fan-out can be
// tested without the Telegram API.
type MessageSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends messages through the bot API.
type TelegramSender struct {
	Bot *tgbot.Bot
}

func (s *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := s.Bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// Broadcaster delivers a message to every recipient in an audience,
// sequentially, counting successes and failures. A failed delivery is
// logged and skipped; it never aborts the fan-out.
type Broadcaster struct {
	store  database.Store
	sender MessageSender
	logger *slog.Logger
}

func NewBroadcaster(store database.Store, sender MessageSender, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		store:  store,
		sender: sender,
		logger: logger.With("component", "broadcaster"),
	}
}

// Broadcast resolves the audience to its current recipient list and sends
// the prefixed message to each. Returns how many deliveries succeeded and
// how many failed.
func (bc *Broadcaster) Broadcast(ctx context.Context, audience database.BroadcastAudience, text string) (sent, failed int, err error) {
	recipients, err := bc.store.ListBroadcastRecipients(ctx, audience)
	if err != nil {
		return 0, 0, err
	}

	msg := broadcastPrefix + text
	for _, chatID := range recipients {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		if err := bc.sender.SendText(ctx, chatID, msg); err != nil {
			failed++
			bc.logger.WarnContext(ctx, "Broadcast delivery failed", "chat_id", chatID, "error", err)
			continue
		}
		sent++
	}

	bc.logger.InfoContext(ctx, "Broadcast completed",
		"audience", string(audience), "sent", sent, "failed", failed)
	return sent, failed, nil
}
