package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepBroadcastAudience = "audience"
	stepBroadcastMessage  = "message"

	audienceAllLabel    = "📢 Всем пользователям"
	audienceOrdersLabel = "👥 Только клиентам с заказами"
	audienceAdminsLabel = "👑 Только администраторам"
)

// broadcastFlow picks an audience, composes free text, and hands delivery
// to the fan-out component.
func broadcastFlow() *Flow {
	return &Flow{
		Name:  FlowBroadcast,
		Entry: stepBroadcastAudience,
		Steps: map[string]*Step{
			stepBroadcastAudience: {
				Prompt: promptBroadcastAudience,
				Handle: handleBroadcastAudience,
			},
			stepBroadcastMessage: {
				Prompt: promptBroadcastMessage,
				Handle: handleBroadcastMessage,
				Back:   stepBroadcastAudience,
			},
		},
	}
}

func promptBroadcastAudience(_ context.Context, _ *Engine, _ *session.Session) (Reply, error) {
	return Reply{
		Text: "📢 Рассылка сообщений\n\nВыберите аудиторию:",
		Keyboard: [][]string{
			{audienceAllLabel},
			{audienceOrdersLabel},
			{audienceAdminsLabel},
			{BackLabel},
		},
	}, nil
}

func handleBroadcastAudience(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	var audience database.BroadcastAudience
	switch strings.TrimSpace(in.Text) {
	case audienceAllLabel:
		audience = database.AudienceAll
	case audienceOrdersLabel:
		audience = database.AudienceWithShipments
	case audienceAdminsLabel:
		audience = database.AudienceAdmins
	default:
		return Result{Retry: true, Reply: Reply{
			Text: "Выберите аудиторию кнопкой ниже.",
		}}, nil
	}

	recipients, err := e.store.ListBroadcastRecipients(ctx, audience)
	if err != nil {
		return Result{}, err
	}

	s.Audience = audience
	return Result{Next: stepBroadcastMessage, Reply: Reply{
		Text: fmt.Sprintf("Выбрана аудитория: %s\nПолучателей: %d", in.Text, len(recipients)),
	}}, nil
}

func promptBroadcastMessage(_ context.Context, _ *Engine, _ *session.Session) (Reply, error) {
	return Reply{
		Text:     "Введите сообщение для рассылки:",
		Keyboard: [][]string{{BackLabel}},
	}, nil
}

func handleBroadcastMessage(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{Retry: true, Reply: Reply{
			Text: "Сообщение не может быть пустым.",
		}}, nil
	}

	sent, failed, err := e.broadcaster.Broadcast(ctx, s.Audience, text)
	if err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("📊 Результаты рассылки:\n\n✅ Успешно: %d\n❌ Не удалось: %d", sent, failed),
	}}, nil
}
