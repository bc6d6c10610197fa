package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepShipmentTrack       = "track"
	stepShipmentDescription = "description"
	stepShipmentPrice       = "price"
)

// addShipmentFlow registers a new parcel for the calling user: track code,
// description, price. A duplicate track code aborts the flow without
// touching the existing record.
func addShipmentFlow() *Flow {
	return &Flow{
		Name:  FlowAddShipment,
		Entry: stepShipmentTrack,
		Steps: map[string]*Step{
			stepShipmentTrack: {
				Prompt: func(context.Context, *Engine, *session.Session) (Reply, error) {
					return Reply{
						Text:     "📦 Введите трек-код посылки:",
						Keyboard: [][]string{{BackLabel}},
					}, nil
				},
				Handle: handleShipmentTrack,
			},
			stepShipmentDescription: {
				Prompt: func(context.Context, *Engine, *session.Session) (Reply, error) {
					return Reply{
						Text:     "📝 Введите описание посылки:",
						Keyboard: [][]string{{BackLabel}},
					}, nil
				},
				Handle: handleShipmentDescription,
				Back:   stepShipmentTrack,
			},
			stepShipmentPrice: {
				Prompt: func(context.Context, *Engine, *session.Session) (Reply, error) {
					return Reply{
						Text:     "💰 Введите стоимость посылки в $:",
						Keyboard: [][]string{{BackLabel}},
					}, nil
				},
				Handle: handleShipmentPrice,
				Back:   stepShipmentDescription,
			},
		},
	}
}

func handleShipmentTrack(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	track := strings.ToUpper(strings.TrimSpace(in.Text))
	if track == "" {
		return Result{Retry: true, Reply: Reply{
			Text: "Трек-код не может быть пустым.",
		}}, nil
	}
	s.TrackCode = track
	return Result{Next: stepShipmentDescription}, nil
}

func handleShipmentDescription(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	s.Description = strings.TrimSpace(in.Text)
	return Result{Next: stepShipmentPrice}, nil
}

func handleShipmentPrice(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	price, err := ParsePositiveAmount(in.Text)
	if err != nil {
		return Result{Retry: true, Reply: Reply{
			Text: "Пожалуйста, введите корректную стоимость (например 25.50).",
		}}, nil
	}

	if err := e.store.AddShipment(ctx, in.UserID, s.TrackCode, s.Description, price); err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Трек-код добавлен!\n\n📦 %s\nСтатус: В обработке", s.TrackCode),
	}}, nil
}
