package dialog

import (
	"context"
	"fmt"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const stepRegContact = "contact"

// registrationFlow captures the user's contact and commits a new user
// record. Re-running it for a registered user returns the same customer
// code unchanged.
func registrationFlow() *Flow {
	return &Flow{
		Name:  FlowRegistration,
		Entry: stepRegContact,
		Steps: map[string]*Step{
			stepRegContact: {
				Prompt: promptRegContact,
				Handle: handleRegContact,
			},
		},
	}
}

func promptRegContact(_ context.Context, _ *Engine, _ *session.Session) (Reply, error) {
	return Reply{
		Text:           "👋 Привет! Для регистрации отправьте ваш контакт:",
		RequestContact: true,
	}, nil
}

func handleRegContact(ctx context.Context, e *Engine, _ *session.Session, in Input) (Result, error) {
	if in.Contact == nil {
		return Result{Retry: true, Reply: Reply{
			Text:           "Пожалуйста, отправьте свой контакт кнопкой ниже.",
			RequestContact: true,
		}}, nil
	}
	if in.Contact.UserID != in.UserID {
		return Result{Retry: true, Reply: Reply{
			Text:           "Пожалуйста, отправьте свой контакт, а не чужой.",
			RequestContact: true,
		}}, nil
	}

	code, err := e.store.RegisterUser(ctx, database.RegisterUserParams{
		TelegramID:  in.UserID,
		Username:    in.Username,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.Contact.PhoneNumber,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Регистрация успешна!\n📋 Ваш код клиента: %s", code),
	}}, nil
}
