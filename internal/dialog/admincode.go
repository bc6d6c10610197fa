package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const stepAdminCodeEnter = "code"

// adminCodeFlow compares the entered secret against the configured admin
// access code and registers the caller as an administrator on match.
func adminCodeFlow() *Flow {
	return &Flow{
		Name:  FlowAdminCode,
		Entry: stepAdminCodeEnter,
		Steps: map[string]*Step{
			stepAdminCodeEnter: {
				Prompt: func(context.Context, *Engine, *session.Session) (Reply, error) {
					return Reply{Text: "Введите код доступа для регистрации администратора:"}, nil
				},
				Handle: handleAdminCode,
			},
		},
	}
}

func handleAdminCode(ctx context.Context, e *Engine, _ *session.Session, in Input) (Result, error) {
	if strings.TrimSpace(in.Text) != e.adminCode {
		return Result{Retry: true, Reply: Reply{
			Text: "❌ Неверный код доступа. Попробуйте снова.",
		}}, nil
	}

	code, err := e.store.RegisterUser(ctx, database.RegisterUserParams{
		TelegramID:  in.UserID,
		Username:    in.Username,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: "admin",
		IsAdmin:     true,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Вы зарегистрированы как администратор!\n📋 Ваш код: %s", code),
	}}, nil
}
