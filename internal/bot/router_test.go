package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/usmnv/gdbot/internal/config"
	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/dialog"
	"github.com/usmnv/gdbot/internal/session"
)

// downStore fails every lookup the way the sqlx store does once the
// connection is gone.
type downStore struct {
	database.Store
}

func (downStore) GetUser(context.Context, int64) (*database.User, error) {
	return nil, fmt.Errorf("get user: %w", database.ErrUnavailable)
}

func (downStore) IsAdmin(context.Context, int64) (bool, error) {
	return false, fmt.Errorf("is admin: %w", database.ErrUnavailable)
}

// sentTexts records the text of every sendMessage call hitting the fake
// Bot API server.
type sentTexts struct {
	mu    sync.Mutex
	texts []string
}

func (s *sentTexts) add(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *sentTexts) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		t.Fatal("no message was sent")
	}
	return s.texts[len(s.texts)-1]
}

func newTestRouter(t *testing.T, store database.Store) (tgbot.HandlerFunc, *tgbot.Bot, *sentTexts) {
	t.Helper()

	sent := &sentTexts{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			_ = r.ParseForm()
		}
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			sent.add(r.FormValue("text"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	t.Cleanup(srv.Close)

	b, err := tgbot.New("test-token",
		tgbot.WithServerURL(srv.URL),
		tgbot.WithSkipGetMe(),
	)
	if err != nil {
		t.Fatalf("tgbot.New: %v", err)
	}

	log := discardLogger()
	deps := Deps{
		Logger: log,
		Config: &config.Config{WebAppURL: "https://example.com/app"},
		Store:  store,
		Engine: dialog.New(store, session.NewStore(), nil, "secret123", log),
	}
	return NewRouter(deps), b, sent
}

func textUpdate(userID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: userID, FirstName: "Иван"},
			Chat: models.Chat{ID: userID},
			Text: text,
		},
	}
}

func TestRouterStorageOutage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"start", "/start"},
		{"cabinet", labelCabinet},
		{"exchange", labelExchange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, b, sent := newTestRouter(t, downStore{})

			handler(context.Background(), b, textUpdate(10, tt.text))

			if got := sent.last(t); got != msgStorageDown {
				t.Errorf("reply = %q, want %q", got, msgStorageDown)
			}
		})
	}
}

func TestRouterUnknownUser(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"start begins registration", "/start", "👋 Привет! Для регистрации отправьте ваш контакт:"},
		{"cabinet asks to register", labelCabinet, msgRegisterHint},
		{"exchange asks to register", labelExchange, msgRegisterHint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, b, sent := newTestRouter(t, newTestStore(t))

			handler(context.Background(), b, textUpdate(10, tt.text))

			if got := sent.last(t); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}
