package bot

import (
	"log/slog"

	"github.com/usmnv/gdbot/internal/config"
	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/dialog"
)

// Deps provides dependencies for Telegram message handlers.
type Deps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	Engine *dialog.Engine
}
