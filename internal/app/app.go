package app

import (
	"fmt"
	"io"
	"log/slog"

	"bazaar/internal/api"
	"bazaar/internal/auth"
	"bazaar/internal/chat"
	"bazaar/internal/config"
	"bazaar/internal/models"
	"bazaar/internal/ws"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// Deps is everything a command needs from a started application.
type Deps struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Session models.Session
	Auth    *auth.Service
	API     *api.Client
	Socket  *ws.Manager
	Badges  *chat.Badges
}

// New assembles the client. Extra options typically carry an fx.Populate
// or fx.Invoke for the command being run.
func New(cfg *config.Config, log *slog.Logger, opts ...fx.Option) *fx.App {
	options := []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: log.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Supply(cfg, log),
		fx.Provide(
			newStorage,
			newAuthService,
			newSession,
			newAPIClient,
			newSocket,
			newBadges,
		),
	}
	return fx.New(append(options, opts...)...)
}

// NewLogger returns a text logger at the named level ("debug", "info",
// "warn" or "error").
func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
