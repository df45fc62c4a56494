package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"bazaar/internal/api"
	"bazaar/internal/auth"
	"bazaar/internal/chat"
	"bazaar/internal/clock"
	"bazaar/internal/config"
	"bazaar/internal/models"
	"bazaar/internal/storage"
	"bazaar/internal/ws"

	"go.uber.org/fx"
)

func newStorage(lc fx.Lifecycle, cfg *config.Config) (*storage.BboltStorage, error) {
	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newAuthService(store *storage.BboltStorage, log *slog.Logger) *auth.Service {
	return auth.NewService(store, log.With("component", "auth"))
}

// newSession adopts the configured token, or falls back to the one
// stored by a previous run.
func newSession(cfg *config.Config, svc *auth.Service) (models.Session, error) {
	if cfg.Token != "" {
		return svc.Login(cfg.Token)
	}
	sess, err := svc.Current()
	if errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrSessionExpired) {
		return models.Session{}, fmt.Errorf("%w: set %sTOKEN or pass --token", err, config.EnvPrefix)
	}
	return sess, err
}

func newAPIClient(lc fx.Lifecycle, cfg *config.Config, svc *auth.Service, log *slog.Logger) (*api.Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	client, err := api.New(ctx, api.Config{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		SummaryTTL:        cfg.SummaryTTL,
		MaxImageDimension: cfg.MaxImageDimension,
	}, svc, log.With("component", "api"))
	if err != nil {
		cancel()
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return client, nil
}

func newSocket(lc fx.Lifecycle, cfg *config.Config, sess models.Session, log *slog.Logger) (*ws.Manager, error) {
	mgr, err := ws.NewManager(ws.Config{
		BaseURL:   cfg.BaseURL,
		Heartbeat: cfg.Heartbeat,
		Backoff: ws.Backoff{
			Base:        cfg.ReconnectBase,
			Max:         cfg.ReconnectMax,
			MaxAttempts: cfg.ReconnectAttempts,
		},
		Dial:   ws.GorillaDialer(cfg.HTTPTimeout),
		Logger: log.With("component", "ws"),
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return mgr.Connect(sess.Token)
		},
		OnStop: func(context.Context) error {
			mgr.Close()
			return nil
		},
	})
	return mgr, nil
}

// newBadges subscribes before the socket is started so no counter pushed
// right after the handshake is missed.
func newBadges(lc fx.Lifecycle, store *storage.BboltStorage, mgr *ws.Manager, log *slog.Logger) (*chat.Badges, error) {
	initial, err := store.LoadCounters()
	if err != nil {
		return nil, fmt.Errorf("failed to load badge counters: %w", err)
	}
	badges := chat.NewBadges(initial, store, clock.Real(), log.With("component", "badges"))

	events, leave := mgr.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = badges.Run(ctx, events)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			leave()
			return nil
		},
	})
	return badges, nil
}
