package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/accounts"
	"github.com/RabbyHub/perps-engine/internal/config"
	"github.com/RabbyHub/perps-engine/internal/deposit"
	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/internal/infrastructure"
	"github.com/RabbyHub/perps-engine/internal/marketdata"
	"github.com/RabbyHub/perps-engine/internal/session"
	"github.com/RabbyHub/perps-engine/internal/store"
	"github.com/RabbyHub/perps-engine/internal/trading"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

// Module assembles the whole engine.
var Module = fx.Options(
	config.Module,
	infrastructure.Module,
	store.Module,
	venue.Module,
	accounts.Module,
	session.Module,
	deposit.Module,
	trading.Module,
	history.Module,
	marketdata.Module,
	fx.Invoke(registerLifecycle),
)

// registerLifecycle ties the long-running pieces to the fx lifecycle:
// the deferred-approval watcher starts with the app, and shutdown tears
// down the session, the event bus, and the database in order.
func registerLifecycle(
	lc fx.Lifecycle,
	bus *events.EventBus,
	repo *store.Repository,
	machine *session.Machine,
	hist *history.Service,
	feed *marketdata.Feed,
	logger *zap.Logger,
) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return err
			}

			var watchCtx context.Context
			watchCtx, cancel = context.WithCancel(context.Background())
			go machine.WatchBalance(watchCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			hist.Stop()
			if err := feed.Stop(); err != nil {
				logger.Warn("stop live feed", zap.Error(err))
			}
			machine.Logout()
			bus.Close()
			return repo.Close()
		},
	})
}
