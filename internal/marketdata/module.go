package marketdata

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/stream"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

// Module provides market-data snapshots and the live feed.
var Module = fx.Module("marketdata",
	fx.Provide(
		NewService,
		ProvideFeed,
	),
)

func ProvideFeed(cfg *venue.Config, logger logging.ApplicationLogger) *Feed {
	return NewFeed(stream.DefaultConfig(cfg.WebSocketURL()), logger)
}
