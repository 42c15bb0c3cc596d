package trading

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/session"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

// Module provides the position and order action handlers.
var Module = fx.Module("trading",
	fx.Provide(ProvideAssetResolver),
	fx.Provide(ProvideService),
)

func ProvideAssetResolver(info clients.InfoClient) AssetResolver {
	return NewAssetResolver(info)
}

func ProvideService(
	exchange venue.ExchangeService,
	actionClient *actions.Client,
	assets AssetResolver,
	machine *session.Machine,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	bus *events.EventBus,
	logger *zap.Logger,
	cfg *venue.Config,
) *Service {
	return NewService(exchange, actionClient, assets, machine, notifier, reporter, bus, logger, cfg)
}
