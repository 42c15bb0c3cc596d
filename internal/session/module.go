package session

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/config"
	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Module provides the agent-authorization machine and the venue binder.
var Module = fx.Module("session",
	fx.Provide(
		actions.NewClient,
		NewVenueBinder,
		ProvideMachine,
	),
)

// ProvideMachine assembles the login machine from its collaborators.
func ProvideMachine(
	appCfg *config.Config,
	cfg *venue.Config,
	info venue.InfoService,
	actionClient *actions.Client,
	binder VenueBinder,
	signer wallet.Signer,
	prefs wallet.PreferenceStore,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	bus *events.EventBus,
	logger *zap.Logger,
) *Machine {
	return NewMachine(cfg, info, actionClient, binder, signer, prefs, notifier, reporter, bus, logger, appCfg.DeviceID)
}
