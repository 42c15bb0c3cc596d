package deposit

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/config"
	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/chain"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Module provides the deposit/withdraw orchestrator and its routing
// backend client.
var Module = fx.Module("deposit",
	fx.Provide(
		bridge.NewClient,
		ProvideAllowanceSource,
		ProvideOrchestrator,
	),
)

func ProvideAllowanceSource(cfg *config.Config) chain.AllowanceSource {
	return chain.NewAllowanceSource(cfg.Chains.RPCURLs)
}

func ProvideOrchestrator(
	bridgeSvc bridge.Service,
	allowance chain.AllowanceSource,
	submitter wallet.TxSubmitter,
	actionClient *actions.Client,
	signer wallet.Signer,
	info venue.InfoService,
	hist *history.Service,
	cfg *venue.Config,
	bus *events.EventBus,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	logger logging.ApplicationLogger,
) *Orchestrator {
	return NewOrchestrator(bridgeSvc, allowance, submitter, actionClient, signer, info, hist, cfg, bus, notifier, reporter, logger)
}
