package venue

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

// Module provides the venue client surface: lazy SDK wrappers, the info
// service, and the SDK-backed exchange service.
var Module = fx.Module("venue",
	fx.Provide(
		clients.NewExchangeClient,
		clients.NewInfoClient,
		clients.NewWebSocketClient,
		NewInfoService,
		NewExchangeService,
	),
)
