package infrastructure

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
)

// Module provides the shared runtime services: the zap logger, its
// printf-style adapter, the event bus, and telemetry.
var Module = fx.Module("infrastructure",
	fx.Provide(
		NewLogger,
		logging.NewApplicationLogger,
		events.NewEventBus,
		telemetry.NewReporter,
		telemetry.NewNotifier,
	),
)
