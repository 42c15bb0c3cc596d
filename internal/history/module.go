package history

import (
	"go.uber.org/fx"
)

// Module provides the pending-history reconciliation service.
var Module = fx.Module("history",
	fx.Provide(NewService),
)
