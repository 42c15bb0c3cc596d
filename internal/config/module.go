package config

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

// Module provides configuration loading
var Module = fx.Module("config",
	fx.Provide(
		LoadConfig,
		func(c *Config) *venue.Config { return &c.Venue },
		func(c *Config) bridge.Config { return c.Bridge },
	),
)
