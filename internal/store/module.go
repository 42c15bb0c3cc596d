package store

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/config"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Module provides the preference store database
var Module = fx.Module("store",
	fx.Provide(
		ProvideRepository,
		func(r *Repository) wallet.PreferenceStore { return r },
		func(r *Repository) history.PendingStore { return r },
	),
)

// ProvideRepository creates a database repository from config
func ProvideRepository(cfg *config.Config, logger *zap.Logger) (*Repository, error) {
	logger.Info("Connecting to preference database...")
	repo, err := NewRepository(cfg.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repo, nil
}
