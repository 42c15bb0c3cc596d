package accounts

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/config"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Module provides the local keyring, the signing and submission
// services built on it, and the account selector.
var Module = fx.Module("accounts",
	fx.Provide(
		ProvideKeyring,
		func(k *wallet.Keyring) wallet.KeySource { return k },
		func(k *wallet.Keyring) Source { return k },
		wallet.NewSoftwareSigner,
		ProvideSubmitter,
		NewSelector,
	),
)

func ProvideKeyring(cfg *config.Config) (*wallet.Keyring, error) {
	return wallet.NewKeyring(cfg.Wallet.Keys())
}

func ProvideSubmitter(keys wallet.KeySource, cfg *config.Config) wallet.TxSubmitter {
	return wallet.NewRPCSubmitter(keys, cfg.Chains.RPCURLs)
}
