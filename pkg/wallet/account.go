package wallet

import (
	"github.com/ethereum/go-ethereum/common"
)

// AccountKind discriminates how the wallet holds the key for an account,
// which in turn determines which signing paths are legal for it.
type AccountKind string

const (
	KindSoftware  AccountKind = "software"
	KindHardware  AccountKind = "hardware"
	KindMultisig  AccountKind = "multisig"
	KindWatchOnly AccountKind = "watch_only"
)

// Account is a wallet-held trading account.
type Account struct {
	Address common.Address
	Kind    AccountKind
	Alias   string
}

// CanSign reports whether the account can produce signatures at all.
// Multisig and watch-only accounts cannot sign perps actions.
func (a Account) CanSign() bool {
	return a.Kind == KindSoftware || a.Kind == KindHardware
}

// SupportsDirectSigning reports whether transactions can be signed and
// submitted in the background without an interactive approval flow.
func (a Account) SupportsDirectSigning() bool {
	return a.Kind == KindSoftware
}

// SupportsInteractiveSigning reports whether the account signs through a
// remote interactive device (hardware wallet prompt).
func (a Account) SupportsInteractiveSigning() bool {
	return a.Kind == KindHardware
}
