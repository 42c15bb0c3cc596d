package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AgentCredential is a delegated venue signing key remembered per
// (master account, device) pair. The venue allows at most three
// concurrently registered agents per master account.
type AgentCredential struct {
	Master     common.Address
	DeviceID   string
	Address    common.Address
	KeyHex     string
	Name       string
	ValidUntil time.Time
}

// PreferenceStore is the wallet background service's per-account
// preference storage. All persistence is delegated here.
type PreferenceStore interface {
	AgentCredential(ctx context.Context, master common.Address, deviceID string) (*AgentCredential, error)
	SaveAgentCredential(ctx context.Context, cred AgentCredential) error
	DeleteAgentCredential(ctx context.Context, master common.Address, deviceID string) error

	LastUsedAccount(ctx context.Context) (*common.Address, error)
	SetLastUsedAccount(ctx context.Context, addr common.Address) error

	OnboardingDone(ctx context.Context, addr common.Address) (bool, error)
	SetOnboardingDone(ctx context.Context, addr common.Address) error
}
