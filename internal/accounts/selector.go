package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Source enumerates the wallet's imported accounts.
type Source interface {
	Accounts(ctx context.Context) ([]wallet.Account, error)
}

// Selector picks the account the perps screens operate on. Watch-only
// and multisig accounts cannot authorize an agent, so they are never
// eligible.
type Selector struct {
	source Source
	prefs  wallet.PreferenceStore
	logger *zap.Logger

	mu      sync.Mutex
	current *wallet.Account
}

func NewSelector(source Source, prefs wallet.PreferenceStore, logger *zap.Logger) *Selector {
	return &Selector{
		source: source,
		prefs:  prefs,
		logger: logger,
	}
}

// Eligible returns the accounts that can sign, in wallet order.
func (s *Selector) Eligible(ctx context.Context) ([]wallet.Account, error) {
	all, err := s.source.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	eligible := make([]wallet.Account, 0, len(all))
	for _, a := range all {
		if a.CanSign() {
			eligible = append(eligible, a)
		}
	}
	return eligible, nil
}

// Restore resolves the account to start with: the last-used account if
// it is still present and signable, otherwise the first eligible one.
func (s *Selector) Restore(ctx context.Context) (wallet.Account, error) {
	eligible, err := s.Eligible(ctx)
	if err != nil {
		return wallet.Account{}, err
	}
	if len(eligible) == 0 {
		return wallet.Account{}, fmt.Errorf("no signable accounts in wallet")
	}

	chosen := eligible[0]
	last, err := s.prefs.LastUsedAccount(ctx)
	if err != nil {
		s.logger.Warn("read last used account", zap.Error(err))
	} else if last != nil {
		for _, a := range eligible {
			if a.Address == *last {
				chosen = a
				break
			}
		}
	}

	s.mu.Lock()
	s.current = &chosen
	s.mu.Unlock()
	return chosen, nil
}

// Select switches to a specific account by address.
func (s *Selector) Select(ctx context.Context, addr common.Address) (wallet.Account, error) {
	eligible, err := s.Eligible(ctx)
	if err != nil {
		return wallet.Account{}, err
	}
	for _, a := range eligible {
		if a.Address == addr {
			s.mu.Lock()
			s.current = &a
			s.mu.Unlock()
			return a, nil
		}
	}
	return wallet.Account{}, fmt.Errorf("account %s not found or not signable", addr)
}

// Current returns the selected account, or nil before Restore.
func (s *Selector) Current() *wallet.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	acc := *s.current
	return &acc
}
