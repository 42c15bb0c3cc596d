package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/events"
)

// WatchBalance flushes deferred approvals when account equity turns
// positive. It is a side-effect on balance refresh events, not a poll;
// it returns when ctx is cancelled or the bus closes.
func (m *Machine) WatchBalance(ctx context.Context) {
	ch := m.bus.Subscribe(events.EventBalanceRefreshed, 8)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			m.flushDeferred(ctx)
		}
	}
}

// flushDeferred sends stored approvals once the account is funded. The
// approvals were signed at login; no new prompt is shown.
func (m *Machine) flushDeferred(ctx context.Context) {
	m.mu.Lock()
	account := m.account
	pending := m.deferred
	m.mu.Unlock()

	if account == nil || len(pending) == 0 {
		return
	}

	ch, err := m.info.Clearinghouse(ctx, account.Address)
	if err != nil {
		m.logger.Warn("deferred approval equity check", zap.Error(err))
		return
	}
	if !ch.AccountValue.IsPositive() {
		return
	}

	for _, a := range pending {
		if err := m.submit.SubmitUserSigned(ctx, a.ta, a.sig); err != nil {
			m.logger.Warn("send deferred approval", zap.Error(err))
			m.reporter.ReportError("session.deferred_approval", err, map[string]interface{}{
				"account": account.Address.Hex(),
			})
			return
		}
	}

	m.mu.Lock()
	m.deferred = nil
	m.mu.Unlock()

	m.logger.Info("deferred approvals sent", zap.String("account", account.Address.Hex()))
}

// HasDeferredApprovals reports whether signed approvals are waiting for
// the first deposit.
func (m *Machine) HasDeferredApprovals() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred) > 0
}
