package history

import (
	"context"
	"sync"
	"time"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	pollInterval = 30 * time.Second

	// lookback widens the ledger query window so a server record that
	// landed just before we recorded the pending entry still matches.
	lookback = time.Hour
)

// Service maintains the deposit/withdraw history for the active
// account. Pending entries recorded at submit time are reconciled
// against the venue ledger by a poller that runs only while pending
// entries exist.
type Service struct {
	info   venue.InfoService
	store  PendingStore
	bus    *events.EventBus
	logger logging.ApplicationLogger

	mu      sync.Mutex
	account common.Address
	cancel  context.CancelFunc
}

func NewService(info venue.InfoService, store PendingStore, bus *events.EventBus, logger logging.ApplicationLogger) *Service {
	return &Service{
		info:   info,
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// SetAccount switches the service to a new active account. Any running
// poller is stopped; it restarts if the account has pending entries.
func (s *Service) SetAccount(ctx context.Context, account common.Address) {
	s.mu.Lock()
	s.account = account
	s.stopPollerLocked()
	s.mu.Unlock()

	pending, err := s.store.ListPending(ctx, account)
	if err != nil {
		s.logger.Warn("history: list pending for %s: %v", account, err)
		return
	}
	if len(pending) > 0 {
		s.ensurePoller()
	}
}

// RecordPending stores a freshly submitted entry and makes sure the
// reconciliation poller is running.
func (s *Service) RecordPending(ctx context.Context, e Entry) error {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusPending
	if err := s.store.SavePending(ctx, account, e); err != nil {
		return err
	}
	s.logger.Info("history: recorded pending %s %s for %s", e.Type, e.UsdValue, account)
	s.ensurePoller()
	return nil
}

// Entries returns the merged history for the active account, newest
// first.
func (s *Service) Entries(ctx context.Context, since time.Time) ([]Entry, error) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	local, err := s.store.ListPending(ctx, account)
	if err != nil {
		return nil, err
	}
	server, err := s.info.LedgerUpdates(ctx, account, since)
	if err != nil {
		return nil, err
	}
	return Merge(local, fromLedger(server)), nil
}

func fromLedger(updates []venue.LedgerEntry) []Entry {
	out := make([]Entry, 0, len(updates))
	for _, u := range updates {
		out = append(out, Entry{
			ID:       uuid.New(),
			Hash:     u.Hash,
			Type:     EntryType(u.Type),
			Status:   StatusCompleted,
			UsdValue: u.UsdValue,
			Time:     u.Time,
		})
	}
	return out
}

func (s *Service) ensurePoller() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.poll(ctx)
}

func (s *Service) stopPollerLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Stop halts reconciliation. Used on logout and shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPollerLocked()
}

func (s *Service) poll(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.reconcile(ctx); done {
				s.mu.Lock()
				s.stopPollerLocked()
				s.mu.Unlock()
				return
			}
		}
	}
}

// reconcile resolves pending entries confirmed by the venue ledger and
// reports whether none remain.
func (s *Service) reconcile(ctx context.Context) bool {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	pending, err := s.store.ListPending(ctx, account)
	if err != nil {
		s.logger.Warn("history: list pending: %v", err)
		return false
	}
	if len(pending) == 0 {
		return true
	}

	oldest := pending[0].Time
	for _, e := range pending[1:] {
		if e.Time.Before(oldest) {
			oldest = e.Time
		}
	}
	server, err := s.info.LedgerUpdates(ctx, account, oldest.Add(-lookback))
	if err != nil {
		s.logger.Warn("history: ledger updates: %v", err)
		return false
	}

	byHash := make(map[common.Hash]venue.LedgerEntry, len(server))
	var latestWithdraw time.Time
	for _, u := range server {
		byHash[u.Hash] = u
		if EntryType(u.Type) == TypeWithdraw && u.Time.After(latestWithdraw) {
			latestWithdraw = u.Time
		}
	}

	resolved := 0
	for _, e := range pending {
		confirmed := false
		if e.Hash != (common.Hash{}) {
			_, confirmed = byHash[e.Hash]
		} else if e.Type == TypeWithdraw {
			// Withdrawals are venue actions with no local tx hash; a
			// confirmed withdrawal at or after the pending timestamp
			// resolves it.
			confirmed = !latestWithdraw.Before(e.Time)
		}
		if !confirmed {
			continue
		}
		if err := s.store.DeletePending(ctx, e.ID); err != nil {
			s.logger.Warn("history: delete pending %s: %v", e.ID, err)
			continue
		}
		resolved++
	}

	if resolved > 0 {
		s.logger.Info("history: resolved %d pending entries for %s", resolved, account)
		s.bus.Publish(events.Event{Type: events.EventHistoryResolved, Data: map[string]interface{}{"resolved": resolved}})
		s.bus.Publish(events.Event{Type: events.EventBalanceRefreshed})
	}
	return resolved == len(pending)
}
