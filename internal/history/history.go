package history

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	TypeDeposit  EntryType = "deposit"
	TypeWithdraw EntryType = "withdraw"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Entry is one row of the deposit/withdraw history shown to the user.
// Pending entries are recorded locally at submit time and replaced by
// the venue's confirmed record once it appears in the ledger.
type Entry struct {
	ID       uuid.UUID       `db:"id"`
	Hash     common.Hash     `db:"tx_hash"`
	Type     EntryType       `db:"entry_type"`
	Status   Status          `db:"status"`
	UsdValue decimal.Decimal `db:"usd_value"`
	Time     time.Time       `db:"created_at"`
}

// PendingStore persists locally recorded pending entries across
// restarts, keyed by master account.
type PendingStore interface {
	SavePending(ctx context.Context, master common.Address, e Entry) error
	ListPending(ctx context.Context, master common.Address) ([]Entry, error)
	DeletePending(ctx context.Context, id uuid.UUID) error
}

// Merge combines locally recorded pending entries with the venue's
// confirmed ledger. Entries are keyed by transaction hash; when both
// sides have the same hash the server record wins. The result is
// sorted newest first.
func Merge(local, server []Entry) []Entry {
	seen := make(map[common.Hash]struct{}, len(server))
	merged := make([]Entry, 0, len(local)+len(server))
	for _, e := range server {
		if e.Hash != (common.Hash{}) {
			seen[e.Hash] = struct{}{}
		}
		merged = append(merged, e)
	}
	for _, e := range local {
		if _, ok := seen[e.Hash]; ok && e.Hash != (common.Hash{}) {
			continue
		}
		merged = append(merged, e)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.After(merged[j].Time)
	})
	return merged
}
