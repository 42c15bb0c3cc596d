package deposit_test

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

type fakeBridge struct {
	mu         sync.Mutex
	quote      *bridge.Quote
	quoteErr   error
	quoteDelay time.Duration
	price      decimal.Decimal
	priceErr   error
	requests   []bridge.QuoteRequest
	reports    []bridge.Report
}

func (f *fakeBridge) Quote(ctx context.Context, req bridge.QuoteRequest) (*bridge.Quote, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	quote, quoteErr, delay := f.quote, f.quoteErr, f.quoteDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if quoteErr != nil {
		return nil, quoteErr
	}
	return quote, nil
}

func (f *fakeBridge) TokenPrice(_ context.Context, _ uint64, _ common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return decimal.Zero, f.priceErr
	}
	if f.price.IsZero() {
		return decimal.New(1, 0), nil
	}
	return f.price, nil
}

func (f *fakeBridge) ReportTransaction(_ context.Context, report bridge.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeBridge) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeBridge) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type fakeAllowance struct {
	value *big.Int
	err   error
}

func (f *fakeAllowance) Allowance(_ context.Context, _ uint64, _, _, _ common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.value == nil {
		return new(big.Int), nil
	}
	return f.value, nil
}

type fakeTxSubmitter struct {
	mu            sync.Mutex
	directErr     error
	approvalErr   error
	directCalls   int
	approvalCalls int
	hash          common.Hash
}

func (f *fakeTxSubmitter) SubmitDirect(_ context.Context, _ wallet.Account, bundle wallet.Bundle) (wallet.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directCalls++
	if f.directErr != nil {
		return wallet.SubmitResult{}, f.directErr
	}
	return f.result(bundle), nil
}

func (f *fakeTxSubmitter) SubmitWithApproval(_ context.Context, _ wallet.Account, bundle wallet.Bundle) (wallet.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvalCalls++
	if f.approvalErr != nil {
		return wallet.SubmitResult{}, f.approvalErr
	}
	return f.result(bundle), nil
}

func (f *fakeTxSubmitter) result(bundle wallet.Bundle) wallet.SubmitResult {
	hashes := make([]common.Hash, len(bundle.Transactions))
	for i := range hashes {
		hashes[i] = f.hash
	}
	return wallet.SubmitResult{Hashes: hashes}
}

type fakeActionSubmitter struct {
	mu        sync.Mutex
	submitted []actions.TypedAction
	err       error
}

func (f *fakeActionSubmitter) SubmitUserSigned(_ context.Context, ta actions.TypedAction, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, ta)
	return nil
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) SignTypedData(_ context.Context, _ wallet.Account, _ apitypes.TypedData) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

type fakeInfo struct {
	role         string
	roleErr      error
	withdrawable decimal.Decimal
}

func (f *fakeInfo) RegisteredAgents(_ context.Context, _ common.Address) ([]venue.AgentRecord, error) {
	return nil, nil
}

func (f *fakeInfo) MaxBuilderFee(_ context.Context, _, _ common.Address) (int, error) {
	return 0, nil
}

func (f *fakeInfo) Clearinghouse(_ context.Context, _ common.Address) (venue.ClearinghouseState, error) {
	return venue.ClearinghouseState{
		AccountValue: f.withdrawable,
		Withdrawable: f.withdrawable,
	}, nil
}

func (f *fakeInfo) UserRole(_ context.Context, _ common.Address) (string, error) {
	if f.roleErr != nil {
		return "", f.roleErr
	}
	return f.role, nil
}

func (f *fakeInfo) LedgerUpdates(_ context.Context, _ common.Address, _ time.Time) ([]venue.LedgerEntry, error) {
	return nil, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (f *fakeLedger) RecordPending(_ context.Context, e history.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) all() []history.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Entry(nil), f.entries...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (f *fakeNotifier) NotifyError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeNotifier) NotifyInfo(string) {}

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []string
}

func (f *fakeReporter) ReportError(scope string, _ error, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, scope)
}

func (f *fakeReporter) scopes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reports...)
}
