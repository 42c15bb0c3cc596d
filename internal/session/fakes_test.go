package session_test

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

type fakeInfo struct {
	mu           sync.Mutex
	agents       []venue.AgentRecord
	maxFee       int
	role         string
	accountValue decimal.Decimal
}

func (f *fakeInfo) RegisteredAgents(_ context.Context, _ common.Address) ([]venue.AgentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]venue.AgentRecord, len(f.agents))
	copy(out, f.agents)
	return out, nil
}

func (f *fakeInfo) MaxBuilderFee(_ context.Context, _, _ common.Address) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFee, nil
}

func (f *fakeInfo) Clearinghouse(_ context.Context, _ common.Address) (venue.ClearinghouseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return venue.ClearinghouseState{AccountValue: f.accountValue, Withdrawable: f.accountValue}, nil
}

func (f *fakeInfo) UserRole(_ context.Context, _ common.Address) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role, nil
}

func (f *fakeInfo) LedgerUpdates(_ context.Context, _ common.Address, _ time.Time) ([]venue.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeInfo) setAccountValue(v decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountValue = v
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []actions.TypedAction
	err       error
}

func (f *fakeSubmitter) SubmitUserSigned(_ context.Context, ta actions.TypedAction, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, ta)
	return nil
}

func (f *fakeSubmitter) actions() []actions.TypedAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]actions.TypedAction, len(f.submitted))
	copy(out, f.submitted)
	return out
}

type fakeBinder struct {
	mu       sync.Mutex
	boundKey string
	boundAcc common.Address
	unbinds  int
}

func (f *fakeBinder) Bind(agentKeyHex string, account common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundKey = agentKeyHex
	f.boundAcc = account
	return nil
}

func (f *fakeBinder) Unbind() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundKey = ""
	f.unbinds++
}

type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) SignTypedData(_ context.Context, _ wallet.Account, _ apitypes.TypedData) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

type fakePrefs struct {
	mu         sync.Mutex
	creds      map[string]wallet.AgentCredential
	lastUsed   *common.Address
	onboarding map[common.Address]bool
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{
		creds:      make(map[string]wallet.AgentCredential),
		onboarding: make(map[common.Address]bool),
	}
}

func credKey(master common.Address, deviceID string) string {
	return master.Hex() + "/" + deviceID
}

func (f *fakePrefs) AgentCredential(_ context.Context, master common.Address, deviceID string) (*wallet.AgentCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.creds[credKey(master, deviceID)]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakePrefs) SaveAgentCredential(_ context.Context, cred wallet.AgentCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[credKey(cred.Master, cred.DeviceID)] = cred
	return nil
}

func (f *fakePrefs) DeleteAgentCredential(_ context.Context, master common.Address, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, credKey(master, deviceID))
	return nil
}

func (f *fakePrefs) LastUsedAccount(_ context.Context) (*common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed, nil
}

func (f *fakePrefs) SetLastUsedAccount(_ context.Context, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed = &addr
	return nil
}

func (f *fakePrefs) OnboardingDone(_ context.Context, addr common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onboarding[addr], nil
}

func (f *fakePrefs) SetOnboardingDone(_ context.Context, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onboarding[addr] = true
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (f *fakeNotifier) NotifyError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeNotifier) NotifyInfo(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, msg)
}

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

func (f *fakeNotifier) infoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.infos)
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
