package session

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// State is the position of the authorization machine for the active
// account.
type State int

const (
	StateUnauthenticated State = iota
	StateChecking
	StateNeedsNewAgent
	StateNeedsFeeApproval
	StateNeedsAgentEviction
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateChecking:
		return "checking"
	case StateNeedsNewAgent:
		return "needs_new_agent"
	case StateNeedsFeeApproval:
		return "needs_fee_approval"
	case StateNeedsAgentEviction:
		return "needs_agent_eviction"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

const (
	// expiryWindow: an agent this close to expiry is treated as expired.
	expiryWindow = 24 * time.Hour
	// maxAgents is the venue's cap on registered agents per master.
	maxAgents = 3
	// fallbackValidity estimates the new agent's lifetime until the
	// registry reports the real expiry on the next check.
	fallbackValidity = 170 * 24 * time.Hour

	roleMissing = "missing"
)

// ActionSubmitter posts master-signed typed actions to the venue.
type ActionSubmitter interface {
	SubmitUserSigned(ctx context.Context, ta actions.TypedAction, sig []byte) error
}

// VenueBinder installs or clears the session agent key on the venue
// trading clients.
type VenueBinder interface {
	Bind(agentKeyHex string, account common.Address) error
	Unbind()
}

// signedApproval is a prepared approval held back for missing-role
// accounts until the first deposit lands.
type signedApproval struct {
	ta  actions.TypedAction
	sig []byte
}

// Machine drives the login / agent-authorization flow. All transitions
// happen inside Login; on any failure the state rolls back so the next
// explicit login attempt re-drives the machine from the top.
type Machine struct {
	cfg      *venue.Config
	info     venue.InfoService
	submit   ActionSubmitter
	binder   VenueBinder
	signer   wallet.Signer
	prefs    wallet.PreferenceStore
	notifier telemetry.Notifier
	reporter telemetry.Reporter
	bus      *events.EventBus
	logger   *zap.Logger
	deviceID string

	// overridable for tests
	now         func() time.Time
	newAgentKey func() (*ecdsa.PrivateKey, error)

	mu        sync.Mutex
	state     State
	account   *wallet.Account
	agentAddr common.Address
	deferred  []signedApproval
}

func NewMachine(
	cfg *venue.Config,
	info venue.InfoService,
	submit ActionSubmitter,
	binder VenueBinder,
	signer wallet.Signer,
	prefs wallet.PreferenceStore,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	bus *events.EventBus,
	logger *zap.Logger,
	deviceID string,
) *Machine {
	return &Machine{
		cfg:         cfg,
		info:        info,
		submit:      submit,
		binder:      binder,
		signer:      signer,
		prefs:       prefs,
		notifier:    notifier,
		reporter:    reporter,
		bus:         bus,
		logger:      logger,
		deviceID:    deviceID,
		now:         time.Now,
		newAgentKey: crypto.GenerateKey,
		state:       StateUnauthenticated,
	}
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Account returns the active account, or nil before login.
func (m *Machine) Account() *wallet.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil
	}
	acc := *m.account
	return &acc
}

// Login ensures the account has a valid, non-expiring, capacity-respecting
// agent and a registered builder-fee authorization, then binds the venue
// clients to the agent key.
func (m *Machine) Login(ctx context.Context, account wallet.Account) error {
	if !account.CanSign() {
		return venue.Errorf(venue.KindUnexpected, "account kind %s cannot sign trading actions", account.Kind)
	}

	m.mu.Lock()
	prev := m.state
	m.state = StateChecking
	m.mu.Unlock()

	err := m.login(ctx, account)
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()

		if errors.Is(err, wallet.ErrUserCancelled) {
			return venue.NewError(venue.KindUserCancelled, err)
		}

		m.notifier.NotifyError(fmt.Sprintf("Failed to log in to perps account: %v", err))
		m.reporter.ReportError("session.login", err, map[string]interface{}{
			"account": account.Address.Hex(),
			"kind":    string(account.Kind),
		})
		return err
	}
	return nil
}

func (m *Machine) login(ctx context.Context, account wallet.Account) error {
	agents, err := m.info.RegisteredAgents(ctx, account.Address)
	if err != nil {
		return fmt.Errorf("query agents: %w", err)
	}

	cred, err := m.prefs.AgentCredential(ctx, account.Address, m.deviceID)
	if err != nil {
		return fmt.Errorf("load agent credential: %w", err)
	}

	var matched *venue.AgentRecord
	if cred != nil {
		for i := range agents {
			if agents[i].Address == cred.Address {
				matched = &agents[i]
				break
			}
		}
	}

	needNewAgent := false
	switch {
	case matched == nil:
		if len(agents) >= maxAgents {
			// A slot must be freed before anything else; login is
			// deferred until the eviction submit completes so the
			// server-side agent set never desynchronizes.
			m.setState(StateNeedsAgentEviction)
			if err := m.evictSoonestExpiring(ctx, account, agents); err != nil {
				return fmt.Errorf("evict agent: %w", err)
			}
		}
		needNewAgent = true
	case matched.Expiring(m.now(), expiryWindow):
		needNewAgent = true
	}

	feeNeeded, err := m.builderFeeNeeded(ctx, account)
	if err != nil {
		return err
	}

	if needNewAgent {
		m.setState(StateNeedsNewAgent)
	} else if feeNeeded {
		m.setState(StateNeedsFeeApproval)
	}

	agentKeyHex := ""
	if cred != nil {
		agentKeyHex = cred.KeyHex
	}

	if needNewAgent || feeNeeded {
		key, hexKey, approvals, err := m.prepareApprovals(ctx, account, needNewAgent, feeNeeded)
		if err != nil {
			return err
		}
		if key != nil {
			agentKeyHex = hexKey
		}

		deferSend, err := m.shouldDeferApprovals(ctx, account)
		if err != nil {
			return err
		}

		if deferSend {
			m.mu.Lock()
			m.deferred = approvals
			m.mu.Unlock()
			m.logger.Info("approvals deferred until first deposit",
				zap.String("account", account.Address.Hex()),
				zap.Int("approvals", len(approvals)))
		} else {
			for _, a := range approvals {
				if err := m.submit.SubmitUserSigned(ctx, a.ta, a.sig); err != nil {
					return fmt.Errorf("submit approval: %w", err)
				}
			}
		}

		if needNewAgent {
			if err := m.persistCredential(ctx, account, key, deferSend); err != nil {
				return err
			}
		}
	}

	if agentKeyHex == "" {
		return fmt.Errorf("no agent key available after login")
	}

	agentKey, err := crypto.HexToECDSA(strings.TrimPrefix(agentKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("decode agent key: %w", err)
	}

	if err := m.binder.Bind(agentKeyHex, account.Address); err != nil {
		return fmt.Errorf("bind venue clients: %w", err)
	}

	if err := m.prefs.SetLastUsedAccount(ctx, account.Address); err != nil {
		m.logger.Warn("persist last used account", zap.Error(err))
	}

	m.mu.Lock()
	m.state = StateReady
	acc := account
	m.account = &acc
	m.agentAddr = crypto.PubkeyToAddress(agentKey.PublicKey)
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Type: events.EventAgentAuthorized,
		Data: map[string]interface{}{"account": account.Address.Hex()},
	})

	if done, err := m.prefs.OnboardingDone(ctx, account.Address); err == nil && !done {
		m.notifier.NotifyInfo("Perps account connected. Deposit at least $5 to start trading.")
		if err := m.prefs.SetOnboardingDone(ctx, account.Address); err != nil {
			m.logger.Warn("persist onboarding flag", zap.Error(err))
		}
	}

	m.logger.Info("perps session ready", zap.String("account", account.Address.Hex()))
	return nil
}

// builderFeeNeeded checks whether the builder's maximum fee authorization
// is registered at or above the configured rate.
func (m *Machine) builderFeeNeeded(ctx context.Context, account wallet.Account) (bool, error) {
	approved, err := m.info.MaxBuilderFee(ctx, account.Address, m.cfg.BuilderAddress())
	if err != nil {
		return false, fmt.Errorf("query builder fee: %w", err)
	}
	required, err := venue.ParseFeeRate(m.cfg.MaxBuilderFee)
	if err != nil {
		return false, err
	}
	return approved < required, nil
}

// prepareApprovals generates a fresh agent key when needed and collects
// the typed-data signatures in one batch.
func (m *Machine) prepareApprovals(ctx context.Context, account wallet.Account, needAgent, needFee bool) (*ecdsa.PrivateKey, string, []signedApproval, error) {
	var (
		key       *ecdsa.PrivateKey
		hexKey    string
		approvals []signedApproval
	)

	nonce := m.now().UnixMilli()

	if needAgent {
		var err error
		key, err = m.newAgentKey()
		if err != nil {
			return nil, "", nil, fmt.Errorf("generate agent key: %w", err)
		}
		hexKey = hex.EncodeToString(crypto.FromECDSA(key))

		ta := actions.BuildApproveAgent(
			m.cfg.ChainName(),
			m.cfg.SignatureChainID(),
			crypto.PubkeyToAddress(key.PublicKey),
			m.agentName(),
			nonce,
		)
		sig, err := m.signer.SignTypedData(ctx, account, ta.TypedData)
		if err != nil {
			return nil, "", nil, fmt.Errorf("sign agent approval: %w", err)
		}
		approvals = append(approvals, signedApproval{ta: ta, sig: sig})
		nonce++
	}

	if needFee {
		ta := actions.BuildApproveBuilderFee(
			m.cfg.ChainName(),
			m.cfg.SignatureChainID(),
			m.cfg.BuilderAddress(),
			m.cfg.MaxBuilderFee,
			nonce,
		)
		sig, err := m.signer.SignTypedData(ctx, account, ta.TypedData)
		if err != nil {
			return nil, "", nil, fmt.Errorf("sign builder fee approval: %w", err)
		}
		approvals = append(approvals, signedApproval{ta: ta, sig: sig})
	}

	return key, hexKey, approvals, nil
}

// shouldDeferApprovals reports whether the account has never interacted
// with the venue and holds no equity, in which case approvals are held
// until the first deposit lands.
func (m *Machine) shouldDeferApprovals(ctx context.Context, account wallet.Account) (bool, error) {
	role, err := m.info.UserRole(ctx, account.Address)
	if err != nil {
		return false, fmt.Errorf("query user role: %w", err)
	}
	if role != roleMissing {
		return false, nil
	}
	ch, err := m.info.Clearinghouse(ctx, account.Address)
	if err != nil {
		return false, fmt.Errorf("query clearinghouse: %w", err)
	}
	return ch.AccountValue.IsZero(), nil
}

// evictSoonestExpiring frees an agent slot by approving the zero address
// against the name of the agent with the soonest expiry.
func (m *Machine) evictSoonestExpiring(ctx context.Context, account wallet.Account, agents []venue.AgentRecord) error {
	victim := agents[0]
	for _, a := range agents[1:] {
		if a.ValidUntil.Before(victim.ValidUntil) {
			victim = a
		}
	}

	ta := actions.BuildApproveAgent(
		m.cfg.ChainName(),
		m.cfg.SignatureChainID(),
		common.Address{},
		victim.Name,
		m.now().UnixMilli(),
	)
	sig, err := m.signer.SignTypedData(ctx, account, ta.TypedData)
	if err != nil {
		return fmt.Errorf("sign eviction: %w", err)
	}
	if err := m.submit.SubmitUserSigned(ctx, ta, sig); err != nil {
		return err
	}

	m.logger.Info("evicted agent",
		zap.String("account", account.Address.Hex()),
		zap.String("agent", victim.Address.Hex()),
		zap.Time("valid_until", victim.ValidUntil))
	return nil
}

func (m *Machine) persistCredential(ctx context.Context, account wallet.Account, key *ecdsa.PrivateKey, deferred bool) error {
	validUntil := m.now().Add(fallbackValidity)
	if !deferred {
		// The registry reports the authoritative expiry once the
		// approval has been accepted.
		if agents, err := m.info.RegisteredAgents(ctx, account.Address); err == nil {
			addr := crypto.PubkeyToAddress(key.PublicKey)
			for _, a := range agents {
				if a.Address == addr {
					validUntil = a.ValidUntil
					break
				}
			}
		}
	}

	cred := wallet.AgentCredential{
		Master:     account.Address,
		DeviceID:   m.deviceID,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		KeyHex:     hex.EncodeToString(crypto.FromECDSA(key)),
		Name:       m.agentName(),
		ValidUntil: validUntil,
	}
	if err := m.prefs.SaveAgentCredential(ctx, cred); err != nil {
		return fmt.Errorf("persist agent credential: %w", err)
	}
	return nil
}

func (m *Machine) agentName() string {
	if len(m.deviceID) >= 8 {
		return "rabby_" + m.deviceID[:8]
	}
	return "rabby_" + m.deviceID
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// RequireReauthorization flags the session as needing a fresh login, used
// when a trading call fails with an agent-expired classification. The
// next explicit login re-drives the machine.
func (m *Machine) RequireReauthorization() {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.mu.Unlock()
	m.binder.Unbind()
	m.notifier.NotifyError("Trading session expired, please log in again")
}

// AgentAddress returns the address of the bound agent key, or the zero
// address before login.
func (m *Machine) AgentAddress() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentAddr
}

// Logout tears the venue session down explicitly.
func (m *Machine) Logout() {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.account = nil
	m.agentAddr = common.Address{}
	m.deferred = nil
	m.mu.Unlock()
	m.binder.Unbind()
}
