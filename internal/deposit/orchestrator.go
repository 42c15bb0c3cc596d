package deposit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/chain"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	arbitrumChainID    = 42161
	ethereumChainID    = 1
	directDepositEst   = time.Minute
	reportTimeout      = 10 * time.Second
	roleMissing        = "missing"
	activationFeeUsd   = 1
	settlementDecimals = 6
)

var (
	// SettlementToken is native USDC on Arbitrum, the only asset the
	// venue's deposit bridge accepts directly.
	SettlementToken = bridge.Token{
		ChainID:  arbitrumChainID,
		Address:  common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		Symbol:   "USDC",
		Decimals: settlementDecimals,
	}

	// depositBridgeContract is the venue's deposit bridge on Arbitrum.
	depositBridgeContract = common.HexToAddress("0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7")

	// legacyApproveToken is mainnet USDT, whose approve reverts unless
	// the existing allowance is zeroed first.
	legacyApproveToken = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

// ActionSubmitter posts a signed user action to the venue.
type ActionSubmitter interface {
	SubmitUserSigned(ctx context.Context, ta actions.TypedAction, sig []byte) error
}

// Ledger records pending deposit and withdrawal entries for
// reconciliation against the venue's ledger.
type Ledger interface {
	RecordPending(ctx context.Context, e history.Entry) error
}

// BuildRequest describes a deposit the user wants to make.
type BuildRequest struct {
	Account  wallet.Account
	Token    bridge.Token
	UsdValue decimal.Decimal

	// Quote is the latest bridge quote for the selected token. Required
	// unless Token is the settlement token.
	Quote *bridge.Quote
}

// Plan is a fully prepared deposit: the transactions to sign in order,
// plus the estimates shown before confirmation.
type Plan struct {
	Transactions  []wallet.Transaction
	Direct        bool
	EstReceiveUsd decimal.Decimal
	EstDuration   time.Duration

	token    bridge.Token
	usd      decimal.Decimal
	quoteRaw *big.Int
}

// Orchestrator prepares and submits deposits and withdrawals.
type Orchestrator struct {
	bridge    bridge.Service
	allowance chain.AllowanceSource
	submitter wallet.TxSubmitter
	actions   ActionSubmitter
	signer    wallet.Signer
	info      venue.InfoService
	ledger    Ledger
	cfg       *venue.Config
	bus       *events.EventBus
	notifier  telemetry.Notifier
	reporter  telemetry.Reporter
	logger    logging.ApplicationLogger
}

func NewOrchestrator(
	bridgeSvc bridge.Service,
	allowance chain.AllowanceSource,
	submitter wallet.TxSubmitter,
	actionSubmitter ActionSubmitter,
	signer wallet.Signer,
	info venue.InfoService,
	ledger Ledger,
	cfg *venue.Config,
	bus *events.EventBus,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	logger logging.ApplicationLogger,
) *Orchestrator {
	return &Orchestrator{
		bridge:    bridgeSvc,
		allowance: allowance,
		submitter: submitter,
		actions:   actionSubmitter,
		signer:    signer,
		info:      info,
		ledger:    ledger,
		cfg:       cfg,
		bus:       bus,
		notifier:  notifier,
		reporter:  reporter,
		logger:    logger,
	}
}

// QuoteLoop returns a debounced quote fetcher for the deposit form.
// One loop lives per open form; Stop it when the form closes.
func (o *Orchestrator) QuoteLoop(onResult func(QuoteResult)) *QuoteLoop {
	return NewQuoteLoop(o.bridge, o.logger, onResult)
}

// BuildDeposit validates the request and assembles the transaction
// bundle. Settlement-token deposits transfer straight into the bridge
// contract; everything else goes through the swap route described by
// the quote, with allowance approvals prepended as needed.
func (o *Orchestrator) BuildDeposit(ctx context.Context, req BuildRequest) (*Plan, error) {
	if err := ValidateDeposit(req.UsdValue, req.Token.AmountUsd); err != nil {
		return nil, err
	}

	if req.Token.Same(SettlementToken) {
		return o.buildDirect(req)
	}
	return o.buildBridged(ctx, req)
}

func (o *Orchestrator) buildDirect(req BuildRequest) (*Plan, error) {
	raw := req.Token.RawAmount(req.UsdValue)
	tx := wallet.Transaction{
		ChainID: req.Token.ChainID,
		To:      req.Token.Address,
		Value:   big.NewInt(0),
		Data:    chain.TransferCalldata(depositBridgeContract, raw),
	}
	return &Plan{
		Transactions:  []wallet.Transaction{tx},
		Direct:        true,
		EstReceiveUsd: req.UsdValue,
		EstDuration:   directDepositEst,
		token:         req.Token,
		usd:           req.UsdValue,
	}, nil
}

func (o *Orchestrator) buildBridged(ctx context.Context, req BuildRequest) (*Plan, error) {
	if req.Quote == nil {
		return nil, venue.Errorf(venue.KindQuoteFetchFailed, "no route quote for %s", req.Token.Symbol)
	}

	raw := req.Token.RawAmount(req.UsdValue)
	var txs []wallet.Transaction

	allowed, err := o.allowance.Allowance(ctx, req.Token.ChainID, req.Token.Address, req.Account.Address, req.Quote.ApprovalContract)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	if allowed.Cmp(raw) < 0 {
		if o.needsZeroApprove(req.Token, allowed) {
			txs = append(txs, approveTx(req.Token, req.Quote.ApprovalContract, big.NewInt(0)))
		}
		txs = append(txs, approveTx(req.Token, req.Quote.ApprovalContract, raw))
	}
	txs = append(txs, req.Quote.Tx)

	est := req.Quote.ToTokenAmount.Mul(o.settlementPrice(ctx))
	role, err := o.info.UserRole(ctx, req.Account.Address)
	if err != nil {
		o.logger.Warn("deposit: user role lookup failed, assuming activated: %v", err)
	} else if role == roleMissing {
		est = est.Sub(decimal.NewFromInt(activationFeeUsd))
	}

	return &Plan{
		Transactions:  txs,
		EstReceiveUsd: est,
		EstDuration:   req.Quote.Duration,
		token:         req.Token,
		usd:           req.UsdValue,
		quoteRaw:      raw,
	}, nil
}

// settlementPrice converts quote output into USD terms. The settlement
// token is a dollar stablecoin, so a failed lookup falls back to parity
// rather than blocking the deposit form.
func (o *Orchestrator) settlementPrice(ctx context.Context) decimal.Decimal {
	price, err := o.bridge.TokenPrice(ctx, SettlementToken.ChainID, SettlementToken.Address)
	if err != nil {
		o.logger.Warn("deposit: settlement token price lookup failed, assuming parity: %v", err)
		return decimal.New(1, 0)
	}
	return price
}

// needsZeroApprove reports whether the token's approve must be reset to
// zero before granting a new allowance.
func (o *Orchestrator) needsZeroApprove(t bridge.Token, current *big.Int) bool {
	return t.ChainID == ethereumChainID && t.Address == legacyApproveToken && current.Sign() > 0
}

func approveTx(t bridge.Token, spender common.Address, amount *big.Int) wallet.Transaction {
	return wallet.Transaction{
		ChainID: t.ChainID,
		To:      t.Address,
		Value:   big.NewInt(0),
		Data:    chain.ApproveCalldata(spender, amount),
	}
}

// Submit signs and broadcasts the plan. Software accounts try silent
// submission first and fall back to interactive approval when
// simulation rejects the bundle; hardware accounts always go through
// interactive approval.
func (o *Orchestrator) Submit(ctx context.Context, plan *Plan, account wallet.Account) error {
	bundle := wallet.Bundle{Transactions: plan.Transactions}

	var res wallet.SubmitResult
	var err error
	switch {
	case account.SupportsDirectSigning():
		res, err = o.submitter.SubmitDirect(ctx, account, bundle)
		if errors.Is(err, wallet.ErrSimulationFailed) {
			o.logger.Info("deposit: simulation rejected bundle, retrying interactively")
			res, err = o.submitter.SubmitWithApproval(ctx, account, bundle)
		}
	case account.SupportsInteractiveSigning():
		res, err = o.submitter.SubmitWithApproval(ctx, account, bundle)
	default:
		return venue.Errorf(venue.KindUnexpected, "account %s cannot sign transactions", account.Address)
	}
	if err != nil {
		if errors.Is(err, wallet.ErrUserCancelled) {
			return venue.NewError(venue.KindUserCancelled, err)
		}
		o.reporter.ReportError("deposit.submit", err, map[string]any{
			"token": plan.token.Symbol,
			"usd":   plan.usd.String(),
		})
		o.notifier.NotifyError("Deposit failed: " + err.Error())
		return venue.NewError(venue.KindUnexpected, err)
	}

	finalHash := res.Hashes[len(res.Hashes)-1]
	if err := o.ledger.RecordPending(ctx, history.Entry{
		Hash:     finalHash,
		Type:     history.TypeDeposit,
		Status:   history.StatusPending,
		UsdValue: plan.EstReceiveUsd,
		Time:     time.Now(),
	}); err != nil {
		o.logger.Warn("deposit: record pending entry: %v", err)
	}

	if !plan.Direct {
		go o.reportBridgeTx(account, plan, finalHash)
	}

	o.bus.Publish(events.Event{Type: events.EventDepositSubmitted, Data: map[string]interface{}{"tx_hash": finalHash.Hex()}})
	return nil
}

// reportBridgeTx tells the routing backend about the submitted swap so
// it can track completion. Best effort.
func (o *Orchestrator) reportBridgeTx(account wallet.Account, plan *Plan, hash common.Hash) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	err := o.bridge.ReportTransaction(ctx, bridge.Report{
		User:      account.Address,
		TxHash:    hash,
		FromChain: plan.token.ChainID,
		FromToken: plan.token.Address,
		RawAmount: plan.quoteRaw,
	})
	if err != nil {
		o.logger.Warn("deposit: report bridge tx %s: %v", hash, err)
	}
}

// Withdraw validates the amount, has the user sign a withdraw action,
// and posts it to the venue. The venue charges a flat $1 fee on the
// way out.
func (o *Orchestrator) Withdraw(ctx context.Context, account wallet.Account, usd decimal.Decimal) error {
	state, err := o.info.Clearinghouse(ctx, account.Address)
	if err != nil {
		return venue.NewError(venue.KindUnexpected, fmt.Errorf("fetch withdrawable margin: %w", err))
	}
	if err := ValidateWithdraw(usd, state.Withdrawable); err != nil {
		return err
	}

	ta := actions.BuildWithdraw(o.cfg.ChainName(), o.cfg.SignatureChainID(), account.Address, usd.StringFixed(2), time.Now().UnixMilli())
	sig, err := o.signer.SignTypedData(ctx, account, ta.TypedData)
	if err != nil {
		if errors.Is(err, wallet.ErrUserCancelled) {
			return venue.NewError(venue.KindUserCancelled, err)
		}
		return venue.NewError(venue.KindUnexpected, err)
	}
	if err := o.actions.SubmitUserSigned(ctx, ta, sig); err != nil {
		o.reporter.ReportError("withdraw.submit", err, map[string]any{"usd": usd.String()})
		o.notifier.NotifyError("Withdrawal failed: " + err.Error())
		return venue.NewError(venue.KindUnexpected, err)
	}

	if err := o.ledger.RecordPending(ctx, history.Entry{
		Type:     history.TypeWithdraw,
		Status:   history.StatusPending,
		UsdValue: usd.Sub(decimal.NewFromInt(activationFeeUsd)),
		Time:     time.Now(),
	}); err != nil {
		o.logger.Warn("withdraw: record pending entry: %v", err)
	}

	o.bus.Publish(events.Event{Type: events.EventWithdrawSubmitted, Data: map[string]interface{}{"usd": usd.String()}})
	return nil
}
