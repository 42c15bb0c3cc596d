package deposit_test

import (
	"context"
	"errors"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/internal/deposit"
	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

var _ = Describe("Orchestrator", func() {
	var (
		bridgeSvc *fakeBridge
		allowance *fakeAllowance
		submitter *fakeTxSubmitter
		actionSub *fakeActionSubmitter
		signer    *fakeSigner
		info      *fakeInfo
		ledger    *fakeLedger
		notifier  *fakeNotifier
		reporter  *fakeReporter
		bus       *events.EventBus
		orch      *deposit.Orchestrator
		account   wallet.Account
		ctx       context.Context

		fundingToken bridge.Token
		quote        *bridge.Quote
	)

	BeforeEach(func() {
		cfg := &venue.Config{Builder: "0x1111111111111111111111111111111111111111"}
		Expect(cfg.Validate()).To(Succeed())

		bridgeSvc = &fakeBridge{}
		allowance = &fakeAllowance{}
		submitter = &fakeTxSubmitter{hash: common.HexToHash("0xdead")}
		actionSub = &fakeActionSubmitter{}
		signer = &fakeSigner{}
		info = &fakeInfo{role: "user", withdrawable: decimal.NewFromInt(100)}
		ledger = &fakeLedger{}
		notifier = &fakeNotifier{}
		reporter = &fakeReporter{}
		bus = events.NewEventBus()

		orch = deposit.NewOrchestrator(
			bridgeSvc, allowance, submitter, actionSub, signer, info,
			ledger, cfg, bus, notifier, reporter, logging.NewNoOpLogger(),
		)

		account = wallet.Account{
			Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Kind:    wallet.KindSoftware,
		}
		ctx = context.Background()

		fundingToken = bridge.Token{
			ChainID:   1,
			Address:   common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			Symbol:    "DAI",
			Decimals:  18,
			Price:     decimal.NewFromInt(1),
			AmountUsd: decimal.NewFromInt(1000),
		}
		quote = &bridge.Quote{
			ApprovalContract: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
			Tx: wallet.Transaction{
				ChainID: 1,
				To:      common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
				Value:   big.NewInt(0),
				Data:    []byte{0x01},
			},
			ToTokenAmount: decimal.NewFromInt(99),
			Duration:      3 * time.Minute,
		}
	})

	AfterEach(func() {
		bus.Close()
	})

	Describe("BuildDeposit", func() {
		It("rejects amounts under the venue minimum", func() {
			settlement := deposit.SettlementToken
			settlement.Price = decimal.NewFromInt(1)
			settlement.AmountUsd = decimal.NewFromInt(100)

			_, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
				Account: account, Token: settlement, UsdValue: decimal.NewFromFloat(4.99),
			})
			Expect(venue.KindOf(err)).To(Equal(venue.KindMinimumLimit))
		})

		It("accepts an amount exactly at the minimum", func() {
			settlement := deposit.SettlementToken
			settlement.Price = decimal.NewFromInt(1)
			settlement.AmountUsd = decimal.NewFromInt(5)

			_, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
				Account: account, Token: settlement, UsdValue: decimal.NewFromInt(5),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects amounts above the held balance", func() {
			fundingToken.AmountUsd = decimal.NewFromInt(6)

			_, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
				Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(10), Quote: quote,
			})
			Expect(venue.KindOf(err)).To(Equal(venue.KindInsufficientBalance))
		})

		Context("with the settlement token", func() {
			It("builds a single transfer into the bridge contract", func() {
				settlement := deposit.SettlementToken
				settlement.Price = decimal.NewFromInt(1)
				settlement.AmountUsd = decimal.NewFromInt(100)

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: settlement, UsdValue: decimal.NewFromInt(25),
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(plan.Direct).To(BeTrue())
				Expect(plan.Transactions).To(HaveLen(1))
				Expect(plan.Transactions[0].To).To(Equal(settlement.Address))
				Expect(plan.EstReceiveUsd).To(Equal(decimal.NewFromInt(25)))
				Expect(plan.EstDuration).To(Equal(time.Minute))
			})
		})

		Context("with a funding token", func() {
			It("requires a quote", func() {
				_, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50),
				})
				Expect(venue.KindOf(err)).To(Equal(venue.KindQuoteFetchFailed))
			})

			It("prepends an approval when the allowance is short", func() {
				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(plan.Direct).To(BeFalse())
				Expect(plan.Transactions).To(HaveLen(2))
				Expect(plan.Transactions[0].To).To(Equal(fundingToken.Address))
				Expect(plan.Transactions[1]).To(Equal(quote.Tx))
				Expect(plan.EstDuration).To(Equal(3 * time.Minute))
			})

			It("skips the approval when the allowance already covers the amount", func() {
				raw := fundingToken.RawAmount(decimal.NewFromInt(50))
				allowance.value = new(big.Int).Set(raw)

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(plan.Transactions).To(HaveLen(1))
				Expect(plan.Transactions[0]).To(Equal(quote.Tx))
			})

			It("zeroes a legacy allowance before granting a new one", func() {
				usdt := bridge.Token{
					ChainID:   1,
					Address:   common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
					Symbol:    "USDT",
					Decimals:  6,
					Price:     decimal.NewFromInt(1),
					AmountUsd: decimal.NewFromInt(1000),
				}
				allowance.value = big.NewInt(1)

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: usdt, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(plan.Transactions).To(HaveLen(3))
				// First approve resets to zero: last 32 calldata bytes are zero.
				zeroAmount := plan.Transactions[0].Data[36:]
				Expect(zeroAmount).To(Equal(make([]byte, 32)))
			})

			It("values the quote output at the settlement token price", func() {
				bridgeSvc.price = decimal.NewFromInt(2)

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(plan.EstReceiveUsd).To(Equal(decimal.NewFromInt(198)))
			})

			It("assumes parity when the settlement price lookup fails", func() {
				bridgeSvc.priceErr = errors.New("price endpoint down")

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(plan.EstReceiveUsd).To(Equal(decimal.NewFromInt(99)))
			})

			It("deducts the activation fee for never-activated accounts", func() {
				info.role = "missing"
				bridgeSvc.price = decimal.NewFromFloat(0.5)

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(plan.EstReceiveUsd).To(Equal(decimal.NewFromFloat(48.5)))
			})

			It("assumes an activated account when the role lookup fails", func() {
				info.roleErr = errors.New("info endpoint down")

				plan, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
					Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(plan.EstReceiveUsd).To(Equal(decimal.NewFromInt(99)))
			})
		})
	})

	Describe("Submit", func() {
		var plan *deposit.Plan

		BeforeEach(func() {
			var err error
			plan, err = orch.BuildDeposit(ctx, deposit.BuildRequest{
				Account: account, Token: fundingToken, UsdValue: decimal.NewFromInt(50), Quote: quote,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("submits silently for software accounts and records the pending entry", func() {
			Expect(orch.Submit(ctx, plan, account)).To(Succeed())

			Expect(submitter.directCalls).To(Equal(1))
			Expect(submitter.approvalCalls).To(BeZero())

			entries := ledger.all()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Type).To(Equal(history.TypeDeposit))
			Expect(entries[0].Status).To(Equal(history.StatusPending))
			Expect(entries[0].Hash).To(Equal(common.HexToHash("0xdead")))

			Eventually(bridgeSvc.reportCount, time.Second).Should(Equal(1))
		})

		It("falls back to interactive approval when simulation rejects the bundle", func() {
			submitter.directErr = wallet.ErrSimulationFailed

			Expect(orch.Submit(ctx, plan, account)).To(Succeed())
			Expect(submitter.directCalls).To(Equal(1))
			Expect(submitter.approvalCalls).To(Equal(1))
		})

		It("always routes hardware accounts through interactive approval", func() {
			account.Kind = wallet.KindHardware

			Expect(orch.Submit(ctx, plan, account)).To(Succeed())
			Expect(submitter.directCalls).To(BeZero())
			Expect(submitter.approvalCalls).To(Equal(1))
		})

		It("maps a user cancellation without raising a toast", func() {
			submitter.directErr = wallet.ErrSimulationFailed
			submitter.approvalErr = wallet.ErrUserCancelled

			err := orch.Submit(ctx, plan, account)
			Expect(venue.KindOf(err)).To(Equal(venue.KindUserCancelled))
			Expect(notifier.errorCount()).To(BeZero())
			Expect(ledger.all()).To(BeEmpty())
		})

		It("reports and notifies on broadcast failures", func() {
			submitter.directErr = errors.New("rpc unavailable")

			err := orch.Submit(ctx, plan, account)
			Expect(err).To(HaveOccurred())
			Expect(reporter.scopes()).To(ContainElement("deposit.submit"))
			Expect(notifier.errorCount()).To(Equal(1))
		})

		It("skips bridge reporting for direct deposits", func() {
			settlement := deposit.SettlementToken
			settlement.Price = decimal.NewFromInt(1)
			settlement.AmountUsd = decimal.NewFromInt(100)

			direct, err := orch.BuildDeposit(ctx, deposit.BuildRequest{
				Account: account, Token: settlement, UsdValue: decimal.NewFromInt(25),
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(orch.Submit(ctx, direct, account)).To(Succeed())
			Consistently(bridgeSvc.reportCount, 100*time.Millisecond).Should(BeZero())
		})
	})

	Describe("Withdraw", func() {
		It("signs and posts a withdraw action, recording the net amount", func() {
			Expect(orch.Withdraw(ctx, account, decimal.NewFromInt(20))).To(Succeed())

			Expect(actionSub.submitted).To(HaveLen(1))
			action := actionSub.submitted[0].Action
			Expect(action["type"]).To(Equal("withdraw3"))
			Expect(action["amount"]).To(Equal("20.00"))
			Expect(action["destination"]).To(Equal(account.Address.Hex()))

			entries := ledger.all()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Type).To(Equal(history.TypeWithdraw))
			Expect(entries[0].Hash).To(Equal(common.Hash{}))
			Expect(entries[0].UsdValue).To(Equal(decimal.NewFromInt(19)))
		})

		It("rejects amounts under the venue minimum", func() {
			err := orch.Withdraw(ctx, account, decimal.NewFromFloat(1.99))
			Expect(venue.KindOf(err)).To(Equal(venue.KindMinimumLimit))
			Expect(actionSub.submitted).To(BeEmpty())
		})

		It("rejects amounts above the withdrawable margin", func() {
			info.withdrawable = decimal.NewFromInt(10)

			err := orch.Withdraw(ctx, account, decimal.NewFromInt(11))
			Expect(venue.KindOf(err)).To(Equal(venue.KindInsufficientBalance))
		})

		It("maps a user cancellation", func() {
			signer.err = wallet.ErrUserCancelled

			err := orch.Withdraw(ctx, account, decimal.NewFromInt(20))
			Expect(venue.KindOf(err)).To(Equal(venue.KindUserCancelled))
		})
	})
})
