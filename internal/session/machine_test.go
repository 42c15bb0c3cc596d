package session_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/session"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

var _ = Describe("Machine", func() {
	var (
		cfg      *venue.Config
		info     *fakeInfo
		submit   *fakeSubmitter
		binder   *fakeBinder
		signer   *fakeSigner
		prefs    *fakePrefs
		notifier *fakeNotifier
		reporter *fakeReporter
		bus      *events.EventBus
		machine  *session.Machine
		account  wallet.Account
		ctx      context.Context
	)

	BeforeEach(func() {
		cfg = &venue.Config{
			Builder:       "0x1111111111111111111111111111111111111111",
			MaxBuilderFee: "0.1%",
		}
		Expect(cfg.Validate()).To(Succeed())

		info = &fakeInfo{
			role:         "user",
			maxFee:       1000,
			accountValue: decimal.NewFromInt(50),
		}
		submit = &fakeSubmitter{}
		binder = &fakeBinder{}
		signer = &fakeSigner{}
		prefs = newFakePrefs()
		notifier = &fakeNotifier{}
		reporter = &fakeReporter{}
		bus = events.NewEventBus()

		machine = session.NewMachine(
			cfg, info, submit, binder, signer, prefs,
			notifier, reporter, bus, zap.NewNop(), "device-0001",
		)

		account = wallet.Account{
			Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Kind:    wallet.KindSoftware,
		}
		ctx = context.Background()
	})

	AfterEach(func() {
		bus.Close()
	})

	actionTypes := func() []string {
		var types []string
		for _, a := range submit.actions() {
			types = append(types, a.Action["type"].(string))
		}
		return types
	}

	Describe("first login", func() {
		It("registers a new agent and reaches ready", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())

			Expect(actionTypes()).To(Equal([]string{"approveAgent"}))
			Expect(machine.State()).To(Equal(session.StateReady))
			Expect(binder.boundKey).NotTo(BeEmpty())
			Expect(binder.boundAcc).To(Equal(account.Address))

			cred, err := prefs.AgentCredential(ctx, account.Address, "device-0001")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred).NotTo(BeNil())
			Expect(cred.KeyHex).To(Equal(binder.boundKey))

			Expect(prefs.lastUsed).NotTo(BeNil())
			Expect(*prefs.lastUsed).To(Equal(account.Address))
		})

		It("also approves the builder fee when the registered cap is too low", func() {
			info.maxFee = 0

			Expect(machine.Login(ctx, account)).To(Succeed())
			Expect(actionTypes()).To(Equal([]string{"approveAgent", "approveBuilderFee"}))
		})

		It("welcomes the account once", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())
			Expect(notifier.infoCount()).To(Equal(1))

			machine.Logout()
			Expect(machine.Login(ctx, account)).To(Succeed())
			Expect(notifier.infoCount()).To(Equal(1))
		})
	})

	Describe("returning login with a valid local agent", func() {
		BeforeEach(func() {
			agentAddr := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
			Expect(prefs.SaveAgentCredential(ctx, wallet.AgentCredential{
				Master:     account.Address,
				DeviceID:   "device-0001",
				Address:    agentAddr,
				KeyHex:     "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032",
				Name:       "rabby_device-0",
				ValidUntil: time.Now().Add(100 * 24 * time.Hour),
			})).To(Succeed())
			info.agents = []venue.AgentRecord{
				{Address: agentAddr, Name: "rabby_device-0", ValidUntil: time.Now().Add(100 * 24 * time.Hour)},
			}
		})

		It("reuses the stored key without new approvals", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())

			Expect(submit.actions()).To(BeEmpty())
			Expect(signer.calls).To(BeZero())
			Expect(machine.State()).To(Equal(session.StateReady))
			Expect(binder.boundKey).To(Equal("289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"))
		})

		It("replaces an agent that expires within a day", func() {
			info.agents[0].ValidUntil = time.Now().Add(6 * time.Hour)

			Expect(machine.Login(ctx, account)).To(Succeed())
			Expect(actionTypes()).To(Equal([]string{"approveAgent"}))
			Expect(binder.boundKey).NotTo(Equal("289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"))
		})
	})

	Describe("agent capacity", func() {
		BeforeEach(func() {
			info.agents = []venue.AgentRecord{
				{Address: common.HexToAddress("0x01"), Name: "one", ValidUntil: time.Now().Add(30 * 24 * time.Hour)},
				{Address: common.HexToAddress("0x02"), Name: "two", ValidUntil: time.Now().Add(5 * 24 * time.Hour)},
				{Address: common.HexToAddress("0x03"), Name: "three", ValidUntil: time.Now().Add(60 * 24 * time.Hour)},
			}
		})

		It("evicts the soonest-expiring agent before registering", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())

			acts := submit.actions()
			Expect(actionTypes()).To(Equal([]string{"approveAgent", "approveAgent"}))

			// The eviction approves the zero address against the victim's name.
			eviction := acts[0]
			Expect(eviction.Action["agentAddress"]).To(Equal(common.Address{}.Hex()))
			Expect(eviction.Action["agentName"]).To(Equal("two"))

			registration := acts[1]
			Expect(registration.Action["agentAddress"]).NotTo(Equal(common.Address{}.Hex()))
			Expect(machine.State()).To(Equal(session.StateReady))
		})
	})

	Describe("deferred approvals for unactivated accounts", func() {
		BeforeEach(func() {
			info.role = "missing"
			info.accountValue = decimal.Zero
		})

		It("holds signed approvals until equity turns positive", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())

			Expect(submit.actions()).To(BeEmpty())
			Expect(machine.HasDeferredApprovals()).To(BeTrue())
			Expect(machine.State()).To(Equal(session.StateReady))

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go machine.WatchBalance(watchCtx)

			// Equity still zero: the refresh event must not flush.
			bus.Publish(events.Event{Type: events.EventBalanceRefreshed})
			Consistently(machine.HasDeferredApprovals, 100*time.Millisecond).Should(BeTrue())

			info.setAccountValue(decimal.NewFromInt(10))
			bus.Publish(events.Event{Type: events.EventBalanceRefreshed})

			Eventually(machine.HasDeferredApprovals, time.Second).Should(BeFalse())
			Eventually(func() []string { return actionTypes() }, time.Second).
				Should(Equal([]string{"approveAgent"}))
		})
	})

	Describe("failure handling", func() {
		It("rolls back and stays quiet when the user cancels signing", func() {
			signer.err = wallet.ErrUserCancelled

			err := machine.Login(ctx, account)
			Expect(err).To(HaveOccurred())
			Expect(venue.KindOf(err)).To(Equal(venue.KindUserCancelled))
			Expect(machine.State()).To(Equal(session.StateUnauthenticated))
			Expect(notifier.errorCount()).To(BeZero())
		})

		It("notifies and reports on other failures", func() {
			submit.err = context.DeadlineExceeded

			err := machine.Login(ctx, account)
			Expect(err).To(HaveOccurred())
			Expect(machine.State()).To(Equal(session.StateUnauthenticated))
			Expect(notifier.errorCount()).To(Equal(1))
			Expect(reporter.reports).To(ContainElement("session.login"))
		})

		It("rejects accounts that cannot sign", func() {
			account.Kind = wallet.KindWatchOnly

			err := machine.Login(ctx, account)
			Expect(err).To(HaveOccurred())
			Expect(signer.calls).To(BeZero())
		})
	})

	Describe("logout", func() {
		It("unbinds the venue clients and clears the session", func() {
			Expect(machine.Login(ctx, account)).To(Succeed())
			Expect(machine.Account()).NotTo(BeNil())

			machine.Logout()

			Expect(machine.State()).To(Equal(session.StateUnauthenticated))
			Expect(machine.Account()).To(BeNil())
			Expect(machine.AgentAddress()).To(Equal(common.Address{}))
			Expect(binder.unbinds).To(Equal(1))
		})
	})
})
