package deposit_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/internal/deposit"
	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

var _ = Describe("QuoteLoop", func() {
	var (
		bridgeSvc *fakeBridge
		loop      *deposit.QuoteLoop

		mu      sync.Mutex
		results []deposit.QuoteResult
	)

	resultCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(results)
	}

	lastResult := func() deposit.QuoteResult {
		mu.Lock()
		defer mu.Unlock()
		return results[len(results)-1]
	}

	reqFor := func(token common.Address) bridge.QuoteRequest {
		return bridge.QuoteRequest{
			User:      common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			FromChain: 1,
			FromToken: token,
		}
	}

	BeforeEach(func() {
		bridgeSvc = &fakeBridge{
			quote: &bridge.Quote{ToTokenAmount: decimal.NewFromInt(42)},
		}
		mu.Lock()
		results = nil
		mu.Unlock()

		loop = deposit.NewQuoteLoop(bridgeSvc, logging.NewNoOpLogger(), func(r deposit.QuoteResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		})
	})

	AfterEach(func() {
		loop.Stop()
	})

	It("delivers a quote after the debounce interval", func() {
		loop.Request(reqFor(common.HexToAddress("0x01")))

		Eventually(resultCount, time.Second).Should(Equal(1))
		r := lastResult()
		Expect(r.Err).NotTo(HaveOccurred())
		Expect(r.Quote.ToTokenAmount).To(Equal(decimal.NewFromInt(42)))
		Expect(r.Request.FromToken).To(Equal(common.HexToAddress("0x01")))
	})

	It("coalesces rapid input changes into one fetch of the latest request", func() {
		loop.Request(reqFor(common.HexToAddress("0x01")))
		loop.Request(reqFor(common.HexToAddress("0x02")))
		loop.Request(reqFor(common.HexToAddress("0x03")))

		Eventually(resultCount, time.Second).Should(Equal(1))
		Expect(bridgeSvc.requestCount()).To(Equal(1))
		Expect(lastResult().Request.FromToken).To(Equal(common.HexToAddress("0x03")))

		Consistently(resultCount, 400*time.Millisecond).Should(Equal(1))
	})

	It("abandons an in-flight fetch when a newer request arrives", func() {
		bridgeSvc.quoteDelay = 500 * time.Millisecond

		loop.Request(reqFor(common.HexToAddress("0x01")))
		// Let the first fetch get past the debounce and into flight.
		time.Sleep(350 * time.Millisecond)
		loop.Request(reqFor(common.HexToAddress("0x02")))

		Eventually(resultCount, 3*time.Second).Should(Equal(1))
		Expect(lastResult().Request.FromToken).To(Equal(common.HexToAddress("0x02")))
		Expect(bridgeSvc.requestCount()).To(Equal(2))

		Consistently(resultCount, 600*time.Millisecond).Should(Equal(1))
	})

	It("classifies fetch failures", func() {
		bridgeSvc.quoteErr = errors.New("no route")

		loop.Request(reqFor(common.HexToAddress("0x01")))

		Eventually(resultCount, time.Second).Should(Equal(1))
		r := lastResult()
		Expect(r.Quote).To(BeNil())
		Expect(venue.KindOf(r.Err)).To(Equal(venue.KindQuoteFetchFailed))
	})

	It("delivers nothing after Stop", func() {
		loop.Request(reqFor(common.HexToAddress("0x01")))
		loop.Stop()

		Consistently(resultCount, 400*time.Millisecond).Should(BeZero())
	})
})
