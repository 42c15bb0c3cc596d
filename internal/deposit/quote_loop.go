package deposit

import (
	"context"
	"sync"
	"time"

	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

const quoteDebounce = 300 * time.Millisecond

// QuoteResult delivers the outcome of a quote fetch together with the
// request that produced it.
type QuoteResult struct {
	Request bridge.QuoteRequest
	Quote   *bridge.Quote
	Err     error
}

// QuoteLoop serializes quote fetching for the deposit form. Each input
// change calls Request; fetches start only after the input has been
// stable for the debounce interval, and a newer request cancels any
// fetch still in flight so only the latest result is ever delivered.
type QuoteLoop struct {
	svc      bridge.Service
	onResult func(QuoteResult)
	logger   logging.ApplicationLogger

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	gen    uint64
	closed bool
}

func NewQuoteLoop(svc bridge.Service, logger logging.ApplicationLogger, onResult func(QuoteResult)) *QuoteLoop {
	return &QuoteLoop{
		svc:      svc,
		onResult: onResult,
		logger:   logger,
	}
}

// Request schedules a quote fetch for req, superseding any pending or
// in-flight fetch.
func (l *QuoteLoop) Request(req bridge.QuoteRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(quoteDebounce, func() {
		l.fire(gen, req)
	})
}

func (l *QuoteLoop) fire(gen uint64, req bridge.QuoteRequest) {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	quote, err := l.svc.Quote(ctx, req)

	l.mu.Lock()
	superseded := l.closed || gen != l.gen
	if !superseded {
		l.cancel = nil
	}
	l.mu.Unlock()

	if superseded || ctx.Err() != nil {
		return
	}
	if err != nil {
		l.logger.Warn("quote fetch for %s failed: %v", req.FromToken, err)
		l.onResult(QuoteResult{Request: req, Err: venue.NewError(venue.KindQuoteFetchFailed, err)})
		return
	}
	l.onResult(QuoteResult{Request: req, Quote: quote})
}

// Stop cancels any pending or in-flight fetch. No results are
// delivered after Stop returns.
func (l *QuoteLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
