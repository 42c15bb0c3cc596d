package stream

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/RabbyHub/perps-engine/internal/logging"
)

type ReconnectStrategy interface {
	NextDelay(attempt int) time.Duration
	ShouldReconnect(attempt int, err error) bool
	Reset()
}

type ExponentialBackoffStrategy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
	Jitter       bool
	randSource   *rand.Rand
	mutex        sync.Mutex
}

func NewExponentialBackoffStrategy(initialDelay, maxDelay time.Duration, maxAttempts int) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		MaxAttempts:  maxAttempts,
		Multiplier:   2.0,
		Jitter:       true,
		randSource:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (ebs *ExponentialBackoffStrategy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return ebs.InitialDelay
	}

	delay := float64(ebs.InitialDelay) * math.Pow(ebs.Multiplier, float64(attempt-1))
	if delay > float64(ebs.MaxDelay) {
		delay = float64(ebs.MaxDelay)
	}

	if ebs.Jitter {
		ebs.mutex.Lock()
		jitterFactor := 2*ebs.randSource.Float64() - 1
		ebs.mutex.Unlock()

		delay += delay * 0.1 * jitterFactor
		if delay < 0 {
			delay = float64(ebs.InitialDelay)
		}
	}

	return time.Duration(delay)
}

func (ebs *ExponentialBackoffStrategy) ShouldReconnect(attempt int, err error) bool {
	return attempt < ebs.MaxAttempts
}

func (ebs *ExponentialBackoffStrategy) Reset() {
}

// Reconnector drives reconnection attempts for a Conn using a backoff
// strategy. Only one reconnection loop runs at a time.
type Reconnector struct {
	conn     *Conn
	strategy ReconnectStrategy
	logger   logging.ApplicationLogger

	isReconnecting bool
	reconnectMutex sync.Mutex
	currentAttempt int

	onSuccess func(attempt int)
	onFail    func(attempt int, err error)
}

func NewReconnector(conn *Conn, strategy ReconnectStrategy, logger logging.ApplicationLogger) *Reconnector {
	return &Reconnector{
		conn:     conn,
		strategy: strategy,
		logger:   logger,
	}
}

func (r *Reconnector) SetCallbacks(onSuccess func(int), onFail func(int, error)) {
	r.onSuccess = onSuccess
	r.onFail = onFail
}

func (r *Reconnector) Start(ctx context.Context) {
	r.reconnectMutex.Lock()
	defer r.reconnectMutex.Unlock()

	if r.isReconnecting {
		return
	}
	r.isReconnecting = true
	r.currentAttempt = 0

	go r.loop(ctx)
}

func (r *Reconnector) loop(ctx context.Context) {
	defer func() {
		r.reconnectMutex.Lock()
		r.isReconnecting = false
		r.reconnectMutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r.currentAttempt++

			if !r.strategy.ShouldReconnect(r.currentAttempt, nil) {
				r.logger.Error("max reconnection attempts reached: %d", r.currentAttempt-1)
				if r.onFail != nil {
					r.onFail(r.currentAttempt-1, fmt.Errorf("max attempts reached"))
				}
				return
			}

			delay := r.strategy.NextDelay(r.currentAttempt)
			r.logger.Debug("attempting reconnection %d after %v delay", r.currentAttempt, delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			err := r.conn.Connect(ctx)
			if err == nil {
				r.logger.Info("reconnected after %d attempts", r.currentAttempt)
				if r.onSuccess != nil {
					r.onSuccess(r.currentAttempt)
				}
				r.strategy.Reset()
				return
			}

			r.logger.Debug("reconnection attempt %d failed: %v", r.currentAttempt, err)
			if r.onFail != nil {
				r.onFail(r.currentAttempt, err)
			}
		}
	}
}

func (r *Reconnector) IsReconnecting() bool {
	r.reconnectMutex.Lock()
	defer r.reconnectMutex.Unlock()
	return r.isReconnecting
}
