package bridge

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Token identifies a funding token on a chain, with the pricing needed to
// convert a USD amount into raw token units.
type Token struct {
	ChainID  uint64
	Address  common.Address
	Symbol   string
	Decimals int32
	Price    decimal.Decimal
	// AmountUsd is the user's holding of this token in USD terms.
	AmountUsd decimal.Decimal
}

// Same reports whether two tokens are the same contract on the same chain.
func (t Token) Same(other Token) bool {
	return t.ChainID == other.ChainID && t.Address == other.Address
}

// RawAmount converts a USD amount to raw token units, flooring to an
// integer: floor(usd / price * 10^decimals).
func (t Token) RawAmount(usd decimal.Decimal) *big.Int {
	if t.Price.IsZero() {
		return new(big.Int)
	}
	scaled := usd.Div(t.Price).Shift(t.Decimals).Floor()
	return scaled.BigInt()
}

// QuoteRequest asks for a route from a funding token into the settlement
// token.
type QuoteRequest struct {
	User      common.Address
	FromChain uint64
	FromToken common.Address
	RawAmount *big.Int
	GasPrice  *big.Int
}

// Quote is a priced route. It is valid only for the amount/token pair it
// was computed for; either changing invalidates it.
type Quote struct {
	// ApprovalContract must hold sufficient allowance before Tx executes.
	ApprovalContract common.Address
	// Tx is the executable bridge transaction.
	Tx wallet.Transaction
	// ToTokenAmount is the expected settlement-token output.
	ToTokenAmount decimal.Decimal
	// Duration is the estimated completion time.
	Duration time.Duration
}

// Report records an executed bridge transaction with the funding rail so
// it shows up in bridge history.
type Report struct {
	User      common.Address
	TxHash    common.Hash
	FromChain uint64
	FromToken common.Address
	RawAmount *big.Int
}
