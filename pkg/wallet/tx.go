package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction is an unsigned EVM call prepared by the orchestration layer.
// The wallet background service owns nonce assignment and gas estimation.
type Transaction struct {
	ChainID  uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasPrice *big.Int
}

// Bundle is an ordered list of transactions submitted as one user action,
// e.g. an ERC-20 approval followed by a bridge deposit.
type Bundle struct {
	Transactions []Transaction
}

// Hash identifiers returned by the submitter, one per transaction, in order.
type SubmitResult struct {
	Hashes []common.Hash
}
