package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// rpcSubmitter signs bundles with locally held keys and broadcasts them
// over JSON-RPC. SubmitDirect simulates each transaction first and
// returns ErrSimulationFailed when the node rejects the call, so the
// caller can fall back to the approval path.
type rpcSubmitter struct {
	keys    KeySource
	rpcURLs map[string]string

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

func NewRPCSubmitter(keys KeySource, rpcURLs map[string]string) TxSubmitter {
	return &rpcSubmitter{
		keys:    keys,
		rpcURLs: rpcURLs,
		clients: make(map[uint64]*ethclient.Client),
	}
}

func (s *rpcSubmitter) client(chainID uint64) (*ethclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chainID]; ok {
		return c, nil
	}

	url, ok := s.rpcURLs[strconv.FormatUint(chainID, 10)]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint configured for chain %d", chainID)
	}

	c, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	s.clients[chainID] = c
	return c, nil
}

func (s *rpcSubmitter) SubmitDirect(ctx context.Context, account Account, bundle Bundle) (SubmitResult, error) {
	if !account.SupportsDirectSigning() {
		return SubmitResult{}, fmt.Errorf("account %s cannot sign directly", account.Address.Hex())
	}

	for i, tx := range bundle.Transactions {
		c, err := s.client(tx.ChainID)
		if err != nil {
			return SubmitResult{}, err
		}
		msg := ethereum.CallMsg{
			From:  account.Address,
			To:    &tx.To,
			Value: tx.Value,
			Data:  tx.Data,
		}
		if _, err := c.CallContract(ctx, msg, nil); err != nil {
			return SubmitResult{}, fmt.Errorf("%w: tx %d: %v", ErrSimulationFailed, i, err)
		}
	}

	return s.send(ctx, account, bundle)
}

func (s *rpcSubmitter) SubmitWithApproval(ctx context.Context, account Account, bundle Bundle) (SubmitResult, error) {
	// No interactive surface in the headless engine: approval-path
	// submission signs with the local key without the simulation gate.
	if !account.SupportsDirectSigning() {
		return SubmitResult{}, fmt.Errorf("interactive signing not available for %s accounts", account.Kind)
	}
	return s.send(ctx, account, bundle)
}

func (s *rpcSubmitter) send(ctx context.Context, account Account, bundle Bundle) (SubmitResult, error) {
	key, err := s.keys.PrivateKey(account)
	if err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	for i, tx := range bundle.Transactions {
		c, err := s.client(tx.ChainID)
		if err != nil {
			return result, err
		}

		nonce, err := c.PendingNonceAt(ctx, account.Address)
		if err != nil {
			return result, fmt.Errorf("fetch nonce: %w", err)
		}

		gasPrice := tx.GasPrice
		if gasPrice == nil {
			gasPrice, err = c.SuggestGasPrice(ctx)
			if err != nil {
				return result, fmt.Errorf("suggest gas price: %w", err)
			}
		}

		gasLimit, err := c.EstimateGas(ctx, ethereum.CallMsg{
			From:  account.Address,
			To:    &tx.To,
			Value: tx.Value,
			Data:  tx.Data,
		})
		if err != nil {
			return result, fmt.Errorf("estimate gas for tx %d: %w", i, err)
		}

		signed, err := types.SignTx(
			types.NewTx(&types.LegacyTx{
				Nonce:    nonce,
				To:       &tx.To,
				Value:    tx.Value,
				Gas:      gasLimit,
				GasPrice: gasPrice,
				Data:     tx.Data,
			}),
			types.LatestSignerForChainID(new(big.Int).SetUint64(tx.ChainID)),
			key,
		)
		if err != nil {
			return result, fmt.Errorf("sign tx %d: %w", i, err)
		}

		if err := c.SendTransaction(ctx, signed); err != nil {
			return result, fmt.Errorf("broadcast tx %d: %w", i, err)
		}
		result.Hashes = append(result.Hashes, signed.Hash())
	}
	return result, nil
}
