package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// 4-byte selectors, keccak256 of the canonical signatures.
var (
	transferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	approveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	allowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
)

func pad32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

// TransferCalldata encodes transfer(to, amount).
func TransferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, pad32(to.Bytes())...)
	data = append(data, pad32(amount.Bytes())...)
	return data
}

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, approveSelector...)
	data = append(data, pad32(spender.Bytes())...)
	data = append(data, pad32(amount.Bytes())...)
	return data
}

// AllowanceSource reads the current ERC-20 allowance granted by owner to
// spender on a chain.
type AllowanceSource interface {
	Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error)
}

// rpcAllowanceSource reads allowances over JSON-RPC, caching one client
// per chain.
type rpcAllowanceSource struct {
	rpcURLs map[string]string

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

func NewAllowanceSource(rpcURLs map[string]string) AllowanceSource {
	return &rpcAllowanceSource{
		rpcURLs: rpcURLs,
		clients: make(map[uint64]*ethclient.Client),
	}
}

func (s *rpcAllowanceSource) client(chainID uint64) (*ethclient.Client, error) {
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

func (s *rpcAllowanceSource) Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	c, err := s.client(chainID)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 68)
	data = append(data, allowanceSelector...)
	data = append(data, pad32(owner.Bytes())...)
	data = append(data, pad32(spender.Bytes())...)

	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call on chain %d: %w", chainID, err)
	}
	return new(big.Int).SetBytes(out), nil
}
