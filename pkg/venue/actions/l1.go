package actions

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// L1 actions are signed by the delegated agent key over a hash of the
// MessagePack-encoded action. Field order in the wire structs is part of
// the signature, so these structs must not be reordered.

// UpdateLeverageAction changes leverage for one asset.
type UpdateLeverageAction struct {
	Type     string `json:"type"     msgpack:"type"`
	Asset    int    `json:"asset"    msgpack:"asset"`
	IsCross  bool   `json:"isCross"  msgpack:"isCross"`
	Leverage int    `json:"leverage" msgpack:"leverage"`
}

// NewUpdateLeverage builds the wire action for an asset index.
func NewUpdateLeverage(asset, leverage int, isCross bool) UpdateLeverageAction {
	return UpdateLeverageAction{
		Type:     "updateLeverage",
		Asset:    asset,
		IsCross:  isCross,
		Leverage: leverage,
	}
}

// actionHash is keccak256(msgpack(action) || nonce || vault marker).
func actionHash(action any, nonce int64) ([]byte, error) {
	packed, err := msgpack.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("msgpack action: %w", err)
	}

	data := make([]byte, 0, len(packed)+9)
	data = append(data, packed...)

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))
	data = append(data, nonceBytes[:]...)

	// No vault address.
	data = append(data, 0x00)

	return crypto.Keccak256(data), nil
}

// SignL1Action signs an L1 action with the agent key using the venue's
// phantom-agent scheme: the action hash becomes the connectionId of an
// Agent typed-data message on chain id 1337.
func SignL1Action(agentKey *ecdsa.PrivateKey, action any, nonce int64, isMainnet bool) ([]byte, error) {
	hash, err := actionHash(action, nonce)
	if err != nil {
		return nil, err
	}

	source := "a"
	if !isMainnet {
		source = "b"
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(1337)),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hash,
		},
	}

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	raw := []byte("\x19\x01")
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)

	sig, err := crypto.Sign(crypto.Keccak256(raw), agentKey)
	if err != nil {
		return nil, fmt.Errorf("sign l1 action: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
