package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// User-signed exchange actions are EIP-712 payloads the master account
// signs directly. The same builder produces both the typed data handed to
// the wallet signer and the action body posted to the venue, so the two
// can never drift apart.

const signDomainName = "HyperliquidSignTransaction"

// TypedAction pairs an action body with the typed data that authorizes it.
type TypedAction struct {
	Action    map[string]any
	TypedData apitypes.TypedData
	Nonce     int64
}

func signDomain(signatureChainID string) apitypes.TypedDataDomain {
	chainID := new(big.Int)
	chainID.SetString(signatureChainID[2:], 16)
	return apitypes.TypedDataDomain{
		Name:              signDomainName,
		Version:           "1",
		ChainId:           (*math.HexOrDecimal256)(chainID),
		VerifyingContract: common.Address{}.Hex(),
	}
}

func domainTypes() []apitypes.Type {
	return []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
}

// BuildApproveAgent authorizes agentAddr as a delegated signing key.
// Approving the zero address with an existing agent's name evicts that
// agent, which is how the session frees a slot when the per-account cap
// of three is reached.
func BuildApproveAgent(chainName, signatureChainID string, agentAddr common.Address, agentName string, nonce int64) TypedAction {
	action := map[string]any{
		"type":             "approveAgent",
		"hyperliquidChain": chainName,
		"signatureChainId": signatureChainID,
		"agentAddress":     agentAddr.Hex(),
		"agentName":        agentName,
		"nonce":            nonce,
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(),
			"HyperliquidTransaction:ApproveAgent": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "agentAddress", Type: "address"},
				{Name: "agentName", Type: "string"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:ApproveAgent",
		Domain:      signDomain(signatureChainID),
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": chainName,
			"agentAddress":     agentAddr.Hex(),
			"agentName":        agentName,
			"nonce":            math.NewHexOrDecimal256(nonce),
		},
	}

	return TypedAction{Action: action, TypedData: td, Nonce: nonce}
}

// BuildApproveBuilderFee authorizes a maximum per-trade fee for the
// builder address, expressed as a percent string such as "0.1%".
func BuildApproveBuilderFee(chainName, signatureChainID string, builder common.Address, maxFeeRate string, nonce int64) TypedAction {
	action := map[string]any{
		"type":             "approveBuilderFee",
		"hyperliquidChain": chainName,
		"signatureChainId": signatureChainID,
		"maxFeeRate":       maxFeeRate,
		"builder":          builder.Hex(),
		"nonce":            nonce,
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(),
			"HyperliquidTransaction:ApproveBuilderFee": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "maxFeeRate", Type: "string"},
				{Name: "builder", Type: "address"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:ApproveBuilderFee",
		Domain:      signDomain(signatureChainID),
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": chainName,
			"maxFeeRate":       maxFeeRate,
			"builder":          builder.Hex(),
			"nonce":            math.NewHexOrDecimal256(nonce),
		},
	}

	return TypedAction{Action: action, TypedData: td, Nonce: nonce}
}

// BuildWithdraw moves settlement-token balance from the venue to an
// on-chain destination. Amount is a decimal string in settlement units.
func BuildWithdraw(chainName, signatureChainID string, destination common.Address, amount string, nonce int64) TypedAction {
	action := map[string]any{
		"type":             "withdraw3",
		"hyperliquidChain": chainName,
		"signatureChainId": signatureChainID,
		"destination":      destination.Hex(),
		"amount":           amount,
		"time":             nonce,
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(),
			"HyperliquidTransaction:Withdraw": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "destination", Type: "string"},
				{Name: "amount", Type: "string"},
				{Name: "time", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:Withdraw",
		Domain:      signDomain(signatureChainID),
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": chainName,
			"destination":      destination.Hex(),
			"amount":           amount,
			"time":             math.NewHexOrDecimal256(nonce),
		},
	}

	return TypedAction{Action: action, TypedData: td, Nonce: nonce}
}
