package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrSimulationFailed is returned by TxSubmitter.SubmitDirect when the
// pre-execution simulation rejects the bundle. Callers fall back to the
// interactive approval path instead of failing the action.
var ErrSimulationFailed = errors.New("wallet: pre-execution simulation failed")

// ErrUserCancelled is returned when the user dismisses an interactive
// signing prompt. It closes the flow without surfacing an error toast.
var ErrUserCancelled = errors.New("wallet: user cancelled signing")

// Signer produces EIP-712 signatures for a wallet account. Software keys
// sign locally; hardware keys route the typed data to an interactive
// device session.
type Signer interface {
	SignTypedData(ctx context.Context, account Account, td apitypes.TypedData) ([]byte, error)
}

// TxSubmitter submits prepared transaction bundles through the wallet
// background service.
type TxSubmitter interface {
	// SubmitDirect signs and broadcasts in the background after a
	// simulation pass. Returns ErrSimulationFailed when simulation
	// rejects the bundle.
	SubmitDirect(ctx context.Context, account Account, bundle Bundle) (SubmitResult, error)
	// SubmitWithApproval routes the bundle through the full interactive
	// approval flow.
	SubmitWithApproval(ctx context.Context, account Account, bundle Bundle) (SubmitResult, error)
}

// KeySource resolves the private key for a software account.
type KeySource interface {
	PrivateKey(account Account) (*ecdsa.PrivateKey, error)
}

// softwareSigner signs typed data locally with the account's ECDSA key.
type softwareSigner struct {
	keys KeySource
}

func NewSoftwareSigner(keys KeySource) Signer {
	return &softwareSigner{keys: keys}
}

func (s *softwareSigner) SignTypedData(_ context.Context, account Account, td apitypes.TypedData) ([]byte, error) {
	if account.Kind != KindSoftware {
		return nil, fmt.Errorf("account %s is %s, software signer requires a local key", account.Address.Hex(), account.Kind)
	}

	key, err := s.keys.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("resolve key for %s: %w", account.Address.Hex(), err)
	}

	digest, err := TypedDataDigest(td)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}

	// crypto.Sign yields v in {0,1}; the venue expects 27/28.
	sig[64] += 27
	return sig, nil
}

// TypedDataDigest computes the EIP-712 signing hash
// keccak256(\x19\x01 || domainSeparator || hashStruct(message)).
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
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
	return crypto.Keccak256(raw), nil
}

// RecoverTypedDataSigner recovers the signing address from a 65-byte
// signature over the typed data digest.
func RecoverTypedDataSigner(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	digest, err := TypedDataDigest(td)
	if err != nil {
		return common.Address{}, err
	}

	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
