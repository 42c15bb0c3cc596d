package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keyring holds locally imported software keys. It backs both the
// account listing and key resolution for the software signer.
type Keyring struct {
	keys  map[common.Address]*ecdsa.PrivateKey
	order []common.Address
}

var _ KeySource = (*Keyring)(nil)

func NewKeyring(hexKeys []string) (*Keyring, error) {
	k := &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys))}
	for i, h := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(h, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key %d: %w", i, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := k.keys[addr]; dup {
			continue
		}
		k.keys[addr] = key
		k.order = append(k.order, addr)
	}
	return k, nil
}

func (k *Keyring) PrivateKey(account Account) (*ecdsa.PrivateKey, error) {
	key, ok := k.keys[account.Address]
	if !ok {
		return nil, fmt.Errorf("no key for account %s", account.Address.Hex())
	}
	return key, nil
}

// Accounts lists the imported accounts in insertion order.
func (k *Keyring) Accounts(_ context.Context) ([]Account, error) {
	accounts := make([]Account, 0, len(k.order))
	for _, addr := range k.order {
		accounts = append(accounts, Account{
			Address: addr,
			Kind:    KindSoftware,
		})
	}
	return accounts, nil
}
