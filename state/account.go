// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/trie"
)

// Account is the consensus representation of an account.
// RLP encoded objects are stored in the main account trie.
type Account struct {
	Balance     *big.Int
	Nonce       uint64
	StorageRoot []byte // merkle root of the storage trie
	CodeHash    []byte // hash of code
}

// IsEmpty returns if an account is empty.
// An empty account has zero balance, zero nonce, no storage and no code.
func (a *Account) IsEmpty() bool {
	return a.Balance.Sign() == 0 &&
		a.Nonce == 0 &&
		len(a.StorageRoot) == 0 &&
		len(a.CodeHash) == 0
}

func emptyAccount() *Account {
	return &Account{Balance: &big.Int{}}
}

// loadAccount load an account object by address in trie.
// It returns an empty account if no account found at the address.
func loadAccount(tr *trie.Trie, addr aether.Address) (*Account, error) {
	data, err := tr.Get(addr[:])
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return emptyAccount(), nil
	}
	var a Account
	if err := rlp.DecodeBytes(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// saveAccount save account into trie at given address.
// If the given account is empty, the value for given address is deleted.
func saveAccount(tr *trie.Trie, addr aether.Address, a *Account) error {
	if a.IsEmpty() {
		// delete if account is empty
		return tr.Delete(addr[:])
	}

	data, err := rlp.EncodeToBytes(a)
	if err != nil {
		return err
	}
	return tr.Update(addr[:], data)
}

// loadStorage load storage data for given key.
func loadStorage(tr *trie.Trie, key aether.Bytes32) (rlp.RawValue, error) {
	return tr.Get(key[:])
}

// saveStorage save data for given key.
// If the data is zero-length, the given key will be deleted.
func saveStorage(tr *trie.Trie, key aether.Bytes32, data rlp.RawValue) error {
	return tr.Update(key[:], data)
}
