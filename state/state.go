// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package state manages the world state of accounts.
package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/stackedmap"
	"github.com/aetherlab/aether/trie"
)

// ErrInsufficientBalance is returned when an account balance does not
// cover a deduction.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// State manages the world state.
type State struct {
	db    *overlay.Overlay
	trie  *trie.Trie                       // the accounts trie
	cache map[aether.Address]*cachedObject // cache of tried accounts
	sm    *stackedmap.StackedMap           // keeps revisions of account state
}

// New creates a state object bound to the trie at the given root.
func New(root aether.Bytes32, db *overlay.Overlay) (*State, error) {
	tr, err := trie.New(root, db)
	if err != nil {
		return nil, &Error{err}
	}

	state := &State{
		db:    db,
		trie:  tr,
		cache: make(map[aether.Address]*cachedObject),
	}
	state.sm = stackedmap.New(func(key interface{}) (interface{}, bool, error) {
		return state.cacheGetter(key)
	})
	// base layer, holds writes made outside any checkpoint
	state.sm.Push()
	return state, nil
}

// Copy makes a copy of the state sharing the underlying overlay.
// Outstanding checkpoints are squashed in the copy.
func (s *State) Copy() *State {
	cpy := &State{
		db:    s.db,
		trie:  s.trie.Copy(),
		cache: make(map[aether.Address]*cachedObject),
	}
	cpy.sm = stackedmap.New(func(key interface{}) (interface{}, bool, error) {
		return cpy.cacheGetter(key)
	})
	cpy.sm.Push()
	s.sm.Journal(func(k, v interface{}) bool {
		cpy.sm.Put(k, v)
		return true
	})
	return cpy
}

// cacheGetter implements stackedmap.MapGetter.
func (s *State) cacheGetter(key interface{}) (value interface{}, exist bool, err error) {
	switch k := key.(type) {
	case aether.Address: // get account
		obj, err := s.getCachedObject(k)
		if err != nil {
			return nil, false, err
		}
		return &obj.data, true, nil
	case codeKey: // get code
		obj, err := s.getCachedObject(aether.Address(k))
		if err != nil {
			return nil, false, err
		}
		code, err := obj.GetCode()
		if err != nil {
			return nil, false, err
		}
		return code, true, nil
	case storageKey: // get storage
		// the address was ever deleted in the life-cycle of this state instance.
		// treat its storage as an empty set.
		if k.barrier != 0 {
			return rlp.RawValue(nil), true, nil
		}

		obj, err := s.getCachedObject(k.addr)
		if err != nil {
			return nil, false, err
		}
		v, err := obj.GetStorage(k.key)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case storageBarrierKey: // get barrier, 0 as initial value
		return 0, true, nil
	}
	panic(fmt.Errorf("unexpected key type %+v", key))
}

func (s *State) getCachedObject(addr aether.Address) (*cachedObject, error) {
	if co, ok := s.cache[addr]; ok {
		return co, nil
	}
	a, err := loadAccount(s.trie, addr)
	if err != nil {
		return nil, err
	}
	co := newCachedObject(s.db, addr, a)
	s.cache[addr] = co
	return co, nil
}

// getAccount gets account by address. the returned account should not be modified.
func (s *State) getAccount(addr aether.Address) (*Account, error) {
	v, _, err := s.sm.Get(addr)
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// getAccountCopy get a copy of account by address.
func (s *State) getAccountCopy(addr aether.Address) (Account, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return Account{}, err
	}
	return *acc, nil
}

func (s *State) updateAccount(addr aether.Address, acc *Account) {
	s.sm.Put(addr, acc)
}

func (s *State) getStorageBarrier(addr aether.Address) int {
	b, _, _ := s.sm.Get(storageBarrierKey(addr))
	return b.(int)
}

func (s *State) setStorageBarrier(addr aether.Address, barrier int) {
	s.sm.Put(storageBarrierKey(addr), barrier)
}

// GetBalance returns balance for the given address.
func (s *State) GetBalance(addr aether.Address) (*big.Int, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, &Error{err}
	}
	return acc.Balance, nil
}

// SetBalance set balance for the given address.
func (s *State) SetBalance(addr aether.Address, balance *big.Int) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Balance = balance
	s.updateAccount(addr, &cpy)
	return nil
}

// AddBalance adds amount to the balance of the given address.
// The account record is created if absent.
func (s *State) AddBalance(addr aether.Address, amount *big.Int) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Balance = new(big.Int).Add(cpy.Balance, amount)
	s.updateAccount(addr, &cpy)
	return nil
}

// SubBalance subtracts amount from the balance of the given address.
// It returns ErrInsufficientBalance if the balance does not cover amount.
func (s *State) SubBalance(addr aether.Address, amount *big.Int) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	if cpy.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	cpy.Balance = new(big.Int).Sub(cpy.Balance, amount)
	s.updateAccount(addr, &cpy)
	return nil
}

// GetNonce returns the nonce for the given address.
func (s *State) GetNonce(addr aether.Address) (uint64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, &Error{err}
	}
	return acc.Nonce, nil
}

// SetNonce set the nonce for the given address.
func (s *State) SetNonce(addr aether.Address, nonce uint64) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Nonce = nonce
	s.updateAccount(addr, &cpy)
	return nil
}

// IncrementNonce increments the nonce of the given address by one.
// The account record is created if absent.
func (s *State) IncrementNonce(addr aether.Address) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Nonce++
	s.updateAccount(addr, &cpy)
	return nil
}

// GetStorage returns the storage value for the given address and key.
func (s *State) GetStorage(addr aether.Address, key aether.Bytes32) (*uint256.Int, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return new(uint256.Int), nil
	}
	_, content, _, err := rlp.Split(raw)
	if err != nil {
		return nil, &Error{err}
	}
	return new(uint256.Int).SetBytes(content), nil
}

// SetStorage set the storage value for the given address and key.
// A zero value deletes the key at commit.
func (s *State) SetStorage(addr aether.Address, key aether.Bytes32, value *uint256.Int) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	v, _ := rlp.EncodeToBytes(value.Bytes())
	s.SetRawStorage(addr, key, v)
}

// GetRawStorage returns storage value in rlp raw for given address and key.
func (s *State) GetRawStorage(addr aether.Address, key aether.Bytes32) (rlp.RawValue, error) {
	data, _, err := s.sm.Get(storageKey{addr, s.getStorageBarrier(addr), key})
	if err != nil {
		return nil, &Error{err}
	}
	return data.(rlp.RawValue), nil
}

// SetRawStorage set storage value in rlp raw.
func (s *State) SetRawStorage(addr aether.Address, key aether.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{addr, s.getStorageBarrier(addr), key}, raw)
}

// GetCode returns code for the given address.
func (s *State) GetCode(addr aether.Address) ([]byte, error) {
	v, _, err := s.sm.Get(codeKey(addr))
	if err != nil {
		return nil, &Error{err}
	}
	return v.([]byte), nil
}

// GetCodeHash returns code hash for the given address.
func (s *State) GetCodeHash(addr aether.Address) (aether.Bytes32, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return aether.Bytes32{}, &Error{err}
	}
	return aether.BytesToBytes32(acc.CodeHash), nil
}

// SetCode set code for the given address.
func (s *State) SetCode(addr aether.Address, code []byte) error {
	var codeHash []byte
	if len(code) > 0 {
		s.sm.Put(codeKey(addr), code)
		codeHash = aether.Keccak256(code)
		codeCache.Add(string(codeHash), code)
	} else {
		s.sm.Put(codeKey(addr), []byte(nil))
	}
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.CodeHash = codeHash
	s.updateAccount(addr, &cpy)
	return nil
}

// HasCode returns whether the given address has code.
func (s *State) HasCode(addr aether.Address) (bool, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return false, &Error{err}
	}
	return len(acc.CodeHash) > 0, nil
}

// Exists returns whether an account exists at the given address.
// See Account.IsEmpty()
func (s *State) Exists(addr aether.Address) (bool, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return false, &Error{err}
	}
	return !acc.IsEmpty(), nil
}

// Delete deletes the account at the given address.
// That's set balance, nonce, code and storage to zero values.
func (s *State) Delete(addr aether.Address) {
	s.sm.Put(codeKey(addr), []byte(nil))
	s.updateAccount(addr, emptyAccount())
	// increase the barrier value
	s.setStorageBarrier(addr, s.getStorageBarrier(addr)+1)
}

// NewCheckpoint makes a checkpoint of current state.
// It returns revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo revert to checkpoint specified by revision.
func (s *State) RevertTo(revision int) {
	s.sm.PopTo(revision)
}

// Stage makes a stage object to compute the hash of the pending view,
// or to commit all changes.
func (s *State) Stage() (*Stage, error) {
	changes := make(map[aether.Address]*changedObject)

	// get or create changed object
	getChanged := func(addr aether.Address) (*changedObject, error) {
		if obj, ok := changes[addr]; ok {
			return obj, nil
		}
		co, err := s.getCachedObject(addr)
		if err != nil {
			return nil, err
		}
		c := &changedObject{data: co.data, baseStorageTrie: co.cache.storageTrie}
		changes[addr] = c
		return c, nil
	}

	var jerr error
	// traverse journal to build changes
	s.sm.Journal(func(k, v interface{}) bool {
		var c *changedObject
		switch key := k.(type) {
		case aether.Address:
			if c, jerr = getChanged(key); jerr != nil {
				return false
			}
			c.data = *(v.(*Account))
		case codeKey:
			if c, jerr = getChanged(aether.Address(key)); jerr != nil {
				return false
			}
			c.code = v.([]byte)
		case storageKey:
			if c, jerr = getChanged(key.addr); jerr != nil {
				return false
			}
			if c.storage == nil {
				c.storage = make(map[aether.Bytes32]rlp.RawValue)
			}
			c.storage[key.key] = v.(rlp.RawValue)
		case storageBarrierKey:
			if c, jerr = getChanged(aether.Address(key)); jerr != nil {
				return false
			}
			// discard all pending storage and the base storage trie when meet the barrier.
			c.storage = nil
			c.baseStorageTrie = nil
		}
		return true
	})
	if jerr != nil {
		return nil, &Error{jerr}
	}
	return newStage(s.db, s.trie, changes), nil
}

// Root computes the root hash of the pending view without persisting anything.
func (s *State) Root() (aether.Bytes32, error) {
	stage, err := s.Stage()
	if err != nil {
		return aether.Bytes32{}, err
	}
	return stage.Hash()
}

// Commit commits all changes into the account trie and storage tries.
// Trie nodes and codes are journaled in the overlay. Flushing the
// overlay to disk is up to the caller.
func (s *State) Commit() (aether.Bytes32, error) {
	stage, err := s.Stage()
	if err != nil {
		return aether.Bytes32{}, err
	}
	root, err := stage.Commit()
	if err != nil {
		return aether.Bytes32{}, &Error{err}
	}

	s.trie = stage.accountTrie
	s.reset()
	return root, nil
}

// Rollback drops all uncommitted changes.
// The state reverts to the root of the last Commit, or to the root it was
// opened at if it has not been committed.
func (s *State) Rollback() {
	s.reset()
}

func (s *State) reset() {
	s.cache = make(map[aether.Address]*cachedObject)
	s.sm = stackedmap.New(func(key interface{}) (interface{}, bool, error) {
		return s.cacheGetter(key)
	})
	s.sm.Push()
}

// Addresses returns all addresses present in the pending view, mapped
// to their balances.
func (s *State) Addresses() (map[aether.Address]*big.Int, error) {
	stage, err := s.Stage()
	if err != nil {
		return nil, err
	}
	if stage.err != nil {
		return nil, &Error{stage.err}
	}

	all := make(map[aether.Address]*big.Int)
	it := trie.NewIterator(stage.accountTrie.NodeIterator())
	for it.Next() {
		var a Account
		if err := rlp.DecodeBytes(it.Value, &a); err != nil {
			return nil, &Error{err}
		}
		all[aether.BytesToAddress(it.Key)] = a.Balance
	}
	if it.Err != nil {
		return nil, &Error{it.Err}
	}
	return all, nil
}

type (
	storageKey struct {
		addr    aether.Address
		barrier int
		key     aether.Bytes32
	}
	codeKey           aether.Address
	storageBarrierKey aether.Address
)
