// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/lvldb"
	"github.com/aetherlab/aether/overlay"
)

func newTestState(t *testing.T) *State {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := New(aether.Bytes32{}, overlay.New(db))
	require.Nil(t, err)
	return st
}

func TestStateReadWrite(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("account1"))

	// reads on untouched account give zero values
	balance, err := st.GetBalance(addr)
	assert.Nil(t, err)
	assert.Equal(t, 0, balance.Sign())

	nonce, err := st.GetNonce(addr)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), nonce)

	code, err := st.GetCode(addr)
	assert.Nil(t, err)
	assert.Empty(t, code)

	exists, err := st.Exists(addr)
	assert.Nil(t, err)
	assert.False(t, exists)

	// writes are visible immediately
	assert.Nil(t, st.SetBalance(addr, big.NewInt(100)))
	assert.Nil(t, st.SetNonce(addr, 3))
	assert.Nil(t, st.SetCode(addr, []byte("code")))

	balance, _ = st.GetBalance(addr)
	assert.Equal(t, big.NewInt(100), balance)
	nonce, _ = st.GetNonce(addr)
	assert.Equal(t, uint64(3), nonce)
	code, _ = st.GetCode(addr)
	assert.Equal(t, []byte("code"), code)

	hasCode, _ := st.HasCode(addr)
	assert.True(t, hasCode)
	codeHash, _ := st.GetCodeHash(addr)
	assert.Equal(t, aether.Keccak256Hash([]byte("code")), codeHash)

	exists, _ = st.Exists(addr)
	assert.True(t, exists)
}

func TestBalanceMath(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	assert.Nil(t, st.AddBalance(addr, big.NewInt(10)))
	balance, _ := st.GetBalance(addr)
	assert.Equal(t, big.NewInt(10), balance)

	assert.Equal(t, ErrInsufficientBalance, st.SubBalance(addr, big.NewInt(11)))
	// the failed deduction leaves the balance untouched
	balance, _ = st.GetBalance(addr)
	assert.Equal(t, big.NewInt(10), balance)

	assert.Nil(t, st.SubBalance(addr, big.NewInt(10)))
	balance, _ = st.GetBalance(addr)
	assert.Equal(t, 0, balance.Sign())
}

func TestIncrementNonce(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	assert.Nil(t, st.IncrementNonce(addr))
	assert.Nil(t, st.IncrementNonce(addr))
	nonce, err := st.GetNonce(addr)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), nonce)
}

func TestStorage(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("contract"))
	key := aether.BytesToBytes32([]byte("key"))

	require.Nil(t, st.SetBalance(addr, big.NewInt(1)))

	v, err := st.GetStorage(addr, key)
	assert.Nil(t, err)
	assert.True(t, v.IsZero())

	st.SetStorage(addr, key, uint256.NewInt(99))
	v, err = st.GetStorage(addr, key)
	assert.Nil(t, err)
	assert.Equal(t, uint256.NewInt(99), v)

	// zero value deletes the slot
	st.SetStorage(addr, key, new(uint256.Int))
	raw, err := st.GetRawStorage(addr, key)
	assert.Nil(t, err)
	assert.Empty(t, raw)
}

func TestStoragePersistence(t *testing.T) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	defer db.Close()
	o := overlay.New(db)

	st, err := New(aether.Bytes32{}, o)
	require.Nil(t, err)

	addr := aether.BytesToAddress([]byte("contract"))
	key := aether.BytesToBytes32([]byte("key"))

	require.Nil(t, st.SetBalance(addr, big.NewInt(1)))
	st.SetStorage(addr, key, uint256.NewInt(7))

	root, err := st.Commit()
	require.Nil(t, err)
	require.Nil(t, o.Commit())

	// a fresh state at the committed root sees the same storage
	st2, err := New(root, overlay.New(db))
	require.Nil(t, err)
	v, err := st2.GetStorage(addr, key)
	assert.Nil(t, err)
	assert.Equal(t, uint256.NewInt(7), v)
}

func TestCommitRollback(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	openingRoot, err := st.Root()
	require.Nil(t, err)
	assert.Equal(t, aether.EmptyRoot, openingRoot)

	require.Nil(t, st.SetBalance(addr, big.NewInt(5)))
	st.Rollback()

	balance, _ := st.GetBalance(addr)
	assert.Equal(t, 0, balance.Sign())
	root, err := st.Root()
	require.Nil(t, err)
	assert.Equal(t, openingRoot, root)

	require.Nil(t, st.SetBalance(addr, big.NewInt(5)))
	stagedRoot, err := st.Root()
	require.Nil(t, err)

	committedRoot, err := st.Commit()
	require.Nil(t, err)
	assert.Equal(t, stagedRoot, committedRoot)

	// the state continues from the committed root
	balance, _ = st.GetBalance(addr)
	assert.Equal(t, big.NewInt(5), balance)
}

func TestEmptyAccountDeleted(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	require.Nil(t, st.AddBalance(addr, big.NewInt(1)))
	require.Nil(t, st.SetBalance(addr, new(big.Int)))

	root, err := st.Commit()
	require.Nil(t, err)
	assert.Equal(t, aether.EmptyRoot, root)

	exists, err := st.Exists(addr)
	assert.Nil(t, err)
	assert.False(t, exists)
}

func TestDelete(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("contract"))
	key := aether.BytesToBytes32([]byte("key"))

	require.Nil(t, st.SetBalance(addr, big.NewInt(1)))
	require.Nil(t, st.SetCode(addr, []byte("code")))
	st.SetStorage(addr, key, uint256.NewInt(1))

	st.Delete(addr)

	exists, _ := st.Exists(addr)
	assert.False(t, exists)
	code, _ := st.GetCode(addr)
	assert.Empty(t, code)
	v, err := st.GetStorage(addr, key)
	assert.Nil(t, err)
	assert.True(t, v.IsZero())

	root, err := st.Commit()
	require.Nil(t, err)
	assert.Equal(t, aether.EmptyRoot, root)
}

func TestCheckpointRevert(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	require.Nil(t, st.SetBalance(addr, big.NewInt(1)))

	rev1 := st.NewCheckpoint()
	require.Nil(t, st.SetBalance(addr, big.NewInt(2)))

	rev2 := st.NewCheckpoint()
	require.Nil(t, st.SetBalance(addr, big.NewInt(3)))

	st.RevertTo(rev2)
	balance, _ := st.GetBalance(addr)
	assert.Equal(t, big.NewInt(2), balance)

	st.RevertTo(rev1)
	balance, _ = st.GetBalance(addr)
	assert.Equal(t, big.NewInt(1), balance)
}

func TestCopy(t *testing.T) {
	st := newTestState(t)
	addr := aether.BytesToAddress([]byte("acc"))

	require.Nil(t, st.SetBalance(addr, big.NewInt(1)))

	cpy := st.Copy()
	balance, err := cpy.GetBalance(addr)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(1), balance)

	// copies diverge independently
	require.Nil(t, cpy.SetBalance(addr, big.NewInt(2)))
	balance, _ = st.GetBalance(addr)
	assert.Equal(t, big.NewInt(1), balance)

	root, err := st.Root()
	require.Nil(t, err)
	cpyRoot, err := cpy.Root()
	require.Nil(t, err)
	assert.NotEqual(t, root, cpyRoot)
}

func TestAddresses(t *testing.T) {
	st := newTestState(t)

	addr1 := aether.BytesToAddress([]byte("acc1"))
	addr2 := aether.BytesToAddress([]byte("acc2"))
	require.Nil(t, st.SetBalance(addr1, big.NewInt(10)))
	require.Nil(t, st.SetBalance(addr2, big.NewInt(20)))

	all, err := st.Addresses()
	assert.Nil(t, err)
	assert.Equal(t, map[aether.Address]*big.Int{
		addr1: big.NewInt(10),
		addr2: big.NewInt(20),
	}, all)
}

func TestCodePersistence(t *testing.T) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	defer db.Close()
	o := overlay.New(db)

	st, err := New(aether.Bytes32{}, o)
	require.Nil(t, err)

	addr := aether.BytesToAddress([]byte("contract"))
	code := []byte{0x60, 0x01, 0x60, 0x02}
	require.Nil(t, st.SetCode(addr, code))

	root, err := st.Commit()
	require.Nil(t, err)
	require.Nil(t, o.Commit())

	// evict the shared code cache to force a database load
	codeCache.Purge()

	st2, err := New(root, overlay.New(db))
	require.Nil(t, err)
	got, err := st2.GetCode(addr)
	assert.Nil(t, err)
	assert.Equal(t, code, got)
}
