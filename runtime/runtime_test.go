// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/lvldb"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/runtime"
	"github.com/aetherlab/aether/state"
	"github.com/aetherlab/aether/tx"
	"github.com/aetherlab/aether/vm"
)

// scriptVM runs a Go function instead of bytecode.
type scriptVM struct {
	run func(env vm.Environment, contract *vm.Contract) ([]byte, error)
}

func (v *scriptVM) Run(env vm.Environment, contract *vm.Contract) ([]byte, error) {
	return v.run(env, contract)
}

func newTestState(t *testing.T) *state.State {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	ov := overlay.New(db)
	st, err := state.New(aether.EmptyRoot, ov)
	require.Nil(t, err)
	return st
}

func fund(t *testing.T, st *state.State, key *ecdsa.PrivateKey, amount *big.Int) aether.Address {
	addr := aether.Address(crypto.PubkeyToAddress(key.PublicKey))
	require.Nil(t, st.SetBalance(addr, amount))
	return addr
}

func TestExecuteTransfer(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1e18))
	to := aether.BytesToAddress([]byte("to"))
	coinbase := aether.BytesToAddress([]byte("coinbase"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	trx, err := tx.New(0, big.NewInt(2), 21000, &to, big.NewInt(1000), nil).Sign(key)
	require.Nil(t, err)

	used, err := rt.ExecuteTransaction(trx, coinbase)
	require.Nil(t, err)
	assert.Equal(t, uint64(21000), used)

	got, err := st.GetBalance(to)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000), got)

	fee := new(big.Int).Mul(new(big.Int).SetUint64(used), big.NewInt(2))
	got, err = st.GetBalance(coinbase)
	require.Nil(t, err)
	assert.Equal(t, fee, got)

	want := new(big.Int).Sub(big.NewInt(1e18), big.NewInt(1000))
	want.Sub(want, fee)
	got, err = st.GetBalance(sender)
	require.Nil(t, err)
	assert.Equal(t, want, got)

	nonce, err := st.GetNonce(sender)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestExecuteInsufficientBalance(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	// enough for gas, not for gas plus value
	sender := fund(t, st, key, big.NewInt(21000))
	to := aether.BytesToAddress([]byte("to"))
	coinbase := aether.BytesToAddress([]byte("coinbase"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	trx, err := tx.New(0, big.NewInt(1), 21000, &to, big.NewInt(1e18), nil).Sign(key)
	require.Nil(t, err)

	_, err = rt.ExecuteTransaction(trx, coinbase)
	assert.True(t, errors.Is(err, state.ErrInsufficientBalance))

	// the transaction was rejected: no value moved, the up front gas
	// charge was undone and the nonce did not advance
	got, err := st.GetBalance(to)
	require.Nil(t, err)
	assert.Equal(t, 0, got.Sign())

	got, err = st.GetBalance(coinbase)
	require.Nil(t, err)
	assert.Equal(t, 0, got.Sign())

	got, err = st.GetBalance(sender)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(21000), got)

	nonce, err := st.GetNonce(sender)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), nonce)
}

func TestExecuteUpfrontUnpayable(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(100))
	to := aether.BytesToAddress([]byte("to"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	trx, err := tx.New(0, big.NewInt(1), 21000, &to, big.NewInt(0), nil).Sign(key)
	require.Nil(t, err)

	_, err = rt.ExecuteTransaction(trx, aether.Address{})
	assert.True(t, errors.Is(err, state.ErrInsufficientBalance))

	// nothing happened: nonce and balance untouched
	nonce, err := st.GetNonce(sender)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), nonce)
	got, err := st.GetBalance(sender)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), got)
}

func TestExecuteNonceMismatch(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	fund(t, st, key, big.NewInt(1e18))
	to := aether.BytesToAddress([]byte("to"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	trx, err := tx.New(5, big.NewInt(1), 21000, &to, big.NewInt(1), nil).Sign(key)
	require.Nil(t, err)

	_, err = rt.ExecuteTransaction(trx, aether.Address{})
	assert.True(t, errors.Is(err, runtime.ErrInvalidNonce))
}

func TestExecuteNonceMonotonic(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1e18))
	to := aether.BytesToAddress([]byte("to"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	for n := uint64(0); n < 3; n++ {
		trx, err := tx.New(n, big.NewInt(1), 21000, &to, big.NewInt(1), nil).Sign(key)
		require.Nil(t, err)
		_, err = rt.ExecuteTransaction(trx, aether.Address{})
		require.Nil(t, err)
	}
	nonce, err := st.GetNonce(sender)
	require.Nil(t, err)
	assert.Equal(t, uint64(3), nonce)
}

func TestExecuteIntrinsicFloor(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	fund(t, st, key, big.NewInt(1e18))
	to := aether.BytesToAddress([]byte("to"))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	trx, err := tx.New(0, big.NewInt(1), 20999, &to, big.NewInt(1), nil).Sign(key)
	require.Nil(t, err)

	_, err = rt.ExecuteTransaction(trx, aether.Address{})
	assert.True(t, errors.Is(err, runtime.ErrOutOfGasIntrinsic))
}

func TestCallOutOfGasRevertsFrame(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()

	contract := aether.BytesToAddress([]byte("contract"))
	caller := aether.BytesToAddress([]byte("caller"))
	require.Nil(t, st.SetCode(contract, []byte{0x01}))
	require.Nil(t, st.SetBalance(caller, big.NewInt(1000)))

	key := aether.BytesToBytes32([]byte("slot"))
	burner := &scriptVM{run: func(env vm.Environment, c *vm.Contract) ([]byte, error) {
		env.SetStorage(c.Address, key, uint256.NewInt(42))
		return nil, vm.ErrOutOfGas
	}}
	rt := runtime.New(st, params, burner, runtime.Context{})

	gas := uint64(50000)
	ok, err := rt.Call(contract, caller, big.NewInt(100), nil, &gas, nil)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), gas)

	// the frame's value transfer and storage write were rolled back
	got, err := st.GetBalance(caller)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000), got)
	val, err := st.GetStorage(contract, key)
	require.Nil(t, err)
	assert.True(t, val.IsZero())
}

func TestCallInsufficientBalance(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()

	caller := aether.BytesToAddress([]byte("caller"))
	to := aether.BytesToAddress([]byte("to"))
	require.Nil(t, st.SetBalance(caller, big.NewInt(50)))

	rt := runtime.New(st, params, vm.Noop{}, runtime.Context{})

	gas := uint64(50000)
	ok, err := rt.Call(to, caller, big.NewInt(100), nil, &gas, nil)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, state.ErrInsufficientBalance))
	// the failed transfer consumes no frame gas
	assert.Equal(t, uint64(50000), gas)
}

func TestCallSuccessKeepsEffects(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()

	contract := aether.BytesToAddress([]byte("contract"))
	caller := aether.BytesToAddress([]byte("caller"))
	require.Nil(t, st.SetCode(contract, []byte{0x01}))
	require.Nil(t, st.SetBalance(caller, big.NewInt(1000)))

	key := aether.BytesToBytes32([]byte("slot"))
	writer := &scriptVM{run: func(env vm.Environment, c *vm.Contract) ([]byte, error) {
		env.SetStorage(c.Address, key, uint256.NewInt(7))
		*c.Gas -= 100
		return []byte{0xaa, 0xbb}, nil
	}}
	rt := runtime.New(st, params, writer, runtime.Context{})

	gas := uint64(50000)
	out := make([]byte, 2)
	ok, err := rt.Call(contract, caller, big.NewInt(100), nil, &gas, out)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(49900), gas)
	assert.Equal(t, []byte{0xaa, 0xbb}, out)

	val, err := st.GetStorage(contract, key)
	require.Nil(t, err)
	assert.Equal(t, uint256.NewInt(7), val)
	got, err := st.GetBalance(contract)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), got)
}

func TestCreateDeploysCode(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1e18))
	coinbase := aether.BytesToAddress([]byte("coinbase"))

	deployed := []byte{0xde, 0xad, 0xbe, 0xef}
	deployer := &scriptVM{run: func(_ vm.Environment, _ *vm.Contract) ([]byte, error) {
		return deployed, nil
	}}
	rt := runtime.New(st, params, deployer, runtime.Context{})

	trx, err := tx.New(0, big.NewInt(1), 100000, nil, big.NewInt(0), []byte{0x60}).Sign(key)
	require.Nil(t, err)

	_, err = rt.ExecuteTransaction(trx, coinbase)
	require.Nil(t, err)

	addr := aether.CreateAddress(sender, 0)
	code, err := st.GetCode(addr)
	require.Nil(t, err)
	assert.Equal(t, deployed, code)
}

func TestCreateRevertLeavesNoAccount(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()

	sender := aether.BytesToAddress([]byte("sender"))
	require.Nil(t, st.SetBalance(sender, big.NewInt(1000)))
	require.Nil(t, st.SetNonce(sender, 1))

	failing := &scriptVM{run: func(_ vm.Environment, _ *vm.Contract) ([]byte, error) {
		return nil, errors.New("init trap")
	}}
	rt := runtime.New(st, params, failing, runtime.Context{})

	gas := uint64(50000)
	_, err := rt.Create(sender, big.NewInt(100), &gas, []byte{0x60})
	assert.Error(t, err)
	// non gas errors leave remaining gas intact
	assert.Equal(t, uint64(50000), gas)

	addr := aether.CreateAddress(sender, 0)
	exists, errEx := st.Exists(addr)
	require.Nil(t, errEx)
	assert.False(t, exists)
	got, err := st.GetBalance(sender)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000), got)
}

func TestNestedCreateAddresses(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()

	factory := aether.BytesToAddress([]byte("factory"))
	caller := aether.BytesToAddress([]byte("caller"))
	require.Nil(t, st.SetCode(factory, []byte{0x01}))
	require.Nil(t, st.SetBalance(factory, big.NewInt(1000)))

	var created []aether.Address
	script := &scriptVM{run: func(env vm.Environment, c *vm.Contract) ([]byte, error) {
		if c.Address != factory {
			// child init code
			return nil, nil
		}
		for i := 0; i < 2; i++ {
			addr, err := env.Create(c.Address, big.NewInt(1), c.Gas, nil)
			if err != nil {
				return nil, err
			}
			created = append(created, addr)
		}
		return nil, nil
	}}
	rt := runtime.New(st, params, script, runtime.Context{})

	gas := uint64(100000)
	ok, err := rt.Call(factory, caller, new(big.Int), nil, &gas, nil)
	require.Nil(t, err)
	require.True(t, ok)
	require.Len(t, created, 2)
	assert.Equal(t, aether.CreateAddress(factory, 0), created[0])
	assert.Equal(t, aether.CreateAddress(factory, 1), created[1])
	assert.NotEqual(t, created[0], created[1])
}

func TestEnvironmentContext(t *testing.T) {
	st := newTestState(t)
	params := aether.MainnetParams()
	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1e18))
	contract := aether.BytesToAddress([]byte("contract"))
	require.Nil(t, st.SetCode(contract, []byte{0x01}))
	coinbase := aether.BytesToAddress([]byte("coinbase"))

	var origin, cb aether.Address
	var number, time uint64
	probe := &scriptVM{run: func(env vm.Environment, _ *vm.Contract) ([]byte, error) {
		origin = env.Origin()
		cb = env.Coinbase()
		number = env.BlockNumber()
		time = env.BlockTime()
		return nil, nil
	}}
	rt := runtime.New(st, params, probe, runtime.Context{Number: 7, Time: 1234})

	trx, err := tx.New(0, big.NewInt(1), 50000, &contract, big.NewInt(0), nil).Sign(key)
	require.Nil(t, err)
	_, err = rt.ExecuteTransaction(trx, coinbase)
	require.Nil(t, err)

	assert.Equal(t, sender, origin)
	assert.Equal(t, coinbase, cb)
	assert.Equal(t, uint64(7), number)
	assert.Equal(t, uint64(1234), time)
}
