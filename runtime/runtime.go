// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package runtime executes transactions against the world state.
package runtime

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/state"
	"github.com/aetherlab/aether/tx"
	"github.com/aetherlab/aether/vm"
)

var (
	// ErrInvalidNonce is returned when a tx nonce does not match the
	// sender's account nonce.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrOutOfGasIntrinsic is returned when the tx gas limit does not
	// cover the intrinsic gas.
	ErrOutOfGasIntrinsic = errors.New("gas limit below intrinsic gas")
)

// Context carries block-level execution context.
type Context struct {
	Coinbase aether.Address
	Number   uint64
	Time     uint64
}

// Runtime executes transactions and nested frames against a state.
type Runtime struct {
	state  *state.State
	params *aether.Params
	vm     vm.VM
	ctx    Context

	origin aether.Address // sender of the executing tx
}

// New creates a runtime over the given state.
func New(st *state.State, params *aether.Params, v vm.VM, ctx Context) *Runtime {
	return &Runtime{
		state:  st,
		params: params,
		vm:     v,
		ctx:    ctx,
	}
}

// ExecuteTransaction executes a transaction and returns the gas used.
// The sender pays gas*gasPrice up front; unused gas is refunded and the
// fee for the gas used is credited to coinbase. A balance or database
// failure rejects the transaction: the error is returned and no state
// change persists, the nonce and the up front charge included.
func (rt *Runtime) ExecuteTransaction(trx *tx.Transaction, coinbase aether.Address) (uint64, error) {
	sender, err := trx.Sender()
	if err != nil {
		return 0, err
	}

	nonce, err := rt.state.GetNonce(sender)
	if err != nil {
		return 0, err
	}
	if trx.Nonce() != nonce {
		return 0, errors.Wrapf(ErrInvalidNonce, "have %d, want %d", trx.Nonce(), nonce)
	}

	intrinsic := trx.IntrinsicGas(rt.params)
	if intrinsic > trx.Gas() {
		return 0, ErrOutOfGasIntrinsic
	}

	rev := rt.state.NewCheckpoint()
	gasPrice := trx.GasPrice()
	upfront := new(big.Int).Mul(new(big.Int).SetUint64(trx.Gas()), gasPrice)
	if err := rt.state.SubBalance(sender, upfront); err != nil {
		rt.state.RevertTo(rev)
		return 0, err
	}
	if err := rt.state.IncrementNonce(sender); err != nil {
		rt.state.RevertTo(rev)
		return 0, err
	}

	rt.origin = sender
	rt.ctx.Coinbase = coinbase

	gas := trx.Gas() - intrinsic
	var frameErr error
	if to := trx.Recipient(); to == nil {
		_, frameErr = rt.Create(sender, trx.Amount(), &gas, trx.Payload())
	} else {
		_, frameErr = rt.Call(*to, sender, trx.Amount(), trx.Payload(), &gas, nil)
	}
	if rejects(frameErr) {
		rt.state.RevertTo(rev)
		return 0, frameErr
	}

	used := trx.Gas() - gas
	refund := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	if err := rt.state.AddBalance(sender, refund); err != nil {
		return 0, err
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(used), gasPrice)
	if err := rt.state.AddBalance(coinbase, fee); err != nil {
		return 0, err
	}
	return used, nil
}

// Create runs init code in a new frame and deploys the returned code at
// the derived address. The frame is reverted on any VM failure, leaving
// no account behind; out of gas additionally consumes all frame gas.
func (rt *Runtime) Create(sender aether.Address, endowment *big.Int, gas *uint64, code []byte) (aether.Address, error) {
	nonce, err := rt.state.GetNonce(sender)
	if err != nil {
		return aether.Address{}, err
	}
	addr := aether.CreateAddress(sender, nonce-1)

	rev := rt.state.NewCheckpoint()
	if err := rt.transfer(sender, addr, endowment); err != nil {
		rt.state.RevertTo(rev)
		return aether.Address{}, err
	}

	ret, err := rt.vm.Run(&environment{rt}, &vm.Contract{
		Address: addr,
		Caller:  sender,
		Code:    code,
		Value:   endowment,
		Gas:     gas,
	})
	if err != nil {
		rt.state.RevertTo(rev)
		if errors.Is(err, vm.ErrOutOfGas) {
			*gas = 0
		}
		return aether.Address{}, err
	}

	if err := rt.state.SetCode(addr, ret); err != nil {
		rt.state.RevertTo(rev)
		return aether.Address{}, err
	}
	return addr, nil
}

// Call transfers value and invokes the code at to, if any. The returned
// bytes are copied into out, truncated to its length. It returns false
// iff the frame failed; an out of gas failure consumes all frame gas.
// A balance or database failure is returned as an error, with the frame
// reverted.
func (rt *Runtime) Call(to, sender aether.Address, value *big.Int, data []byte, gas *uint64, out []byte) (bool, error) {
	rev := rt.state.NewCheckpoint()
	if err := rt.transfer(sender, to, value); err != nil {
		rt.state.RevertTo(rev)
		return false, err
	}

	code, err := rt.state.GetCode(to)
	if err != nil {
		rt.state.RevertTo(rev)
		return false, err
	}
	if len(code) == 0 {
		return true, nil
	}

	ret, err := rt.vm.Run(&environment{rt}, &vm.Contract{
		Address: to,
		Caller:  sender,
		Code:    code,
		Input:   data,
		Value:   value,
		Gas:     gas,
	})
	if err != nil {
		rt.state.RevertTo(rev)
		if errors.Is(err, vm.ErrOutOfGas) {
			*gas = 0
		}
		return false, nil
	}

	copy(out, ret)
	return true, nil
}

// rejects reports whether a frame error ends the whole transaction.
// Balance and database failures do; VM failures only fail their frame.
func rejects(err error) bool {
	if err == nil {
		return false
	}
	var serr *state.Error
	return errors.Is(err, state.ErrInsufficientBalance) || errors.As(err, &serr)
}

func (rt *Runtime) transfer(from, to aether.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := rt.state.SubBalance(from, amount); err != nil {
		return err
	}
	return rt.state.AddBalance(to, amount)
}
