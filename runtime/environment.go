// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/vm"
)

// environment adapts the runtime to the capability surface handed to a VM.
type environment struct {
	rt *Runtime
}

var _ vm.Environment = (*environment)(nil)

func (e *environment) GetBalance(addr aether.Address) (*big.Int, error) {
	return e.rt.state.GetBalance(addr)
}

func (e *environment) Transfer(from, to aether.Address, amount *big.Int) error {
	return e.rt.transfer(from, to, amount)
}

func (e *environment) GetStorage(addr aether.Address, key aether.Bytes32) (*uint256.Int, error) {
	return e.rt.state.GetStorage(addr, key)
}

func (e *environment) SetStorage(addr aether.Address, key aether.Bytes32, value *uint256.Int) {
	e.rt.state.SetStorage(addr, key, value)
}

func (e *environment) GetCode(addr aether.Address) ([]byte, error) {
	return e.rt.state.GetCode(addr)
}

// Create deploys a contract from within an executing frame.
// The creator's nonce counts its creations, keeping derived addresses unique.
func (e *environment) Create(sender aether.Address, endowment *big.Int, gas *uint64, code []byte) (aether.Address, error) {
	if err := e.rt.state.IncrementNonce(sender); err != nil {
		return aether.Address{}, err
	}
	return e.rt.Create(sender, endowment, gas, code)
}

func (e *environment) Call(to, sender aether.Address, value *big.Int, data []byte, gas *uint64, out []byte) bool {
	ok, _ := e.rt.Call(to, sender, value, data, gas, out)
	return ok
}

func (e *environment) Origin() aether.Address {
	return e.rt.origin
}

func (e *environment) Coinbase() aether.Address {
	return e.rt.ctx.Coinbase
}

func (e *environment) BlockNumber() uint64 {
	return e.rt.ctx.Number
}

func (e *environment) BlockTime() uint64 {
	return e.rt.ctx.Time
}
