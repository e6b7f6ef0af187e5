// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package vm defines the interpreter surface the runtime dispatches to.
package vm

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
)

// ErrOutOfGas is returned by a VM when the executing frame runs out of
// gas. The runtime treats it as a normal outcome: the frame is reverted
// and all frame gas is consumed.
var ErrOutOfGas = errors.New("out of gas")

// Contract is the frame a VM executes.
type Contract struct {
	Address aether.Address // account owning the executing code
	Caller  aether.Address
	Code    []byte
	Input   []byte
	Value   *big.Int
	Gas     *uint64 // remaining gas, decremented in place
}

// Environment is the capability surface exposed to contract code.
// Nothing else of the world state is reachable from a VM.
type Environment interface {
	GetBalance(addr aether.Address) (*big.Int, error)
	Transfer(from, to aether.Address, amount *big.Int) error
	GetStorage(addr aether.Address, key aether.Bytes32) (*uint256.Int, error)
	SetStorage(addr aether.Address, key aether.Bytes32, value *uint256.Int)
	GetCode(addr aether.Address) ([]byte, error)

	// Create runs init code in a nested frame and deploys the result.
	Create(sender aether.Address, endowment *big.Int, gas *uint64, code []byte) (aether.Address, error)
	// Call invokes the code at to in a nested frame.
	Call(to, sender aether.Address, value *big.Int, data []byte, gas *uint64, out []byte) bool

	Origin() aether.Address
	Coinbase() aether.Address
	BlockNumber() uint64
	BlockTime() uint64
}

// VM runs contract code within an environment.
type VM interface {
	Run(env Environment, contract *Contract) ([]byte, error)
}

// Noop is a VM that executes nothing and returns empty output.
// It keeps plain value transfers running without an interpreter.
type Noop struct{}

// Run implements VM.
func (Noop) Run(_ Environment, _ *Contract) ([]byte, error) {
	return nil, nil
}
