// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package aether

import (
	"math/big"
)

// Params groups chain parameters that govern gas accounting, rewards,
// difficulty retargeting and block limits. A Params value is immutable and
// injected wherever needed; there are no process-wide mutable knobs.
type Params struct {
	TxGas       uint64 // base gas of a message call transaction
	TxCreateGas uint64 // base gas of a contract creation transaction
	TxDataGas   uint64 // gas per byte of transaction payload

	BlockReward      *big.Int // reward credited to the coinbase per block
	MaxUncles        int      // maximum uncle headers per block
	UncleGenerations uint64   // how far back an uncle's parent may be

	GasLimitBoundDivisor uint64 // bound divisor of per-block gas limit drift
	MinGasLimit          uint64

	DifficultyBoundDivisor *big.Int // bound divisor of per-block difficulty drift
	DurationLimit          uint64   // block time threshold steering retargeting
	MinimumDifficulty      *big.Int

	GenesisDifficulty *big.Int
	GenesisGasLimit   uint64

	MaximumExtraDataSize uint64
}

// MainnetParams returns the canonical main-net parameter set.
func MainnetParams() *Params {
	return &Params{
		TxGas:       21000,
		TxCreateGas: 53000,
		TxDataGas:   68,

		BlockReward:      new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)),
		MaxUncles:        2,
		UncleGenerations: 6,

		GasLimitBoundDivisor: 1024,
		MinGasLimit:          125000,

		DifficultyBoundDivisor: big.NewInt(1024),
		DurationLimit:          42,
		MinimumDifficulty:      big.NewInt(4096),

		GenesisDifficulty: big.NewInt(1 << 22),
		GenesisGasLimit:   1000000,

		MaximumExtraDataSize: 1024,
	}
}

// IntrinsicGas returns the up-front gas floor of a transaction with the
// given payload size. Creation transactions carry a larger base cost.
func (p *Params) IntrinsicGas(dataLen int, contractCreation bool) uint64 {
	base := p.TxGas
	if contractCreation {
		base = p.TxCreateGas
	}
	return base + p.TxDataGas*uint64(dataLen)
}

// CalcDifficulty computes the difficulty of a block at the given timestamp,
// following its parent. Blocks arriving faster than DurationLimit push the
// difficulty up, slower blocks let it decay, floored at MinimumDifficulty.
func (p *Params) CalcDifficulty(time, parentTime uint64, parentDifficulty *big.Int) *big.Int {
	adjust := new(big.Int).Div(parentDifficulty, p.DifficultyBoundDivisor)

	diff := new(big.Int)
	if time < parentTime+p.DurationLimit {
		diff.Add(parentDifficulty, adjust)
	} else {
		diff.Sub(parentDifficulty, adjust)
	}
	if diff.Cmp(p.MinimumDifficulty) < 0 {
		return new(big.Int).Set(p.MinimumDifficulty)
	}
	return diff
}

// ValidGasLimit returns whether a block gas limit is acceptable relative to
// that of its parent.
func (p *Params) ValidGasLimit(gasLimit, parentGasLimit uint64) bool {
	if gasLimit < p.MinGasLimit {
		return false
	}
	var diff uint64
	if gasLimit > parentGasLimit {
		diff = gasLimit - parentGasLimit
	} else {
		diff = parentGasLimit - gasLimit
	}
	return diff <= parentGasLimit/p.GasLimitBoundDivisor
}

// UncleReward returns the reward credited to the coinbase of an uncle at
// uncleNumber, included in a block at blockNumber. The reward shrinks by
// 1/8 of the block reward per generation of distance.
func (p *Params) UncleReward(uncleNumber, blockNumber uint64) *big.Int {
	r := new(big.Int).SetUint64(uncleNumber + 8 - blockNumber)
	r.Mul(r, p.BlockReward)
	return r.Div(r, big.NewInt(8))
}

// InclusionReward returns the extra reward credited to the coinbase for
// each uncle it includes: 1/32 of the block reward.
func (p *Params) InclusionReward() *big.Int {
	return new(big.Int).Div(p.BlockReward, big.NewInt(32))
}
