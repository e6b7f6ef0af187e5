// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis defines the chain's first block and its allocation.
package genesis

import (
	"math/big"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/block"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/state"
)

var allocAddresses = []string{
	"8a40bfaa73256b60764c1bf40675a99083efb075",
	"e6716f9544a56c530d868e4bfbacb172315bdead",
	"1e12515ce3e0f817a4ddef9ca55788a1d66bd2df",
	"1a26338f0d905e295fccb71fa9ea849ffa12aaf4",
	"2ef47100e0787b915105fd5e3f4ff6752079d5cb",
	"cd2a3d9f938e13cd947ec05abc7fe734df8dd826",
	"6c386a4b26f73c802f34673f7248bb118f97424a",
	"e4157b34ea9615cfbde6b4fda419828124b70c78",
}

// Alloc returns the genesis allocation: each pre-funded address holds
// 2^200 wei.
func Alloc() map[aether.Address]*big.Int {
	balance := new(big.Int).Lsh(big.NewInt(1), 200)
	alloc := make(map[aether.Address]*big.Int, len(allocAddresses))
	for _, hex := range allocAddresses {
		alloc[aether.MustParseAddress(hex)] = new(big.Int).Set(balance)
	}
	return alloc
}

// StateRoot commits the genesis allocation into db and returns the
// resulting state root.
func StateRoot(db *overlay.Overlay) (aether.Bytes32, error) {
	st, err := state.New(aether.EmptyRoot, db)
	if err != nil {
		return aether.Bytes32{}, err
	}
	for addr, balance := range Alloc() {
		if err := st.SetBalance(addr, balance); err != nil {
			return aether.Bytes32{}, err
		}
	}
	return st.Commit()
}

// Block builds the genesis block over db with the given params. The
// allocation is committed into db as a side effect.
func Block(db *overlay.Overlay, params *aether.Params) (*block.Block, error) {
	root, err := StateRoot(db)
	if err != nil {
		return nil, err
	}
	b := new(block.Builder).
		StateRoot(root).
		Difficulty(params.GenesisDifficulty).
		GasLimit(params.GenesisGasLimit).
		Build()
	return b, nil
}
