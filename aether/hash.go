// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package aether

import (
	"hash"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// NewKeccak returns the keccak-256 hash function used across the chain.
func NewKeccak() hash.Hash {
	return crypto.NewKeccakState()
}

// Keccak256 computes keccak-256 checksum of given data.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// Keccak256Hash computes keccak-256 checksum of given data, as Bytes32.
func Keccak256Hash(data ...[]byte) (b32 Bytes32) {
	copy(b32[:], crypto.Keccak256(data...))
	return
}

var (
	// EmptyRoot is the known root hash of an empty trie, keccak(rlp("")).
	EmptyRoot = func() Bytes32 {
		enc, _ := rlp.EncodeToBytes([]byte(nil))
		return Keccak256Hash(enc)
	}()

	// EmptyCodeHash is the known hash of empty contract code, keccak(nil).
	EmptyCodeHash = Keccak256Hash(nil)
)
