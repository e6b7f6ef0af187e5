// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pow implements the proof of work sealing a block: a nonce such
// that keccak(hashNoNonce ++ nonce) falls below the difficulty target.
package pow

import (
	"encoding/binary"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/aetherlab/aether/aether"
)

var maxHash = new(big.Int).Lsh(big.NewInt(1), 256)

// Stop cancels an in-flight Search. Safe for concurrent use; a stopped
// Stop stays stopped.
type Stop struct {
	flag uint32
}

// Stop requests cancellation.
func (s *Stop) Stop() {
	atomic.StoreUint32(&s.flag, 1)
}

// Stopped returns whether cancellation was requested.
func (s *Stop) Stopped() bool {
	return atomic.LoadUint32(&s.flag) != 0
}

// MineInfo reports the outcome of a Search.
type MineInfo struct {
	Completed      bool     // a winning nonce was found
	Nonce          uint64   // the winning nonce, valid iff Completed
	RequiredEffort *big.Int // expected number of hashes at this difficulty
	BestSoFar      *big.Int // smallest hash value seen during the search
}

func target(difficulty *big.Int) *big.Int {
	return new(big.Int).Div(maxHash, difficulty)
}

func hashValue(hashNoNonce aether.Bytes32, nonce uint64) *big.Int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return new(big.Int).SetBytes(aether.Keccak256(hashNoNonce.Bytes(), buf[:]))
}

// Verify returns whether nonce seals hashNoNonce at the given difficulty.
func Verify(hashNoNonce aether.Bytes32, difficulty *big.Int, nonce uint64) bool {
	if difficulty.Sign() <= 0 {
		return false
	}
	return hashValue(hashNoNonce, nonce).Cmp(target(difficulty)) <= 0
}

// sliceSize is the number of nonces tried between stop polls. Sized so a
// slice stays under a millisecond.
const sliceSize = 1024

// Search scans for a nonce sealing hashNoNonce at the given difficulty,
// starting from a random nonce. It returns early when the timeout
// elapses or stop is triggered, checking both at least once per
// millisecond of hashing.
func Search(hashNoNonce aether.Bytes32, difficulty *big.Int, timeout time.Duration, stop *Stop) MineInfo {
	info := MineInfo{
		RequiredEffort: new(big.Int).Set(difficulty),
		BestSoFar:      new(big.Int).Set(maxHash),
	}
	if difficulty.Sign() <= 0 {
		return info
	}
	tgt := target(difficulty)
	deadline := time.Now().Add(timeout)

	nonce := rand.Uint64()
	for {
		for i := 0; i < sliceSize; i++ {
			v := hashValue(hashNoNonce, nonce)
			if v.Cmp(info.BestSoFar) < 0 {
				info.BestSoFar = v
			}
			if v.Cmp(tgt) <= 0 {
				info.Completed = true
				info.Nonce = nonce
				return info
			}
			nonce++
		}
		if stop.Stopped() || !time.Now().Before(deadline) {
			return info
		}
	}
}
