// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
)

// Header contains almost all information about a block, except block body.
// It's immutable.
type Header struct {
	body headerBody

	cache struct {
		hash        *aether.Bytes32
		hashNoNonce *aether.Bytes32
	}
}

// headerBody body of header.
type headerBody struct {
	ParentHash aether.Bytes32
	UncleHash  aether.Bytes32
	Coinbase   aether.Address
	StateRoot  aether.Bytes32
	TxHash     aether.Bytes32
	Difficulty *big.Int
	Number     uint64
	GasLimit   uint64
	Time       uint64
	Extra      []byte
	Nonce      uint64
}

// ParentHash returns hash of parent block.
func (h *Header) ParentHash() aether.Bytes32 {
	return h.body.ParentHash
}

// UncleHash returns hash of the uncle header list.
func (h *Header) UncleHash() aether.Bytes32 {
	return h.body.UncleHash
}

// Coinbase returns the address rewarded for sealing this block.
func (h *Header) Coinbase() aether.Address {
	return h.body.Coinbase
}

// StateRoot returns account state merkle root just after this block assembled.
func (h *Header) StateRoot() aether.Bytes32 {
	return h.body.StateRoot
}

// TxHash returns merkle root of txs contained in this block.
func (h *Header) TxHash() aether.Bytes32 {
	return h.body.TxHash
}

// Difficulty returns the proof-of-work target of this block.
func (h *Header) Difficulty() *big.Int {
	return new(big.Int).Set(h.body.Difficulty)
}

// Number returns sequential number of this block.
func (h *Header) Number() uint64 {
	return h.body.Number
}

// GasLimit returns gas limit of this block.
func (h *Header) GasLimit() uint64 {
	return h.body.GasLimit
}

// Time returns timestamp of this block.
func (h *Header) Time() uint64 {
	return h.body.Time
}

// Extra returns the extra data of this block.
func (h *Header) Extra() []byte {
	return append([]byte(nil), h.body.Extra...)
}

// Nonce returns the proof-of-work nonce.
func (h *Header) Nonce() uint64 {
	return h.body.Nonce
}

// Hash computes hash of the header, the keccak of the full RLP encoding.
func (h *Header) Hash() aether.Bytes32 {
	if cached := h.cache.hash; cached != nil {
		return *cached
	}

	hw := aether.NewKeccak()
	rlp.Encode(hw, h)

	var hash aether.Bytes32
	hw.Sum(hash[:0])
	h.cache.hash = &hash
	return hash
}

// HashNoNonce computes hash of the header excluding the nonce.
// It is the message the proof-of-work commits to.
func (h *Header) HashNoNonce() aether.Bytes32 {
	if cached := h.cache.hashNoNonce; cached != nil {
		return *cached
	}

	hw := aether.NewKeccak()
	rlp.Encode(hw, []interface{}{
		h.body.ParentHash,
		h.body.UncleHash,
		h.body.Coinbase,
		h.body.StateRoot,
		h.body.TxHash,
		h.body.Difficulty,
		h.body.Number,
		h.body.GasLimit,
		h.body.Time,
		h.body.Extra,
	})

	var hash aether.Bytes32
	hw.Sum(hash[:0])
	h.cache.hashNoNonce = &hash
	return hash
}

// WithNonce creates a new header with the nonce set.
func (h *Header) WithNonce(nonce uint64) *Header {
	newHeader := Header{body: h.body}
	newHeader.body.Nonce = nonce
	return &newHeader
}

// Verify checks the header against its parent.
func (h *Header) Verify(parent *Header, params *aether.Params) error {
	if h.body.Number != parent.body.Number+1 {
		return errors.Errorf("invalid block number %v, parent %v", h.body.Number, parent.body.Number)
	}
	if h.body.Time <= parent.body.Time {
		return errors.Errorf("invalid block timestamp %v, parent %v", h.body.Time, parent.body.Time)
	}
	if !params.ValidGasLimit(h.body.GasLimit, parent.body.GasLimit) {
		return errors.Errorf("invalid block gas limit %v, parent %v", h.body.GasLimit, parent.body.GasLimit)
	}
	if expected := params.CalcDifficulty(h.body.Time, parent.body.Time, parent.body.Difficulty); h.body.Difficulty.Cmp(expected) != 0 {
		return errors.Errorf("invalid block difficulty %v, want %v", h.body.Difficulty, expected)
	}
	if uint64(len(h.body.Extra)) > params.MaximumExtraDataSize {
		return errors.Errorf("extra data too long, %v bytes", len(h.body.Extra))
	}
	return nil
}

// EncodeRLP implements rlp.Encoder
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &h.body)
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	var body headerBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*h = Header{body: body}
	return nil
}

// CalcUncleHash computes the hash of the given uncle header list.
func CalcUncleHash(uncles []*Header) aether.Bytes32 {
	hw := aether.NewKeccak()
	rlp.Encode(hw, uncles)

	var hash aether.Bytes32
	hw.Sum(hash[:0])
	return hash
}
