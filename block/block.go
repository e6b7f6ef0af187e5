// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package block defines the block and header types.
package block

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/tx"
)

// Block is an immutable block type.
type Block struct {
	header *Header
	txs    tx.Transactions
	uncles []*Header
}

// Compose a block with all needed components.
// Note: This method is usually to recover a block by its portions, and the TxHash
// and UncleHash are not verified.
func Compose(header *Header, txs tx.Transactions, uncles []*Header) *Block {
	return &Block{
		header: header,
		txs:    append(tx.Transactions(nil), txs...),
		uncles: append([]*Header(nil), uncles...),
	}
}

// WithNonce creates a new block with the header nonce set.
func (b *Block) WithNonce(nonce uint64) *Block {
	return &Block{
		header: b.header.WithNonce(nonce),
		txs:    b.txs,
		uncles: b.uncles,
	}
}

// Header returns the block header.
func (b *Block) Header() *Header {
	return b.header
}

// Transactions returns a copy of transactions.
func (b *Block) Transactions() tx.Transactions {
	return append(tx.Transactions(nil), b.txs...)
}

// Uncles returns a copy of the uncle header list.
func (b *Block) Uncles() []*Header {
	return append([]*Header(nil), b.uncles...)
}

// Hash returns the hash of the block header.
func (b *Block) Hash() aether.Bytes32 {
	return b.header.Hash()
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []interface{}{
		b.header,
		b.txs,
		b.uncles,
	})
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	payload := struct {
		Header Header
		Txs    tx.Transactions
		Uncles []*Header
	}{}

	if err := s.Decode(&payload); err != nil {
		return err
	}

	*b = Block{
		header: &payload.Header,
		txs:    payload.Txs,
		uncles: payload.Uncles,
	}
	return nil
}
