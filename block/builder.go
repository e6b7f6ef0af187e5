// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"math/big"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/tx"
)

// Builder to make it easy to build a block object.
type Builder struct {
	headerBody headerBody
	txs        tx.Transactions
	uncles     []*Header
}

// ParentHash set parent hash.
func (b *Builder) ParentHash(hash aether.Bytes32) *Builder {
	b.headerBody.ParentHash = hash
	return b
}

// Coinbase set coinbase address.
func (b *Builder) Coinbase(addr aether.Address) *Builder {
	b.headerBody.Coinbase = addr
	return b
}

// StateRoot set state root.
func (b *Builder) StateRoot(hash aether.Bytes32) *Builder {
	b.headerBody.StateRoot = hash
	return b
}

// Difficulty set difficulty.
func (b *Builder) Difficulty(difficulty *big.Int) *Builder {
	b.headerBody.Difficulty = new(big.Int).Set(difficulty)
	return b
}

// Number set block number.
func (b *Builder) Number(number uint64) *Builder {
	b.headerBody.Number = number
	return b
}

// GasLimit set gas limit.
func (b *Builder) GasLimit(limit uint64) *Builder {
	b.headerBody.GasLimit = limit
	return b
}

// Time set timestamp.
func (b *Builder) Time(time uint64) *Builder {
	b.headerBody.Time = time
	return b
}

// Extra set extra data.
func (b *Builder) Extra(extra []byte) *Builder {
	b.headerBody.Extra = append([]byte(nil), extra...)
	return b
}

// Nonce set the proof-of-work nonce.
func (b *Builder) Nonce(nonce uint64) *Builder {
	b.headerBody.Nonce = nonce
	return b
}

// Transaction add a transaction.
func (b *Builder) Transaction(tx *tx.Transaction) *Builder {
	b.txs = append(b.txs, tx)
	return b
}

// Transactions set the transaction list.
func (b *Builder) Transactions(txs tx.Transactions) *Builder {
	b.txs = append(tx.Transactions(nil), txs...)
	return b
}

// Uncle add an uncle header.
func (b *Builder) Uncle(uncle *Header) *Builder {
	b.uncles = append(b.uncles, uncle)
	return b
}

// Build build a block object.
// TxHash and UncleHash are derived from the added txs and uncles.
func (b *Builder) Build() *Block {
	header := b.headerBody
	header.TxHash = b.txs.RootHash()
	header.UncleHash = CalcUncleHash(b.uncles)
	if header.Difficulty == nil {
		header.Difficulty = new(big.Int)
	}

	return &Block{
		header: &Header{body: header},
		txs:    append(tx.Transactions(nil), b.txs...),
		uncles: append([]*Header(nil), b.uncles...),
	}
}
