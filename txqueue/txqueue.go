// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package txqueue maintains the set of transactions waiting for inclusion.
package txqueue

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/tx"
)

// ErrKnownTx is returned when putting a tx already in the queue.
var ErrKnownTx = errors.New("known tx")

type entry struct {
	tx     *tx.Transaction
	sender aether.Address
}

// Queue is a concurrency-safe set of pending transactions, deduplicated
// by tx hash.
type Queue struct {
	mu  sync.Mutex
	all map[aether.Bytes32]*entry
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{all: make(map[aether.Bytes32]*entry)}
}

// Put adds a transaction. The sender must be recoverable.
func (q *Queue) Put(trx *tx.Transaction) error {
	sender, err := trx.Sender()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	hash := trx.Hash()
	if _, ok := q.all[hash]; ok {
		return ErrKnownTx
	}
	q.all[hash] = &entry{tx: trx, sender: sender}
	return nil
}

// Remove removes the transaction with the given hash, if present.
func (q *Queue) Remove(hash aether.Bytes32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.all, hash)
}

// Len returns the number of queued transactions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.all)
}

// All returns queued transactions grouped by sender, nonce ascending
// within a sender and higher gas price first on equal nonce.
func (q *Queue) All() tx.Transactions {
	q.mu.Lock()
	entries := make([]*entry, 0, len(q.all))
	for _, e := range q.all {
		entries = append(entries, e)
	}
	q.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if c := bytes.Compare(entries[i].sender.Bytes(), entries[j].sender.Bytes()); c != 0 {
			return c < 0
		}
		if entries[i].tx.Nonce() != entries[j].tx.Nonce() {
			return entries[i].tx.Nonce() < entries[j].tx.Nonce()
		}
		return entries[i].tx.GasPrice().Cmp(entries[j].tx.GasPrice()) > 0
	})

	txs := make(tx.Transactions, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}
	return txs
}
