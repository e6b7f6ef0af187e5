// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chain provides read access to the block chain.
package chain

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/block"
)

// ErrNotFound is returned when the chain has no block for a hash.
var ErrNotFound = errors.New("block not found")

// Details carries chain placement info of a block.
type Details struct {
	TotalDifficulty *big.Int
	Number          uint64
	Parent          aether.Bytes32
}

// Reader provides read access to a block chain.
type Reader interface {
	// Info returns the header of the block with the given hash.
	Info(hash aether.Bytes32) (*block.Header, error)
	// Details returns chain placement info of the block with the given hash.
	Details(hash aether.Bytes32) (*Details, error)
	// CurrentHash returns the hash of the canonical head block.
	CurrentHash() aether.Bytes32
	// GenesisHash returns the hash of the genesis block.
	GenesisHash() aether.Bytes32
	// AncestorAt returns the hash of the ancestor of the given block at
	// the given number.
	AncestorAt(hash aether.Bytes32, number uint64) (aether.Bytes32, error)
	// IsOnChain returns whether the block is on the canonical chain.
	IsOnChain(hash aether.Bytes32) (bool, error)
	// Children returns hashes of all known blocks whose parent is the
	// given block.
	Children(hash aether.Bytes32) ([]aether.Bytes32, error)
}

// MemChain is an in-memory chain indexed by block hash.
// The canonical head is the block with the highest total difficulty.
type MemChain struct {
	mu       sync.RWMutex
	headers  map[aether.Bytes32]*block.Header
	details  map[aether.Bytes32]*Details
	children map[aether.Bytes32][]aether.Bytes32
	head     aether.Bytes32
	genesis  aether.Bytes32
}

var _ Reader = (*MemChain)(nil)

// NewMemChain creates an empty in-memory chain.
func NewMemChain() *MemChain {
	return &MemChain{
		headers:  make(map[aether.Bytes32]*block.Header),
		details:  make(map[aether.Bytes32]*Details),
		children: make(map[aether.Bytes32][]aether.Bytes32),
	}
}

// Add inserts a block with its total difficulty.
// The first added block becomes the genesis. The head moves to the block
// with the highest total difficulty.
func (c *MemChain) Add(b *block.Block, td *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := b.Header()
	hash := header.Hash()
	if _, ok := c.headers[hash]; ok {
		return nil
	}

	if len(c.headers) == 0 {
		c.genesis = hash
	} else if _, ok := c.headers[header.ParentHash()]; !ok {
		return errors.Wrap(ErrNotFound, "parent")
	}

	c.headers[hash] = header
	c.details[hash] = &Details{
		TotalDifficulty: new(big.Int).Set(td),
		Number:          header.Number(),
		Parent:          header.ParentHash(),
	}
	c.children[header.ParentHash()] = append(c.children[header.ParentHash()], hash)

	if c.head.IsZero() || td.Cmp(c.details[c.head].TotalDifficulty) > 0 {
		c.head = hash
	}
	return nil
}

// Info returns the header of the block with the given hash.
func (c *MemChain) Info(hash aether.Bytes32) (*block.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	header, ok := c.headers[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return header, nil
}

// Details returns chain placement info of the block with the given hash.
func (c *MemChain) Details(hash aether.Bytes32) (*Details, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	details, ok := c.details[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return details, nil
}

// CurrentHash returns the hash of the canonical head block.
func (c *MemChain) CurrentHash() aether.Bytes32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// GenesisHash returns the hash of the genesis block.
func (c *MemChain) GenesisHash() aether.Bytes32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genesis
}

// AncestorAt returns the hash of the ancestor of the given block at the
// given number.
func (c *MemChain) AncestorAt(hash aether.Bytes32, number uint64) (aether.Bytes32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for {
		details, ok := c.details[hash]
		if !ok {
			return aether.Bytes32{}, ErrNotFound
		}
		if details.Number == number {
			return hash, nil
		}
		if details.Number < number {
			return aether.Bytes32{}, errors.Errorf("no ancestor at number %v", number)
		}
		hash = details.Parent
	}
}

// IsOnChain returns whether the block is on the canonical chain.
func (c *MemChain) IsOnChain(hash aether.Bytes32) (bool, error) {
	c.mu.RLock()
	details, ok := c.details[hash]
	head := c.head
	c.mu.RUnlock()
	if !ok {
		return false, ErrNotFound
	}

	ancestor, err := c.AncestorAt(head, details.Number)
	if err != nil {
		return false, err
	}
	return ancestor == hash, nil
}

// Children returns hashes of all known blocks whose parent is the given
// block.
func (c *MemChain) Children(hash aether.Bytes32) ([]aether.Bytes32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.headers[hash]; !ok {
		return nil, ErrNotFound
	}
	return append([]aether.Bytes32(nil), c.children[hash]...), nil
}
