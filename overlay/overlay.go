// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package overlay

import (
	"github.com/pkg/errors"
	"github.com/qianbin/directcache"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/kv"
	"github.com/aetherlab/aether/telemetry"
)

var (
	errNotFound = errors.New("not found")

	metricNodeCache = telemetry.LazyLoadCounterVec("node_cache_count", []string{"event"})
)

const cacheSizeBytes = 4 * 1024 * 1024

// Overlay is a content-addressed node store. Keys are always the keccak hash
// of the stored blob. Writes accumulate in an in-memory journal and never
// touch the backing store until Commit, so an Overlay can be discarded to
// throw away uncommitted trie nodes.
type Overlay struct {
	store   kv.GetPutter
	cache   *directcache.Cache // shared across copies, caches committed nodes
	journal map[aether.Bytes32][]byte
	err     error
}

// New creates an overlay over the given backing store.
func New(store kv.GetPutter) *Overlay {
	return &Overlay{
		store:   store,
		cache:   directcache.New(cacheSizeBytes),
		journal: make(map[aether.Bytes32][]byte),
	}
}

// Copy creates an overlay sharing the backing store and node cache,
// with its own clone of the journal.
func (o *Overlay) Copy() *Overlay {
	journal := make(map[aether.Bytes32][]byte, len(o.journal))
	for k, v := range o.journal {
		journal[k] = v
	}
	return &Overlay{
		store:   o.store,
		cache:   o.cache,
		journal: journal,
		err:     o.err,
	}
}

// Get retrieves the blob for the given hash, journal first, then the
// backing store. Missing hashes are reported via IsNotFound.
func (o *Overlay) Get(hash aether.Bytes32) ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if blob, ok := o.journal[hash]; ok {
		return blob, nil
	}

	var blob []byte
	if o.cache.AdvGet(hash[:], func(val []byte) {
		blob = append([]byte(nil), val...)
	}, false) && len(blob) > 0 {
		metricNodeCache().AddWithLabel(1, map[string]string{"event": "hit"})
		return blob, nil
	}
	metricNodeCache().AddWithLabel(1, map[string]string{"event": "miss"})

	blob, err := o.store.Get(hash[:])
	if err != nil {
		if o.store.IsNotFound(err) {
			return nil, errNotFound
		}
		o.err = errors.Wrap(err, "overlay get")
		return nil, o.err
	}
	_ = o.cache.Set(hash[:], blob)
	return blob, nil
}

// Has returns whether the given hash is present.
func (o *Overlay) Has(hash aether.Bytes32) (bool, error) {
	if o.err != nil {
		return false, o.err
	}
	if _, ok := o.journal[hash]; ok {
		return true, nil
	}
	has, err := o.store.Has(hash[:])
	if err != nil {
		o.err = errors.Wrap(err, "overlay has")
		return false, o.err
	}
	return has, nil
}

// Put journals the blob under its keccak hash and returns the hash.
func (o *Overlay) Put(blob []byte) (aether.Bytes32, error) {
	hash := aether.Keccak256Hash(blob)
	return hash, o.PutHash(hash, blob)
}

// PutHash journals the blob under the given hash. The caller vouches that
// hash == keccak(blob); only the trie commit path, which already computed
// node hashes, should use it.
func (o *Overlay) PutHash(hash aether.Bytes32, blob []byte) error {
	if o.err != nil {
		return o.err
	}
	if _, ok := o.journal[hash]; ok {
		return nil
	}
	o.journal[hash] = append([]byte(nil), blob...)
	return nil
}

// Commit flushes the journal into the backing store in a single batch.
// On success the journal is cleared. On failure the overlay is poisoned
// and every later operation returns the same error.
func (o *Overlay) Commit() error {
	if o.err != nil {
		return o.err
	}
	if len(o.journal) == 0 {
		return nil
	}

	batch := o.store.NewBatch()
	for hash, blob := range o.journal {
		if err := batch.Put(hash[:], blob); err != nil {
			o.err = errors.Wrap(err, "overlay commit")
			return o.err
		}
	}
	if err := batch.Write(); err != nil {
		o.err = errors.Wrap(err, "overlay commit")
		return o.err
	}
	for hash, blob := range o.journal {
		_ = o.cache.Set(hash[:], blob)
	}
	o.journal = make(map[aether.Bytes32][]byte)
	return nil
}

// Discard drops the journal, abandoning all uncommitted blobs.
func (o *Overlay) Discard() {
	o.journal = make(map[aether.Bytes32][]byte)
}

// IsNotFound checks if the error returned by Get indicates a missing hash.
func (o *Overlay) IsNotFound(err error) bool {
	return err == errNotFound
}

// Err returns the poisoning error if a backing store operation has failed.
func (o *Overlay) Err() error {
	return o.err
}
