// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "github.com/syndtr/goleveldb/leveldb/util"

// Bucket provides a logical key space over a shared store, by key prefixing.
type Bucket string

type bucketStore struct {
	b   Bucket
	src GetPutter
}

// NewStore creates a bucket store over the source store.
func (b Bucket) NewStore(src GetPutter) GetPutter {
	return &bucketStore{b, src}
}

func (s *bucketStore) key(key []byte) []byte {
	return append(append(make([]byte, 0, len(s.b)+len(key)), s.b...), key...)
}

func (s *bucketStore) Get(key []byte) ([]byte, error) { return s.src.Get(s.key(key)) }
func (s *bucketStore) Has(key []byte) (bool, error)   { return s.src.Has(s.key(key)) }
func (s *bucketStore) IsNotFound(err error) bool      { return s.src.IsNotFound(err) }

func (s *bucketStore) Put(key, value []byte) error { return s.src.Put(s.key(key), value) }
func (s *bucketStore) Delete(key []byte) error     { return s.src.Delete(s.key(key)) }

func (s *bucketStore) NewIterator(r Range) Iterator {
	from := s.key(r.From)
	var to []byte
	if len(r.To) == 0 {
		to = util.BytesPrefix([]byte(s.b)).Limit
	} else {
		to = s.key(r.To)
	}
	return &bucketIterator{s.src.NewIterator(Range{From: from, To: to}), len(s.b)}
}

func (s *bucketStore) NewBatch() Batch {
	return &bucketBatch{s, s.src.NewBatch()}
}

type bucketBatch struct {
	s   *bucketStore
	src Batch
}

func (b *bucketBatch) Put(key, value []byte) error { return b.src.Put(b.s.key(key), value) }
func (b *bucketBatch) Delete(key []byte) error     { return b.src.Delete(b.s.key(key)) }
func (b *bucketBatch) NewBatch() Batch             { return b.s.NewBatch() }
func (b *bucketBatch) Len() int                    { return b.src.Len() }
func (b *bucketBatch) Write() error                { return b.src.Write() }

type bucketIterator struct {
	Iterator
	prefixLen int
}

func (i *bucketIterator) Key() []byte {
	return i.Iterator.Key()[i.prefixLen:]
}
