// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlab/aether/aether"
)

func TestIterator(t *testing.T) {
	db := newTestOverlay(t)
	trie, err := New(aether.Bytes32{}, db)
	require.Nil(t, err)

	vals := []struct{ k, v string }{
		{"do", "verb"},
		{"ether", "wookiedoo"},
		{"horse", "stallion"},
		{"shaman", "horse"},
		{"doge", "coin"},
		{"dog", "puppy"},
		{"somethingveryoddindeedthis is", "myothernodedata"},
	}
	all := make(map[string]string)
	for _, val := range vals {
		all[val.k] = val.v
		updateString(trie, val.k, val.v)
	}
	_, err = trie.Commit()
	require.Nil(t, err)

	found := make(map[string]string)
	it := NewIterator(trie.NodeIterator())
	for it.Next() {
		found[string(it.Key)] = string(it.Value)
	}
	assert.Nil(t, it.Err)
	assert.Equal(t, all, found)
}

func TestIteratorEmptyTrie(t *testing.T) {
	var trie Trie
	it := NewIterator(trie.NodeIterator())
	assert.False(t, it.Next())
	assert.Nil(t, it.Err)
}

func TestIteratorOrder(t *testing.T) {
	trie := new(Trie)
	updateString(trie, "b", "2")
	updateString(trie, "a", "1")
	updateString(trie, "c", "3")

	var keys []string
	it := NewIterator(trie.NodeIterator())
	for it.Next() {
		keys = append(keys, string(it.Key))
	}
	assert.Nil(t, it.Err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestIteratorAfterReload(t *testing.T) {
	db := newTestOverlay(t)
	trie, err := New(aether.Bytes32{}, db)
	require.Nil(t, err)

	updateString(trie, "120000", "qwerqwerqwerqwerqwerqwerqwerqwer")
	updateString(trie, "123456", "asdfasdfasdfasdfasdfasdfasdfasdf")
	root, err := trie.Commit()
	require.Nil(t, err)

	// iterate a freshly loaded trie, forcing node resolution
	trie2, err := New(root, db)
	require.Nil(t, err)

	count := 0
	it := NewIterator(trie2.NodeIterator())
	for it.Next() {
		count++
	}
	assert.Nil(t, it.Err)
	assert.Equal(t, 2, count)
}
