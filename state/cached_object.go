// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/trie"
)

var codeCache, _ = lru.NewARC(512)

// cachedObject to cache code and storage of an account.
type cachedObject struct {
	db   *overlay.Overlay
	addr aether.Address
	data Account

	cache struct {
		code        []byte
		storageTrie *trie.Trie
		storage     map[aether.Bytes32]rlp.RawValue
	}
}

func newCachedObject(db *overlay.Overlay, addr aether.Address, data *Account) *cachedObject {
	return &cachedObject{db: db, addr: addr, data: *data}
}

func (co *cachedObject) getOrCreateStorageTrie() (*trie.Trie, error) {
	if co.cache.storageTrie != nil {
		return co.cache.storageTrie, nil
	}

	if len(co.data.StorageRoot) == 0 {
		return nil, nil
	}

	tr, err := trie.New(aether.BytesToBytes32(co.data.StorageRoot), co.db)
	if err != nil {
		return nil, err
	}
	co.cache.storageTrie = tr
	return tr, nil
}

// GetStorage returns storage value for given key.
func (co *cachedObject) GetStorage(key aether.Bytes32) (rlp.RawValue, error) {
	cache := &co.cache
	// retrieve from storage cache
	if cache.storage != nil {
		if v, ok := cache.storage[key]; ok {
			return v, nil
		}
	} else {
		cache.storage = make(map[aether.Bytes32]rlp.RawValue)
	}
	// not found in cache

	tr, err := co.getOrCreateStorageTrie()
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, nil
	}

	// load from trie
	v, err := loadStorage(tr, key)
	if err != nil {
		return nil, err
	}
	// put into cache
	cache.storage[key] = v
	return v, nil
}

// GetCode returns the code of the account.
func (co *cachedObject) GetCode() ([]byte, error) {
	cache := &co.cache

	if len(cache.code) > 0 {
		return cache.code, nil
	}

	if len(co.data.CodeHash) > 0 {
		// do have code
		if code, has := codeCache.Get(string(co.data.CodeHash)); has {
			return code.([]byte), nil
		}

		code, err := co.db.Get(aether.BytesToBytes32(co.data.CodeHash))
		if err != nil {
			return nil, err
		}
		codeCache.Add(string(co.data.CodeHash), code)
		cache.code = code
		return code, nil
	}
	return nil, nil
}
