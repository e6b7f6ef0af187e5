package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/trie"
)

// Stage abstracts changes on the main accounts trie.
type Stage struct {
	err error

	db           *overlay.Overlay
	accountTrie  *trie.Trie
	storageTries []*trie.Trie
	codes        []codeWithHash
}

type codeWithHash struct {
	code []byte
	hash []byte
}

type changedObject struct {
	data            Account
	storage         map[aether.Bytes32]rlp.RawValue
	code            []byte
	baseStorageTrie *trie.Trie
}

func newStage(db *overlay.Overlay, baseTrie *trie.Trie, changes map[aether.Address]*changedObject) *Stage {
	accountTrie := baseTrie.Copy()

	storageTries := make([]*trie.Trie, 0, len(changes))
	codes := make([]codeWithHash, 0, len(changes))

	for addr, obj := range changes {
		dataCpy := obj.data

		if len(obj.code) > 0 {
			codes = append(codes, codeWithHash{
				code: obj.code,
				hash: dataCpy.CodeHash})
		}

		if len(obj.storage) > 0 {
			var strie *trie.Trie
			if obj.baseStorageTrie != nil {
				strie = obj.baseStorageTrie.Copy()
			} else {
				var err error
				strie, err = trie.New(aether.BytesToBytes32(dataCpy.StorageRoot), db)
				if err != nil {
					return &Stage{err: err}
				}
			}
			for k, v := range obj.storage {
				if err := saveStorage(strie, k, v); err != nil {
					return &Stage{err: err}
				}
			}
			storageTries = append(storageTries, strie)
			if sroot := strie.Hash(); sroot == aether.EmptyRoot {
				dataCpy.StorageRoot = nil
			} else {
				dataCpy.StorageRoot = sroot[:]
			}
		}

		if err := saveAccount(accountTrie, addr, &dataCpy); err != nil {
			return &Stage{err: err}
		}
	}
	return &Stage{
		db:           db,
		accountTrie:  accountTrie,
		storageTries: storageTries,
		codes:        codes,
	}
}

// Hash computes hash of the main accounts trie.
func (s *Stage) Hash() (aether.Bytes32, error) {
	if s.err != nil {
		return aether.Bytes32{}, s.err
	}
	return s.accountTrie.Hash(), nil
}

// Commit commits all changes into main accounts trie and storage tries.
// Trie nodes and codes end up in the overlay journal.
func (s *Stage) Commit() (aether.Bytes32, error) {
	if s.err != nil {
		return aether.Bytes32{}, s.err
	}

	// write codes
	for _, code := range s.codes {
		if err := s.db.PutHash(aether.BytesToBytes32(code.hash), code.code); err != nil {
			return aether.Bytes32{}, err
		}
	}

	// commit storage tries
	for _, strie := range s.storageTries {
		if _, err := strie.Commit(); err != nil {
			return aether.Bytes32{}, err
		}
	}

	// commit accounts trie
	root, err := s.accountTrie.Commit()
	if err != nil {
		return aether.Bytes32{}, err
	}
	return root, nil
}
