// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"bytes"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/aetherlab/aether/aether"
)

// DerivableList is the input to DeriveRoot.
type DerivableList interface {
	Len() int
	GetRlp(i int) []byte
}

// DeriveRoot computes the trie root of a derivable list, such as the
// transactions of a block. It never touches a database.
func DeriveRoot(list DerivableList) aether.Bytes32 {
	keybuf := new(bytes.Buffer)
	trie := new(Trie)
	for i := 0; i < list.Len(); i++ {
		keybuf.Reset()
		_ = rlp.Encode(keybuf, uint(i))
		_ = trie.Update(keybuf.Bytes(), list.GetRlp(i))
	}
	return trie.Hash()
}
