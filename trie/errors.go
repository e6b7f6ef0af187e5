// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"errors"
	"fmt"

	"github.com/aetherlab/aether/aether"
)

// ErrMissingRoot is returned by New when the requested root hash cannot be
// resolved from the node database.
var ErrMissingRoot = errors.New("missing root node")

// MissingNodeError is returned by trie operations in case a referenced
// trie node could not be resolved.
type MissingNodeError struct {
	NodeHash aether.Bytes32 // hash of the missing node
	Path     []byte         // hex-encoded path to the missing node
}

func (err *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %v (path %x)", err.NodeHash, err.Path)
}
