// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package aether

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownHashes(t *testing.T) {
	assert.Equal(t,
		MustParseBytes32("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421"),
		EmptyRoot)

	assert.Equal(t,
		MustParseBytes32("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"),
		EmptyCodeHash)
}

func TestKeccak256Hash(t *testing.T) {
	h := Keccak256Hash([]byte("hello"))
	assert.Equal(t, Keccak256([]byte("hello")), h.Bytes())
	assert.False(t, h.IsZero())
}
