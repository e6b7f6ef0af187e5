// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/block"
	"github.com/aetherlab/aether/chain"
	"github.com/aetherlab/aether/co"
	"github.com/aetherlab/aether/genesis"
	"github.com/aetherlab/aether/ledger"
	"github.com/aetherlab/aether/lvldb"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/pow"
	"github.com/aetherlab/aether/tx"
	"github.com/aetherlab/aether/txqueue"
	"github.com/aetherlab/aether/vm"
)

// testParams lowers the difficulty so mining in tests is instant.
func testParams() *aether.Params {
	p := aether.MainnetParams()
	p.GenesisDifficulty = big.NewInt(4)
	p.MinimumDifficulty = big.NewInt(1)
	return p
}

func newLedger(t *testing.T, params *aether.Params, coinbase aether.Address) (*ledger.Ledger, *chain.MemChain) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	ov := overlay.New(db)
	l, err := ledger.New(ov, params, vm.Noop{}, coinbase)
	require.Nil(t, err)

	gb, err := genesis.Block(ov, params)
	require.Nil(t, err)
	ch := chain.NewMemChain()
	require.Nil(t, ch.Add(gb, gb.Header().Difficulty()))
	return l, ch
}

// mineBlock commits, mines and adopts one block, returning it.
func mineBlock(t *testing.T, l *ledger.Ledger, ch *chain.MemChain) *block.Block {
	require.Nil(t, l.CommitToMine(ch))
	info, err := l.Mine(10 * time.Second)
	require.Nil(t, err)
	require.True(t, info.Completed)

	data := l.BlockData()
	require.NotEmpty(t, data)
	var b block.Block
	require.Nil(t, rlp.DecodeBytes(data, &b))

	details, err := ch.Details(b.Header().ParentHash())
	require.Nil(t, err)
	td := new(big.Int).Add(details.TotalDifficulty, b.Header().Difficulty())
	require.Nil(t, ch.Add(&b, td))
	require.Nil(t, l.Sync(ch))
	return &b
}

func fundedLedger(t *testing.T, params *aether.Params, key *ecdsa.PrivateKey) (*ledger.Ledger, *chain.MemChain) {
	addr := aether.Address(crypto.PubkeyToAddress(key.PublicKey))
	l, ch := newLedger(t, params, addr)
	mineBlock(t, l, ch)

	balance, err := l.Balance(addr)
	require.Nil(t, err)
	require.Equal(t, params.BlockReward, balance)
	return l, ch
}

func transferTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to aether.Address, amount *big.Int) *tx.Transaction {
	trx, err := tx.New(nonce, big.NewInt(1), 21000, &to, amount, nil).Sign(key)
	require.Nil(t, err)
	return trx
}

func TestExecuteDeterminism(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	to := aether.BytesToAddress([]byte("to"))
	trx := transferTx(t, key, 0, to, big.NewInt(1000))

	la, _ := fundedLedger(t, params, key)
	lb, _ := fundedLedger(t, params, key)

	require.Nil(t, la.ExecuteTx(trx))
	require.Nil(t, lb.ExecuteTx(trx))

	rootA, err := la.RootHash()
	require.Nil(t, err)
	rootB, err := lb.RootHash()
	require.Nil(t, err)
	assert.Equal(t, rootA, rootB)

	assert.Len(t, la.Pending(), 1)
	assert.Equal(t, txqueue.ErrKnownTx, la.ExecuteTx(trx))
	assert.Len(t, la.Pending(), 1)
}

func TestBalanceConservation(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	miner := aether.Address(crypto.PubkeyToAddress(key.PublicKey))
	to := aether.BytesToAddress([]byte("to"))

	l, _ := fundedLedger(t, params, key)
	require.Nil(t, l.ExecuteTx(transferTx(t, key, 0, to, big.NewInt(1000))))

	// fees flow back to the miner, only the block reward was minted
	minerBalance, err := l.Balance(miner)
	require.Nil(t, err)
	toBalance, err := l.Balance(to)
	require.Nil(t, err)
	assert.Equal(t, params.BlockReward, new(big.Int).Add(minerBalance, toBalance))
}

func TestRollback(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	to := aether.BytesToAddress([]byte("to"))

	l, _ := fundedLedger(t, params, key)
	before, err := l.RootHash()
	require.Nil(t, err)

	require.Nil(t, l.ExecuteTx(transferTx(t, key, 0, to, big.NewInt(1000))))
	during, err := l.RootHash()
	require.Nil(t, err)
	assert.NotEqual(t, before, during)

	require.Nil(t, l.Rollback())
	after, err := l.RootHash()
	require.Nil(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, l.Pending())
	assert.Nil(t, l.BlockData())

	// the dropped tx can be executed again
	require.Nil(t, l.ExecuteTx(transferTx(t, key, 0, to, big.NewInt(1000))))
}

func TestMineAndPlayback(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	miner := aether.Address(crypto.PubkeyToAddress(key.PublicKey))
	to := aether.BytesToAddress([]byte("to"))

	l, ch := fundedLedger(t, params, key)
	genesisHeader, err := ch.Info(ch.GenesisHash())
	require.Nil(t, err)
	block1, err := ch.Info(ch.CurrentHash())
	require.Nil(t, err)

	require.Nil(t, l.ExecuteTx(transferTx(t, key, 0, to, big.NewInt(1000))))
	b2 := mineBlock(t, l, ch)
	require.Len(t, b2.Transactions(), 1)

	// replay both blocks on a fresh ledger
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	ov := overlay.New(db)
	replayer, err := ledger.New(ov, params, vm.Noop{}, aether.Address{})
	require.Nil(t, err)

	data1, err := rlp.EncodeToBytes(block.Compose(block1, nil, nil))
	require.Nil(t, err)
	diff, err := replayer.Playback(data1, genesisHeader, nil, true)
	require.Nil(t, err)
	assert.Equal(t, block1.Difficulty(), diff)

	data2, err := rlp.EncodeToBytes(b2)
	require.Nil(t, err)
	_, err = replayer.Playback(data2, block1, genesisHeader, true)
	require.Nil(t, err)

	// adopt the replayed head and compare observable state
	require.Nil(t, replayer.Sync(ch))
	got, err := replayer.Balance(to)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000), got)
	got, err = replayer.Balance(miner)
	require.Nil(t, err)
	want := new(big.Int).Mul(big.NewInt(2), params.BlockReward)
	want.Sub(want, big.NewInt(1000))
	assert.Equal(t, want, got)
}

func TestPlaybackRootMismatch(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	l, ch := fundedLedger(t, params, key)

	head, err := ch.Info(ch.CurrentHash())
	require.Nil(t, err)

	bogus := new(block.Builder).
		ParentHash(head.Hash()).
		Number(head.Number() + 1).
		GasLimit(head.GasLimit()).
		Time(head.Time() + 1).
		Difficulty(params.CalcDifficulty(head.Time()+1, head.Time(), head.Difficulty())).
		StateRoot(aether.Keccak256Hash([]byte("bogus"))).
		Build()
	seal := pow.Search(bogus.Header().HashNoNonce(), bogus.Header().Difficulty(), 10*time.Second, &pow.Stop{})
	require.True(t, seal.Completed)
	data, err := rlp.EncodeToBytes(bogus.WithNonce(seal.Nonce))
	require.Nil(t, err)

	_, err = l.Playback(data, head, nil, true)
	assert.True(t, errors.Is(err, ledger.ErrInvalidBlock))

	// nothing leaked into the ledger state
	root, err := l.RootHash()
	require.Nil(t, err)
	assert.Equal(t, head.StateRoot(), root)
}

func TestCommitToMineIdempotent(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	l, ch := fundedLedger(t, params, key)

	require.Nil(t, l.CommitToMine(ch))
	header := l.CurrentHeader()
	root, err := l.RootHash()
	require.Nil(t, err)

	require.Nil(t, l.CommitToMine(ch))
	assert.Equal(t, header.Hash(), l.CurrentHeader().Hash())
	again, err := l.RootHash()
	require.Nil(t, err)
	assert.Equal(t, root, again)
}

func TestMineRequiresCommit(t *testing.T) {
	params := testParams()
	l, _ := newLedger(t, params, aether.BytesToAddress([]byte("miner")))
	_, err := l.Mine(time.Second)
	assert.Equal(t, ledger.ErrNotCommitted, err)
}

func TestRollbackAbortsMining(t *testing.T) {
	params := testParams()
	// a difficulty no search will meet
	params.GenesisDifficulty = new(big.Int).Lsh(big.NewInt(1), 250)
	params.MinimumDifficulty = new(big.Int).Set(params.GenesisDifficulty)

	l, ch := newLedger(t, params, aether.BytesToAddress([]byte("miner")))
	require.Nil(t, l.CommitToMine(ch))

	var g co.Goes
	done := make(chan struct{})
	g.Go(func() {
		defer close(done)
		info, err := l.Mine(time.Minute)
		assert.Nil(t, err)
		assert.False(t, info.Completed)
	})
	time.Sleep(20 * time.Millisecond)
	require.Nil(t, l.Rollback())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("mining did not abort")
	}
	g.Wait()
	assert.Nil(t, l.BlockData())
}

func TestSyncQueueAndCull(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	to := aether.BytesToAddress([]byte("to"))

	l, _ := fundedLedger(t, params, key)

	valid := transferTx(t, key, 0, to, big.NewInt(1000))
	gapped := transferTx(t, key, 5, to, big.NewInt(1000))
	// the up-front gas purchase exceeds any balance
	unpayable, err := tx.New(1, new(big.Int).Lsh(big.NewInt(1), 200), 21000, &to, big.NewInt(1), nil).Sign(key)
	require.Nil(t, err)

	q := txqueue.New()
	require.Nil(t, q.Put(valid))
	require.Nil(t, q.Put(gapped))
	require.Nil(t, q.Put(unpayable))

	require.Nil(t, l.SyncQueue(q))
	assert.Len(t, l.Pending(), 1)
	assert.Equal(t, 2, q.Len()) // the unpayable tx is gone

	// culling drops what is already pending, keeps the gapped tx
	require.Nil(t, l.Cull(q))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, gapped.Hash(), q.All()[0].Hash())
}

func TestSyncResetsToHead(t *testing.T) {
	params := testParams()
	key, _ := crypto.GenerateKey()
	to := aether.BytesToAddress([]byte("to"))

	l, ch := fundedLedger(t, params, key)
	head, err := ch.Info(ch.CurrentHash())
	require.Nil(t, err)

	// pending changes vanish on sync only when the head moved; here the
	// head is unchanged so the pending tx survives
	require.Nil(t, l.ExecuteTx(transferTx(t, key, 0, to, big.NewInt(1000))))
	require.Nil(t, l.Sync(ch))
	assert.Len(t, l.Pending(), 1)

	mineBlock(t, l, ch)
	assert.Empty(t, l.Pending())
	cur := l.CurrentHeader()
	assert.Equal(t, head.Number()+2, cur.Number())
}
