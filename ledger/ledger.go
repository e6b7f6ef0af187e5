// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger is the engine facade: it maintains the pending block
// being assembled, plays back foreign blocks, and seals mined ones.
package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/aetherlab/aether/aether"
	"github.com/aetherlab/aether/block"
	"github.com/aetherlab/aether/chain"
	"github.com/aetherlab/aether/genesis"
	"github.com/aetherlab/aether/overlay"
	"github.com/aetherlab/aether/pow"
	"github.com/aetherlab/aether/runtime"
	"github.com/aetherlab/aether/state"
	"github.com/aetherlab/aether/telemetry"
	"github.com/aetherlab/aether/tx"
	"github.com/aetherlab/aether/txqueue"
	"github.com/aetherlab/aether/vm"
)

var log = log15.New("pkg", "ledger")

var (
	// ErrInvalidBlock is returned by Playback when a block fails
	// verification or its playback diverges from the claimed state root.
	ErrInvalidBlock = errors.New("invalid block")
	// ErrNotCommitted is returned by Mine without a prior CommitToMine.
	ErrNotCommitted = errors.New("not committed to mine")

	metricBlocksMined     = telemetry.LazyLoadCounter("blocks_mined_count")
	metricPlaybackFailure = telemetry.LazyLoadCounter("playback_failure_count")
)

// Ledger assembles the next block over the current chain head. Mutators
// take the write lock; reads take the read lock. The proof of work
// search runs unlocked on a frozen header and re-validates its
// generation before sealing, so Sync and Rollback invalidate it.
type Ledger struct {
	mu sync.RWMutex

	params   *aether.Params
	db       *overlay.Overlay
	vm       vm.VM
	coinbase aether.Address

	state      *state.State
	prevHeader *block.Header
	curHeader  *block.Header

	pending    tx.Transactions
	pendingSet map[aether.Bytes32]struct{}

	committedToMine bool
	curTxs          tx.Transactions
	curUncles       []*block.Header
	curBytes        []byte

	generation uint64
	stop       *pow.Stop
}

// New creates a ledger over db, positioned at the genesis block. The
// genesis allocation is committed into db; committing it again is a
// no-op since the store is content addressed.
func New(db *overlay.Overlay, params *aether.Params, v vm.VM, coinbase aether.Address) (*Ledger, error) {
	gb, err := genesis.Block(db, params)
	if err != nil {
		return nil, err
	}
	if err := db.Commit(); err != nil {
		return nil, err
	}
	st, err := state.New(gb.Header().StateRoot(), db)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		params:     params,
		db:         db,
		vm:         v,
		coinbase:   coinbase,
		state:      st,
		prevHeader: gb.Header(),
		pendingSet: make(map[aether.Bytes32]struct{}),
	}
	l.resetCurrent()
	return l, nil
}

// SetCoinbase changes the beneficiary and resets the block being
// assembled.
func (l *Ledger) SetCoinbase(addr aether.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coinbase = addr
	return l.resetToPrev()
}

// Execute decodes an RLP encoded transaction and executes it into the
// pending block.
func (l *Ledger) Execute(rlpTx []byte) error {
	var trx tx.Transaction
	if err := rlp.DecodeBytes(rlpTx, &trx); err != nil {
		return err
	}
	return l.ExecuteTx(&trx)
}

// ExecuteTx executes a transaction into the pending block. Transactions
// already pending are rejected with txqueue.ErrKnownTx.
func (l *Ledger) ExecuteTx(trx *tx.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executeTx(trx)
}

// executeTx requires the write lock.
func (l *Ledger) executeTx(trx *tx.Transaction) error {
	if _, ok := l.pendingSet[trx.Hash()]; ok {
		return txqueue.ErrKnownTx
	}
	rt := runtime.New(l.state, l.params, l.vm, runtime.Context{
		Number: l.curHeader.Number(),
		Time:   l.curHeader.Time(),
	})
	if _, err := rt.ExecuteTransaction(trx, l.coinbase); err != nil {
		return err
	}
	l.pending = append(l.pending, trx)
	l.pendingSet[trx.Hash()] = struct{}{}
	return nil
}

// Playback verifies and executes a foreign block on top of parent,
// returning its difficulty. Uncles that are children of grandParent are
// verified in full against it; deeper uncles are only bounded to the
// uncle generation window.
// When fullCommit is set the resulting state is committed and flushed
// to the backing store; otherwise nothing is retained. Playback never
// touches the pending block.
func (l *Ledger) Playback(blockBytes []byte, parent, grandParent *block.Header, fullCommit bool) (*big.Int, error) {
	difficulty, err := l.playback(blockBytes, parent, grandParent, fullCommit)
	if err != nil {
		metricPlaybackFailure().Add(1)
		log.Warn("block playback failed", "err", err)
	}
	return difficulty, err
}

func (l *Ledger) playback(blockBytes []byte, parent, grandParent *block.Header, fullCommit bool) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b block.Block
	if err := rlp.DecodeBytes(blockBytes, &b); err != nil {
		return nil, errors.Wrap(ErrInvalidBlock, err.Error())
	}
	h := b.Header()

	if err := h.Verify(parent, l.params); err != nil {
		return nil, errors.Wrap(ErrInvalidBlock, err.Error())
	}
	if !pow.Verify(h.HashNoNonce(), h.Difficulty(), h.Nonce()) {
		return nil, errors.Wrap(ErrInvalidBlock, "invalid proof of work")
	}
	if h.TxHash() != b.Transactions().RootHash() {
		return nil, errors.Wrap(ErrInvalidBlock, "tx root mismatch")
	}
	if h.UncleHash() != block.CalcUncleHash(b.Uncles()) {
		return nil, errors.Wrap(ErrInvalidBlock, "uncle root mismatch")
	}
	if err := l.verifyUncles(h, b.Uncles(), parent, grandParent); err != nil {
		return nil, err
	}

	// recover all senders up front, in parallel; each tx caches its own
	var eg errgroup.Group
	for _, trx := range b.Transactions() {
		trx := trx
		eg.Go(func() error {
			_, err := trx.Sender()
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(ErrInvalidBlock, err.Error())
	}

	// an overlay copy keeps playback writes away from the pending block
	ov := l.db.Copy()
	st, err := state.New(parent.StateRoot(), ov)
	if err != nil {
		return nil, err
	}
	rt := runtime.New(st, l.params, l.vm, runtime.Context{
		Number: h.Number(),
		Time:   h.Time(),
	})
	for _, trx := range b.Transactions() {
		if _, err := rt.ExecuteTransaction(trx, h.Coinbase()); err != nil {
			return nil, errors.Wrap(ErrInvalidBlock, err.Error())
		}
	}
	if err := applyRewards(st, l.params, h, b.Uncles()); err != nil {
		return nil, err
	}

	root, err := st.Root()
	if err != nil {
		return nil, err
	}
	if root != h.StateRoot() {
		return nil, errors.Wrapf(ErrInvalidBlock, "state root mismatch: have %v, want %v", root, h.StateRoot())
	}

	if fullCommit {
		if _, err := st.Commit(); err != nil {
			return nil, err
		}
		if err := ov.Commit(); err != nil {
			return nil, err
		}
	}
	return h.Difficulty(), nil
}

func (l *Ledger) verifyUncles(h *block.Header, uncles []*block.Header, parent, grandParent *block.Header) error {
	if len(uncles) == 0 {
		return nil
	}
	if len(uncles) > l.params.MaxUncles {
		return errors.Wrap(ErrInvalidBlock, "too many uncles")
	}
	if grandParent == nil {
		return errors.Wrap(ErrInvalidBlock, "uncles without grand parent")
	}
	seen := make(map[aether.Bytes32]struct{}, len(uncles))
	for _, u := range uncles {
		hash := u.Hash()
		if _, ok := seen[hash]; ok {
			return errors.Wrap(ErrInvalidBlock, "duplicate uncle")
		}
		seen[hash] = struct{}{}
		if hash == parent.Hash() || hash == grandParent.Hash() {
			return errors.Wrap(ErrInvalidBlock, "uncle on direct line")
		}
		if !pow.Verify(u.HashNoNonce(), u.Difficulty(), u.Nonce()) {
			return errors.Wrap(ErrInvalidBlock, "invalid uncle proof of work")
		}
		if u.ParentHash() == grandParent.Hash() {
			// sibling of the parent, fully checkable here
			if err := u.Verify(grandParent, l.params); err != nil {
				return errors.Wrap(ErrInvalidBlock, err.Error())
			}
			continue
		}
		// deeper uncle: its parent header is not at hand, bound the window
		if u.Number() >= h.Number() || h.Number()-u.Number() > l.params.UncleGenerations {
			return errors.Wrap(ErrInvalidBlock, "uncle outside generation window")
		}
	}
	return nil
}

// applyRewards credits the block and uncle rewards of header h into st.
func applyRewards(st *state.State, params *aether.Params, h *block.Header, uncles []*block.Header) error {
	reward := new(big.Int).Set(params.BlockReward)
	inclusion := params.InclusionReward()
	for _, u := range uncles {
		if err := st.AddBalance(u.Coinbase(), params.UncleReward(u.Number(), h.Number())); err != nil {
			return err
		}
		reward.Add(reward, inclusion)
	}
	return st.AddBalance(h.Coinbase(), reward)
}

// ApplyRewards credits the rewards of the block being assembled, with
// the given uncles, into the ledger state.
func (l *Ledger) ApplyRewards(uncles []*block.Header) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return applyRewards(l.state, l.params, l.curHeader, uncles)
}

// CommitToMine freezes the pending block for mining: it selects
// eligible uncles from ch, applies rewards, commits the state and
// completes the header. Repeated calls are no-ops until Rollback or
// Sync.
func (l *Ledger) CommitToMine(ch chain.Reader) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.committedToMine {
		return nil
	}
	l.abortMining()

	uncles, err := l.selectUncles(ch)
	if err != nil {
		return err
	}

	now := uint64(time.Now().Unix())
	if now <= l.prevHeader.Time() {
		now = l.prevHeader.Time() + 1
	}
	difficulty := l.params.CalcDifficulty(now, l.prevHeader.Time(), l.prevHeader.Difficulty())

	header := new(block.Builder).
		ParentHash(l.prevHeader.Hash()).
		Coinbase(l.coinbase).
		Number(l.prevHeader.Number() + 1).
		GasLimit(l.prevHeader.GasLimit()).
		Time(now).
		Difficulty(difficulty).
		Build().Header()

	if err := applyRewards(l.state, l.params, header, uncles); err != nil {
		return err
	}
	root, err := l.state.Commit()
	if err != nil {
		return err
	}

	curTxs := append(tx.Transactions(nil), l.pending...)
	builder := new(block.Builder).
		ParentHash(header.ParentHash()).
		Coinbase(header.Coinbase()).
		StateRoot(root).
		Number(header.Number()).
		GasLimit(header.GasLimit()).
		Time(header.Time()).
		Difficulty(header.Difficulty()).
		Transactions(curTxs)
	for _, u := range uncles {
		builder.Uncle(u)
	}
	l.curHeader = builder.Build().Header()
	l.curTxs = curTxs
	l.curUncles = uncles
	l.curBytes = nil
	l.committedToMine = true
	return nil
}

// selectUncles picks up to MaxUncles headers eligible as uncles of the
// block being assembled: children of ancestors within UncleGenerations
// that are not on the direct line. Requires the write lock.
func (l *Ledger) selectUncles(ch chain.Reader) ([]*block.Header, error) {
	if ch == nil {
		return nil, nil
	}

	line := make(map[aether.Bytes32]struct{})
	var uncles []*block.Header

	ancestor := l.prevHeader.Hash()
	line[ancestor] = struct{}{}

	for depth := uint64(0); depth < l.params.UncleGenerations; depth++ {
		hdr, err := ch.Info(ancestor)
		if err != nil {
			if err == chain.ErrNotFound {
				break
			}
			return nil, err
		}
		if hdr.Number() == 0 {
			break
		}
		parent := hdr.ParentHash()
		line[parent] = struct{}{}

		children, err := ch.Children(parent)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, onLine := line[child]; onLine || child == ancestor {
				continue
			}
			uncle, err := ch.Info(child)
			if err != nil {
				return nil, err
			}
			uncles = append(uncles, uncle)
			line[child] = struct{}{}
			if len(uncles) == l.params.MaxUncles {
				return uncles, nil
			}
		}
		ancestor = parent
	}
	return uncles, nil
}

// Mine searches for a nonce sealing the frozen header. On success the
// sealed block is serialized and readable through BlockData. The search
// runs without the lock; a Sync or Rollback in the meantime voids the
// seal.
func (l *Ledger) Mine(timeout time.Duration) (pow.MineInfo, error) {
	l.mu.Lock()
	if !l.committedToMine {
		l.mu.Unlock()
		return pow.MineInfo{}, ErrNotCommitted
	}
	header := l.curHeader
	generation := l.generation
	stop := &pow.Stop{}
	l.stop = stop
	l.mu.Unlock()

	info := pow.Search(header.HashNoNonce(), header.Difficulty(), timeout, stop)
	if !info.Completed {
		return info, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation {
		info.Completed = false
		return info, nil
	}

	sealed := block.Compose(header, l.curTxs, l.curUncles).WithNonce(info.Nonce)
	data, err := rlp.EncodeToBytes(sealed)
	if err != nil {
		return pow.MineInfo{}, err
	}
	l.curHeader = sealed.Header()
	l.curBytes = data
	metricBlocksMined().Add(1)
	log.Info("block sealed",
		"number", sealed.Header().Number(),
		"id", sealed.Hash().AbbrevString(),
		"txs", len(l.curTxs),
		"uncles", len(l.curUncles))
	return info, nil
}

// Sync repositions the ledger at the head of ch. A no-op when already
// there; otherwise any in-flight mining is aborted and the pending
// block is dropped.
func (l *Ledger) Sync(ch chain.Reader) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := ch.CurrentHash()
	if head == l.prevHeader.Hash() {
		return nil
	}
	hdr, err := ch.Info(head)
	if err != nil {
		return err
	}
	st, err := state.New(hdr.StateRoot(), l.db)
	if err != nil {
		return err
	}
	l.abortMining()
	l.state = st
	l.prevHeader = hdr
	l.resetCurrent()
	log.Debug("synced to head", "number", hdr.Number(), "id", head.AbbrevString())
	return nil
}

// SyncQueue reconciles the pending block with the queue: transactions
// already pending, stale and unpayable ones are dropped from the queue,
// the survivors are applied in nonce order.
func (l *Ledger) SyncQueue(q *txqueue.Queue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, trx := range q.All() {
		if _, ok := l.pendingSet[trx.Hash()]; ok {
			q.Remove(trx.Hash())
			continue
		}
		if drop, err := l.applyOrJudge(l.state, trx, true); err != nil {
			return err
		} else if drop {
			q.Remove(trx.Hash())
		}
	}
	return nil
}

// Cull removes from the queue the transactions that can no longer be
// included: already pending, stale nonce or unpayable. The ledger state
// is not modified.
func (l *Ledger) Cull(q *txqueue.Queue) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := l.state.Copy()
	for _, trx := range q.All() {
		if _, ok := l.pendingSet[trx.Hash()]; ok {
			q.Remove(trx.Hash())
			continue
		}
		if drop, err := l.applyOrJudge(st, trx, false); err != nil {
			return err
		} else if drop {
			q.Remove(trx.Hash())
		}
	}
	return nil
}

// applyOrJudge executes trx against st and reports whether it is doomed
// and should leave the queue. With track set, successful transactions
// join the pending block. Nonce-gapped transactions are neither applied
// nor dropped.
func (l *Ledger) applyOrJudge(st *state.State, trx *tx.Transaction, track bool) (drop bool, err error) {
	rt := runtime.New(st, l.params, l.vm, runtime.Context{
		Number: l.curHeader.Number(),
		Time:   l.curHeader.Time(),
	})
	_, execErr := rt.ExecuteTransaction(trx, l.coinbase)
	switch {
	case execErr == nil:
		if track {
			l.pending = append(l.pending, trx)
			l.pendingSet[trx.Hash()] = struct{}{}
		}
		return false, nil
	case errors.Is(execErr, runtime.ErrInvalidNonce):
		sender, err := trx.Sender()
		if err != nil {
			return true, nil
		}
		nonce, err := st.GetNonce(sender)
		if err != nil {
			return false, err
		}
		// stale if behind the account, a gap may still close
		return trx.Nonce() < nonce, nil
	case errors.Is(execErr, state.ErrInsufficientBalance),
		errors.Is(execErr, runtime.ErrOutOfGasIntrinsic),
		errors.Is(execErr, tx.ErrInvalidSignature):
		return true, nil
	default:
		return false, execErr
	}
}

// Rollback drops the pending block and all mining artifacts, returning
// the state to the last synced header.
func (l *Ledger) Rollback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetToPrev()
}

// resetToPrev requires the write lock.
func (l *Ledger) resetToPrev() error {
	st, err := state.New(l.prevHeader.StateRoot(), l.db)
	if err != nil {
		return err
	}
	l.abortMining()
	l.state = st
	l.resetCurrent()
	return nil
}

// abortMining requires the write lock.
func (l *Ledger) abortMining() {
	if l.stop != nil {
		l.stop.Stop()
		l.stop = nil
	}
	l.generation++
}

// resetCurrent requires the write lock.
func (l *Ledger) resetCurrent() {
	now := uint64(time.Now().Unix())
	if now <= l.prevHeader.Time() {
		now = l.prevHeader.Time() + 1
	}
	l.curHeader = new(block.Builder).
		ParentHash(l.prevHeader.Hash()).
		Coinbase(l.coinbase).
		Number(l.prevHeader.Number() + 1).
		GasLimit(l.prevHeader.GasLimit()).
		Time(now).
		Build().Header()
	l.pending = nil
	l.pendingSet = make(map[aether.Bytes32]struct{})
	l.committedToMine = false
	l.curTxs = nil
	l.curUncles = nil
	l.curBytes = nil
}

// RootHash returns the root of the ledger state including all pending
// changes.
func (l *Ledger) RootHash() (aether.Bytes32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Root()
}

// Pending returns the transactions of the block being assembled.
func (l *Ledger) Pending() tx.Transactions {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append(tx.Transactions(nil), l.pending...)
}

// Balance returns the balance of addr in the pending state.
func (l *Ledger) Balance(addr aether.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetBalance(addr)
}

// Nonce returns the nonce of addr in the pending state.
func (l *Ledger) Nonce(addr aether.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetNonce(addr)
}

// Storage returns the storage value of addr at key in the pending state.
func (l *Ledger) Storage(addr aether.Address, key aether.Bytes32) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetStorage(addr, key)
}

// AddressInUse returns whether addr exists in the pending state.
func (l *Ledger) AddressInUse(addr aether.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Exists(addr)
}

// BlockData returns the RLP of the last sealed block, or nil if none
// was mined since the last commit.
func (l *Ledger) BlockData() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]byte(nil), l.curBytes...)
}

// CurrentHeader returns the header of the block being assembled.
func (l *Ledger) CurrentHeader() *block.Header {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.curHeader
}
