package mempool

import (
	"container/heap"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/feed"
	"github.com/NethermindEth/katana-go/utils"
)

var (
	ErrTxnPoolFull            = errors.New("transaction pool is full")
	ErrAlreadyKnown           = errors.New("transaction already known")
	ErrInvalidHash            = errors.New("transaction hash does not match its content")
	ErrMissingSignature       = errors.New("transaction is not signed")
	ErrUnsupportedVersion     = errors.New("unsupported transaction version")
	ErrFeeTooLow              = errors.New("max fee is below the pool minimum")
	ErrNonceTooLow            = errors.New("nonce too low")
	ErrReplacementUnderpriced = errors.New("replacement transaction underpriced")
	ErrSenderNotDeployed      = errors.New("sender account is not deployed")
)

type BroadcastedTransaction struct {
	Transaction core.Transaction
	// DeclaredClass is the class of a declare transaction.
	DeclaredClass *state.DeclaredClass
}

// Validator runs the account validation of a transaction before the pool admits it.
type Validator interface {
	ValidateTransaction(txn *BroadcastedTransaction) error
}

// StateFn returns the state transactions are admitted against.
type StateFn func() (state.Reader, blockchain.StateCloser, error)

type Config struct {
	// Limit caps the number of transactions in the pool, 0 means no limit.
	Limit int
	// MinFee is the smallest max fee, or max fee bound for v3 transactions, the pool accepts.
	MinFee *big.Int
	// StaleTimeout evicts parked transactions older than it, 0 keeps them until their gap closes.
	StaleTimeout time.Duration
	// SkipValidate admits transactions without running their account validation.
	SkipValidate bool
}

// Pool orders pending transactions per sender by nonce and across senders by priority. L1 handler
// transactions have their own first-in first-out lane and are drained first.
type Pool struct {
	chainID   felt.Felt
	known     func(hash *felt.Felt) bool
	stateFn   StateFn
	validator Validator
	cfg       Config
	log       utils.SimpleLogger
	now       func() time.Time

	mu     sync.Mutex
	byHash map[felt.Felt]*poolTx
	// drained holds the hashes handed out by Drain since the last Reconcile.
	drained map[felt.Felt]struct{}
	senders map[felt.Felt]*senderQueue
	ready   readyHeap
	l1      []*poolTx
	seq     uint64

	txPushed chan struct{}
	received *feed.Feed[core.Transaction]

	admitted atomic.Uint64
	rejected atomic.Uint64
}

func New(chain blockchain.Reader, cfg Config, log utils.SimpleLogger) *Pool {
	return &Pool{
		chainID: *chain.ChainID(),
		known: func(hash *felt.Felt) bool {
			_, err := chain.TransactionByHash(hash)
			return err == nil
		},
		stateFn:  chain.HeadState,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		byHash:   make(map[felt.Felt]*poolTx),
		drained:  make(map[felt.Felt]struct{}),
		senders:  make(map[felt.Felt]*senderQueue),
		txPushed: make(chan struct{}, 1),
		received: feed.New[core.Transaction](),
	}
}

// WithStateFn makes the pool check nonces against the state returned by fn instead of the chain head.
func (p *Pool) WithStateFn(fn StateFn) *Pool {
	p.stateFn = fn
	return p
}

func (p *Pool) WithValidator(validator Validator) *Pool {
	p.validator = validator
	return p
}

func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

// Priority orders transactions of different senders: the max fee of transactions up to v2 and the max fee
// bound of v3 transactions.
func Priority(txn core.Transaction) *big.Int {
	if market := core.TransactionFeeMarket(txn); market != nil {
		return market.MaxFeeBound()
	}
	maxFee := core.TransactionMaxFee(txn)
	return maxFee.BigInt(new(big.Int))
}

// Push admits a transaction to the pool.
func (p *Pool) Push(txn *BroadcastedTransaction) error {
	if err := p.push(txn); err != nil {
		p.rejected.Add(1)
		p.log.Debugw("Rejected transaction", "hash", txn.Transaction.Hash().String(), "err", err)
		return err
	}
	p.admitted.Add(1)
	p.log.Debugw("Admitted transaction", "hash", txn.Transaction.Hash().String())

	select {
	case p.txPushed <- struct{}{}:
	default:
	}
	p.received.Send(txn.Transaction)
	return nil
}

func (p *Pool) push(txn *BroadcastedTransaction) error {
	t := txn.Transaction
	if err := core.VerifyTransactionHash(t, &p.chainID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	p.mu.Lock()
	known := p.isKnown(t.Hash())
	p.mu.Unlock()
	if known {
		return ErrAlreadyKnown
	}
	if _, ok := t.(*core.L1HandlerTransaction); ok {
		return p.pushL1Handler(txn)
	}

	if err := checkVersion(t); err != nil {
		return err
	}
	if !p.cfg.SkipValidate && len(t.Signature()) == 0 {
		return ErrMissingSignature
	}
	priority := Priority(t)
	if p.cfg.MinFee != nil && priority.Cmp(p.cfg.MinFee) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrFeeTooLow, priority, p.cfg.MinFee)
	}

	sender, err := core.TransactionSender(t)
	if err != nil {
		return err
	}
	nonceFelt, err := core.TransactionNonce(t)
	if err != nil {
		return err
	}
	nonce, err := nonceFelt.Uint64()
	if err != nil {
		return fmt.Errorf("nonce %s: %w", nonceFelt.String(), err)
	}
	committed, deployed, err := p.committedNonce(t, &sender)
	if err != nil {
		return err
	}
	if nonce < committed {
		return fmt.Errorf("%w: account nonce %d, transaction nonce %d", ErrNonceTooLow, committed, nonce)
	}

	// accounts deployed by a transaction still in the pool cannot validate yet
	if p.validator != nil && !p.cfg.SkipValidate && deployed {
		if err = p.validator.ValidateTransaction(txn); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.insert(txn, sender, nonce, committed, priority)
}

func checkVersion(t core.Transaction) error {
	version := t.TxVersion().WithoutQueryBit()
	var supported bool
	switch t.(type) {
	case *core.InvokeTransaction, *core.DeployAccountTransaction:
		supported = version.Is(1) || version.Is(3)
	case *core.DeclareTransaction:
		supported = version.Is(1) || version.Is(2) || version.Is(3)
	}
	if !supported {
		return fmt.Errorf("%w: %s v%s", ErrUnsupportedVersion, t.Type(), version.String())
	}
	return nil
}

// committedNonce returns the nonce sender expects next and whether the sender is deployed.
func (p *Pool) committedNonce(t core.Transaction, sender *felt.Felt) (uint64, bool, error) {
	st, closer, err := p.stateFn()
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if closeErr := closer(); closeErr != nil {
			p.log.Warnw("Failed to close state", "err", closeErr)
		}
	}()

	nonce, err := st.ContractNonce(sender)
	if errors.Is(err, state.ErrContractNotDeployed) {
		if _, ok := t.(*core.DeployAccountTransaction); ok {
			return 0, true, nil
		}
		p.mu.Lock()
		_, queued := p.senders[*sender]
		p.mu.Unlock()
		if queued {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %s", ErrSenderNotDeployed, sender.String())
	} else if err != nil {
		return 0, false, err
	}
	n, err := nonce.Uint64()
	return n, true, err
}

func (p *Pool) nextSeq() uint64 {
	p.seq++
	return p.seq
}

// insert must be called with the lock held.
func (p *Pool) insert(txn *BroadcastedTransaction, sender felt.Felt, nonce, committed uint64, priority *big.Int) error {
	hash := *txn.Transaction.Hash()
	if p.isKnown(&hash) {
		return ErrAlreadyKnown
	}

	q, ok := p.senders[sender]
	if !ok {
		q = newSenderQueue(committed)
		p.senders[sender] = q
	} else if q.next < committed {
		p.advance(q, committed)
	}

	entry := &poolTx{
		txn:      *txn,
		sender:   sender,
		nonce:    nonce,
		priority: priority,
		addedAt:  p.now(),
		seq:      p.nextSeq(),
		index:    -1,
	}
	if existing, ok := q.txs[nonce]; ok {
		if priority.Cmp(existing.priority) <= 0 {
			return fmt.Errorf("%w: %s <= %s", ErrReplacementUnderpriced, priority, existing.priority)
		}
		delete(p.byHash, *existing.txn.Transaction.Hash())
		q.txs[nonce] = entry
		p.byHash[hash] = entry
		if existing.index >= 0 {
			entry.index = existing.index
			existing.index = -1
			p.ready[entry.index] = entry
			heap.Fix(&p.ready, entry.index)
		}
		p.log.Debugw("Replaced transaction", "old", existing.txn.Transaction.Hash().String(), "new", hash.String())
		return nil
	}

	if p.cfg.Limit > 0 && len(p.byHash) >= p.cfg.Limit {
		if len(q.txs) == 0 {
			delete(p.senders, sender)
		}
		return ErrTxnPoolFull
	}
	q.txs[nonce] = entry
	p.byHash[hash] = entry
	q.promote(&p.ready)
	return nil
}

func (p *Pool) pushL1Handler(txn *BroadcastedTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := *txn.Transaction.Hash()
	if p.isKnown(&hash) {
		return ErrAlreadyKnown
	}
	if p.cfg.Limit > 0 && len(p.byHash) >= p.cfg.Limit {
		return ErrTxnPoolFull
	}
	entry := &poolTx{txn: *txn, priority: new(big.Int), addedAt: p.now(), seq: p.nextSeq(), index: -1}
	p.l1 = append(p.l1, entry)
	p.byHash[hash] = entry
	return nil
}

// isKnown reports whether the transaction with hash is in the pool, in the block under construction or in
// the chain. It must be called with the lock held.
func (p *Pool) isKnown(hash *felt.Felt) bool {
	if _, ok := p.byHash[*hash]; ok {
		return true
	}
	if _, ok := p.drained[*hash]; ok {
		return true
	}
	return p.known(hash)
}

// remove must be called with the lock held.
func (p *Pool) remove(entry *poolTx) {
	delete(p.byHash, *entry.txn.Transaction.Hash())
	if entry.index >= 0 {
		heap.Remove(&p.ready, entry.index)
	}
	if q, ok := p.senders[entry.sender]; ok && q.txs[entry.nonce] == entry {
		delete(q.txs, entry.nonce)
	}
}

// advance drops the transactions of q below next. It must be called with the lock held.
func (p *Pool) advance(q *senderQueue, next uint64) {
	for nonce, entry := range q.txs {
		if nonce < next {
			p.remove(entry)
		}
	}
	q.next = next
	q.promote(&p.ready)
}

// evictStale drops parked transactions older than the stale timeout. Emptied queues keep their expected
// nonce until the next Reconcile. It must be called with the lock held.
func (p *Pool) evictStale() {
	if p.cfg.StaleTimeout <= 0 {
		return
	}
	deadline := p.now().Add(-p.cfg.StaleTimeout)
	for _, q := range p.senders {
		for _, entry := range q.txs {
			if entry.index < 0 && entry.addedAt.Before(deadline) {
				p.log.Debugw("Evicting stale transaction", "hash", entry.txn.Transaction.Hash().String())
				p.remove(entry)
			}
		}
	}
}

// Drain removes up to budget transactions from the pool, all of them if budget is not positive. The
// transactions of a sender come out in nonce order and a parked transaction only comes out once its
// predecessor did.
func (p *Pool) Drain(budget int) []BroadcastedTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictStale()

	full := func(n int) bool { return budget > 0 && n >= budget }
	var drained []BroadcastedTransaction
	for len(p.l1) > 0 && !full(len(drained)) {
		entry := p.l1[0]
		p.l1[0] = nil
		p.l1 = p.l1[1:]
		p.markDrained(entry)
		drained = append(drained, entry.txn)
	}
	for p.ready.Len() > 0 && !full(len(drained)) {
		entry := heap.Pop(&p.ready).(*poolTx)
		p.markDrained(entry)
		q := p.senders[entry.sender]
		delete(q.txs, entry.nonce)
		q.next = entry.nonce + 1
		q.promote(&p.ready)
		drained = append(drained, entry.txn)
	}
	return drained
}

// markDrained must be called with the lock held.
func (p *Pool) markDrained(entry *poolTx) {
	hash := *entry.txn.Transaction.Hash()
	delete(p.byHash, hash)
	p.drained[hash] = struct{}{}
}

// Reconcile aligns the expected nonce of every sender with st, typically the state after a sealed block.
// Transactions made obsolete by st are dropped and ones left behind a nonce gap are parked. Drained
// transactions are forgotten, the ones that were sealed are found in the chain from then on.
func (p *Pool) Reconcile(st state.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.drained)

	for sender, q := range p.senders {
		nonce, err := st.ContractNonce(&sender)
		if errors.Is(err, state.ErrContractNotDeployed) {
			continue
		} else if err != nil {
			return err
		}
		committed, err := nonce.Uint64()
		if err != nil {
			return err
		}
		switch {
		case committed > q.next:
			p.advance(q, committed)
		case committed < q.next:
			// a drained transaction did not make it into the block
			if head := q.head(); head != nil && head.index >= 0 {
				heap.Remove(&p.ready, head.index)
			}
			q.next = committed
			q.promote(&p.ready)
		}
		if len(q.txs) == 0 {
			delete(p.senders, sender)
		}
	}
	p.evictStale()
	return nil
}

// Remove drops transactions from the pool.
func (p *Pool) Remove(hashes ...felt.Felt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hash := range hashes {
		entry, ok := p.byHash[hash]
		if !ok {
			continue
		}
		if entry.txn.Transaction.Type() == core.TxnL1Handler {
			delete(p.byHash, hash)
			for i, l1 := range p.l1 {
				if l1 == entry {
					p.l1 = append(p.l1[:i], p.l1[i+1:]...)
					break
				}
			}
			continue
		}
		p.remove(entry)
	}
}

// Transaction returns a transaction waiting in the pool.
func (p *Pool) Transaction(hash *felt.Felt) (core.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byHash[*hash]
	if !ok {
		return nil, false
	}
	return entry.txn.Transaction, true
}

// Transactions returns every transaction in the pool, in no particular order.
func (p *Pool) Transactions() []core.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	txns := make([]core.Transaction, 0, len(p.byHash))
	for _, entry := range p.byHash {
		txns = append(txns, entry.txn.Transaction)
	}
	return txns
}

// Len returns the number of transactions in the pool, parked ones included.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// Wait returns a channel that receives after a transaction was admitted.
func (p *Pool) Wait() <-chan struct{} {
	return p.txPushed
}

// SubscribeReceived notifies every admitted transaction.
func (p *Pool) SubscribeReceived() *feed.Subscription[core.Transaction] {
	return p.received.Subscribe()
}
