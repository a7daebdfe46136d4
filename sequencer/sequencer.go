package sequencer

import (
	"context"
	"errors"
	"maps"
	"slices"
	syncLock "sync"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/feed"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/jinzhu/copier"
)

var (
	ErrPendingTransactions = errors.New("the pending block already holds transactions")
	ErrTimestampOverflow   = errors.New("timestamp overflows")
)

var _ mempool.Validator = (*Sequencer)(nil)

type Config struct {
	SequencerAddress felt.Felt
	// BlockTime is the interval between blocks, zero produces blocks only when asked to.
	BlockTime      time.Duration
	L1GasPrice     core.GasPrice
	L1DataGasPrice core.GasPrice
	L1DAMode       core.L1DAMode
	// Flags relax the execution of every transaction of a block.
	Flags vm.SimulationFlags
}

// Sequencer builds blocks out of the transactions of the pool. Transactions are executed into the pending
// block as soon as they are admitted, the pending block is sealed on an interval or on request.
type Sequencer struct {
	chain *blockchain.Blockchain
	vm    vm.VM
	pool  *mempool.Pool
	cfg   Config
	log   utils.SimpleLogger
	now   func() time.Time

	mu        syncLock.Mutex
	parent    *core.Header
	header    *core.Header
	base      state.Reader
	closeBase blockchain.StateCloser
	executor  vm.BlockExecutor
	// unsealed is the output taken by a seal that failed to store, the next seal stores it first.
	unsealed *vm.ExecutionOutput
	txs      []core.Transaction
	receipts []*core.TransactionReceipt
	diff     *core.StateDiff
	classes  map[felt.Felt]state.DeclaredClass
	// pinned is set when the pending timestamp was given explicitly.
	pinned     bool
	timeOffset int64

	subNewHeads     *feed.Feed[*core.Block]
	subPendingBlock *feed.Feed[*core.Block]
	// fatal carries the first error the sequencer cannot recover from to Run.
	fatal chan error

	metrics metrics
}

// New opens the block following the head of chain, which must hold at least the genesis block.
func New(chain *blockchain.Blockchain, v vm.VM, pool *mempool.Pool, cfg Config, log utils.SimpleLogger) (*Sequencer, error) {
	s := &Sequencer{
		chain:           chain,
		vm:              v,
		pool:            pool,
		cfg:             cfg,
		log:             log,
		now:             time.Now,
		subNewHeads:     feed.New[*core.Block](),
		subPendingBlock: feed.New[*core.Block](),
		fatal:           make(chan error, 1),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock replaces the wall clock timestamps are taken from and reopens the pending block with it.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	if !s.pinned && !s.hasPending() {
		s.header.Timestamp = s.timestamp()
		s.reset()
	}
	return s
}

func (s *Sequencer) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closePending()
	}()

	var blockTimer <-chan time.Time
	if s.cfg.BlockTime > 0 {
		blockTimer = time.After(s.cfg.BlockTime)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fatal:
			return err
		case <-s.pool.Wait():
			if err := s.executePending(); err != nil {
				return err
			}
		case <-blockTimer:
			if _, err := s.GenerateBlock(); err != nil {
				return err
			}
			blockTimer = time.After(s.cfg.BlockTime)
		}
	}
}

// open starts the block following the chain head. It must be called with the lock held.
func (s *Sequencer) open() error {
	parent, err := s.chain.HeadsHeader()
	if err != nil {
		return err
	}
	base, closer, err := s.chain.HeadState()
	if err != nil {
		return err
	}
	s.parent = parent
	s.base, s.closeBase = base, closer
	s.header = &core.Header{
		ParentHash:       parent.Hash,
		Number:           parent.Number + 1,
		SequencerAddress: s.cfg.SequencerAddress,
		ProtocolVersion:  core.LatestProtocolVersion,
		L1GasPrice:       s.cfg.L1GasPrice,
		L1DataGasPrice:   s.cfg.L1DataGasPrice,
		L1DAMode:         s.cfg.L1DAMode,
	}
	s.header.Timestamp = s.timestamp()
	s.reset()
	return nil
}

// reset drops the pending transactions and starts over with the current pending header. It must be called
// with the lock held.
func (s *Sequencer) reset() {
	env := s.header.Env()
	s.executor = s.vm.NewBlockExecutor(s.base, &env, s.cfg.Flags)
	s.txs, s.receipts = nil, nil
	s.diff = core.NewStateDiff()
	s.classes = make(map[felt.Felt]state.DeclaredClass)
}

// closePending releases the state the pending block is built on. It must be called with the lock held.
func (s *Sequencer) closePending() {
	if err := s.releaseBase(); err != nil {
		s.log.Warnw("Failed to close pending base state", "err", err)
	}
}

func (s *Sequencer) releaseBase() error {
	if s.closeBase == nil {
		return nil
	}
	err := s.closeBase()
	s.closeBase = nil
	return err
}

// Close releases the state the pending block is built on. Pending transactions are lost.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseBase()
}

// hasPending reports whether the pending block holds anything besides its header. It must be called with
// the lock held.
func (s *Sequencer) hasPending() bool {
	return len(s.txs) > 0 || s.unsealed != nil
}

// fail hands err to Run, which stops the sequencer and with it the node.
func (s *Sequencer) fail(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// timestamp returns the wall clock shifted by the time offset, never earlier than the parent. It must be
// called with the lock held.
func (s *Sequencer) timestamp() uint64 {
	ts := max(s.now().Unix()+s.timeOffset, 0)
	return max(uint64(ts), s.parent.Timestamp)
}

// executePending drains the pool into the pending block.
func (s *Sequencer) executePending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	executed, err := s.drainPool()
	if err != nil {
		return err
	}
	if executed > 0 {
		s.subPendingBlock.Send(s.pendingLocked().Block)
	}
	return nil
}

// drainPool executes every drainable transaction of the pool. A transaction that cannot be executed is
// dropped, storage corruption is returned. It must be called with the lock held.
func (s *Sequencer) drainPool() (int, error) {
	txns := s.pool.Drain(0)
	executed := 0
	for i := range txns {
		txn := &txns[i]
		out, err := s.executor.Execute(txn.Transaction, txn.DeclaredClass)
		if err != nil {
			if db.IsCorruption(err) {
				return executed, err
			}
			s.metrics.dropped.Add(1)
			s.log.Debugw("Dropped transaction", "hash", txn.Transaction.Hash().String(), "err", err)
			continue
		}
		s.txs = append(s.txs, txn.Transaction)
		s.receipts = append(s.receipts, out.Receipt)
		s.diff.Merge(out.StateDiff)
		maps.Copy(s.classes, out.Classes)
		executed++
	}
	if executed > 0 {
		s.log.Debugw("Executed transactions", "count", executed, "pending", len(s.txs))
	}
	return executed, nil
}

// GenerateBlock drains the pool into the pending block and seals it.
func (s *Sequencer) GenerateBlock() (*core.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.drainPool(); err != nil {
		return nil, err
	}
	return s.seal()
}

// seal stores the pending block and opens the next one. It must be called with the lock held.
func (s *Sequencer) seal() (*core.Block, error) {
	start := time.Now()
	if !s.pinned && len(s.txs) == 0 {
		s.header.Timestamp = s.timestamp()
	}
	out := s.takeOutput()
	header := *s.header
	block := &core.Block{
		Header:       s.header,
		Transactions: out.Transactions,
		Receipts:     out.Receipts,
	}
	if err := s.chain.Store(block, out.StateDiff, out.Classes); err != nil {
		// the pending block is kept as it was so that a later seal stores it
		*s.header = header
		s.unsealed = out
		s.log.Errorw("Failed to store block", "number", block.Number, "err", err)
		s.fail(err)
		return nil, err
	}
	s.unsealed = nil
	s.closePending()
	s.pinned = false

	s.metrics.record(block, time.Since(start))
	s.log.Infow("Sealed block", "number", block.Number, "hash", block.Hash.ShortString(),
		"transactions", len(block.Transactions), "timestamp", block.Timestamp)
	s.subNewHeads.Send(block)
	if err := s.open(); err != nil {
		s.fail(err)
		return nil, err
	}
	if err := s.reconcilePool(); err != nil {
		return nil, err
	}
	return block, nil
}

// takeOutput takes what the executor did since the last seal on top of the output of a seal that failed
// to store. It must be called with the lock held.
func (s *Sequencer) takeOutput() *vm.ExecutionOutput {
	out := s.executor.TakeExecutionOutput()
	if s.unsealed == nil {
		return out
	}
	prev := s.unsealed
	diff := core.NewStateDiff()
	diff.Merge(prev.StateDiff)
	diff.Merge(out.StateDiff)
	classes := make(map[felt.Felt]state.DeclaredClass, len(prev.Classes)+len(out.Classes))
	maps.Copy(classes, prev.Classes)
	maps.Copy(classes, out.Classes)
	return &vm.ExecutionOutput{
		StateDiff:    diff,
		Classes:      classes,
		Transactions: append(slices.Clone(prev.Transactions), out.Transactions...),
		Receipts:     append(slices.Clone(prev.Receipts), out.Receipts...),
	}
}

// reconcilePool aligns the pool with the sealed head. It must be called with the lock held.
func (s *Sequencer) reconcilePool() error {
	st, closer, err := s.chain.HeadState()
	if err != nil {
		return err
	}
	err = s.pool.Reconcile(st)
	if closeErr := closer(); closeErr != nil {
		s.log.Warnw("Failed to close head state", "err", closeErr)
	}
	return err
}

// SetNextBlockTimestamp makes the pending block carry timestamp, which may be earlier than its parent's.
// Later blocks carry the wall clock shifted by the same amount.
func (s *Sequencer) SetNextBlockTimestamp(timestamp uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPending() {
		return ErrPendingTransactions
	}
	if timestamp > uint64(1<<62) {
		return ErrTimestampOverflow
	}
	s.timeOffset = int64(timestamp) - s.now().Unix()
	s.header.Timestamp = timestamp
	s.pinned = true
	s.reset()
	return nil
}

// IncreaseNextBlockTimestamp moves the clock of the pending block and the ones after it forward by delta
// seconds.
func (s *Sequencer) IncreaseNextBlockTimestamp(delta uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPending() {
		return ErrPendingTransactions
	}
	if delta > uint64(1<<62) || s.timeOffset > 1<<62 {
		return ErrTimestampOverflow
	}
	s.timeOffset += int64(delta)
	if s.pinned {
		s.header.Timestamp += delta
	} else {
		s.header.Timestamp = s.timestamp()
	}
	s.reset()
	return nil
}

// SetStorageAt writes a storage slot in the pending block outside of any transaction.
func (s *Sequencer) SetStorageAt(address, key, value felt.Felt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deployed, err := isDeployed(s.executor.State(), &address)
	if err != nil {
		return err
	}
	if !deployed {
		return state.ErrContractNotDeployed
	}
	s.executor.SetStorage(address, key, value)
	s.diff.SetStorage(address, key, value)
	return nil
}

func isDeployed(st state.Reader, address *felt.Felt) (bool, error) {
	_, err := st.ContractClassHash(address)
	if errors.Is(err, state.ErrContractNotDeployed) {
		return false, nil
	}
	return err == nil, err
}

// ValidateTransaction runs the account validation of txn against the pending state. The nonce is not
// checked, the pool orders transactions by nonce.
func (s *Sequencer) ValidateTransaction(txn *mempool.BroadcastedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.cfg.Flags
	flags.SkipExecute = true
	flags.SkipNonceCheck = true
	_, err := s.executor.Simulate(txn.Transaction, txn.DeclaredClass, flags)
	return err
}

// Pending returns a copy of the block under construction and the state it has produced so far.
func (s *Sequencer) Pending() *blockchain.Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Sequencer) pendingLocked() *blockchain.Pending {
	header := new(core.Header)
	if err := copier.Copy(header, s.header); err != nil {
		*header = *s.header
	}
	header.TransactionCount = uint64(len(s.txs))
	header.EventCount = core.EventCount(s.receipts)

	diff := core.NewStateDiff()
	diff.Merge(s.diff)
	return &blockchain.Pending{
		Block: &core.Block{
			Header:       header,
			Transactions: slices.Clone(s.txs),
			Receipts:     slices.Clone(s.receipts),
		},
		StateDiff: diff,
		Classes:   maps.Clone(s.classes),
	}
}

// PendingState layers the pending changes over the latest sealed state.
func (s *Sequencer) PendingState() (state.Reader, blockchain.StateCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, closer, err := s.chain.HeadState()
	if err != nil {
		return nil, nil, err
	}
	pending := blockchain.Pending{StateDiff: s.diff, Classes: s.classes}
	return pending.State(base), closer, nil
}

// PendingEnv is the environment transactions of the pending block run in.
func (s *Sequencer) PendingEnv() core.BlockEnv {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Env()
}

// Contains reports whether the pending block holds the transaction with hash.
func (s *Sequencer) Contains(hash *felt.Felt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.txs, func(txn core.Transaction) bool { return txn.Hash().Equal(hash) })
}

func (s *Sequencer) SubscribeNewHeads() *feed.Subscription[*core.Block] {
	return s.subNewHeads.Subscribe()
}

func (s *Sequencer) SubscribePending() *feed.Subscription[*core.Block] {
	return s.subPendingBlock.Subscribe()
}
