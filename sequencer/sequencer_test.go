package sequencer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/pebble"
	"github.com/NethermindEth/katana-go/genesis"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/mocks"
	"github.com/NethermindEth/katana-go/sequencer"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	chainID       = *new(felt.Felt).SetBytes([]byte("KATANA"))
	sequencerAddr = *felt.New(0x5e9)
	startTime     = time.Unix(1_700_000_000, 0)
)

const initialBalance = 1_000_000_000

type seqEnv struct {
	t        *testing.T
	chain    *blockchain.Blockchain
	pool     *mempool.Pool
	seq      *sequencer.Sequencer
	accounts []genesis.DevAccount
	now      time.Time
}

var errDiskFull = errors.New("disk full")

// flakyDB fails the next failures updates.
type flakyDB struct {
	db.DB
	failures atomic.Int32
}

func (d *flakyDB) Update(fn func(txn db.Transaction) error) error {
	if d.failures.Add(-1) >= 0 {
		return errDiskFull
	}
	return d.DB.Update(fn)
}

func newChain(t *testing.T) (*blockchain.Blockchain, []genesis.DevAccount) {
	t.Helper()
	return newChainWithDB(t, pebble.NewMemTest(t))
}

func newChainWithDB(t *testing.T, database db.DB) (*blockchain.Blockchain, []genesis.DevAccount) {
	t.Helper()
	chain, err := blockchain.New(database, &chainID)
	require.NoError(t, err)

	cfg := genesis.Default()
	accounts, err := genesis.DevAccounts("0", 2, felt.New(initialBalance))
	require.NoError(t, err)
	require.NoError(t, cfg.AddAccounts(accounts))
	g, err := cfg.Build(false)
	require.NoError(t, err)
	require.NoError(t, chain.Store(g.Block(), g.StateDiff, g.Classes))
	return chain, accounts
}

func seqConfig(blockTime time.Duration) sequencer.Config {
	return sequencer.Config{
		SequencerAddress: sequencerAddr,
		BlockTime:        blockTime,
		L1GasPrice:       core.GasPrice{PriceInWei: *felt.New(2), PriceInFri: *felt.New(3)},
		L1DataGasPrice:   core.GasPrice{PriceInWei: *felt.New(1), PriceInFri: *felt.New(1)},
	}
}

func newSeqEnv(t *testing.T, blockTime time.Duration) *seqEnv {
	t.Helper()
	chain, accounts := newChain(t)
	return newSeqEnvWithChain(t, chain, accounts, blockTime)
}

func newSeqEnvWithChain(t *testing.T, chain *blockchain.Blockchain, accounts []genesis.DevAccount,
	blockTime time.Duration,
) *seqEnv {
	t.Helper()
	log := utils.NewNopZapLogger()
	e := &seqEnv{t: t, chain: chain, accounts: accounts, now: startTime}

	e.pool = mempool.New(chain, mempool.Config{}, log)
	seq, err := sequencer.New(chain, vm.New(vm.DefaultConfig(chainID), log), e.pool, seqConfig(blockTime), log)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, seq.Close()) })
	e.seq = seq.WithClock(func() time.Time { return e.now })
	e.pool.WithValidator(e.seq)
	return e
}

func (e *seqEnv) transfer(from int, to felt.Felt, amount, nonce uint64) *core.InvokeTransaction {
	e.t.Helper()
	account := e.accounts[from]
	txn := &core.InvokeTransaction{
		Version:       core.NewTransactionVersion(1),
		SenderAddress: account.Address,
		CallData: vm.EncodeCalls(vm.AccountCall{
			To:       *vm.ETHFeeTokenAddress,
			Selector: *crypto.Selector("transfer"),
			Calldata: []felt.Felt{to, *felt.New(amount), felt.Zero},
		}),
		MaxFee: *felt.New(10_000_000),
		Nonce:  *felt.New(nonce),
	}
	hash, err := core.TransactionHash(txn, &chainID)
	require.NoError(e.t, err)
	key, err := crypto.NewPrivateKey(&account.PrivateKey)
	require.NoError(e.t, err)
	sig, err := key.Sign(hash)
	require.NoError(e.t, err)
	txn.TransactionHash, txn.TransactionSignature = *hash, []felt.Felt{sig.R, sig.S}
	return txn
}

func (e *seqEnv) push(txn core.Transaction) {
	e.t.Helper()
	require.NoError(e.t, e.pool.Push(&mempool.BroadcastedTransaction{Transaction: txn}))
}

func (e *seqEnv) headState() state.Reader {
	e.t.Helper()
	st, closer, err := e.chain.HeadState()
	require.NoError(e.t, err)
	e.t.Cleanup(func() { require.NoError(e.t, closer()) })
	return st
}

func (e *seqEnv) head() *core.Header {
	e.t.Helper()
	header, err := e.chain.HeadsHeader()
	require.NoError(e.t, err)
	return header
}

func balanceOf(t *testing.T, st state.Reader, owner felt.Felt) uint64 {
	t.Helper()
	low, _ := vm.ERC20BalanceKeys(&owner)
	value, err := st.ContractStorage(vm.ETHFeeTokenAddress, &low)
	require.NoError(t, err)
	balance, err := value.Uint64()
	require.NoError(t, err)
	return balance
}

func TestTransfer(t *testing.T) {
	e := newSeqEnv(t, 0)
	to := e.accounts[1].Address
	txn := e.transfer(0, to, 100, 0)
	e.push(txn)

	block, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	require.False(t, block.Receipts[0].Reverted, block.Receipts[0].RevertReason)
	assert.Equal(t, txn.Hash(), block.Transactions[0].Hash())
	assert.Equal(t, uint64(startTime.Unix()), block.Timestamp)

	head := e.head()
	assert.Equal(t, uint64(1), head.Number)
	assert.Equal(t, block.Hash, head.Hash)
	assert.Equal(t, uint64(1), head.TransactionCount)

	st := e.headState()
	fee, err := block.Receipts[0].Fee.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(initialBalance+100), balanceOf(t, st, to))
	assert.Equal(t, uint64(initialBalance-100)-fee, balanceOf(t, st, e.accounts[0].Address))
	assert.Equal(t, fee, balanceOf(t, st, sequencerAddr))
	nonce, err := st.ContractNonce(&e.accounts[0].Address)
	require.NoError(t, err)
	assert.Equal(t, felt.One, nonce)

	assert.Zero(t, e.pool.Len())
	assert.Equal(t, uint64(2), e.seq.PendingEnv().Number)
}

func TestRevertedTransactionIsIncluded(t *testing.T) {
	e := newSeqEnv(t, 0)
	e.push(e.transfer(0, e.accounts[1].Address, 2*initialBalance, 0))

	block, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	require.Len(t, block.Receipts, 1)
	assert.True(t, block.Receipts[0].Reverted)
	assert.NotEmpty(t, block.Receipts[0].RevertReason)

	st := e.headState()
	nonce, err := st.ContractNonce(&e.accounts[0].Address)
	require.NoError(t, err)
	assert.Equal(t, felt.One, nonce)
	assert.Equal(t, uint64(initialBalance), balanceOf(t, st, e.accounts[1].Address))
}

func TestEmptyBlocks(t *testing.T) {
	e := newSeqEnv(t, 0)
	root := e.head().GlobalStateRoot

	first, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	e.now = e.now.Add(time.Second)
	second, err := e.seq.GenerateBlock()
	require.NoError(t, err)

	assert.Empty(t, first.Transactions)
	assert.Equal(t, root, first.GlobalStateRoot)
	assert.Equal(t, root, second.GlobalStateRoot)
	assert.Equal(t, first.Hash, second.ParentHash)
	assert.Equal(t, first.Timestamp+1, second.Timestamp)
}

func TestDeterministicBlocks(t *testing.T) {
	var roots [2]felt.Felt
	var hashes [2]felt.Felt
	// signatures are randomised, both runs replay the same signed transactions
	var txns []core.Transaction
	for i := range roots {
		e := newSeqEnv(t, 0)
		if txns == nil {
			txns = []core.Transaction{
				e.transfer(0, e.accounts[1].Address, 100, 0),
				e.transfer(1, e.accounts[0].Address, 7, 0),
			}
		}
		for _, txn := range txns {
			e.push(txn)
		}
		block, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		require.Len(t, block.Transactions, 2)
		roots[i], hashes[i] = block.GlobalStateRoot, block.Hash
	}
	assert.Equal(t, roots[0], roots[1])
	assert.Equal(t, hashes[0], hashes[1])
}

func TestTimeControl(t *testing.T) {
	t.Run("set timestamp earlier than parent", func(t *testing.T) {
		e := newSeqEnv(t, 0)
		parent, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		require.Equal(t, uint64(startTime.Unix()), parent.Timestamp)

		earlier := parent.Timestamp - 1000
		require.NoError(t, e.seq.SetNextBlockTimestamp(earlier))
		assert.Equal(t, earlier, e.seq.PendingEnv().Timestamp)
		block, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		assert.Equal(t, earlier, block.Timestamp)

		e.now = e.now.Add(10 * time.Second)
		next, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		assert.Equal(t, earlier+10, next.Timestamp)
	})

	t.Run("increase timestamp", func(t *testing.T) {
		e := newSeqEnv(t, 0)
		require.NoError(t, e.seq.IncreaseNextBlockTimestamp(3600))
		block, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		assert.Equal(t, uint64(startTime.Unix())+3600, block.Timestamp)

		next, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		assert.Equal(t, uint64(startTime.Unix())+3600, next.Timestamp)
	})

	t.Run("pending transactions", func(t *testing.T) {
		e := newSeqEnv(t, 0)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		pending := e.seq.SubscribePending()
		defer pending.Unsubscribe()
		go func() { done <- e.seq.Run(ctx) }()

		txn := e.transfer(0, e.accounts[1].Address, 100, 0)
		e.push(txn)
		select {
		case block := <-pending.Recv():
			require.Len(t, block.Transactions, 1)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "pending block not received")
		}
		assert.True(t, e.seq.Contains(txn.Hash()))
		require.ErrorIs(t, e.seq.SetNextBlockTimestamp(0), sequencer.ErrPendingTransactions)
		require.ErrorIs(t, e.seq.IncreaseNextBlockTimestamp(1), sequencer.ErrPendingTransactions)

		st, closer, err := e.seq.PendingState()
		require.NoError(t, err)
		nonce, err := st.ContractNonce(&e.accounts[0].Address)
		require.NoError(t, err)
		assert.Equal(t, felt.One, nonce)
		require.NoError(t, closer())

		block, err := e.seq.GenerateBlock()
		require.NoError(t, err)
		assert.Len(t, block.Transactions, 1)
		assert.False(t, e.seq.Contains(txn.Hash()))

		cancel()
		require.NoError(t, <-done)
	})
}

func TestBlockInterval(t *testing.T) {
	e := newSeqEnv(t, 10*time.Millisecond)
	heads := e.seq.SubscribeNewHeads()
	defer heads.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.seq.Run(ctx) }()

	for want := uint64(1); want <= 2; want++ {
		select {
		case block := <-heads.Recv():
			assert.Equal(t, want, block.Number)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "block not sealed")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, e.head().Number, uint64(2))
}

func TestSetStorageAt(t *testing.T) {
	e := newSeqEnv(t, 0)
	key, value := *felt.New(0xabc), *felt.New(0xdef)
	require.NoError(t, e.seq.SetStorageAt(e.accounts[0].Address, key, value))
	require.ErrorIs(t, e.seq.SetStorageAt(*felt.New(0xdead), key, value), state.ErrContractNotDeployed)

	pending := e.seq.Pending()
	assert.Equal(t, value, pending.StateDiff.StorageDiffs[e.accounts[0].Address][key])

	_, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	stored, err := e.headState().ContractStorage(&e.accounts[0].Address, &key)
	require.NoError(t, err)
	assert.Equal(t, value, stored)
}

func TestExecutionFailures(t *testing.T) {
	chain, accounts := newChain(t)
	log := utils.NewNopZapLogger()
	ctrl := gomock.NewController(t)
	mockVM := mocks.NewMockVM(ctrl)
	executor := mocks.NewMockBlockExecutor(ctrl)
	mockVM.EXPECT().NewBlockExecutor(gomock.Any(), gomock.Any(), gomock.Any()).Return(executor).AnyTimes()

	pool := mempool.New(chain, mempool.Config{}, log)
	seq, err := sequencer.New(chain, mockVM, pool, seqConfig(0), log)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, seq.Close()) })

	txn := &core.InvokeTransaction{
		Version:              core.NewTransactionVersion(1),
		SenderAddress:        accounts[0].Address,
		MaxFee:               *felt.New(1),
		TransactionSignature: []felt.Felt{felt.One},
	}
	hash, err := core.TransactionHash(txn, &chainID)
	require.NoError(t, err)
	txn.TransactionHash = *hash

	t.Run("dropped", func(t *testing.T) {
		require.NoError(t, pool.Push(&mempool.BroadcastedTransaction{Transaction: txn}))
		executor.EXPECT().Execute(txn, nil).Return(nil, errors.New("cannot execute"))
		executor.EXPECT().TakeExecutionOutput().Return(&vm.ExecutionOutput{
			StateDiff: core.NewStateDiff(),
			Classes:   make(map[felt.Felt]state.DeclaredClass),
		})

		block, err := seq.GenerateBlock()
		require.NoError(t, err)
		assert.Empty(t, block.Transactions)
		assert.Zero(t, pool.Len())
	})

	t.Run("corruption", func(t *testing.T) {
		require.NoError(t, pool.Push(&mempool.BroadcastedTransaction{Transaction: txn}))
		corruption := &db.Error{Kind: db.KindCorruption, Err: errors.New("bad node")}
		executor.EXPECT().Execute(txn, nil).Return(nil, corruption)

		_, err := seq.GenerateBlock()
		require.ErrorIs(t, err, corruption)
	})
}

func TestFailedStoreKeepsPendingBlock(t *testing.T) {
	database := &flakyDB{DB: pebble.NewMemTest(t)}
	chain, accounts := newChainWithDB(t, database)
	e := newSeqEnvWithChain(t, chain, accounts, 0)

	first := e.transfer(0, e.accounts[1].Address, 100, 0)
	e.push(first)
	database.failures.Store(1)
	_, err := e.seq.GenerateBlock()
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, uint64(0), e.head().Number)
	assert.True(t, e.seq.Contains(first.Hash()))
	assert.Zero(t, e.pool.Len())
	require.ErrorIs(t, e.pool.Push(&mempool.BroadcastedTransaction{Transaction: first}), mempool.ErrAlreadyKnown)
	require.ErrorIs(t, e.seq.SetNextBlockTimestamp(0), sequencer.ErrPendingTransactions)

	second := e.transfer(1, e.accounts[0].Address, 7, 0)
	e.push(second)
	block, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Number)
	require.Len(t, block.Transactions, 2)
	assert.Equal(t, first.Hash(), block.Transactions[0].Hash())
	assert.Equal(t, second.Hash(), block.Transactions[1].Hash())

	st := e.headState()
	for _, account := range e.accounts {
		nonce, err := st.ContractNonce(&account.Address)
		require.NoError(t, err)
		assert.Equal(t, felt.One, nonce)
	}
	fee, err := block.Receipts[1].Fee.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(initialBalance+100-7)-fee, balanceOf(t, st, e.accounts[1].Address))
}

func TestFailedStoreStopsRun(t *testing.T) {
	database := &flakyDB{DB: pebble.NewMemTest(t)}
	chain, accounts := newChainWithDB(t, database)
	e := newSeqEnvWithChain(t, chain, accounts, 0)

	done := make(chan error, 1)
	go func() { done <- e.seq.Run(context.Background()) }()

	database.failures.Store(1)
	_, err := e.seq.GenerateBlock()
	require.ErrorIs(t, err, errDiskFull)
	select {
	case err = <-done:
		require.ErrorIs(t, err, errDiskFull)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "sequencer kept running")
	}
}

func TestL1HandlerDeliveredOnce(t *testing.T) {
	e := newSeqEnv(t, 0)
	handler := &core.L1HandlerTransaction{
		Version:            core.NewTransactionVersion(0),
		ContractAddress:    *vm.ETHFeeTokenAddress,
		EntryPointSelector: *crypto.Selector("handle_deposit"),
		CallData:           []felt.Felt{*felt.New(0xe7), *felt.New(3)},
		Nonce:              *felt.New(1),
	}
	hash, err := core.TransactionHash(handler, &chainID)
	require.NoError(t, err)
	handler.TransactionHash = *hash

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	pending := e.seq.SubscribePending()
	defer pending.Unsubscribe()
	go func() { done <- e.seq.Run(ctx) }()

	e.push(handler)
	select {
	case block := <-pending.Recv():
		require.Len(t, block.Transactions, 1)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "pending block not received")
	}
	require.ErrorIs(t, e.pool.Push(&mempool.BroadcastedTransaction{Transaction: handler}), mempool.ErrAlreadyKnown)

	block, err := e.seq.GenerateBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, handler.Hash(), block.Transactions[0].Hash())
	require.ErrorIs(t, e.pool.Push(&mempool.BroadcastedTransaction{Transaction: handler}), mempool.ErrAlreadyKnown)

	cancel()
	require.NoError(t, <-done)
}
