package rpc

import (
	"context"
	stdsync "sync"
	"sync/atomic"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/feed"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/starknet/compiler"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/sourcegraph/conc"
)

const SpecVersion = "0.6.0"

// Sequencer is the block producer as seen by the handlers.
type Sequencer interface {
	Pending() *blockchain.Pending
	PendingState() (state.Reader, blockchain.StateCloser, error)
	PendingEnv() core.BlockEnv
	GenerateBlock() (*core.Block, error)
	SetNextBlockTimestamp(timestamp uint64) error
	IncreaseNextBlockTimestamp(delta uint64) error
	SetStorageAt(address, key, value felt.Felt) error
	SubscribeNewHeads() *feed.Subscription[*core.Block]
}

// Pool is the transaction pool as seen by the handlers.
type Pool interface {
	Push(txn *mempool.BroadcastedTransaction) error
	Transaction(hash *felt.Felt) (core.Transaction, bool)
	SubscribeReceived() *feed.Subscription[core.Transaction]
}

type Handler struct {
	bcReader  blockchain.Reader
	sequencer Sequencer
	pool      Pool
	vm        vm.VM
	compiler  compiler.Compiler
	log       utils.SimpleLogger

	devAccounts  []DevAccount
	callMaxSteps uint64
	filterLimit  uint
	maxProofKeys uint64

	newHeads    *feed.Feed[*core.Block]
	receivedTxs *feed.Feed[core.Transaction]

	idgen         func() SubscriptionID
	subscriptions stdsync.Map // map[SubscriptionID]*subscription
}

type subscription struct {
	cancel func()
	wg     conc.WaitGroup
	conn   jsonrpc.Conn
}

// New creates a handler serving reads from bcReader. Pending reads and writes need WithSequencer and
// WithPool.
func New(bcReader blockchain.Reader, virtualMachine vm.VM, log utils.SimpleLogger) *Handler {
	var lastID atomic.Uint64
	return &Handler{
		bcReader:     bcReader,
		vm:           virtualMachine,
		compiler:     compiler.New(1, log),
		log:          log,
		callMaxSteps: vm.DefaultInvokeMaxSteps,
		filterLimit:  ^uint(0),
		maxProofKeys: MaxProofKeys,
		newHeads:     feed.New[*core.Block](),
		receivedTxs:  feed.New[core.Transaction](),
		idgen: func() SubscriptionID {
			return SubscriptionID(lastID.Add(1))
		},
	}
}

func (h *Handler) WithSequencer(sequencer Sequencer) *Handler {
	h.sequencer = sequencer
	return h
}

func (h *Handler) WithPool(pool Pool) *Handler {
	h.pool = pool
	return h
}

func (h *Handler) WithCompiler(c compiler.Compiler) *Handler {
	h.compiler = c
	return h
}

func (h *Handler) WithDevAccounts(accounts []DevAccount) *Handler {
	h.devAccounts = accounts
	return h
}

// WithCallMaxSteps bounds the steps of a starknet_call.
func (h *Handler) WithCallMaxSteps(maxSteps uint64) *Handler {
	h.callMaxSteps = maxSteps
	return h
}

// WithFilterLimit sets the maximum number of blocks to scan in a single call for event filtering.
func (h *Handler) WithFilterLimit(limit uint) *Handler {
	h.filterLimit = limit
	return h
}

func (h *Handler) WithMaxProofKeys(limit uint64) *Handler {
	h.maxProofKeys = limit
	return h
}

func (h *Handler) WithIDGen(idgen func() SubscriptionID) *Handler {
	h.idgen = idgen
	return h
}

// Run feeds the subscriptions until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	if h.sequencer != nil {
		newHeadsSub := h.sequencer.SubscribeNewHeads()
		defer newHeadsSub.Unsubscribe()
		feed.Tee(newHeadsSub, h.newHeads)
	}
	if h.pool != nil {
		receivedSub := h.pool.SubscribeReceived()
		defer receivedSub.Unsubscribe()
		feed.Tee(receivedSub, h.receivedTxs)
	}

	<-ctx.Done()
	h.subscriptions.Range(func(key, value any) bool {
		sub := value.(*subscription)
		sub.cancel()
		sub.wg.Wait()
		return true
	})
	return nil
}

func (h *Handler) SpecVersion() (string, *jsonrpc.Error) {
	return SpecVersion, nil
}

func (h *Handler) callAndLogErr(f func() error, msg string) {
	if err := f(); err != nil {
		h.log.Errorw(msg, "err", err)
	}
}

func (h *Handler) Methods() []jsonrpc.Method { //nolint:funlen
	return []jsonrpc.Method{
		{
			Name:    "starknet_specVersion",
			Handler: h.SpecVersion,
		},
		{
			Name:    "starknet_chainId",
			Handler: h.ChainID,
		},
		{
			Name:    "starknet_syncing",
			Handler: h.Syncing,
		},
		{
			Name:    "starknet_blockNumber",
			Handler: h.BlockNumber,
		},
		{
			Name:    "starknet_blockHashAndNumber",
			Handler: h.BlockHashAndNumber,
		},
		{
			Name:    "starknet_getBlockWithTxHashes",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxHashes,
		},
		{
			Name:    "starknet_getBlockWithTxs",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxs,
		},
		{
			Name:    "starknet_getBlockWithReceipts",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithReceipts,
		},
		{
			Name:    "starknet_getBlockTransactionCount",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockTransactionCount,
		},
		{
			Name:    "starknet_getStateUpdate",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.StateUpdate,
		},
		{
			Name:    "starknet_getStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "block_id"}},
			Handler: h.StorageAt,
		},
		{
			Name:    "starknet_getNonce",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.Nonce,
		},
		{
			Name: "starknet_getProof",
			Params: []jsonrpc.Parameter{
				{Name: "block_id"},
				{Name: "class_hashes", Optional: true},
				{Name: "contract_addresses", Optional: true},
				{Name: "contracts_storage_keys", Optional: true},
			},
			Handler: h.Proof,
		},
		{
			Name:    "starknet_getTransactionByHash",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionByHash,
		},
		{
			Name:    "starknet_getTransactionByBlockIdAndIndex",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "index"}},
			Handler: h.TransactionByBlockIDAndIndex,
		},
		{
			Name:    "starknet_getTransactionReceipt",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionReceiptByHash,
		},
		{
			Name:    "starknet_getTransactionStatus",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionStatus,
		},
		{
			Name:    "starknet_pendingTransactions",
			Handler: h.PendingTransactions,
		},
		{
			Name:    "starknet_getClass",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "class_hash"}},
			Handler: h.Class,
		},
		{
			Name:    "starknet_getClassAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassAt,
		},
		{
			Name:    "starknet_getClassHashAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassHashAt,
		},
		{
			Name:    "starknet_getCompiledCasm",
			Params:  []jsonrpc.Parameter{{Name: "class_hash"}},
			Handler: h.CompiledCasm,
		},
		{
			Name:    "starknet_getEvents",
			Params:  []jsonrpc.Parameter{{Name: "filter"}},
			Handler: h.Events,
		},
		{
			Name:    "starknet_call",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "block_id"}},
			Handler: h.Call,
		},
		{
			Name:    "starknet_estimateFee",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "simulation_flags"}, {Name: "block_id"}},
			Handler: h.EstimateFee,
		},
		{
			Name:    "starknet_estimateMessageFee",
			Params:  []jsonrpc.Parameter{{Name: "message"}, {Name: "block_id"}},
			Handler: h.EstimateMessageFee,
		},
		{
			Name:    "starknet_simulateTransactions",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "transactions"}, {Name: "simulation_flags"}},
			Handler: h.SimulateTransactions,
		},
		{
			Name:    "starknet_addInvokeTransaction",
			Params:  []jsonrpc.Parameter{{Name: "invoke_transaction"}},
			Handler: h.AddInvokeTransaction,
		},
		{
			Name:    "starknet_addDeclareTransaction",
			Params:  []jsonrpc.Parameter{{Name: "declare_transaction"}},
			Handler: h.AddDeclareTransaction,
		},
		{
			Name:    "starknet_addDeployAccountTransaction",
			Params:  []jsonrpc.Parameter{{Name: "deploy_account_transaction"}},
			Handler: h.AddDeployAccountTransaction,
		},
		{
			Name:         "starknet_subscribeNewHeads",
			Handler:      h.SubscribeNewHeads,
			Subscription: true,
		},
		{
			Name:         "starknet_subscribeEvents",
			Params:       []jsonrpc.Parameter{{Name: "from_address", Optional: true}, {Name: "keys", Optional: true}},
			Handler:      h.SubscribeEvents,
			Subscription: true,
		},
		{
			Name: "starknet_subscribePendingTransactions",
			Params: []jsonrpc.Parameter{
				{Name: "transaction_details", Optional: true},
				{Name: "sender_address", Optional: true},
			},
			Handler:      h.SubscribePendingTxs,
			Subscription: true,
		},
		{
			Name:    "starknet_unsubscribe",
			Params:  []jsonrpc.Parameter{{Name: "subscription_id"}},
			Handler: h.Unsubscribe,
		},
		{
			Name:    "dev_generateBlock",
			Handler: h.GenerateBlock,
		},
		{
			Name:    "dev_setNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "timestamp"}},
			Handler: h.SetNextBlockTimestamp,
		},
		{
			Name:    "dev_increaseNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "delta"}},
			Handler: h.IncreaseNextBlockTimestamp,
		},
		{
			Name:    "dev_predeployedAccounts",
			Handler: h.PredeployedAccounts,
		},
		{
			Name:    "dev_setStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "value"}},
			Handler: h.SetStorageAt,
		},
	}
}
