package rpc_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/rpc"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddInvokeTransactionLifecycle(t *testing.T) {
	d := newDevnet(t)
	ctx := context.Background()
	txn := d.transfer(0, d.accounts[1].Address, 100, 0)

	resp, rpcErr := d.handler.AddInvokeTransaction(ctx, broadcasted(txn))
	require.Nil(t, rpcErr)
	assert.Equal(t, txn.TransactionHash, *resp.TransactionHash)

	status, rpcErr := d.handler.TransactionStatus(txn.TransactionHash)
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.TxnStatusReceived, status.Finality)

	t.Run("resubmission is rejected", func(t *testing.T) {
		_, rpcErr := d.handler.AddInvokeTransaction(ctx, broadcasted(txn))
		require.NotNil(t, rpcErr)
		assert.Equal(t, rpc.ErrFailedToReceiveTxn.Code, rpcErr.Code)
	})

	block, rpcErr := d.handler.GenerateBlock()
	require.Nil(t, rpcErr)
	assert.Equal(t, uint64(1), block.Number)

	status, rpcErr = d.handler.TransactionStatus(txn.TransactionHash)
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.TxnStatusAcceptedOnL2, status.Finality)
	assert.Equal(t, rpc.TxnSuccess, status.Execution)

	receipt, rpcErr := d.handler.TransactionReceiptByHash(txn.TransactionHash)
	require.Nil(t, rpcErr)
	require.NotNil(t, receipt.BlockNumber)
	assert.Equal(t, uint64(1), *receipt.BlockNumber)
	assert.Equal(t, block.Hash, receipt.BlockHash)
	assert.Equal(t, rpc.WEI, receipt.ActualFee.Unit)
	assert.NotEmpty(t, receipt.Events)

	adapted, rpcErr := d.handler.TransactionByHash(txn.TransactionHash)
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.TxnInvoke, adapted.Type)
	assert.Equal(t, &txn.SenderAddress, adapted.SenderAddress)

	byIndex, rpcErr := d.handler.TransactionByBlockIDAndIndex(latest(), 0)
	require.Nil(t, rpcErr)
	assert.Equal(t, adapted.Hash, byIndex.Hash)

	withHashes, rpcErr := d.handler.BlockWithTxHashes(latest())
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.BlockAcceptedL2, withHashes.Status)
	assert.Equal(t, []*felt.Felt{&txn.TransactionHash}, withHashes.TxnHashes)

	count, rpcErr := d.handler.BlockTransactionCount(rpc.BlockID{Number: 1})
	require.Nil(t, rpcErr)
	assert.Equal(t, uint64(1), count)

	nonce, rpcErr := d.handler.Nonce(latest(), txn.SenderAddress)
	require.Nil(t, rpcErr)
	assert.Equal(t, felt.New(1), nonce)

	update, rpcErr := d.handler.StateUpdate(latest())
	require.Nil(t, rpcErr)
	assert.Equal(t, block.Hash, update.BlockHash)
	assert.NotEmpty(t, update.StateDiff.StorageDiffs)
	assert.Equal(t, []rpc.Nonce{{ContractAddress: txn.SenderAddress, Nonce: *felt.New(1)}}, update.StateDiff.Nonces)
}

func TestPendingBlock(t *testing.T) {
	d := newDevnet(t)
	txn := d.transfer(0, d.accounts[1].Address, 100, 0)
	_, rpcErr := d.handler.AddInvokeTransaction(context.Background(), broadcasted(txn))
	require.Nil(t, rpcErr)
	// The sequencer is not running, sealing is what moves transactions out of the pool.
	_, rpcErr = d.handler.SetNextBlockTimestamp(uint64(startTime.Unix()) + 10)
	require.Nil(t, rpcErr)

	block, rpcErr := d.handler.BlockWithTxs(pending())
	require.Nil(t, rpcErr)
	assert.Nil(t, block.Hash)
	assert.Nil(t, block.Number)
	assert.Empty(t, block.Transactions)
	assert.Equal(t, uint64(startTime.Unix())+10, block.Timestamp)

	update, rpcErr := d.handler.StateUpdate(pending())
	require.Nil(t, rpcErr)
	assert.Nil(t, update.BlockHash)
	head, err := d.chain.HeadsHeader()
	require.NoError(t, err)
	assert.Equal(t, &head.GlobalStateRoot, update.OldRoot)

	txs, rpcErr := d.handler.PendingTransactions()
	require.Nil(t, rpcErr)
	assert.Empty(t, txs)
}

func TestCallAgainstDevnet(t *testing.T) {
	d := newDevnet(t)

	t.Run("balance", func(t *testing.T) {
		result, rpcErr := d.handler.Call(rpc.FunctionCall{
			ContractAddress:    *vm.ETHFeeTokenAddress,
			EntryPointSelector: *selector("balanceOf"),
			Calldata:           []felt.Felt{d.accounts[0].Address},
		}, latest())
		require.Nil(t, rpcErr)
		assert.Equal(t, []felt.Felt{*felt.New(initialBalance), felt.Zero}, result)
	})

	t.Run("missing calldata", func(t *testing.T) {
		_, rpcErr := d.handler.Call(rpc.FunctionCall{
			ContractAddress:    *vm.ETHFeeTokenAddress,
			EntryPointSelector: *selector("balanceOf"),
		}, latest())
		assert.Equal(t, rpc.ErrInvalidCallData, rpcErr)
	})

	t.Run("unknown selector", func(t *testing.T) {
		_, rpcErr := d.handler.Call(rpc.FunctionCall{
			ContractAddress:    *vm.ETHFeeTokenAddress,
			EntryPointSelector: *selector("mint_everything"),
		}, latest())
		assert.Equal(t, rpc.ErrInvalidMessageSelector, rpcErr)
	})

	t.Run("undeployed contract", func(t *testing.T) {
		_, rpcErr := d.handler.Call(rpc.FunctionCall{
			ContractAddress:    *felt.New(0xdead),
			EntryPointSelector: *selector("balanceOf"),
		}, pending())
		assert.Equal(t, rpc.ErrContractNotFound, rpcErr)
	})
}

func TestEstimateAndSimulate(t *testing.T) {
	d := newDevnet(t)
	ctx := context.Background()
	txn := d.transfer(0, d.accounts[1].Address, 100, 0)

	estimates, rpcErr := d.handler.EstimateFee(ctx, []rpc.BroadcastedTransaction{broadcasted(txn)}, nil, pending())
	require.Nil(t, rpcErr)
	require.Len(t, estimates, 1)
	assert.Equal(t, rpc.WEI, estimates[0].Unit)
	assert.Equal(t, felt.New(2), estimates[0].GasPrice)

	simulated, rpcErr := d.handler.SimulateTransactions(ctx, pending(), []rpc.BroadcastedTransaction{broadcasted(txn)},
		[]rpc.SimulationFlag{rpc.SkipFeeChargeFlag})
	require.Nil(t, rpcErr)
	require.Len(t, simulated, 1)
	assert.NotNil(t, simulated[0].TransactionTrace.ExecuteInvocation)
	assert.Equal(t, estimates[0].OverallFee, simulated[0].FeeEstimation.OverallFee)

	// Nothing was committed.
	nonce, rpcErr := d.handler.Nonce(pending(), txn.SenderAddress)
	require.Nil(t, rpcErr)
	assert.Equal(t, &felt.Zero, nonce)

	t.Run("a stale nonce fails the batch", func(t *testing.T) {
		_, rpcErr := d.handler.AddInvokeTransaction(ctx, broadcasted(txn))
		require.Nil(t, rpcErr)
		_, rpcErr = d.handler.GenerateBlock()
		require.Nil(t, rpcErr)

		_, rpcErr = d.handler.EstimateFee(ctx, []rpc.BroadcastedTransaction{broadcasted(txn)}, nil, latest())
		require.NotNil(t, rpcErr)
		assert.Equal(t, rpc.ErrContractError.Code, rpcErr.Code)
	})
}

func TestClasses(t *testing.T) {
	d := newDevnet(t)
	account := d.accounts[0].Address

	classHash, rpcErr := d.handler.ClassHashAt(latest(), account)
	require.Nil(t, rpcErr)
	assert.Equal(t, vm.AccountClass().Hash(), *classHash)

	definition, rpcErr := d.handler.ClassAt(latest(), account)
	require.Nil(t, rpcErr)
	assert.NotNil(t, definition)

	_, rpcErr = d.handler.Class(latest(), *felt.New(0xbad))
	assert.Equal(t, rpc.ErrClassHashNotFound, rpcErr)

	_, rpcErr = d.handler.ClassHashAt(latest(), *felt.New(0xbad))
	assert.Equal(t, rpc.ErrContractNotFound, rpcErr)

	_, rpcErr = d.handler.CompiledCasm(*felt.New(0xbad))
	assert.Equal(t, rpc.ErrClassHashNotFound, rpcErr)
}

func TestEventsAgainstDevnet(t *testing.T) {
	d := newDevnet(t)
	ctx := context.Background()
	for nonce := range uint64(2) {
		_, rpcErr := d.handler.AddInvokeTransaction(ctx, broadcasted(d.transfer(0, d.accounts[1].Address, 1, nonce)))
		require.Nil(t, rpcErr)
		_, rpcErr = d.handler.GenerateBlock()
		require.Nil(t, rpcErr)
	}

	filter := rpc.EventFilter{Address: vm.ETHFeeTokenAddress}
	all, rpcErr := d.handler.Events(rpc.EventsArg{
		EventFilter:       filter,
		ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 100},
	})
	require.Nil(t, rpcErr)
	require.NotEmpty(t, all.Events)
	assert.Empty(t, all.ContinuationToken)

	var paged []*rpc.EmittedEvent
	token := ""
	for {
		chunk, rpcErr := d.handler.Events(rpc.EventsArg{
			EventFilter:       filter,
			ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1, ContinuationToken: token},
		})
		require.Nil(t, rpcErr)
		paged = append(paged, chunk.Events...)
		if chunk.ContinuationToken == "" {
			break
		}
		token = chunk.ContinuationToken
	}
	assert.Equal(t, all.Events, paged)

	t.Run("unknown block hash", func(t *testing.T) {
		_, rpcErr := d.handler.Events(rpc.EventsArg{
			EventFilter:       rpc.EventFilter{FromBlock: &rpc.BlockID{Hash: felt.New(0xbad)}},
			ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1},
		})
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}

func TestProofAgainstDevnet(t *testing.T) {
	d := newDevnet(t)
	account := d.accounts[0].Address

	proof, rpcErr := d.handler.Proof(latest(), nil, []felt.Felt{account}, nil)
	require.Nil(t, rpcErr)
	require.Len(t, proof.ContractsProof.LeavesData, 1)
	assert.Equal(t, vm.AccountClass().Hash(), proof.ContractsProof.LeavesData[0].ClassHash)
	assert.NotEmpty(t, proof.ContractsProof.Nodes)

	head, err := d.chain.HeadsHeader()
	require.NoError(t, err)
	assert.Equal(t, head.Hash, proof.GlobalRoots.BlockHash)

	_, rpcErr = d.handler.Proof(rpc.BlockID{Number: 5}, nil, []felt.Felt{account}, nil)
	assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
}

func TestDevMethods(t *testing.T) {
	d := newDevnet(t)

	accounts, rpcErr := d.handler.PredeployedAccounts()
	require.Nil(t, rpcErr)
	require.Len(t, accounts, 2)
	assert.Equal(t, d.accounts[0].Address, accounts[0].Address)

	ok, rpcErr := d.handler.IncreaseNextBlockTimestamp(60)
	require.Nil(t, rpcErr)
	assert.True(t, ok)

	key, value := *felt.New(0x99), *felt.New(0x1234)
	ok, rpcErr = d.handler.SetStorageAt(d.accounts[0].Address, key, value)
	require.Nil(t, rpcErr)
	assert.True(t, ok)
	got, rpcErr := d.handler.StorageAt(d.accounts[0].Address, key, pending())
	require.Nil(t, rpcErr)
	assert.Equal(t, &value, got)

	_, rpcErr = d.handler.SetStorageAt(*felt.New(0xdead), key, value)
	assert.Equal(t, rpc.ErrContractNotFound, rpcErr)

	block, rpcErr := d.handler.GenerateBlock()
	require.Nil(t, rpcErr)
	header, err := d.chain.BlockHeaderByNumber(block.Number)
	require.NoError(t, err)
	assert.Equal(t, uint64(startTime.Unix())+60, header.Timestamp)

	got, rpcErr = d.handler.StorageAt(d.accounts[0].Address, key, latest())
	require.Nil(t, rpcErr)
	assert.Equal(t, &value, got)

	_, rpcErr = d.handler.SetNextBlockTimestamp(1 << 63)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.InvalidParams, rpcErr.Code)
}

func TestSubscribeNewHeads(t *testing.T) {
	d := newDevnet(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = d.handler.Run(ctx)
	}()

	server := jsonrpc.NewServer(1, utils.NewNopZapLogger())
	require.NoError(t, server.RegisterMethods(d.handler.Methods()...))

	conn := newFakeConn(`{"jsonrpc":"2.0","id":1,"method":"starknet_subscribeNewHeads"}`)
	require.NoError(t, server.HandleReadWriter(ctx, conn))
	require.Len(t, conn.messages(), 1)
	var subResp struct {
		Result rpc.SubscriptionID `json:"result"`
	}
	require.NoError(t, json.Unmarshal(conn.messages()[0], &subResp))
	require.NotZero(t, subResp.Result)

	// Run tees the sequencer feed asynchronously, keep sealing until a notification arrives.
	require.Eventually(t, func() bool {
		_, rpcErr := d.handler.GenerateBlock()
		return rpcErr == nil && len(conn.messages()) > 1
	}, 5*time.Second, 50*time.Millisecond)

	var notification struct {
		Method string `json:"method"`
		Params struct {
			SubscriptionID rpc.SubscriptionID `json:"subscription_id"`
			Result         struct {
				Number uint64 `json:"block_number"`
			} `json:"result"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(conn.messages()[1], &notification))
	assert.Equal(t, "starknet_subscriptionNewHeads", notification.Method)
	assert.Equal(t, subResp.Result, notification.Params.SubscriptionID)
	assert.NotZero(t, notification.Params.Result.Number)

	unsubscribe := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"starknet_unsubscribe","params":[%d]}`, subResp.Result)
	other := newFakeConn(unsubscribe)
	require.NoError(t, server.HandleReadWriter(ctx, other))
	require.Len(t, other.messages(), 1)
	assert.Contains(t, string(other.messages()[0]), `"error"`, "only the subscribing connection may unsubscribe")

	conn.in.WriteString(unsubscribe)
	require.NoError(t, server.HandleReadWriter(ctx, conn))
	var unsubscribed bool
	for _, msg := range conn.messages() {
		if strings.Contains(string(msg), `"id":2`) {
			unsubscribed = strings.Contains(string(msg), `"result":true`)
		}
	}
	assert.True(t, unsubscribed)
}

func selector(name string) *felt.Felt {
	return crypto.Selector(name)
}
