package rpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mocks"
	"github.com/NethermindEth/katana-go/rpc"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func nopCloser() error { return nil }

func TestSpecVersion(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger())
	version, rpcErr := handler.SpecVersion()
	require.Nil(t, rpcErr)
	assert.Equal(t, "0.6.0", version)
}

func TestMethodsRegister(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger())
	server := jsonrpc.NewServer(1, utils.NewNopZapLogger())
	require.NoError(t, server.RegisterMethods(handler.Methods()...))
}

func TestChainID(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	mockReader.EXPECT().ChainID().Return(&chainID)
	id, rpcErr := handler.ChainID()
	require.Nil(t, rpcErr)
	assert.Equal(t, &chainID, id)
}

func TestBlockNumber(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	t.Run("empty chain", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(0), db.ErrKeyNotFound)
		_, rpcErr := handler.BlockNumber()
		assert.Equal(t, rpc.ErrNoBlocks, rpcErr)
	})

	t.Run("internal error is redacted", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(0), errors.New("disk on fire"))
		_, rpcErr := handler.BlockNumber()
		assert.Equal(t, rpc.ErrInternal, rpcErr)
		assert.Nil(t, rpcErr.Data)
	})

	t.Run("height", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(42), nil)
		num, rpcErr := handler.BlockNumber()
		require.Nil(t, rpcErr)
		assert.Equal(t, uint64(42), num)
	})
}

func TestBlockWithTxHashesNotFound(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	mockReader.EXPECT().BlockByNumber(uint64(7)).Return(nil, db.ErrKeyNotFound)
	_, rpcErr := handler.BlockWithTxHashes(rpc.BlockID{Number: 7})
	assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)

	t.Run("pending without a sequencer", func(t *testing.T) {
		_, rpcErr := handler.BlockWithTxHashes(pending())
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}

func TestTransactionByHashNotFound(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	hash := felt.New(0xdead)
	mockReader.EXPECT().TransactionByHash(hash).Return(nil, db.ErrKeyNotFound)
	_, rpcErr := handler.TransactionByHash(*hash)
	assert.Equal(t, rpc.ErrTxnHashNotFound, rpcErr)
}

func TestTransactionByBlockIDAndIndex(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	t.Run("negative index", func(t *testing.T) {
		_, rpcErr := handler.TransactionByBlockIDAndIndex(latest(), -1)
		assert.Equal(t, rpc.ErrInvalidTxnIndex, rpcErr)
	})

	t.Run("index out of range", func(t *testing.T) {
		mockReader.EXPECT().HeadsHeader().Return(&core.Header{Number: 3}, nil)
		mockReader.EXPECT().TransactionByBlockNumberAndIndex(uint64(3), uint64(5)).Return(nil, db.ErrKeyNotFound)
		_, rpcErr := handler.TransactionByBlockIDAndIndex(latest(), 5)
		assert.Equal(t, rpc.ErrInvalidTxnIndex, rpcErr)
	})
}

func TestStorageAt(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	mockState := mocks.NewMockStateReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	address, key := felt.New(0xa), felt.New(0x1)

	t.Run("contract not deployed", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(1), nil)
		mockReader.EXPECT().HeadState().Return(mockState, nopCloser, nil)
		mockState.EXPECT().ContractClassHash(address).Return(felt.Zero, state.ErrContractNotDeployed)
		_, rpcErr := handler.StorageAt(*address, *key, latest())
		assert.Equal(t, rpc.ErrContractNotFound, rpcErr)
	})

	t.Run("unknown block", func(t *testing.T) {
		mockReader.EXPECT().StateAtBlockNumber(uint64(9)).Return(nil, nil, db.ErrKeyNotFound)
		_, rpcErr := handler.StorageAt(*address, *key, rpc.BlockID{Number: 9})
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})

	t.Run("value", func(t *testing.T) {
		mockReader.EXPECT().StateAtBlockHash(felt.New(0xb1)).Return(mockState, nopCloser, nil)
		mockState.EXPECT().ContractClassHash(address).Return(*felt.New(0xc), nil)
		mockState.EXPECT().ContractStorage(address, key).Return(*felt.New(77), nil)
		value, rpcErr := handler.StorageAt(*address, *key, rpc.BlockID{Hash: felt.New(0xb1)})
		require.Nil(t, rpcErr)
		assert.Equal(t, felt.New(77), value)
	})
}

func TestNonceContractNotFound(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	mockState := mocks.NewMockStateReader(mockCtrl)
	handler := rpc.New(mockReader, nil, utils.NewNopZapLogger())

	address := felt.New(0xa)
	mockReader.EXPECT().StateAtBlockNumber(uint64(0)).Return(mockState, nopCloser, nil)
	mockState.EXPECT().ContractNonce(address).Return(felt.Zero, state.ErrContractNotDeployed)
	_, rpcErr := handler.Nonce(rpc.BlockID{Number: 0}, *address)
	assert.Equal(t, rpc.ErrContractNotFound, rpcErr)
}

func TestProofLimit(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger()).WithMaxProofKeys(2)

	_, rpcErr := handler.Proof(latest(), []felt.Felt{*felt.New(1)}, []felt.Felt{*felt.New(2)},
		[]rpc.StorageKeys{{Contract: *felt.New(2), Keys: []felt.Felt{*felt.New(3)}}})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.ErrProofLimitExceeded.Code, rpcErr.Code)
	assert.Equal(t, rpc.ProofLimitExceededData{Limit: 2, Total: 3}, rpcErr.Data)

	t.Run("pending block has no proof", func(t *testing.T) {
		_, rpcErr := handler.Proof(pending(), nil, nil, nil)
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}

func TestEventsLimits(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger())

	t.Run("page size", func(t *testing.T) {
		args := rpc.EventsArg{ResultPageRequest: rpc.ResultPageRequest{ChunkSize: rpc.MaxEventChunkSize + 1}}
		_, rpcErr := handler.Events(args)
		assert.Equal(t, rpc.ErrPageSizeTooBig, rpcErr)
	})

	t.Run("too many keys", func(t *testing.T) {
		keys := make([][]felt.Felt, 1)
		keys[0] = make([]felt.Felt, rpc.MaxEventFilterKeys)
		args := rpc.EventsArg{
			EventFilter:       rpc.EventFilter{Keys: keys},
			ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1},
		}
		_, rpcErr := handler.Events(args)
		assert.Equal(t, rpc.ErrTooManyKeysInFilter, rpcErr)
	})

	t.Run("invalid continuation token", func(t *testing.T) {
		args := rpc.EventsArg{ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1, ContinuationToken: "nope"}}
		_, rpcErr := handler.Events(args)
		assert.Equal(t, rpc.ErrInvalidContinuationToken, rpcErr)
	})
}

func TestCallErrors(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(mockCtrl)
	mockState := mocks.NewMockStateReader(mockCtrl)
	mockVM := mocks.NewMockVM(mockCtrl)
	handler := rpc.New(mockReader, mockVM, utils.NewNopZapLogger())

	header := &core.Header{Number: 1}
	call := rpc.FunctionCall{ContractAddress: *felt.New(0xa), EntryPointSelector: *felt.New(0x5)}

	tests := map[string]struct {
		err  error
		want *jsonrpc.Error
	}{
		"contract not deployed": {err: state.ErrContractNotDeployed, want: rpc.ErrContractNotFound},
		"missing entry point":   {err: vm.ErrEntryPointNotFound, want: rpc.ErrInvalidMessageSelector},
		"bad calldata":          {err: &vm.ExecutionError{Cause: vm.ErrInvalidCalldata}, want: rpc.ErrInvalidCallData},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mockReader.EXPECT().HeadsHeader().Return(header, nil)
			mockReader.EXPECT().Height().Return(uint64(1), nil)
			mockReader.EXPECT().HeadState().Return(mockState, nopCloser, nil)
			mockVM.EXPECT().Call(gomock.Any(), gomock.Any(), mockState, uint64(vm.DefaultInvokeMaxSteps)).Return(nil, test.err)
			_, rpcErr := handler.Call(call, latest())
			assert.Equal(t, test.want, rpcErr)
		})
	}
}

func TestUnsubscribeOverHTTP(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger())
	_, rpcErr := handler.Unsubscribe(context.Background(), 1)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.MethodNotFound, rpcErr.Code)

	_, rpcErr = handler.SubscribeNewHeads(context.Background())
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.MethodNotFound, rpcErr.Code)
}

func TestDevMethodsWithoutSequencer(t *testing.T) {
	handler := rpc.New(nil, nil, utils.NewNopZapLogger())

	_, rpcErr := handler.GenerateBlock()
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.MethodNotFound, rpcErr.Code)

	accounts, rpcErr := handler.PredeployedAccounts()
	require.Nil(t, rpcErr)
	assert.Empty(t, accounts)

	_, rpcErr = handler.PendingTransactions()
	assert.Equal(t, rpc.ErrFailedToFetchPendingTransactions, rpcErr)
}
