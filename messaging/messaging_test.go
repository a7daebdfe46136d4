package messaging_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/pebble"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/messaging"
	"github.com/NethermindEth/katana-go/mocks"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var chainID = *new(felt.Felt).SetBytes([]byte("KATANA"))

func message(nonce uint64) messaging.Message {
	return messaging.Message{
		From:        *felt.New(0xe7),
		To:          *felt.New(0xc0),
		Selector:    *felt.New(0x5e1),
		Payload:     []felt.Felt{*felt.New(1), *felt.New(2)},
		Nonce:       *felt.New(nonce),
		Fee:         *felt.New(1000),
		BlockNumber: 3,
	}
}

func TestMessageTransaction(t *testing.T) {
	msg := message(7)
	txn, err := msg.Transaction(&chainID)
	require.NoError(t, err)

	assert.Equal(t, msg.To, txn.ContractAddress)
	assert.Equal(t, msg.Selector, txn.EntryPointSelector)
	assert.Equal(t, []felt.Felt{msg.From, *felt.New(1), *felt.New(2)}, txn.CallData)
	assert.Equal(t, msg.Fee, txn.PaidFeeOnL1)
	require.NoError(t, core.VerifyTransactionHash(txn, &chainID))

	again, err := msg.Transaction(&chainID)
	require.NoError(t, err)
	assert.Equal(t, txn.TransactionHash, again.TransactionHash)

	other := message(8)
	otherTxn, err := other.Transaction(&chainID)
	require.NoError(t, err)
	assert.NotEqual(t, txn.TransactionHash, otherTxn.TransactionHash)
}

func newPool(t *testing.T, database db.DB) *mempool.Pool {
	t.Helper()
	chain, err := blockchain.New(database, &chainID)
	require.NoError(t, err)
	return mempool.New(chain, mempool.Config{}, utils.NewNopZapLogger())
}

// run starts service and returns a function stopping it.
func run(t *testing.T, service *messaging.Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestServiceSubmitsAndCheckpoints(t *testing.T) {
	database := pebble.NewMemTest(t)
	pool := newPool(t, database)
	ctrl := gomock.NewController(t)
	cfg := messaging.Config{Interval: 10 * time.Millisecond, FromBlock: 2}

	messages := []messaging.Message{message(0), message(1)}
	source := mocks.NewMockSource(ctrl)
	source.EXPECT().LatestBlock(gomock.Any()).Return(uint64(5), nil).MinTimes(1)
	source.EXPECT().Messages(gomock.Any(), uint64(2), uint64(5)).Return(messages, nil)

	service := messaging.New(messaging.ModeEthereum, source, pool, database, &chainID, cfg, utils.NewNopZapLogger())
	stop := run(t, service)
	require.Eventually(t, func() bool {
		last, found, err := service.Checkpoint()
		return err == nil && found && last == 5
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	for i := range messages {
		txn, err := messages[i].Transaction(&chainID)
		require.NoError(t, err)
		pooled, ok := pool.Transaction(&txn.TransactionHash)
		require.True(t, ok)
		assert.Equal(t, txn, pooled)
	}

	t.Run("resumes after the checkpoint", func(t *testing.T) {
		restarted := mocks.NewMockSource(ctrl)
		restarted.EXPECT().LatestBlock(gomock.Any()).Return(uint64(7), nil).MinTimes(1)
		// A message delivered before the restart is skipped by the pool.
		restarted.EXPECT().Messages(gomock.Any(), uint64(6), uint64(7)).Return(messages[1:], nil)

		service := messaging.New(messaging.ModeEthereum, restarted, pool, database, &chainID, cfg,
			utils.NewNopZapLogger())
		stop := run(t, service)
		require.Eventually(t, func() bool {
			last, _, err := service.Checkpoint()
			return err == nil && last == 7
		}, 5*time.Second, 10*time.Millisecond)
		stop()
		assert.Equal(t, 2, pool.Len())
	})

	t.Run("checkpoints are kept per mode", func(t *testing.T) {
		service := messaging.New(messaging.ModeStarknet, source, pool, database, &chainID, cfg, utils.NewNopZapLogger())
		_, found, err := service.Checkpoint()
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestServiceBoundsPollRange(t *testing.T) {
	database := pebble.NewMemTest(t)
	ctrl := gomock.NewController(t)
	cfg := messaging.Config{Interval: 10 * time.Millisecond, MaxBlocks: 10}

	source := mocks.NewMockSource(ctrl)
	source.EXPECT().LatestBlock(gomock.Any()).Return(uint64(25), nil).MinTimes(1)
	gomock.InOrder(
		source.EXPECT().Messages(gomock.Any(), uint64(0), uint64(9)).Return(nil, nil),
		source.EXPECT().Messages(gomock.Any(), uint64(10), uint64(19)).Return(nil, nil),
		source.EXPECT().Messages(gomock.Any(), uint64(20), uint64(25)).Return(nil, nil),
	)

	service := messaging.New(messaging.ModeEthereum, source, newPool(t, database), database, &chainID, cfg,
		utils.NewNopZapLogger())
	stop := run(t, service)
	require.Eventually(t, func() bool {
		last, _, err := service.Checkpoint()
		return err == nil && last == 25
	}, 5*time.Second, 10*time.Millisecond)
	stop()
}

func TestServiceSurvivesPollFailures(t *testing.T) {
	database := pebble.NewMemTest(t)
	ctrl := gomock.NewController(t)
	cfg := messaging.Config{Interval: time.Millisecond}

	source := mocks.NewMockSource(ctrl)
	gomock.InOrder(
		source.EXPECT().LatestBlock(gomock.Any()).Return(uint64(0), errors.New("connection refused")),
		source.EXPECT().LatestBlock(gomock.Any()).Return(uint64(1), nil),
		source.EXPECT().Messages(gomock.Any(), uint64(0), uint64(1)).Return(nil, errors.New("timeout")),
		source.EXPECT().LatestBlock(gomock.Any()).Return(uint64(1), nil).MinTimes(1),
	)
	source.EXPECT().Messages(gomock.Any(), uint64(0), uint64(1)).Return([]messaging.Message{message(0)}, nil)

	var failures atomic.Int32
	service := messaging.New(messaging.ModeEthereum, source, newPool(t, database), database, &chainID, cfg,
		utils.NewNopZapLogger()).
		WithListener(&messaging.SelectiveListener{OnPollFailedCb: func() { failures.Add(1) }})
	stop := run(t, service)
	require.Eventually(t, func() bool {
		last, found, err := service.Checkpoint()
		return err == nil && found && last == 1
	}, 10*time.Second, 10*time.Millisecond)
	stop()
	assert.Equal(t, int32(2), failures.Load())
}

func TestModeValid(t *testing.T) {
	for _, mode := range []messaging.Mode{messaging.ModeSovereign, messaging.ModeEthereum, messaging.ModeStarknet} {
		assert.True(t, mode.Valid(), mode)
	}
	assert.False(t, messaging.Mode("bitcoin").Valid())
}
