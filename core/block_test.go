package core_test

import (
	"encoding/binary"
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invokeV1(t *testing.T, sender, nonce uint64) *core.InvokeTransaction {
	t.Helper()
	tx := &core.InvokeTransaction{
		Version:              core.NewTransactionVersion(1),
		SenderAddress:        *felt.New(sender),
		CallData:             []felt.Felt{*felt.New(1), *felt.New(2)},
		TransactionSignature: []felt.Felt{*felt.New(3), *felt.New(4)},
		MaxFee:               *felt.New(1_000_000),
		Nonce:                *felt.New(nonce),
	}
	hash, err := core.TransactionHash(tx, &core.DefaultChainID)
	require.NoError(t, err)
	tx.TransactionHash = *hash
	return tx
}

func receiptFor(tx core.Transaction, events ...core.Event) *core.TransactionReceipt {
	return &core.TransactionReceipt{
		TransactionHash: *tx.Hash(),
		Fee:             *felt.New(10),
		Events:          events,
	}
}

func TestBlockSeal(t *testing.T) {
	t.Run("empty block", func(t *testing.T) {
		b := &core.Block{Header: &core.Header{Number: 1, ParentHash: *felt.New(7), Timestamp: 100}}
		require.NoError(t, b.Seal())
		assert.Zero(t, b.TransactionCount)
		assert.True(t, b.TransactionCommitment.IsZero())
		assert.True(t, b.EventCommitment.IsZero())
		assert.Equal(t, core.BlockHash(b.Header), b.Hash)
	})

	t.Run("counts and commitments", func(t *testing.T) {
		tx0, tx1 := invokeV1(t, 1, 0), invokeV1(t, 2, 0)
		event := core.Event{From: *felt.New(9), Keys: []felt.Felt{*felt.New(10)}, Data: []felt.Felt{*felt.New(11)}}
		b := &core.Block{
			Header:       &core.Header{Number: 2, ParentHash: *felt.New(7), Timestamp: 100},
			Transactions: []core.Transaction{tx0, tx1},
			Receipts:     []*core.TransactionReceipt{receiptFor(tx0, event), receiptFor(tx1, event, event)},
		}
		require.NoError(t, b.Seal())
		assert.Equal(t, uint64(2), b.TransactionCount)
		assert.Equal(t, uint64(3), b.EventCount)
		assert.False(t, b.TransactionCommitment.IsZero())
		assert.False(t, b.EventCommitment.IsZero())

		hash := b.Hash
		b.Transactions[0], b.Transactions[1] = b.Transactions[1], b.Transactions[0]
		b.Receipts[0], b.Receipts[1] = b.Receipts[1], b.Receipts[0]
		require.NoError(t, b.Seal())
		assert.NotEqual(t, hash, b.Hash, "order of transactions is committed to")
	})

	t.Run("hash depends on parent", func(t *testing.T) {
		h1 := &core.Header{Number: 3, ParentHash: *felt.New(1)}
		h2 := &core.Header{Number: 3, ParentHash: *felt.New(2)}
		assert.NotEqual(t, core.BlockHash(h1), core.BlockHash(h2))
	})

	t.Run("receipt mismatch", func(t *testing.T) {
		tx0, tx1 := invokeV1(t, 1, 0), invokeV1(t, 2, 0)
		b := &core.Block{
			Header:       &core.Header{},
			Transactions: []core.Transaction{tx0},
			Receipts:     []*core.TransactionReceipt{receiptFor(tx1)},
		}
		require.ErrorIs(t, b.Seal(), core.ErrReceiptMismatch)

		b.Receipts = nil
		require.ErrorIs(t, b.Seal(), core.ErrReceiptMismatch)
	})
}

func TestEventsBloom(t *testing.T) {
	from, key := felt.New(0xabc), felt.New(0xdef)
	filter := core.EventsBloom([]*core.TransactionReceipt{{
		Events: []core.Event{{From: *from, Keys: []felt.Felt{*key}}},
	}})
	fromBytes, keyBytes := from.Bytes(), key.Bytes()
	assert.True(t, filter.Test(fromBytes[:]))
	assert.True(t, filter.Test(binary.AppendVarint(keyBytes[:], 0)))
}

func TestHeaderEnv(t *testing.T) {
	h := &core.Header{
		Number:           5,
		Timestamp:        77,
		SequencerAddress: *felt.New(3),
		L1GasPrice:       core.GasPrice{PriceInWei: *felt.New(100), PriceInFri: *felt.New(200)},
		ProtocolVersion:  core.LatestProtocolVersion,
	}
	env := h.Env()
	assert.Equal(t, uint64(5), env.Number)
	assert.Equal(t, uint64(77), env.Timestamp)
	assert.Equal(t, *felt.New(100), env.GasPriceFor(core.WEI))
	assert.Equal(t, *felt.New(200), env.GasPriceFor(core.STRK))
}

func TestProtocolVersion(t *testing.T) {
	require.NoError(t, core.CheckProtocolVersion(core.LatestProtocolVersion))
	require.NoError(t, core.CheckProtocolVersion("0.12"))
	require.NoError(t, core.CheckProtocolVersion(""))
	require.Error(t, core.CheckProtocolVersion("0.14.0"))
	require.Error(t, core.CheckProtocolVersion("abc"))

	v, err := core.ParseBlockVersion("0.13.1.1")
	require.NoError(t, err)
	assert.Equal(t, "0.13.1", v.String())
}
