package core_test

import (
	"math/big"
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionVersion(t *testing.T) {
	v := core.NewTransactionVersion(1)
	assert.True(t, v.Is(1))
	assert.False(t, v.HasQueryBit())

	v.SetQueryBit()
	assert.True(t, v.HasQueryBit())
	assert.True(t, v.Is(1), "query bit is ignored")
	assert.False(t, v.Felt.Equal(felt.New(1)))

	plain := v.WithoutQueryBit()
	assert.Equal(t, *felt.New(1), plain.Felt)
}

func TestTransactionHash(t *testing.T) {
	otherChain := core.MustChainID("SN_SEPOLIA")
	v3Market := core.FeeMarket{
		Tip: 1,
		ResourceBounds: map[core.Resource]core.ResourceBounds{
			core.ResourceL1Gas: {MaxAmount: 100, MaxPricePerUnit: *felt.New(50)},
			core.ResourceL2Gas: {MaxAmount: 0, MaxPricePerUnit: felt.Zero},
		},
	}

	txs := map[string]core.Transaction{
		"invoke v0": &core.InvokeTransaction{
			Version: core.NewTransactionVersion(0), SenderAddress: *felt.New(1), EntryPointSelector: *felt.New(2),
		},
		"invoke v1": &core.InvokeTransaction{
			Version: core.NewTransactionVersion(1), SenderAddress: *felt.New(1), Nonce: *felt.New(3),
		},
		"invoke v3": &core.InvokeTransaction{
			Version: core.NewTransactionVersion(3), SenderAddress: *felt.New(1), FeeMarket: v3Market,
		},
		"declare v1": &core.DeclareTransaction{
			Version: core.NewTransactionVersion(1), SenderAddress: *felt.New(1), ClassHash: *felt.New(4),
		},
		"declare v2": &core.DeclareTransaction{
			Version: core.NewTransactionVersion(2), SenderAddress: *felt.New(1), ClassHash: *felt.New(4),
			CompiledClassHash: *felt.New(5),
		},
		"declare v3": &core.DeclareTransaction{
			Version: core.NewTransactionVersion(3), SenderAddress: *felt.New(1), ClassHash: *felt.New(4),
			CompiledClassHash: *felt.New(5), FeeMarket: v3Market,
		},
		"deploy account v1": &core.DeployAccountTransaction{
			Version: core.NewTransactionVersion(1), ContractAddress: *felt.New(6), ClassHash: *felt.New(4),
		},
		"deploy account v3": &core.DeployAccountTransaction{
			Version: core.NewTransactionVersion(3), ContractAddress: *felt.New(6), ClassHash: *felt.New(4),
			FeeMarket: v3Market,
		},
		"l1 handler": &core.L1HandlerTransaction{
			Version: core.NewTransactionVersion(0), ContractAddress: *felt.New(6), Nonce: *felt.New(1),
		},
	}

	for name, tx := range txs {
		t.Run(name, func(t *testing.T) {
			hash, err := core.TransactionHash(tx, &core.DefaultChainID)
			require.NoError(t, err)
			*tx.Hash() = *hash
			require.NoError(t, core.VerifyTransactionHash(tx, &core.DefaultChainID))
			require.Error(t, core.VerifyTransactionHash(tx, &otherChain))
		})
	}

	t.Run("unsupported version", func(t *testing.T) {
		_, err := core.TransactionHash(&core.DeployAccountTransaction{Version: core.NewTransactionVersion(2)}, &core.DefaultChainID)
		require.Error(t, err)
	})
}

func TestTransactionAccessors(t *testing.T) {
	v3 := &core.InvokeTransaction{
		Version:       core.NewTransactionVersion(3),
		SenderAddress: *felt.New(7),
		Nonce:         *felt.New(2),
		FeeMarket: core.FeeMarket{
			Tip: 2,
			ResourceBounds: map[core.Resource]core.ResourceBounds{
				core.ResourceL1Gas: {MaxAmount: 10, MaxPricePerUnit: *felt.New(3)},
				core.ResourceL2Gas: {MaxAmount: 5, MaxPricePerUnit: *felt.New(1)},
			},
		},
	}
	sender, err := core.TransactionSender(v3)
	require.NoError(t, err)
	assert.Equal(t, *felt.New(7), sender)
	nonce, err := core.TransactionNonce(v3)
	require.NoError(t, err)
	assert.Equal(t, *felt.New(2), nonce)
	assert.Equal(t, core.STRK, core.TransactionFeeUnit(v3))

	market := core.TransactionFeeMarket(v3)
	require.NotNil(t, market)
	// 10*3 + 5*1 + tip 2 * 5
	assert.Zero(t, big.NewInt(45).Cmp(market.MaxFeeBound()))

	deploy := &core.DeployAccountTransaction{Version: core.NewTransactionVersion(1), ContractAddress: *felt.New(9), MaxFee: *felt.New(8)}
	sender, err = core.TransactionSender(deploy)
	require.NoError(t, err)
	assert.Equal(t, *felt.New(9), sender)
	assert.Nil(t, core.TransactionFeeMarket(deploy))
	assert.Equal(t, *felt.New(8), core.TransactionMaxFee(deploy))
	assert.Equal(t, core.WEI, core.TransactionFeeUnit(deploy))
}

func TestResourceBoundsBytes(t *testing.T) {
	b := core.ResourceBounds{MaxAmount: 0x0102, MaxPricePerUnit: *felt.New(0x0304)}.Bytes(core.ResourceL1DataGas)
	require.Len(t, b, felt.Bytes)
	assert.Equal(t, "L1_DATA", string(b[1:8]))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, b[8:16])
	assert.Equal(t, byte(3), b[30])
	assert.Equal(t, byte(4), b[31])
}
