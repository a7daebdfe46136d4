package rpc

import (
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptToCoreFeeMarket(t *testing.T) {
	l1DAMode, feeDAMode := DAModeL1, DAModeL2
	txn := &Transaction{
		Tip: felt.New(5),
		ResourceBounds: &ResourceBoundsMap{
			L1Gas: &ResourceBounds{MaxAmount: felt.New(0x1000), MaxPricePerUnit: felt.New(7)},
			L2Gas: &ResourceBounds{MaxPricePerUnit: felt.New(1)},
		},
		PaymasterData: &[]*felt.Felt{felt.New(9)},
		NonceDAMode:   &l1DAMode,
		FeeDAMode:     &feeDAMode,
	}

	market, err := adaptToCoreFeeMarket(txn)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), market.Tip)
	assert.Equal(t, map[core.Resource]core.ResourceBounds{
		core.ResourceL1Gas: {MaxAmount: 0x1000, MaxPricePerUnit: *felt.New(7)},
		core.ResourceL2Gas: {MaxAmount: 0, MaxPricePerUnit: *felt.New(1)},
	}, market.ResourceBounds)
	assert.Equal(t, []felt.Felt{*felt.New(9)}, market.PaymasterData)
	assert.Equal(t, core.DAModeL2, market.FeeDAMode)

	t.Run("max amount does not fit in 64 bits", func(t *testing.T) {
		txn.ResourceBounds.L1Gas.MaxAmount = felt.FromString("0x10000000000000000")
		_, err := adaptToCoreFeeMarket(txn)
		require.ErrorContains(t, err, "max amount")
	})
}
