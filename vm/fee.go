package vm

import (
	"math/big"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
)

const (
	// l1 gas is charged for every started batch of stepsPerL1Gas steps
	stepsPerL1Gas = 400
	// cost of a state diff felt posted as calldata, in l1 gas
	l1GasPerDAFelt = 551
	// cost of a state diff felt posted in a blob, in l1 data gas
	l1DataGasPerDAFelt = 32
	// each state diff entry is posted as a key and a value
	feltsPerDiffEntry = 2
)

// gasConsumed returns the gas of a transaction with the given steps and state diff size.
func gasConsumed(steps, diffEntries uint64, mode core.L1DAMode) (GasConsumed, core.DataAvailability) {
	gas := GasConsumed{L1Gas: (steps + stepsPerL1Gas - 1) / stepsPerL1Gas}
	var da core.DataAvailability
	daFelts := diffEntries * feltsPerDiffEntry
	if mode == core.Blob {
		da.L1DataGas = daFelts * l1DataGasPerDAFelt
		gas.L1DataGas = da.L1DataGas
	} else {
		da.L1Gas = daFelts * l1GasPerDAFelt
		gas.L1Gas += da.L1Gas
	}
	return gas, da
}

func gasPrices(env *core.BlockEnv, unit core.FeeUnit) (felt.Felt, felt.Felt) {
	if unit == core.STRK {
		return env.L1GasPrice.PriceInFri, env.L1DataGasPrice.PriceInFri
	}
	return env.L1GasPrice.PriceInWei, env.L1DataGasPrice.PriceInWei
}

// fee is the amount charged for gas at the block's prices.
func fee(gas GasConsumed, env *core.BlockEnv, unit core.FeeUnit) *big.Int {
	gasPrice, dataGasPrice := gasPrices(env, unit)
	var price, dataPrice big.Int
	gasPrice.BigInt(&price)
	dataGasPrice.BigInt(&dataPrice)
	total := new(big.Int).Mul(&price, new(big.Int).SetUint64(gas.L1Gas))
	return total.Add(total, dataPrice.Mul(&dataPrice, new(big.Int).SetUint64(gas.L1DataGas)))
}

// maxFee is the most the transaction allows to be charged.
func maxFee(txn core.Transaction) *big.Int {
	if market := core.TransactionFeeMarket(txn); market != nil {
		return market.MaxFeeBound()
	}
	maxFee := core.TransactionMaxFee(txn)
	return maxFee.BigInt(new(big.Int))
}

func (c *Config) feeToken(unit core.FeeUnit) felt.Felt {
	if unit == core.STRK {
		return c.FeeTokens.STRK
	}
	return c.FeeTokens.ETH
}
