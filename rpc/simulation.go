package rpc

import (
	"context"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/vm"
)

type SimulationFlag int

const (
	SkipValidateFlag SimulationFlag = iota + 1
	SkipFeeChargeFlag
)

func (s *SimulationFlag) UnmarshalJSON(bytes []byte) (err error) {
	switch flag := string(bytes); flag {
	case `"SKIP_VALIDATE"`:
		*s = SkipValidateFlag
	case `"SKIP_FEE_CHARGE"`:
		*s = SkipFeeChargeFlag
	default:
		err = fmt.Errorf("unknown simulation flag %q", flag)
	}
	return
}

type SimulatedTransaction struct {
	TransactionTrace *vm.TransactionTrace `json:"transaction_trace"`
	FeeEstimation    FeeEstimate          `json:"fee_estimation"`
}

/****************************************************
		Simulate Handlers
*****************************************************/

// SimulateTransactions executes the transactions in order on top of the state of a block and returns their
// traces without committing anything.
func (h *Handler) SimulateTransactions(ctx context.Context, id BlockID, broadcastedTxns []BroadcastedTransaction,
	simulationFlags []SimulationFlag,
) ([]SimulatedTransaction, *jsonrpc.Error) {
	var flags vm.SimulationFlags
	for _, flag := range simulationFlags {
		switch flag {
		case SkipValidateFlag:
			flags.SkipValidate = true
		case SkipFeeChargeFlag:
			flags.SkipFeeTransfer = true
			flags.IgnoreMaxFee = true
		}
	}
	return h.simulate(ctx, broadcastedTxns, flags, &id, "SimulateTransactions")
}

func (h *Handler) simulate(ctx context.Context, broadcastedTxns []BroadcastedTransaction, flags vm.SimulationFlags,
	id *BlockID, op string,
) ([]SimulatedTransaction, *jsonrpc.Error) {
	txns := make([]core.Transaction, 0, len(broadcastedTxns))
	declared := make(map[felt.Felt]state.DeclaredClass)
	for idx := range broadcastedTxns {
		txn, rpcErr := h.adaptBroadcastedTransaction(ctx, &broadcastedTxns[idx])
		if rpcErr != nil {
			return nil, rpcErr
		}
		if txn.DeclaredClass != nil {
			declared[txn.DeclaredClass.Class.Hash()] = *txn.DeclaredClass
		}
		txns = append(txns, txn.Transaction)
	}

	env, rpcErr := h.envByBlockID(id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var simulated []SimulatedTransaction
	rpcErr = h.withState(id, func(st state.Reader) *jsonrpc.Error {
		results, err := h.vm.Execute(txns, declared, env, st, flags)
		if err != nil {
			return h.executionErr(op, err)
		}
		simulated = make([]SimulatedTransaction, len(txns))
		for i := range txns {
			simulated[i] = SimulatedTransaction{
				TransactionTrace: &results.Traces[i],
				FeeEstimation:    feeEstimate(results.Receipts[i], results.GasConsumed[i], env),
			}
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return simulated, nil
}
