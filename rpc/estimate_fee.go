package rpc

import (
	"context"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/ethereum/go-ethereum/common"
)

type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

type MsgFromL1 struct {
	// The address of the L1 contract sending the message.
	From     common.Address `json:"from_address" validate:"required"`
	To       felt.Felt      `json:"to_address"`
	Payload  []felt.Felt    `json:"payload"`
	Selector felt.Felt      `json:"entry_point_selector"`
}

type FeeEstimate struct {
	GasConsumed *felt.Felt `json:"gas_consumed"`
	GasPrice    *felt.Felt `json:"gas_price"`
	OverallFee  *felt.Felt `json:"overall_fee"`
	Unit        FeeUnit    `json:"unit"`
}

/****************************************************
		Estimate Fee Handlers
*****************************************************/

// Call runs a read-only entry point of a contract against the state of a block.
func (h *Handler) Call(funcCall FunctionCall, id BlockID) ([]felt.Felt, *jsonrpc.Error) {
	env, rpcErr := h.envByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var result []felt.Felt
	rpcErr = h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		var err error
		result, err = h.vm.Call(&vm.CallInfo{
			ContractAddress: funcCall.ContractAddress,
			Selector:        funcCall.EntryPointSelector,
			Calldata:        funcCall.Calldata,
		}, env, st, h.callMaxSteps)
		if err != nil {
			return h.contractErr("Call", err)
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	if result == nil {
		result = []felt.Felt{}
	}
	return result, nil
}

// EstimateFee simulates the transactions in order and reports what each would be charged. Fees are never
// transferred and max fees are not enforced.
func (h *Handler) EstimateFee(ctx context.Context, broadcastedTxns []BroadcastedTransaction,
	simulationFlags []SimulationFlag, id BlockID,
) ([]FeeEstimate, *jsonrpc.Error) {
	flags := vm.SimulationFlags{SkipFeeTransfer: true, IgnoreMaxFee: true}
	for _, flag := range simulationFlags {
		if flag == SkipValidateFlag {
			flags.SkipValidate = true
		}
	}

	simulated, rpcErr := h.simulate(ctx, broadcastedTxns, flags, &id, "EstimateFee")
	if rpcErr != nil {
		return nil, rpcErr
	}
	estimates := make([]FeeEstimate, len(simulated))
	for i := range simulated {
		estimates[i] = simulated[i].FeeEstimation
	}
	return estimates, nil
}

// EstimateMessageFee estimates the fee of the L1 handler transaction a message from L1 would trigger.
func (h *Handler) EstimateMessageFee(msg MsgFromL1, id BlockID) (*FeeEstimate, *jsonrpc.Error) { //nolint:gocritic
	calldata := make([]felt.Felt, 0, len(msg.Payload)+1)
	calldata = append(calldata, *new(felt.Felt).SetBytes(msg.From.Bytes()))
	calldata = append(calldata, msg.Payload...)
	txn := &core.L1HandlerTransaction{
		ContractAddress:    msg.To,
		EntryPointSelector: msg.Selector,
		CallData:           calldata,
	}
	hash, err := core.TransactionHash(txn, h.bcReader.ChainID())
	if err != nil {
		return nil, h.internalErr("EstimateMessageFee", err)
	}
	txn.TransactionHash = *hash

	env, rpcErr := h.envByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var estimate FeeEstimate
	rpcErr = h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		results, err := h.vm.Execute([]core.Transaction{txn}, nil, env, st, vm.SimulationFlags{
			SkipFeeTransfer: true,
			SkipNonceCheck:  true,
			IgnoreMaxFee:    true,
		})
		if err != nil {
			return h.executionErr("EstimateMessageFee", err)
		}
		estimate = feeEstimate(results.Receipts[0], results.GasConsumed[0], env)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &estimate, nil
}

func feeEstimate(receipt *core.TransactionReceipt, gas vm.GasConsumed, env *core.BlockEnv) FeeEstimate {
	gasPrice := env.GasPriceFor(receipt.FeeUnit)
	overallFee := receipt.Fee
	return FeeEstimate{
		GasConsumed: felt.New(gas.L1Gas),
		GasPrice:    &gasPrice,
		OverallFee:  &overallFee,
		Unit:        feeUnit(receipt.FeeUnit),
	}
}
